// handlers_charts.go - Chart dataset handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sprint-insights/backend/internal/models"
	"github.com/sprint-insights/backend/internal/sprint"
)

// ChartHandlerImpl implements the ChartHandler interface
type ChartHandlerImpl struct {
	folders FolderService
	charts  *models.ChartData
}

// NewChartHandler creates a chart handler serving the datasets built from stats.
func NewChartHandler(folders FolderService, stats *sprint.Stats) ChartHandler {
	return &ChartHandlerImpl{
		folders: folders,
		charts:  sprint.BuildChartData(stats),
	}
}

// HandleFileCharts returns the chart dataset shown for a selected file.
// The file must exist in the caller's folder.
func (h *ChartHandlerImpl) HandleFileCharts(c echo.Context) error {
	rc, err := h.folders.OpenFile(c.Request().Context(), userID(c), c.Param("folder"), c.Param("file"))
	if err != nil {
		return MapError("failed to open file", err)
	}
	rc.Close()

	return statusOK(c, h.charts)
}

// HandleSprintData returns the fixed sprint summary.
func (h *ChartHandlerImpl) HandleSprintData(c echo.Context) error {
	return c.JSON(http.StatusOK, sprint.LegacySummary())
}
