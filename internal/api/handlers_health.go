// handlers_health.go - Health check handlers
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version         string
	storageProvider string
	started         time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version, storageProvider string) HealthHandler {
	return &HealthHandlerImpl{
		version:         version,
		storageProvider: storageProvider,
		started:         time.Now(),
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"version":         h.version,
		"storageProvider": h.storageProvider,
		"uptimeSeconds":   int64(time.Since(h.started).Seconds()),
	})
}
