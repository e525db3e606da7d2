// handlers_process.go - CSV cleaning job and ZIP cleaning handlers
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sprint-insights/backend/internal/activity"
	"github.com/sprint-insights/backend/internal/dashboard"
	"github.com/sprint-insights/backend/internal/metrics"
	"github.com/sprint-insights/backend/internal/sprint"
)

// DefaultMaxZipSize caps the size of an uploaded archive.
const DefaultMaxZipSize = 100 << 20

// HeaderDuplicateCounts carries the per-file duplicate counts of a cleaned archive as JSON.
const HeaderDuplicateCounts = "X-Duplicate-Counts"

// ProcessHandlerImpl implements the ProcessHandler interface
type ProcessHandlerImpl struct {
	jobs       JobManager
	activity   activity.Recorder
	maxZipSize int64
	logger     *zap.Logger
}

// NewProcessHandler creates a new processing handler
func NewProcessHandler(jobs JobManager, rec activity.Recorder, maxZipSize int64, logger *zap.Logger) ProcessHandler {
	if maxZipSize <= 0 {
		maxZipSize = DefaultMaxZipSize
	}
	return &ProcessHandlerImpl{
		jobs:       jobs,
		activity:   rec,
		maxZipSize: maxZipSize,
		logger:     logger,
	}
}

// HandleStartProcess starts cleaning every CSV of a folder in the background.
func (h *ProcessHandlerImpl) HandleStartProcess(c echo.Context) error {
	folder := c.Param("folder")
	if err := dashboard.ValidateFolderName(folder); err != nil {
		return MapError("invalid folder", err)
	}

	user := userID(c)
	job := h.jobs.StartJob(user, folder)

	_ = h.activity.Record(c.Request().Context(), activity.Event{
		UserID: user,
		Action: activity.ActionProcess,
		Folder: folder,
		Detail: job.ID,
	})
	return c.JSON(http.StatusAccepted, job)
}

// HandleJobStatus returns one of the caller's processing jobs.
func (h *ProcessHandlerImpl) HandleJobStatus(c echo.Context) error {
	id := c.Param("jobId")
	job, ok := h.jobs.GetJob(id)
	if !ok || job.UserID != userID(c) {
		return NewNotFoundError("job", id)
	}
	return c.JSON(http.StatusOK, job)
}

// HandleProcessZip cleans every CSV of an uploaded ZIP and responds with a
// new archive holding the cleaned copies.
func (h *ProcessHandlerImpl) HandleProcessZip(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}
	if !strings.EqualFold(filepath.Ext(fh.Filename), ".zip") {
		return NewBadRequestError("File must be a ZIP archive", nil)
	}
	if fh.Size > h.maxZipSize {
		return NewPayloadTooLargeError(h.maxZipSize)
	}

	f, err := fh.Open()
	if err != nil {
		return NewBadRequestError("failed to read uploaded file", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxZipSize+1))
	if err != nil {
		return NewBadRequestError("failed to read uploaded file", err)
	}
	if int64(len(data)) > h.maxZipSize {
		return NewPayloadTooLargeError(h.maxZipSize)
	}

	var out bytes.Buffer
	result, err := sprint.CleanZip(bytes.NewReader(data), int64(len(data)), &out)
	if err != nil {
		return MapError("failed to clean archive", err)
	}

	duplicates := result.Duplicates()
	total := 0
	for _, n := range duplicates {
		total += n
	}
	metrics.DuplicateRowsDropped.Add(float64(total))

	if counts, err := json.Marshal(duplicates); err == nil {
		c.Response().Header().Set(HeaderDuplicateCounts, string(counts))
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="processed_%s"`, filepath.Base(fh.Filename)))

	h.logger.Info("cleaned archive",
		zap.String("file", fh.Filename),
		zap.Int("processed", len(result.Processed)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("duplicates", total))
	_ = h.activity.Record(c.Request().Context(), activity.Event{
		UserID: userID(c),
		Action: activity.ActionCleanZip,
		Detail: fh.Filename,
	})
	return c.Blob(http.StatusOK, "application/zip", out.Bytes())
}
