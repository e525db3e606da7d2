// handlers_folders.go - Folder listing, upload, rename and delete handlers
package api

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sprint-insights/backend/internal/activity"
	"github.com/sprint-insights/backend/internal/dashboard"
)

// UploadFormField is the multipart field carrying the CSV files.
const UploadFormField = "files"

// FolderHandlerImpl implements the FolderHandler interface
type FolderHandlerImpl struct {
	folders       FolderService
	activity      activity.Recorder
	allowDeletion bool
	logger        *zap.Logger
}

// NewFolderHandler creates a new folder handler
func NewFolderHandler(folders FolderService, rec activity.Recorder, allowDeletion bool, logger *zap.Logger) FolderHandler {
	return &FolderHandlerImpl{
		folders:       folders,
		activity:      rec,
		allowDeletion: allowDeletion,
		logger:        logger,
	}
}

// HandleListFolders returns the caller's folders, newest first.
func (h *FolderHandlerImpl) HandleListFolders(c echo.Context) error {
	folders, err := h.folders.ListFolders(c.Request().Context(), userID(c))
	if err != nil {
		return MapError("failed to list folders", err)
	}
	return statusOK(c, folders)
}

// HandleListFiles returns the CSV files of one folder.
func (h *FolderHandlerImpl) HandleListFiles(c echo.Context) error {
	files, err := h.folders.ListFiles(c.Request().Context(), userID(c), c.Param("folder"))
	if err != nil {
		return MapError("failed to list files", err)
	}
	return statusOK(c, files)
}

// HandleUpload stores a multipart batch of CSV files into a new folder.
// A non-CSV file stops the batch; files stored before it are kept and
// returned in the error's data.
func (h *FolderHandlerImpl) HandleUpload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("expected a multipart form", err)
	}
	headers := form.File[UploadFormField]
	if len(headers) == 0 {
		return NewBadRequestError("no files provided", dashboard.ErrNoFiles)
	}

	files := make([]dashboard.UploadFile, 0, len(headers))
	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return NewBadRequestError(fmt.Sprintf("failed to read %s", fh.Filename), err)
		}
		opened = append(opened, f)
		files = append(files, dashboard.UploadFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get(echo.HeaderContentType),
			Content:     f,
		})
	}

	ctx := c.Request().Context()
	user := userID(c)
	result, err := h.folders.Upload(ctx, user, files)
	if err != nil {
		apiErr := MapError("upload failed", err)
		var partial *dashboard.UploadError
		if errors.As(err, &partial) && partial.Result != nil {
			apiErr.WithData(partial.Result)
		}
		return apiErr
	}

	_ = h.activity.Record(ctx, activity.Event{
		UserID: user,
		Action: activity.ActionUpload,
		Folder: result.Folder.Name,
		Detail: fmt.Sprintf("%d files", len(result.Files)),
	})
	return c.JSON(http.StatusCreated, result)
}

type renameRequest struct {
	Name string `json:"name"`
}

// HandleRenameFolder moves every file of the folder under a new name.
func (h *FolderHandlerImpl) HandleRenameFolder(c echo.Context) error {
	var req renameRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	ctx := c.Request().Context()
	user := userID(c)
	folder := c.Param("folder")
	renamed, err := h.folders.RenameFolder(ctx, user, folder, req.Name)
	if err != nil {
		apiErr := MapError("rename failed", err)
		var partial *dashboard.RenameError
		if errors.As(err, &partial) {
			apiErr.WithData(map[string]int{"moved": partial.Moved, "total": partial.Total})
		}
		return apiErr
	}

	_ = h.activity.Record(ctx, activity.Event{
		UserID: user,
		Action: activity.ActionRename,
		Folder: renamed.Name,
		Detail: "from " + folder,
	})
	return c.JSON(http.StatusOK, renamed)
}

// HandleDeleteFolder removes the folder and every file in it.
func (h *FolderHandlerImpl) HandleDeleteFolder(c echo.Context) error {
	if !h.allowDeletion {
		return NewForbiddenError("folder deletion is disabled")
	}

	ctx := c.Request().Context()
	user := userID(c)
	folder := c.Param("folder")
	if err := h.folders.DeleteFolder(ctx, user, folder); err != nil {
		return MapError("delete failed", err)
	}

	_ = h.activity.Record(ctx, activity.Event{UserID: user, Action: activity.ActionDelete, Folder: folder})
	return c.NoContent(http.StatusNoContent)
}
