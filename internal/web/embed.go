// Package web serves the embedded dashboard frontend.
package web

import (
	"embed"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
)

//go:embed dist/*
var staticFiles embed.FS

// GetFileSystem returns the embedded filesystem with the dist folder as root.
func GetFileSystem() (fs.FS, error) {
	return fs.Sub(staticFiles, "dist")
}

// RegisterStaticRoutes serves the frontend for every path the API does not own.
// Unknown paths fall back to index.html so the client router can handle them.
// The API routes should be registered before calling this function.
func RegisterStaticRoutes(e *echo.Echo) error {
	staticFS, err := GetFileSystem()
	if err != nil {
		return err
	}
	fileServer := http.FileServer(http.FS(staticFS))

	e.GET("/*", func(c echo.Context) error {
		requestPath := path.Clean(c.Request().URL.Path)
		if strings.HasPrefix(requestPath, "/api/") || requestPath == "/metrics" {
			return echo.ErrNotFound
		}
		// FileServer redirects /index.html to the directory
		if requestPath == "/" || requestPath == "." || requestPath == "/index.html" {
			return serveIndexHTML(c, staticFS)
		}

		file, err := staticFS.Open(strings.TrimPrefix(requestPath, "/"))
		if err != nil {
			return serveIndexHTML(c, staticFS)
		}
		stat, err := file.Stat()
		file.Close()
		if err != nil || stat.IsDir() {
			return serveIndexHTML(c, staticFS)
		}

		fileServer.ServeHTTP(c.Response(), c.Request())
		return nil
	})

	return nil
}

// serveIndexHTML serves the main index.html for SPA routing
func serveIndexHTML(c echo.Context, staticFS fs.FS) error {
	indexFile, err := staticFS.Open("index.html")
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "index.html not found")
	}
	defer indexFile.Close()

	content, err := io.ReadAll(indexFile)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read index.html")
	}

	return c.HTMLBlob(http.StatusOK, content)
}

// HasEmbeddedFiles returns true if the frontend has been built and embedded.
func HasEmbeddedFiles() bool {
	_, err := fs.Stat(staticFiles, "dist/index.html")
	return err == nil
}
