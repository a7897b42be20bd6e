// Package handlers holds the route handlers riptide serves out of the box.
package handlers

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/watt-toolkit/riptide/core"
	"github.com/watt-toolkit/riptide/pkg/riptide/http11"
)

// Config configures the bundled handlers.
type Config struct {
	// Directory serves /files/{filename}. Empty leaves the file routes
	// unregistered.
	Directory string

	Logger *zap.Logger
}

// Register installs the bundled routes on app:
//
//	GET  /
//	GET  /echo/{str}
//	GET  /user-agent
//	GET  /files/{filename}
//	POST /files/{filename}
func Register(app *core.App, cfg Config) error {
	errs := []error{
		app.Get("/", Root),
		app.Get("/echo/{str}", Echo),
		app.Get("/user-agent", UserAgent),
	}
	if cfg.Directory != "" {
		files := NewFiles(cfg.Directory, cfg.Logger)
		errs = append(errs,
			app.Get("/files/{filename}", files.Get),
			app.Post("/files/{filename}", files.Post),
		)
	}
	return errors.Join(errs...)
}

// Root answers 200 with an empty body.
func Root(c *core.Context) error {
	return c.NoContent(http11.StatusOK)
}

// Echo answers with the str path parameter.
func Echo(c *core.Context) error {
	return c.Text(http11.StatusOK, c.Param("str"))
}

// UserAgent answers with the request's User-Agent header.
func UserAgent(c *core.Context) error {
	return c.Text(http11.StatusOK, c.GetHeader("User-Agent"))
}

// Files reads and writes files in one directory.
type Files struct {
	dir string
	log *zap.Logger
}

// NewFiles serves files from dir.
func NewFiles(dir string, log *zap.Logger) *Files {
	if log == nil {
		log = zap.NewNop()
	}
	return &Files{dir: dir, log: log.Named("files")}
}

// Get answers with the file's contents as application/octet-stream, or 404.
func (f *Files) Get(c *core.Context) error {
	path, err := f.resolve(c.Param("filename"))
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", core.ErrNotFound, c.Param("filename"))
	case err != nil:
		return fmt.Errorf("handlers: read %s: %w", path, err)
	}
	return c.Bytes(http11.StatusOK, http11.MIMEOctetStream, data)
}

// Post writes the request body to the file and answers 201.
func (f *Files) Post(c *core.Context) error {
	path, err := f.resolve(c.Param("filename"))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, c.Body(), 0o644); err != nil {
		return fmt.Errorf("handlers: write %s: %w", path, err)
	}
	f.log.Debug("file written", zap.String("path", path), zap.Int("bytes", len(c.Body())))
	return c.NoContent(http11.StatusCreated)
}

// resolve maps a file name to a path inside the directory. Names that
// would escape it are reported as not found.
func (f *Files) resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %s", core.ErrNotFound, name)
	}
	return filepath.Join(f.dir, name), nil
}
