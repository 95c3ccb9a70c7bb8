package web

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

const notFoundBody = "<h1>404 Not Found</h1>"

// contentTypes maps file extensions to the Content-Type served for them.
// Anything else is application/octet-stream.
var contentTypes = map[string]string{
	".html": "text/html",
	".js":   "text/javascript",
	".css":  "text/css",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
}

// Static serves files below a root directory. "/" serves index.html, the
// query string is ignored, and a cleaned path can never leave the root.
type Static struct {
	root string
}

// NewStatic returns a Static rooted at dir.
func NewStatic(dir string) *Static {
	return &Static{root: dir}
}

// ContentType returns the Content-Type for name's extension.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ServeHTTP implements [http.Handler].
func (s *Static) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := path.Clean("/" + r.URL.Path)
	if p == "/" {
		p = "/index.html"
	}
	name := filepath.Join(s.root, filepath.FromSlash(p))

	data, err := os.ReadFile(name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(notFoundBody))
		return
	case err != nil:
		slog.Warn("static file read failed", "path", p, "err", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Server Error: " + reason(err)))
		return
	}

	w.Header().Set("Content-Type", ContentType(name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(data)
	}
}

// reason strips the path from a file error so responses do not leak the
// server's directory layout.
func reason(err error) string {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Err.Error()
	}
	return err.Error()
}
