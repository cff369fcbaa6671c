package server

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// handleStatic serves files relative to the configured static root. Any
// ".." in the request path is refused before the filesystem is touched.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	fp := "." + r.URL.Path
	if fp == "./" || fp == "." {
		fp = "./index.html"
	}
	if strings.Contains(fp, "..") {
		writeText(w, http.StatusBadRequest, ".. is not allowed in paths")
		return
	}

	content, err := os.ReadFile(filepath.Join(s.cfg.StaticRoot, filepath.FromSlash(fp)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeText(w, http.StatusNotFound, "file not found: "+fp)
			return
		}
		s.logger.Error("static file read failed", "path", fp, "error", err)
		writeText(w, http.StatusInternalServerError, "internal error: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", contentType(fp))
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".js":
		return "text/javascript"
	case ".css":
		return "text/css"
	case ".html":
		return "text/html"
	default:
		return "text/plain"
	}
}
