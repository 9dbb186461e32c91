package handlers

import (
	"bytes"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// FaviconHandler serves the favicon. A configured favicon path wins and is
// read on every request so the file can be swapped without a restart; the
// default favicon.svg comes from the embedded assets.
func FaviconHandler(embeddedFS fs.FS, faviconPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if faviconPath != "" {
			data, err := os.ReadFile(faviconPath)
			if err != nil {
				http.Error(w, "favicon not found", http.StatusNotFound)
				return
			}
			info, err := os.Stat(faviconPath)
			if err != nil {
				http.Error(w, "favicon not found", http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", faviconMIME(faviconPath))
			w.Header().Set("Cache-Control", "no-cache")
			http.ServeContent(w, r, "favicon", info.ModTime(), bytes.NewReader(data))
			return
		}

		data, err := fs.ReadFile(embeddedFS, "images/favicon.svg")
		if err != nil {
			http.Error(w, "favicon not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeContent(w, r, "favicon.svg", time.Time{}, bytes.NewReader(data))
	}
}

// faviconMIME returns a MIME type for the favicon file extension.
func faviconMIME(path string) string {
	switch filepath.Ext(path) {
	case ".svg":
		return "image/svg+xml"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "image/x-icon"
	}
}
