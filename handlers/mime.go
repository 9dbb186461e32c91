package handlers

import (
	"bytes"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ownExtensions is checked before the OS MIME registry. It covers the file
// types found in BIDS datasets and MRIQC/fMRIPrep derivative trees, plus a
// few the OS registry misclassifies.
var ownExtensions = map[string]string{
	// --- reports / markup ---
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "text/javascript",
	".svg":  "image/svg+xml",
	".md":   "text/markdown",
	".org":  "text/x-org",
	".rst":  "text/x-rst",

	// --- BIDS data & sidecars ---
	".json": "application/json",
	".tsv":  "text/tab-separated-values",
	".csv":  "text/csv",
	".txt":  "text/plain",
	".bval": "text/plain",
	".bvec": "text/plain",
	".nii":  "application/x-nifti",
	".gz":   "application/gzip", // covers .nii.gz
	".gii":  "application/x-gifti",
	".edf":  "application/x-edf",

	// --- figures ---
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".pdf":  "application/pdf",
}

// ownBaseNames matches well-known extensionless dataset files.
var ownBaseNames = map[string]string{
	"readme":      "text/markdown",
	"changes":     "text/plain",
	"license":     "text/plain",
	".bidsignore": "text/plain",
}

// mimeForFile returns the MIME type for a file, using the filesystem path so
// that content sniffing can be used as a last resort.
//
// Resolution order:
//  1. Our own extension table (takes priority over the OS registry)
//  2. OS MIME registry
//  3. Extensionless base-name table
//  4. Content sniffing on the first 512 bytes
func mimeForFile(fsPath string) string {
	if t := mimeForName(fsPath); t != "application/octet-stream" {
		return t
	}
	return sniffMIME(fsPath)
}

// mimeForName is the name-only variant used where content sniffing is not
// wanted (e.g. choosing a response header before opening the file).
func mimeForName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != "" {
		if t, ok := ownExtensions[ext]; ok {
			return t
		}
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
	}
	if t, ok := ownBaseNames[strings.ToLower(filepath.Base(name))]; ok {
		return t
	}
	return "application/octet-stream"
}

// sniffMIME reads up to 512 bytes and classifies the content: known binary
// signatures via the standard library, otherwise text/plain for valid UTF-8
// without null bytes.
func sniffMIME(fsPath string) string {
	f, err := os.Open(fsPath)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	if n == 0 {
		return "text/plain"
	}
	buf = buf[:n]

	if bytes.IndexByte(buf, 0) != -1 {
		return "application/octet-stream"
	}
	if detected := http.DetectContentType(buf); !strings.HasPrefix(detected, "text/") &&
		detected != "application/octet-stream" {
		return detected
	}
	if utf8.Valid(buf) {
		return "text/plain"
	}
	return "application/octet-stream"
}

// isHTML reports whether a MIME type denotes an HTML document.
func isHTML(mimeType string) bool {
	return baseMIME(mimeType) == "text/html"
}

// isImage reports whether the MIME type represents an image.
func isImage(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// isText reports whether the MIME type represents a text file.
func isText(mimeType string) bool {
	base := baseMIME(mimeType)
	if strings.HasPrefix(base, "text/") {
		return true
	}
	switch base {
	case "application/json", "application/xml", "application/javascript":
		return true
	}
	return false
}

// baseMIME strips any parameters from a MIME type string
// (e.g. "text/html; charset=utf-8" → "text/html").
func baseMIME(mimeType string) string {
	return strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
}
