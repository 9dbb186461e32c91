// Package handlers contains all HTTP handler functions.
package handlers

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"fluxdash/rewrite"
)

var (
	// errTraversal marks a request whose resolved path escapes its root.
	// Handlers answer it with 403, never 404, so traversal attempts are
	// distinguishable from ordinary misses in access logs.
	errTraversal = errors.New("path traversal detected")
	errNotFound  = errors.New("file not found")
)

// resolveUnder joins a slash-separated relative URL path onto root, collapses
// a duplicated subject segment, resolves symlinks, and verifies the result is
// root itself or a descendant of it. Descent is decided with filepath.Rel
// rather than a string-prefix comparison so /data/foo never matches
// /data/foobar.
func resolveUnder(root, urlRel string) (string, error) {
	fsPath := filepath.Join(root, filepath.FromSlash(urlRel))
	fsPath = rewrite.CollapseDuplicateSubjectPath(filepath.Clean(fsPath))

	// Resolve symlinks where possible so a link pointing outside the root is
	// caught. The target may not exist; fall back to the lexical path then
	// and let the caller's stat produce the 404.
	if resolved, err := filepath.EvalSymlinks(fsPath); err == nil {
		fsPath = resolved
	}
	cleanRoot := filepath.Clean(root)
	if resolved, err := filepath.EvalSymlinks(cleanRoot); err == nil {
		cleanRoot = resolved
	}

	rel, err := filepath.Rel(cleanRoot, fsPath)
	if err != nil {
		return "", errTraversal
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errTraversal
	}
	return fsPath, nil
}

// statFile stats fsPath and returns errNotFound unless it is a regular file.
func statFile(fsPath string) (os.FileInfo, error) {
	info, err := os.Stat(fsPath)
	if err != nil || !info.Mode().IsRegular() {
		return nil, errNotFound
	}
	return info, nil
}
