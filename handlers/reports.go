package handlers

import (
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fluxdash/config"
	"fluxdash/rewrite"
)

// MRIQCFilesHandler serves files from the MRIQC report subtree under
// /mriqc_files/. HTML documents are passed through the link rewriter before
// they go out; everything else streams unchanged. Traversal attempts get 403,
// ordinary misses 404.
func MRIQCFilesHandler(cfg *config.Config, rw *rewrite.Rewriter, views *ViewStore) http.HandlerFunc {
	root := cfg.MRIQCRoot()
	return func(w http.ResponseWriter, r *http.Request) {
		// The raw path goes to resolveUnder uncleaned so that ".." segments
		// are still visible to the traversal guard and answered with 403.
		rel := strings.TrimPrefix(r.URL.Path, "/mriqc_files/")

		fsPath, err := resolveUnder(root, rel)
		if err != nil {
			log.Printf("mriqc denied    ip=%-15s  path=%s", clientIP(r), r.URL.Path)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		info, err := statFile(fsPath)
		if err != nil {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}

		mimeType := mimeForFile(fsPath)
		if isHTML(mimeType) && rw != nil {
			serveRewrittenHTML(w, r, rw, fsPath)
			views.Record(relOrBase(root, fsPath))
			return
		}

		f, err := os.Open(fsPath)
		if err != nil {
			http.Error(w, "Could not open file", http.StatusInternalServerError)
			return
		}
		defer f.Close()

		w.Header().Set("Content-Type", mimeType)
		http.ServeContent(w, r, filepath.Base(fsPath), info.ModTime(), f)
	}
}

// serveRewrittenHTML reads an HTML report, repairs any invalid UTF-8 and
// rewrites its internal links before responding. Reports are small enough to
// hold in memory; the rewrite needs the whole document anyway.
func serveRewrittenHTML(w http.ResponseWriter, r *http.Request, rw *rewrite.Rewriter, fsPath string) {
	raw, err := os.ReadFile(fsPath)
	if err != nil {
		http.Error(w, "Could not open file", http.StatusInternalServerError)
		return
	}

	// Some MRIQC reports carry stray non-UTF-8 bytes; replace rather than
	// fail so the page still renders.
	doc := strings.ToValidUTF8(string(raw), "�")
	out := rw.Rewrite(doc, fsPath)

	ip := clientIP(r)
	log.Printf("report serve    ip=%-15s  size=%-10s  file=%s", ip, formatSize(int64(len(out))), r.URL.Path)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write([]byte(out))
	}
}

// FMRIPrepFilesHandler serves fMRIPrep derivative reports under
// /fmriprep_files/. Misses answer with a descriptive plain-text body instead
// of the bare default so users can tell a missing derivative from a broken
// route.
func FMRIPrepFilesHandler(cfg *config.Config, views *ViewStore) http.HandlerFunc {
	root := cfg.FMRIPrepRoot()
	return func(w http.ResponseWriter, r *http.Request) {
		rel := strings.TrimPrefix(r.URL.Path, "/fmriprep_files/")

		fsPath, err := resolveUnder(root, rel)
		if err != nil {
			if errors.Is(err, errTraversal) {
				log.Printf("fmriprep denied ip=%-15s  path=%s", clientIP(r), r.URL.Path)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			fmriprepNotFound(w, rel)
			return
		}
		info, err := statFile(fsPath)
		if err != nil {
			fmriprepNotFound(w, rel)
			return
		}

		f, err := os.Open(fsPath)
		if err != nil {
			http.Error(w, "Could not open file", http.StatusInternalServerError)
			return
		}
		defer f.Close()

		mimeType := mimeForFile(fsPath)
		if isHTML(mimeType) {
			views.Record("fmriprep/" + rel)
		}
		w.Header().Set("Content-Type", mimeType)
		http.ServeContent(w, r, filepath.Base(fsPath), info.ModTime(), f)
	}
}

// fmriprepNotFound writes the plain-text miss response for fMRIPrep files.
func fmriprepNotFound(w http.ResponseWriter, rel string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte("fMRIPrep file not found: " + rel + "\n"))
}

// DatasetStaticHandler serves miscellaneous dataset-relative assets under
// /static/. The traversal guard runs before the existence check so probing
// outside the dataset always answers 403 regardless of whether the target
// exists.
func DatasetStaticHandler(cfg *config.Config) http.HandlerFunc {
	root := cfg.DatasetRoot
	return func(w http.ResponseWriter, r *http.Request) {
		rel := strings.TrimPrefix(r.URL.Path, "/static/")

		fsPath, err := resolveUnder(root, rel)
		if err != nil {
			log.Printf("static denied   ip=%-15s  path=%s", clientIP(r), r.URL.Path)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		info, err := statFile(fsPath)
		if err != nil {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}

		f, err := os.Open(fsPath)
		if err != nil {
			http.Error(w, "Could not open file", http.StatusInternalServerError)
			return
		}
		defer f.Close()

		w.Header().Set("Content-Type", mimeForFile(fsPath))
		http.ServeContent(w, r, filepath.Base(fsPath), info.ModTime(), f)
	}
}

// relOrBase returns fsPath relative to root, or just the base name when the
// relation cannot be computed. Used as the view-counter key.
func relOrBase(root, fsPath string) string {
	rel, err := filepath.Rel(root, fsPath)
	if err != nil {
		return filepath.Base(fsPath)
	}
	return filepath.ToSlash(rel)
}
