package handlers

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"fluxdash/config"
)

// ZipHandler streams one subject's QC bundle as a ZIP archive: the MRIQC
// reports and figure directory, plus the fMRIPrep report when present. Lets
// a rater take a subject's QC offline in one click.
func ZipHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/zip/")
		if !subjectNameRe.MatchString(sub) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}

		entries := collectSubjectQC(cfg, sub)
		if len(entries) == 0 {
			http.Error(w, "No QC files for "+sub, http.StatusNotFound)
			return
		}

		ip := clientIP(r)
		log.Printf("zip  download   ip=%-15s  subject=%s  files=%d", ip, sub, len(entries))
		start := time.Now()

		n, err := streamZip(w, entries, sub+"_qc")
		if err != nil {
			log.Printf("zip  error      ip=%-15s  subject=%s  err=%v", ip, sub, err)
			return
		}
		log.Printf("zip  complete   ip=%-15s  size=%-10s  duration=%s  subject=%s",
			ip, formatSize(n), time.Since(start).Round(time.Millisecond), sub)
	}
}

// zipEntry describes a single file to be added to a ZIP archive.
type zipEntry struct {
	fsPath  string // absolute path on disk
	zipName string // path inside the archive
}

// collectSubjectQC gathers every QC file belonging to a subject.
func collectSubjectQC(cfg *config.Config, sub string) []zipEntry {
	var entries []zipEntry

	mriqc := cfg.MRIQCRoot()
	if names, err := filepath.Glob(filepath.Join(mriqc, sub+"*.html")); err == nil {
		for _, p := range names {
			entries = append(entries, zipEntry{fsPath: p, zipName: "mriqc/" + filepath.Base(p)})
		}
	}
	entries = append(entries, collectTree(filepath.Join(mriqc, sub), "mriqc/"+sub)...)

	fmriprep := filepath.Join(cfg.FMRIPrepRoot(), sub+".html")
	if _, err := os.Stat(fmriprep); err == nil {
		entries = append(entries, zipEntry{fsPath: fmriprep, zipName: "fmriprep/" + sub + ".html"})
	}
	return entries
}

// collectTree walks fsPath and returns all files with their archive names
// rooted at prefix.
func collectTree(fsPath, prefix string) []zipEntry {
	var entries []zipEntry
	_ = filepath.Walk(fsPath, func(filePath string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(fsPath, filePath)
		if err != nil {
			return nil
		}
		entries = append(entries, zipEntry{
			fsPath:  filePath,
			zipName: prefix + "/" + filepath.ToSlash(rel),
		})
		return nil
	})
	return entries
}

// countingWriter counts the bytes written to it, discarding the data. Used
// for the dry-run pass that determines the exact ZIP size before committing
// to an http.ResponseWriter.
type countingWriter struct{ n int64 }

func (cw *countingWriter) Write(p []byte) (int, error) {
	cw.n += int64(len(p))
	return len(p), nil
}

// buildZip writes all entries into w using Store compression. It is called
// twice by streamZip: once against a countingWriter (dry run) and once
// against the real response. Because Store is a verbatim copy, the byte count
// from the dry run matches the real write.
func buildZip(w io.Writer, entries []zipEntry) error {
	zw := zip.NewWriter(w)
	for _, e := range entries {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:   e.zipName,
			Method: zip.Store,
		})
		if err != nil {
			return err
		}
		f, err := os.Open(e.fsPath)
		if err != nil {
			continue // skip unreadable files
		}
		_, copyErr := io.Copy(fw, f)
		f.Close()
		if copyErr != nil {
			return copyErr
		}
	}
	return zw.Close()
}

// streamZip measures the exact ZIP size via a dry-run pass, sets
// Content-Length, then streams the real archive. No temp files or memory
// buffers are needed. Returns the number of bytes written.
func streamZip(w http.ResponseWriter, entries []zipEntry, name string) (int64, error) {
	cw := &countingWriter{}
	if err := buildZip(cw, entries); err != nil {
		http.Error(w, "Could not build archive", http.StatusInternalServerError)
		return 0, err
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.zip"`, name))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", cw.n))

	return cw.n, buildZip(w, entries)
}
