// Package server contains the HTTP server setup and template management.
package server

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"

	"fluxdash/models"
)

// Templates wraps compiled per-page template sets.
type Templates struct {
	home        *template.Template
	subjects    *template.Template
	subject     *template.Template
	mriqc       *template.Template
	mriqcDetail *template.Template
	fmriprep    *template.Template
	redcap      *template.Template
	preview     *template.Template
}

var tmplFuncs = template.FuncMap{
	"humanSize": humanSize,
	"add":       func(a, b int) int { return a + b },
	"cell":      func(m map[string]map[string]int, outer, inner string) int { return m[outer][inner] },
}

// LoadTemplates parses all templates from the embedded FS.
// Each page gets its own template.Template cloned from base so that
// {{define "content"}} blocks don't collide.
func LoadTemplates(tfs embed.FS) (*Templates, error) {
	sub, err := fs.Sub(tfs, "templates")
	if err != nil {
		return nil, fmt.Errorf("sub fs: %w", err)
	}
	return parseTemplates(sub)
}

// loadTemplatesFromDisk loads templates directly from the filesystem.
// Used in tests where the embedded FS is not available.
func loadTemplatesFromDisk(dir string) (*Templates, error) {
	return parseTemplates(os.DirFS(dir))
}

func parseTemplates(fsys fs.FS) (*Templates, error) {
	base, err := template.New("").Funcs(tmplFuncs).ParseFS(fsys, "base.html")
	if err != nil {
		return nil, fmt.Errorf("parse base: %w", err)
	}

	t := &Templates{}
	pages := []struct {
		dst  **template.Template
		file string
	}{
		{&t.home, "home.html"},
		{&t.subjects, "subjects.html"},
		{&t.subject, "subject.html"},
		{&t.mriqc, "mriqc.html"},
		{&t.mriqcDetail, "mriqc-detail.html"},
		{&t.fmriprep, "fmriprep.html"},
		{&t.redcap, "redcap.html"},
		{&t.preview, "preview.html"},
	}
	for _, p := range pages {
		parsed, err := cloneAndParse(base, fsys, p.file)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", p.file, err)
		}
		*p.dst = parsed
	}
	return t, nil
}

// cloneAndParse clones a base template set and adds one more file.
func cloneAndParse(base *template.Template, fsys fs.FS, name string) (*template.Template, error) {
	t, err := base.Clone()
	if err != nil {
		return nil, err
	}
	return t.ParseFS(fsys, name)
}

func (t *Templates) ExecuteHome(w http.ResponseWriter, data *models.HomeData) error {
	return execute(w, t.home, data)
}

func (t *Templates) ExecuteSubjects(w http.ResponseWriter, data *models.SubjectsData) error {
	return execute(w, t.subjects, data)
}

func (t *Templates) ExecuteSubject(w http.ResponseWriter, data *models.SubjectData) error {
	return execute(w, t.subject, data)
}

func (t *Templates) ExecuteMRIQC(w http.ResponseWriter, data *models.MRIQCData) error {
	return execute(w, t.mriqc, data)
}

func (t *Templates) ExecuteMRIQCDetail(w http.ResponseWriter, data *models.MRIQCDetailData) error {
	return execute(w, t.mriqcDetail, data)
}

func (t *Templates) ExecuteFMRIPrep(w http.ResponseWriter, data *models.FMRIPrepData) error {
	return execute(w, t.fmriprep, data)
}

func (t *Templates) ExecuteRedcap(w http.ResponseWriter, data *models.RedcapData) error {
	return execute(w, t.redcap, data)
}

func (t *Templates) ExecutePreview(w http.ResponseWriter, data *models.PreviewData) error {
	return execute(w, t.preview, data)
}

func execute(w http.ResponseWriter, t *template.Template, data any) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return t.ExecuteTemplate(w, "base", data)
}

// humanSize formats a byte count into a human-readable string.
func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for n := n / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
