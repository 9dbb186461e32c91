package handlers

import (
	"net/http"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"fluxdash/bids"
	"fluxdash/config"
	"fluxdash/models"
)

// Renderer is the template surface the page handlers draw on; implemented by
// server.Templates.
type Renderer interface {
	ExecuteHome(http.ResponseWriter, *models.HomeData) error
	ExecuteSubjects(http.ResponseWriter, *models.SubjectsData) error
	ExecuteSubject(http.ResponseWriter, *models.SubjectData) error
	ExecuteMRIQC(http.ResponseWriter, *models.MRIQCData) error
	ExecuteMRIQCDetail(http.ResponseWriter, *models.MRIQCDetailData) error
	ExecuteFMRIPrep(http.ResponseWriter, *models.FMRIPrepData) error
	ExecuteRedcap(http.ResponseWriter, *models.RedcapData) error
	ExecutePreview(http.ResponseWriter, *models.PreviewData) error
}

var subjectNameRe = regexp.MustCompile(`^sub-[A-Za-z0-9]+$`)

// sexOrder is the fixed column order of the recruitment by-sex table.
var sexOrder = []string{"Male", "Female", "Intersex / Non-binary", "Unknown", "Prefer not to answer"}

// HomeHandler renders the landing page with the dataset headline numbers.
func HomeHandler(cfg *config.Config, caches *Caches, tmpl Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" && r.URL.Path != "" {
			http.NotFound(w, r)
			return
		}
		data := &models.HomeData{
			Page:         page(cfg, cfg.Title, "/"),
			DatasetRoot:  cfg.DatasetRoot,
			Summary:      caches.Summary.Get(),
			ReportCount:  len(caches.MRIQC.Get()),
			RecruitTotal: caches.Redcap.Get().Total,
		}
		render(w, tmpl.ExecuteHome, data)
	}
}

// SubjectsHandler renders the per-subject availability table.
func SubjectsHandler(cfg *config.Config, caches *Caches, tmpl Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := &models.SubjectsData{
			Page:    page(cfg, "Subjects", "/subjects"),
			Summary: caches.Summary.Get(),
		}
		render(w, tmpl.ExecuteSubjects, data)
	}
}

// SubjectHandler renders the detail page for one subject.
func SubjectHandler(cfg *config.Config, caches *Caches, views *ViewStore, tmpl Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/subjects/")
		if !subjectNameRe.MatchString(sub) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}

		var reports []models.Report
		for _, rep := range caches.MRIQC.Get() {
			if rep.Subject == sub {
				rep.Views = views.Count(rep.Name)
				reports = append(reports, rep)
			}
		}

		data := &models.SubjectData{
			Page:      page(cfg, sub, "/subjects/"+sub),
			Inventory: bids.Inventory(cfg.DatasetRoot, sub),
			Reports:   reports,
			ZipURL:    "/zip/" + sub,
		}
		if data.Inventory.HasFMRIPrep {
			data.FMRIPrepURL = "/fmriprep_files/" + sub + ".html"
		}
		render(w, tmpl.ExecuteSubject, data)
	}
}

// MRIQCIndexHandler renders the MRIQC report index, group reports first.
func MRIQCIndexHandler(cfg *config.Config, caches *Caches, views *ViewStore, tmpl Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := &models.MRIQCData{
			Page: page(cfg, "MRIQC", "/mriqc"),
		}
		for _, rep := range caches.MRIQC.Get() {
			rep.Views = views.Count(rep.Name)
			if rep.Group {
				data.GroupReports = append(data.GroupReports, rep)
			} else {
				data.SubjectReports = append(data.SubjectReports, rep)
			}
		}
		render(w, tmpl.ExecuteMRIQC, data)
	}
}

// MRIQCDetailHandler renders the viewer for one subject's MRIQC reports. The
// ?report= query picks which report the iframe shows; it must belong to the
// subject, otherwise the first one is used.
func MRIQCDetailHandler(cfg *config.Config, caches *Caches, views *ViewStore, tmpl Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/mriqc/")
		if !subjectNameRe.MatchString(sub) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}

		data := &models.MRIQCDetailData{
			Page:    page(cfg, sub+" · MRIQC", "/mriqc/"+sub),
			Subject: sub,
		}
		for _, rep := range caches.MRIQC.Get() {
			if rep.Subject == sub {
				rep.Views = views.Count(rep.Name)
				data.Reports = append(data.Reports, rep)
			}
		}
		if len(data.Reports) == 0 {
			http.Error(w, "No MRIQC reports for "+sub, http.StatusNotFound)
			return
		}

		data.Selected = data.Reports[0]
		if want := r.URL.Query().Get("report"); want != "" {
			for _, rep := range data.Reports {
				if rep.Name == want {
					data.Selected = rep
					break
				}
			}
		}
		render(w, tmpl.ExecuteMRIQCDetail, data)
	}
}

// FMRIPrepIndexHandler renders the fMRIPrep report index.
func FMRIPrepIndexHandler(cfg *config.Config, caches *Caches, views *ViewStore, tmpl Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := &models.FMRIPrepData{
			Page: page(cfg, "fMRIPrep", "/fmriprep"),
		}
		for _, rep := range caches.FMRIPrep.Get() {
			rep.Views = views.Count("fmriprep/" + rep.Name)
			data.Reports = append(data.Reports, rep)
		}
		render(w, tmpl.ExecuteFMRIPrep, data)
	}
}

// RedcapHandler renders the recruitment page.
func RedcapHandler(cfg *config.Config, caches *Caches, tmpl Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := &models.RedcapData{
			Page:    page(cfg, "Recruitment", "/redcap"),
			Summary: caches.Redcap.Get(),
			SexKeys: sexOrder,
		}
		render(w, tmpl.ExecuteRedcap, data)
	}
}

// listReports collects the top-level HTML reports under root. MRIQC and
// fMRIPrep both write sub-*.html next to group-level reports; figure
// directories live alongside and are skipped here.
func listReports(root, urlPrefix string) []models.Report {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}

	var reports []models.Report
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".html") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		rep := models.Report{
			Name:    name,
			Path:    urlPrefix + name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		stem := strings.TrimSuffix(name, ".html")
		if strings.HasPrefix(stem, "sub-") {
			// Owning subject is the leading entity: sub-001_ses-01_T1w → sub-001.
			rep.Subject, _, _ = strings.Cut(stem, "_")
		} else {
			rep.Group = true
		}
		reports = append(reports, rep)
	}

	// Group reports first, then by name.
	sort.Slice(reports, func(i, j int) bool {
		if reports[i].Group != reports[j].Group {
			return reports[i].Group
		}
		return reports[i].Name < reports[j].Name
	})
	return reports
}

// page fills the fields shared by every view model.
func page(cfg *config.Config, title, urlPath string) models.Page {
	return models.Page{
		Title:       title,
		SiteName:    cfg.Title,
		Breadcrumbs: buildBreadcrumbs(urlPath),
	}
}

// buildBreadcrumbs creates the breadcrumb trail for a URL path.
func buildBreadcrumbs(urlPath string) []models.Breadcrumb {
	crumbs := []models.Breadcrumb{{Name: "home", Path: "/"}}
	if urlPath == "/" {
		return crumbs
	}
	current := ""
	for _, p := range strings.Split(strings.Trim(urlPath, "/"), "/") {
		if p == "" {
			continue
		}
		current += "/" + p
		crumbs = append(crumbs, models.Breadcrumb{Name: p, Path: current})
	}
	return crumbs
}

// render executes a template and reports failures uniformly.
func render[T any](w http.ResponseWriter, exec func(http.ResponseWriter, T) error, data T) {
	if err := exec(w, data); err != nil {
		http.Error(w, "Template error", http.StatusInternalServerError)
	}
}
