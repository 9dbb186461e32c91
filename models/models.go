// Package models defines the view models passed to page templates.
package models

import (
	"html/template"
	"time"

	"fluxdash/bids"
	"fluxdash/redcap"
)

// Breadcrumb is one segment of the navigation bar.
type Breadcrumb struct {
	Name string
	Path string // URL path for this breadcrumb
}

// Page carries the fields every template needs.
type Page struct {
	Title       string
	SiteName    string // branding name shown in the header and page title
	Breadcrumbs []Breadcrumb
}

// Report is one QC report entry in a listing.
type Report struct {
	Name    string // file name, e.g. sub-001_T1w.html
	Path    string // serving URL, e.g. /mriqc_files/sub-001_T1w.html
	Subject string // owning subject, empty for group reports
	Group   bool   // true for group-level reports
	Size    int64
	ModTime time.Time
	Views   int64
}

// HomeData backs the landing page.
type HomeData struct {
	Page
	DatasetRoot  string
	Summary      *bids.DatasetSummary
	ReportCount  int
	RecruitTotal int
}

// SubjectsData backs the per-subject availability table.
type SubjectsData struct {
	Page
	Summary *bids.DatasetSummary
}

// SubjectData backs the single-subject detail page.
type SubjectData struct {
	Page
	Inventory   bids.SubjectInventory
	Reports     []Report // this subject's MRIQC reports
	FMRIPrepURL string   // empty when no fMRIPrep report exists
	ZipURL      string   // QC bundle download for this subject
}

// MRIQCData backs the MRIQC report index.
type MRIQCData struct {
	Page
	GroupReports   []Report
	SubjectReports []Report
}

// MRIQCDetailData backs the per-subject MRIQC viewer. The selected report is
// shown in an iframe over its /mriqc_files/ URL.
type MRIQCDetailData struct {
	Page
	Subject  string
	Reports  []Report
	Selected Report
}

// FMRIPrepData backs the fMRIPrep report index.
type FMRIPrepData struct {
	Page
	Reports []Report
}

// RedcapData backs the recruitment page.
type RedcapData struct {
	Page
	Summary *redcap.Summary
	SexKeys []string // stable column order for the by-sex table
}

// PreviewData backs the file preview page. Exactly one of IsImage / IsText /
// IsBinary is true.
type PreviewData struct {
	Page
	FilePath string // URL path of the previewed file
	FileName string

	IsImage  bool
	IsText   bool
	IsBinary bool // generic info card

	// ViewURL serves the raw bytes inline (images, download link).
	ViewURL string

	FileSize int64
	MIMEType string
	ModTime  time.Time

	// HighlightedContent is the Chroma-highlighted HTML for text files.
	HighlightedContent template.HTML

	// IsRendered is true when RenderedContent should be shown instead of
	// HighlightedContent (Markdown, Org-mode).
	IsRendered      bool
	RenderedContent template.HTML
}
