// Package redcap aggregates recruitment numbers from per-site REDCap CSV
// exports. Each export file names its site (…_calgary.csv, …_montreal.csv,
// …_toronto.csv); rows repeat per instrument, so enrolment is counted over
// distinct record IDs.
package redcap

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// sexLabels maps the REDCap integer codes of the demographics instrument.
var sexLabels = map[int]string{
	1:   "Male",
	2:   "Female",
	3:   "Intersex / Non-binary",
	777: "Unknown",
	888: "Prefer not to answer",
}

// Column name candidates, tried in order. Export templates differ slightly
// between sites and REDCap versions.
var (
	recordIDColumns = []string{"record_id", "participant_id", "study_id"}
	dateColumns     = []string{"t1_date", "mri_date", "date_enrolled", "enrollment_date", "consent_date"}
	sexColumns      = []string{"demo_sex", "sex"}
)

// SiteSummary holds the aggregate for one recruitment site.
type SiteSummary struct {
	Site    string
	Records int
	BySex   map[string]int
	ByMonth map[string]int // YYYY-MM -> new enrolments
}

// Summary is the recruitment aggregate across all sites.
type Summary struct {
	Sites  []SiteSummary
	Months []string // sorted union of all ByMonth keys
	Total  int
}

// DeriveSite infers the recruitment site from an export file name.
func DeriveSite(path string) (string, error) {
	stem := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	for _, site := range []string{"Montreal", "Calgary", "Toronto"} {
		if strings.Contains(stem, strings.ToLower(site)) {
			return site, nil
		}
	}
	return "", fmt.Errorf("cannot infer site from filename %q", filepath.Base(path))
}

// Load reads every *.csv under root and aggregates recruitment per site.
// A missing root yields an empty summary; files whose site cannot be derived
// or that fail to parse are skipped with a warning.
func Load(root string) (*Summary, error) {
	matches, err := filepath.Glob(filepath.Join(root, "*.csv"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	sum := &Summary{}
	months := map[string]bool{}
	for _, path := range matches {
		site, err := DeriveSite(path)
		if err != nil {
			log.Printf("redcap: skipping %s: %v", filepath.Base(path), err)
			continue
		}
		ss, err := loadSite(path, site)
		if err != nil {
			log.Printf("redcap: skipping %s: %v", filepath.Base(path), err)
			continue
		}
		sum.Sites = append(sum.Sites, ss)
		sum.Total += ss.Records
		for m := range ss.ByMonth {
			months[m] = true
		}
	}

	sum.Months = make([]string, 0, len(months))
	for m := range months {
		sum.Months = append(sum.Months, m)
	}
	sort.Strings(sum.Months)
	return sum, nil
}

// loadSite aggregates a single export file.
func loadSite(path, site string) (SiteSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return SiteSummary{}, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // exports pad repeat-instrument rows unevenly

	header, err := r.Read()
	if err != nil {
		return SiteSummary{}, fmt.Errorf("read header: %w", err)
	}
	col := indexColumns(header)
	idCol := pickFirst(col, recordIDColumns)
	if idCol < 0 {
		return SiteSummary{}, fmt.Errorf("no record ID column (tried %v)", recordIDColumns)
	}
	dateCol := pickFirst(col, dateColumns)
	sexCol := pickFirst(col, sexColumns)

	ss := SiteSummary{
		Site:    site,
		BySex:   make(map[string]int),
		ByMonth: make(map[string]int),
	}
	seen := map[string]bool{}
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed row: skip, keep aggregating.
			continue
		}
		id := field(row, idCol)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ss.Records++

		if m := monthOf(field(row, dateCol)); m != "" {
			ss.ByMonth[m]++
		}
		if label := sexLabel(field(row, sexCol)); label != "" {
			ss.BySex[label]++
		}
	}
	return ss, nil
}

func indexColumns(header []string) map[string]int {
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return col
}

func pickFirst(col map[string]int, names []string) int {
	for _, n := range names {
		if i, ok := col[n]; ok {
			return i
		}
	}
	return -1
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// monthOf reduces a YYYY-MM-DD date string to YYYY-MM. Anything else yields
// the empty string.
func monthOf(date string) string {
	if len(date) < 7 || date[4] != '-' {
		return ""
	}
	return date[:7]
}

// sexLabel maps a raw code to its label, empty when missing or unmapped.
func sexLabel(raw string) string {
	if raw == "" {
		return ""
	}
	code, err := strconv.Atoi(raw)
	if err != nil {
		return ""
	}
	return sexLabels[code]
}
