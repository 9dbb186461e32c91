// Package bids summarizes a BIDS-structured dataset by walking its file tree.
//
// Entities are parsed from path segments and file names only (sub-*, ses-*,
// task-*, the datatype directory, the trailing suffix); no sidecar metadata
// is consulted. That keeps a summary cheap enough to recompute whenever the
// watcher reports a change.
package bids

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// datatypeDirs are the BIDS datatype directories recognised during the walk.
var datatypeDirs = map[string]bool{
	"anat": true, "func": true, "dwi": true, "fmap": true,
	"perf": true, "eeg": true, "meg": true, "pet": true,
}

// skipDirs are top-level directories excluded when the dataset root itself is
// walked (they hold derivatives and tooling, not raw BIDS data).
var skipDirs = map[string]bool{
	"derivatives": true, "qc": true, "code": true, "sourcedata": true,
}

var taskRe = regexp.MustCompile(`_task-([A-Za-z0-9]+)`)

// DatasetSummary describes what data a BIDS tree contains.
type DatasetSummary struct {
	NFiles    int
	Subjects  []string
	Sessions  []string
	Tasks     []string
	Datatypes []string

	// Avail counts files per subject and datatype.
	Avail map[string]map[string]int
	// FuncCounts counts functional runs per subject and task.
	FuncCounts map[string]map[string]int
}

// DataRoot returns the directory holding the raw BIDS tree for a dataset
// root: <root>/bids when that exists, otherwise the root itself.
func DataRoot(root string) string {
	sub := filepath.Join(root, "bids")
	if info, err := os.Stat(sub); err == nil && info.IsDir() {
		return sub
	}
	return root
}

// Summarize walks the BIDS tree under root and aggregates per-subject
// availability. Unreadable entries are skipped; an empty tree yields an
// empty (not nil) summary.
func Summarize(root string) (*DatasetSummary, error) {
	dataRoot := DataRoot(root)

	s := &DatasetSummary{
		Avail:      make(map[string]map[string]int),
		FuncCounts: make(map[string]map[string]int),
	}
	subjects := map[string]bool{}
	sessions := map[string]bool{}
	tasks := map[string]bool{}
	datatypes := map[string]bool{}

	err := filepath.WalkDir(dataRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			// Only prune the reserved trees directly under the root.
			if filepath.Dir(p) == dataRoot && skipDirs[name] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}

		rel, err := filepath.Rel(dataRoot, p)
		if err != nil {
			return nil
		}
		ent := parseEntities(filepath.ToSlash(rel))
		if ent.Subject == "" {
			return nil
		}

		s.NFiles++
		subjects[ent.Subject] = true
		if ent.Session != "" {
			sessions[ent.Session] = true
		}
		if ent.Datatype != "" {
			datatypes[ent.Datatype] = true
			bump(s.Avail, ent.Subject, ent.Datatype)
		}
		if ent.Task != "" {
			tasks[ent.Task] = true
		}
		// One functional run is counted per imaging file, not per sidecar.
		if ent.Datatype == "func" && ent.Task != "" && isImagingFile(name) {
			bump(s.FuncCounts, ent.Subject, ent.Task)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Subjects = sortedKeys(subjects)
	s.Sessions = sortedKeys(sessions)
	s.Tasks = sortedKeys(tasks)
	s.Datatypes = sortedKeys(datatypes)
	return s, nil
}

// Entities are the BIDS naming components recovered from one relative path.
type Entities struct {
	Subject  string // e.g. sub-001
	Session  string // e.g. ses-01, empty for single-session layouts
	Datatype string // e.g. anat, func
	Task     string // e.g. rest
	Suffix   string // e.g. T1w, bold
}

// parseEntities extracts BIDS entities from a forward-slash relative path.
func parseEntities(rel string) Entities {
	var e Entities
	segs := strings.Split(rel, "/")
	for _, seg := range segs[:len(segs)-1] {
		switch {
		case strings.HasPrefix(seg, "sub-") && e.Subject == "":
			e.Subject = seg
		case strings.HasPrefix(seg, "ses-") && e.Session == "":
			e.Session = seg
		case datatypeDirs[seg]:
			e.Datatype = seg
		}
	}

	base := segs[len(segs)-1]
	if m := taskRe.FindStringSubmatch(base); m != nil {
		e.Task = m[1]
	}
	e.Suffix = parseSuffix(base)
	return e
}

// parseSuffix returns the BIDS suffix of a file name: the token between the
// last underscore and the extension (sub-001_ses-01_task-rest_bold.nii.gz →
// bold).
func parseSuffix(base string) string {
	stem := base
	for {
		ext := filepath.Ext(stem)
		if ext == "" {
			break
		}
		stem = strings.TrimSuffix(stem, ext)
	}
	if i := strings.LastIndex(stem, "_"); i >= 0 {
		return stem[i+1:]
	}
	return ""
}

// isImagingFile reports whether a file name denotes imaging data rather than
// a sidecar or tabular companion.
func isImagingFile(name string) bool {
	return strings.HasSuffix(name, ".nii") || strings.HasSuffix(name, ".nii.gz")
}

func bump(m map[string]map[string]int, outer, inner string) {
	if m[outer] == nil {
		m[outer] = make(map[string]int)
	}
	m[outer][inner]++
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
