package bids

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SubjectInventory is the high-level view of what exists for one subject.
type SubjectInventory struct {
	Subject      string
	Sessions     []string
	Acquisitions []string // T1w, BOLD, DWI
	Tasks        []string
	HasFMRIPrep  bool
	HasMRIQC     bool
}

// Inventory gathers the inventory for one subject under the dataset root.
// A subject with no data at all yields an inventory with empty slices, never
// an error; the caller decides how to present the absence.
func Inventory(root, sub string) SubjectInventory {
	inv := SubjectInventory{Subject: sub}
	subPath := filepath.Join(DataRoot(root), sub)

	// Session directories; single-session layouts keep data directly under
	// the subject directory.
	searchDirs := []string{subPath}
	if entries, err := os.ReadDir(subPath); err == nil {
		for _, e := range entries {
			if e.IsDir() && strings.HasPrefix(e.Name(), "ses-") {
				inv.Sessions = append(inv.Sessions, e.Name())
				searchDirs = append(searchDirs, filepath.Join(subPath, e.Name()))
			}
		}
	}
	sort.Strings(inv.Sessions)

	acq := map[string]bool{}
	tasks := map[string]bool{}
	for _, dir := range searchDirs {
		for dt := range datatypeDirs {
			entries, err := os.ReadDir(filepath.Join(dir, dt))
			if err != nil {
				continue
			}
			for _, e := range entries {
				name := e.Name()
				switch {
				case strings.Contains(name, "_T1w"):
					acq["T1w"] = true
				case strings.Contains(name, "_bold"):
					acq["BOLD"] = true
					if m := taskRe.FindStringSubmatch(name); m != nil {
						tasks[m[1]] = true
					}
				case strings.Contains(name, "_dwi"):
					acq["DWI"] = true
				}
			}
		}
	}
	inv.Acquisitions = sortedKeys(acq)
	inv.Tasks = sortedKeys(tasks)

	fmriprep := filepath.Join(root, "derivatives", "fmriprep")
	inv.HasFMRIPrep = dirExists(filepath.Join(fmriprep, sub)) ||
		fileExists(filepath.Join(fmriprep, sub+".html"))
	inv.HasMRIQC = dirExists(filepath.Join(root, "qc", "mriqc", sub))
	return inv
}

func dirExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
