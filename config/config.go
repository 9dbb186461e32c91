// Package config handles all server configuration.
// CLI flags take precedence; environment variables are used as fallback.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
)

// Config holds the complete server configuration.
type Config struct {
	// Port is the TCP port the HTTP server listens on.
	Port int
	// DatasetRoot is the absolute path to the study dataset. The MRIQC
	// report tree is expected at <DatasetRoot>/qc/mriqc and the fMRIPrep
	// derivatives at <DatasetRoot>/derivatives/fmriprep.
	DatasetRoot string
	// RedcapRoot is the directory holding per-site REDCap CSV exports.
	// It may be absent; the recruitment page then shows an empty state.
	RedcapRoot string
	// Title is the branding name shown in the UI and page titles.
	Title string
	// Theme is the Chroma syntax-highlighting theme name used by file previews.
	Theme string
	// FaviconPath is an optional path to a custom favicon file.
	FaviconPath string
	// BandwidthLimit is the total server-wide download cap in bytes per
	// second applied to report and ZIP transfers. 0 means unlimited.
	BandwidthLimit float64
	// DBDir is the directory in which the fluxdash.db view-counter database
	// is stored. Defaults to the current working directory when empty.
	DBDir string
}

// MRIQCRoot returns the directory the MRIQC QC reports are served from.
func (c *Config) MRIQCRoot() string {
	return filepath.Join(c.DatasetRoot, "qc", "mriqc")
}

// FMRIPrepRoot returns the directory the fMRIPrep derivatives are served from.
func (c *Config) FMRIPrepRoot() string {
	return filepath.Join(c.DatasetRoot, "derivatives", "fmriprep")
}

// Load parses flags and environment variables, returning a validated Config.
func Load() (*Config, error) {
	portFlag := flag.Int("port", 0, "HTTP port to listen on (env: FLUX_PORT, default: 8050)")
	rootFlag := flag.String("dataset-root", "", "Root of the study dataset (env: FLUX_DATASET_ROOT, default: ./superdemo)")
	redcapFlag := flag.String("redcap-root", "", "Root of the REDCap CSV exports (env: FLUX_REDCAP_ROOT, default: ./data/redcap)")
	titleFlag := flag.String("title", "", "Site branding title (env: FLUX_TITLE, default: Flux Dashboards)")
	themeFlag := flag.String("highlight-theme", "", "Chroma syntax-highlight theme (env: FLUX_HIGHLIGHT_THEME, default: catppuccin-mocha)")
	faviconFlag := flag.String("favicon", "", "Path to a custom favicon file (env: FLUX_FAVICON)")
	bandwidthFlag := flag.String("bandwidth", "", "Total download bandwidth cap, e.g. 10mbps, 500kbps (env: FLUX_BANDWIDTH, default: unlimited)")
	dbDirFlag := flag.String("db-dir", "", "Directory in which fluxdash.db is stored (env: FLUX_DB_DIR, default: current working directory)")
	flag.Parse()

	// --- port ---
	port := *portFlag
	if port == 0 {
		if v := os.Getenv("FLUX_PORT"); v != "" {
			p, err := strconv.Atoi(v)
			if err != nil || p < 1 || p > 65535 {
				return nil, fmt.Errorf("invalid FLUX_PORT value %q", v)
			}
			port = p
		} else {
			port = 8050
		}
	}

	// --- dataset root ---
	datasetRoot := stringOrEnv(*rootFlag, "FLUX_DATASET_ROOT", "superdemo")
	abs, err := filepath.Abs(datasetRoot)
	if err != nil {
		return nil, fmt.Errorf("dataset root %q: %w", datasetRoot, err)
	}
	datasetRoot = abs
	info, err := os.Stat(datasetRoot)
	if err != nil {
		return nil, fmt.Errorf("dataset root %q: %w", datasetRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("dataset root %q is not a directory", datasetRoot)
	}

	// --- redcap root (optional) ---
	redcapRoot := stringOrEnv(*redcapFlag, "FLUX_REDCAP_ROOT", filepath.Join("data", "redcap"))
	if abs, err := filepath.Abs(redcapRoot); err == nil {
		redcapRoot = abs
	}

	title := stringOrEnv(*titleFlag, "FLUX_TITLE", "Flux Dashboards")
	theme := stringOrEnv(*themeFlag, "FLUX_HIGHLIGHT_THEME", "catppuccin-mocha")

	// --- favicon ---
	favicon := *faviconFlag
	if favicon == "" {
		favicon = os.Getenv("FLUX_FAVICON")
	}
	if favicon != "" {
		info, err := os.Stat(favicon)
		if err != nil {
			return nil, fmt.Errorf("favicon %q: %w", favicon, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("favicon %q is a directory, not a file", favicon)
		}
	}

	// --- bandwidth ---
	bwRaw := *bandwidthFlag
	if bwRaw == "" {
		bwRaw = os.Getenv("FLUX_BANDWIDTH")
	}
	var bandwidthBps float64
	if bwRaw != "" {
		bps, err := parseBandwidth(bwRaw)
		if err != nil {
			return nil, fmt.Errorf("invalid bandwidth %q: %w", bwRaw, err)
		}
		bandwidthBps = bps
	}

	// --- db-dir ---
	dbDir := *dbDirFlag
	if dbDir == "" {
		if v := os.Getenv("FLUX_DB_DIR"); v != "" {
			dbDir = v
		} else {
			cwd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("could not determine current working directory: %w", err)
			}
			dbDir = cwd
		}
	}

	return &Config{
		Port:           port,
		DatasetRoot:    datasetRoot,
		RedcapRoot:     redcapRoot,
		Title:          title,
		Theme:          theme,
		FaviconPath:    favicon,
		BandwidthLimit: bandwidthBps,
		DBDir:          dbDir,
	}, nil
}

// stringOrEnv resolves a string option from a CLI flag value, with fallback
// to an environment variable and then a compile-time default.
func stringOrEnv(flagVal, envKey, defaultVal string) string {
	if flagVal != "" {
		return flagVal
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return defaultVal
}

// parseBandwidth converts a human-readable bandwidth string to bytes per
// second. Accepted units (case-insensitive): bps, kbps, mbps, gbps.
// A bare number is treated as bits per second.
//
// Examples: "10mbps", "500 kbps", "1gbps", "131072"
func parseBandwidth(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}

	// Split into numeric prefix and unit suffix.
	i := 0
	for i < len(s) && (s[i] == '.' || (s[i] >= '0' && s[i] <= '9')) {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("no numeric value found")
	}
	numStr := s[:i]
	unit := strings.ToLower(strings.TrimFunc(s[i:], unicode.IsSpace))

	val, err := strconv.ParseFloat(numStr, 64)
	if err != nil || val < 0 {
		return 0, fmt.Errorf("invalid number %q", numStr)
	}

	// Convert bits/sec units to bytes/sec.
	switch unit {
	case "", "bps":
		return val / 8, nil
	case "kbps":
		return val * 1_000 / 8, nil
	case "mbps":
		return val * 1_000_000 / 8, nil
	case "gbps":
		return val * 1_000_000_000 / 8, nil
	default:
		return 0, fmt.Errorf("unknown unit %q (accepted: bps, kbps, mbps, gbps)", unit)
	}
}
