package server

import (
	"embed"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"time"

	"fluxdash/config"
	"fluxdash/handlers"
)

// assetFS holds the embedded UI assets (stylesheet, favicon).
var assetFS embed.FS

// SetAssetFS is called from main to inject the embedded FS.
func SetAssetFS(efs embed.FS) {
	assetFS = efs
}

// assetHandler serves files from the embedded assets/ subtree.
func assetHandler() http.Handler {
	sub, err := fs.Sub(assetFS, "assets")
	if err != nil {
		log.Fatalf("asset sub fs: %v", err)
	}
	return http.FileServer(http.FS(sub))
}

// Run starts the HTTP server with the given configuration. It blocks until
// the listener fails.
func Run(cfg *config.Config, templateFS embed.FS) error {
	tmpl, err := LoadTemplates(templateFS)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	views, err := handlers.OpenViewStore(cfg.DBDir)
	if err != nil {
		return fmt.Errorf("opening view store: %w", err)
	}
	defer views.Close()

	caches := handlers.NewCaches(cfg)

	mux := http.NewServeMux()
	registerRoutes(mux, cfg, caches, views, tmpl)

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	logStartup(cfg, addr)

	// Warm the summary and report caches in the background so the first page
	// load is never a cold cache miss.
	caches.Warm()

	// Watch the dataset and REDCap trees and flag caches stale on change.
	if _, err := handlers.StartWatcher(cfg, caches); err != nil {
		log.Printf("watcher: could not start filesystem watcher: %v", err)
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: securityHeaders(mux),

		// ReadHeaderTimeout caps how long the server waits for a client to
		// finish sending HTTP headers; a client that trickles headers one byte
		// at a time is disconnected after this deadline.
		ReadHeaderTimeout: 20 * time.Second,

		// IdleTimeout reclaims goroutines and file descriptors from keep-alive
		// connections that stop sending requests.
		IdleTimeout: 120 * time.Second,

		// WriteTimeout is intentionally absent: ZIP bundles and NIfTI files
		// can take a long time on slow links, and the bandwidth limiter
		// already bounds what a slow reader can hold.
	}
	return srv.ListenAndServe()
}

// securityHeaders sets the response headers every page and file share.
// Reports are rendered from shared storage, so framing and MIME sniffing
// stay locked down.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// logStartup prints a structured summary of the active configuration.
func logStartup(cfg *config.Config, addr string) {
	sep := "-------------------------------------------"
	log.Println(sep)
	log.Printf("  %s", cfg.Title)
	log.Println(sep)
	log.Printf("  %-18s %s", "Address:", "http://"+addr)
	log.Printf("  %-18s %s", "Dataset root:", cfg.DatasetRoot)
	log.Printf("  %-18s %s", "MRIQC reports:", cfg.MRIQCRoot())
	log.Printf("  %-18s %s", "fMRIPrep reports:", cfg.FMRIPrepRoot())
	log.Printf("  %-18s %s", "REDCap exports:", cfg.RedcapRoot)
	log.Printf("  %-18s %s", "Highlight theme:", cfg.Theme)

	if cfg.FaviconPath != "" {
		log.Printf("  %-18s %s", "Favicon:", cfg.FaviconPath)
	} else {
		log.Printf("  %-18s %s", "Favicon:", "(embedded default)")
	}

	if cfg.BandwidthLimit > 0 {
		log.Printf("  %-18s %s/s", "Bandwidth limit:", formatBandwidth(cfg.BandwidthLimit))
	} else {
		log.Printf("  %-18s %s", "Bandwidth limit:", "unlimited")
	}
	log.Println(sep)
}

// formatBandwidth converts a bytes/sec value to a human-readable bits/sec string.
func formatBandwidth(bps float64) string {
	bits := bps * 8
	switch {
	case bits >= 1_000_000_000:
		return fmt.Sprintf("%.2f Gbps", bits/1_000_000_000)
	case bits >= 1_000_000:
		return fmt.Sprintf("%.2f Mbps", bits/1_000_000)
	case bits >= 1_000:
		return fmt.Sprintf("%.2f Kbps", bits/1_000)
	default:
		return fmt.Sprintf("%.0f bps", bits)
	}
}
