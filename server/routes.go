package server

import (
	"io/fs"
	"log"
	"net/http"

	"fluxdash/config"
	"fluxdash/handlers"
	"fluxdash/rewrite"
)

// registerRoutes attaches all handlers to the given mux.
func registerRoutes(mux *http.ServeMux, cfg *config.Config, caches *handlers.Caches, views *handlers.ViewStore, tmpl *Templates) {
	// Embedded UI assets (stylesheet, favicon)
	mux.Handle("/assets/", http.StripPrefix("/assets/", assetHandler()))

	assetSub, err := fs.Sub(assetFS, "assets")
	if err != nil {
		log.Fatalf("asset sub fs for favicon: %v", err)
	}
	mux.HandleFunc("/favicon.ico", handlers.FaviconHandler(assetSub, cfg.FaviconPath))

	// Chroma syntax-highlighting stylesheet (generated once at startup)
	mux.HandleFunc("/highlight.css", handlers.HighlightCSSHandler(cfg.Theme))

	// One shared token bucket caps every file-serving route together.
	throttle := handlers.Throttle(cfg.BandwidthLimit)

	// QC report trees (bandwidth-limited; HTML runs through the link rewriter)
	var rewriter *rewrite.Rewriter
	if resolver, err := rewrite.NewResolver(cfg.MRIQCRoot()); err != nil {
		// No MRIQC tree yet; reports are served verbatim until one appears.
		log.Printf("mriqc: %v", err)
	} else {
		rewriter = rewrite.NewRewriter(resolver)
	}
	mux.Handle("/mriqc_files/", throttle(handlers.MRIQCFilesHandler(cfg, rewriter, views)))
	mux.Handle("/fmriprep_files/", throttle(handlers.FMRIPrepFilesHandler(cfg, views)))

	// Dataset-relative assets, traversal-guarded
	mux.Handle("/static/", throttle(handlers.DatasetStaticHandler(cfg)))

	// Per-subject QC bundle (bandwidth-limited)
	mux.Handle("/zip/", throttle(handlers.ZipHandler(cfg)))

	// Inline file serving for previews (bandwidth-limited)
	mux.Handle("/view/", throttle(handlers.ViewHandler(cfg)))
	mux.HandleFunc("/preview/", handlers.PreviewHandler(cfg, tmpl))

	// Dashboard pages
	mux.HandleFunc("/subjects", handlers.SubjectsHandler(cfg, caches, tmpl))
	mux.HandleFunc("/subjects/", handlers.SubjectHandler(cfg, caches, views, tmpl))
	mux.HandleFunc("/mriqc", handlers.MRIQCIndexHandler(cfg, caches, views, tmpl))
	mux.HandleFunc("/mriqc/", handlers.MRIQCDetailHandler(cfg, caches, views, tmpl))
	mux.HandleFunc("/fmriprep", handlers.FMRIPrepIndexHandler(cfg, caches, views, tmpl))
	mux.HandleFunc("/redcap", handlers.RedcapHandler(cfg, caches, tmpl))
	mux.HandleFunc("/", handlers.HomeHandler(cfg, caches, tmpl))
}
