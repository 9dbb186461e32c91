// Flux Dashboards – a QC and recruitment dashboard for BIDS neuroimaging studies.
package main

import (
	"embed"
	"log"

	"github.com/joho/godotenv"

	"fluxdash/config"
	"fluxdash/server"
)

//go:embed templates assets
var embeddedFS embed.FS

func main() {
	// A .env next to the binary supplies the FLUX_* variables in dev setups;
	// absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	server.SetAssetFS(embeddedFS)

	if err := server.Run(cfg, embeddedFS); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
