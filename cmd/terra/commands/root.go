package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/jamwil/terra/lib/bundle"
	"github.com/jamwil/terra/lib/configutil"
	"github.com/jamwil/terra/lib/epsg"
	"github.com/jamwil/terra/lib/geocode"
	"github.com/jamwil/terra/lib/scrapers/spin"
	"github.com/jamwil/terra/lib/sitemap"
	"github.com/jamwil/terra/services/acquire"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "terra",
	Short: "terra acquires and correlates property title records from the provincial registry.",
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Config aggregates every component's config under one terra.json5 so a
// deployment overrides only what it needs.
type Config struct {
	Acquire acquire.Config `json:"acquire"`
	Spin    spin.Config    `json:"spin"`
	Geocode geocode.Config `json:"geocode"`
	Epsg    epsg.Config    `json:"epsg"`
	Sitemap sitemap.Config `json:"sitemap"`
	Bundle  bundle.Config  `json:"bundle"`
}

func readConfig() (Config, error) {
	// API keys live in .env, not in the config file
	_ = godotenv.Load()

	cfg, err := configutil.ReadRecursively[Config]("terra.json5")
	if os.IsNotExist(err) {
		err = nil
	} else if err != nil {
		return cfg, err
	}

	return configutil.WithDefaults(cfg, Config{
		Acquire: acquire.DefaultConfig(),
		Spin:    spin.DefaultConfig(),
		Geocode: geocode.DefaultConfig(),
		Epsg:    epsg.DefaultConfig(),
		Sitemap: sitemap.DefaultConfig(),
		Bundle:  bundle.DefaultConfig(),
	})
}
