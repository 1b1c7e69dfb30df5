package commands

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jamwil/terra/lib/epsg"
	"github.com/jamwil/terra/lib/geocode"
	"github.com/jamwil/terra/lib/grid"
	"github.com/jamwil/terra/lib/scrapers/spin"
	"github.com/jamwil/terra/lib/sitemap"
	"github.com/jamwil/terra/lib/timezone"
	"github.com/jamwil/terra/services/acquire"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var acquireFlags struct {
	period       string
	density      int
	bound        string
	condos       bool
	sites        bool
	keepInvalid  bool
	reuseJournal string
	reuseTitles  string
	outDir       string
	yes          bool
	headful      bool
}

func init() {
	f := acquireCmd.Flags()
	f.StringVar(&acquireFlags.period, "period", "", "Only fetch titles registered on or after this date (yyyy-mm-dd). Empty fetches everything.")
	f.IntVar(&acquireFlags.density, "density", grid.DefaultDensity, "Tile edge length in metres.")
	f.StringVar(&acquireFlags.bound, "bound", "", "Literal \"lat,lng;lat,lng\" bound (NE;SW) that bypasses the geocoder.")
	f.BoolVar(&acquireFlags.condos, "condos", false, "Include condominium titles.")
	f.BoolVar(&acquireFlags.sites, "sites", false, "Correlate each title with a map coordinate and screenshot.")
	f.BoolVar(&acquireFlags.keepInvalid, "keep-invalid", false, "Keep records whose coordinate transform failed, flagged instead of dropped.")
	f.StringVar(&acquireFlags.reuseJournal, "reuse-journal", "", "Resume from a journal checkpoint instead of querying the registry.")
	f.StringVar(&acquireFlags.reuseTitles, "reuse-titles", "", "Resume from a titles checkpoint instead of fetching titles.")
	f.StringVar(&acquireFlags.outDir, "out", "", "Directory for geojson output. Defaults to the configured geojson dir.")
	f.BoolVar(&acquireFlags.yes, "yes", false, "Skip confirmation prompts.")
	f.BoolVar(&acquireFlags.headful, "headful", false, "Run the map browser with a visible window.")
	rootCmd.AddCommand(acquireCmd)
}

var acquireCmd = &cobra.Command{
	Use:   "acquire <locality> [locality...]",
	Short: "Builds a title table and geojson output for each locality.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}

		var period time.Time
		if acquireFlags.period != "" {
			// registration dates are Alberta local, compare in kind
			period, err = time.ParseInLocation("2006-01-02", acquireFlags.period, timezone.Location)
			if err != nil {
				return fmt.Errorf("parse --period: %w", err)
			}
		}

		outDir := acquireFlags.outDir
		if outDir == "" {
			outDir = cfg.Bundle.GeoJSONDir
		}

		bridge := epsg.NewClient(cfg.Epsg)
		geocoder := geocode.NewClient(cfg.Geocode, os.Getenv("GOOGLE_MAPS_API_KEY"))

		var correlator acquire.Correlator
		if acquireFlags.sites {
			if acquireFlags.headful {
				cfg.Sitemap.Headless = false
			}
			driver, err := sitemap.NewRodDriver(cmd.Context(), cfg.Sitemap.Headless)
			if err != nil {
				return fmt.Errorf("start map browser: %w", err)
			}
			sc := sitemap.NewCorrelator(cfg.Sitemap, driver, bridge)
			defer sc.Close()
			correlator = sc
		}

		confirm := promptConfirm
		if acquireFlags.yes {
			confirm = nil
		}

		for _, locality := range args {
			registry, err := spin.NewClient(cfg.Spin)
			if err != nil {
				return fmt.Errorf("registry client: %w", err)
			}

			service := acquire.NewService(cfg.Acquire, registry, geocoder, bridge, correlator, confirm)
			summary, err := service.Run(cmd.Context(), acquire.Options{
				Locality:            locality,
				LiteralBound:        acquireFlags.bound,
				Period:              period,
				Density:             acquireFlags.density,
				IncludeCondos:       acquireFlags.condos,
				Correlate:           acquireFlags.sites,
				KeepInvalidGeometry: acquireFlags.keepInvalid,
				ReuseJournalPath:    acquireFlags.reuseJournal,
				ReuseTitlesPath:     acquireFlags.reuseTitles,
				OutputPath:          filepath.Join(outDir, slug(locality)+".geojson"),
			})
			if errors.Is(err, acquire.ErrAborted) {
				fmt.Println("aborted")
				return nil
			}
			if err != nil {
				return fmt.Errorf("acquire %q: %w", locality, err)
			}

			renderSummary(summary)
		}
		return nil
	},
}

func slug(locality string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(locality)), " ", "-")
}

func promptConfirm(stage string, count int) bool {
	fmt.Printf("Proceed with %d %s? [y/N] ", count, stage)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func renderSummary(summary *acquire.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(summary.Locality)
	t.AppendRows([]table.Row{
		{"tiles queried", summary.Tally.TilesQueried},
		{"tiles failed", summary.Tally.TilesFailed},
		{"journal entries", len(summary.Journal)},
		{"titles fetched", summary.Tally.TitlesFetched},
		{"records dropped", summary.Tally.RecordsDropped},
		{"condos excluded", summary.Tally.CondosExcluded},
		{"invalid geometries", summary.Tally.InvalidGeometries},
		{"title table", fmt.Sprint(len(summary.Rows), " rows")},
	})
	t.AppendSeparator()
	t.AppendRow(table.Row{"journal checkpoint", summary.JournalPath})
	t.AppendRow(table.Row{"titles checkpoint", summary.TitlesPath})
	if summary.OutputPath != "" {
		t.AppendRow(table.Row{"geojson", summary.OutputPath})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
