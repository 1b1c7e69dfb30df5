// Package acquire sequences the full acquisition pipeline: resolve a
// bound, tile it, query the registry per tile, build the journal, fetch
// and parse titles, optionally correlate each record with a map
// coordinate, and checkpoint every stage.
package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jamwil/terra/lib/checkpoint"
	"github.com/jamwil/terra/lib/geo"
	"github.com/jamwil/terra/lib/geocode"
	"github.com/jamwil/terra/lib/grid"
	"github.com/jamwil/terra/lib/journal"
	"github.com/jamwil/terra/lib/scrapers/spin"
	"github.com/jamwil/terra/lib/sitemap"
	"github.com/jamwil/terra/lib/timezone"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("services/acquire")

// ErrAborted is returned when the operator declines a confirmation
// prompt; nothing network-heavy has happened past the declined stage.
var ErrAborted = fmt.Errorf("run aborted by operator")

// Registry is the slice of the spin client the pipeline drives.
type Registry interface {
	Login(ctx context.Context) error
	QueryTile(ctx context.Context, tile grid.Tile) (journal.Table, error)
	FetchTitle(ctx context.Context, id string) (string, error)
}

type Geocoder interface {
	Locate(ctx context.Context, locality string) (geocode.Result, error)
}

// Bridge converts geodetic corners into the registry's planar frame.
type Bridge interface {
	ToProjected(ctx context.Context, coord geo.Coordinate) (geo.Point, error)
}

// Correlator recovers a coordinate per record; nil disables the stage.
type Correlator interface {
	Locate(ctx context.Context, linc int64) (sitemap.Site, error)
}

// ConfirmFunc is shown a stage name and its unit count before that stage
// touches the network. Returning false aborts the run.
type ConfirmFunc func(stage string, count int) bool

type Options struct {
	// locality to geocode, or a literal "lat,lng;lat,lng" bound which
	// bypasses the geocoder
	Locality     string
	LiteralBound string

	// only titles registered on or after this date are fetched
	Period  time.Time
	Density int

	IncludeCondos bool
	Correlate     bool
	// keep records whose back-transform degraded to the zero sentinel
	// (flagged via geometry_valid); false drops them from the output
	KeepInvalidGeometry bool

	// resume paths; empty means run the stage
	ReuseJournalPath string
	ReuseTitlesPath  string

	OutputPath string
}

// Tally counts everything that went sideways without stopping the run.
type Tally struct {
	TilesQueried      int
	TilesFailed       int
	TitlesFetched     int
	RecordsDropped    int
	CondosExcluded    int
	InvalidGeometries int
}

type Summary struct {
	Locality    string
	RunStart    time.Time
	Journal     []journal.Entry
	Rows        []checkpoint.TitleRow
	Tally       Tally
	JournalPath string
	TitlesPath  string
	OutputPath  string
}

type Config struct {
	CheckpointDir string `json:"checkpoint_dir"`
	// raw title texts land here, one file per title number
	TitlesDir string `json:"titles_dir"`
}

func DefaultConfig() Config {
	return Config{
		CheckpointDir: "data/checkpoints",
		TitlesDir:     "data/titles",
	}
}

type Service struct {
	cfg        Config
	registry   Registry
	geocoder   Geocoder
	bridge     Bridge
	correlator Correlator
	confirm    ConfirmFunc
}

func NewService(cfg Config, registry Registry, geocoder Geocoder, bridge Bridge, correlator Correlator, confirm ConfirmFunc) *Service {
	if confirm == nil {
		confirm = func(string, int) bool { return true }
	}
	return &Service{
		cfg:        cfg,
		registry:   registry,
		geocoder:   geocoder,
		bridge:     bridge,
		correlator: correlator,
		confirm:    confirm,
	}
}

// Run executes the pipeline for one locality. Authentication failure is
// the only fatal collaborator error; everything downstream is absorbed
// into the tally and the run completes with a smaller result set.
func (s *Service) Run(ctx context.Context, opts Options) (*Summary, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()
	span.SetAttributes(attribute.String("locality", opts.Locality))

	summary := &Summary{RunStart: timezone.Now()}

	store, err := checkpoint.NewStore(s.cfg.CheckpointDir, summary.RunStart)
	if err != nil {
		return nil, err
	}

	bound, locality, err := s.resolveBound(ctx, opts)
	if err != nil {
		return nil, err
	}
	summary.Locality = locality

	planar, err := s.projectBound(ctx, bound)
	if err != nil {
		return nil, err
	}

	tiles := grid.Generate(planar, opts.Density)
	slog.InfoContext(ctx, "search grid generated",
		"locality", locality, "tiles", len(tiles))
	if !s.confirm("tiles", len(tiles)) {
		return nil, ErrAborted
	}

	entries, err := s.buildJournal(ctx, store, tiles, opts, summary)
	if err != nil {
		return nil, err
	}
	summary.Journal = entries
	summary.JournalPath = store.JournalPath()

	due := journal.Since(entries, opts.Period)
	slog.InfoContext(ctx, "journal built",
		"entries", len(entries), "within_period", len(due),
		"tiles_failed", summary.Tally.TilesFailed)
	if !s.confirm("titles", len(due)) {
		return nil, ErrAborted
	}

	rows, err := s.buildTitles(ctx, due, opts, summary)
	if err != nil {
		return nil, err
	}

	if opts.Correlate && s.correlator != nil {
		rows, err = s.correlate(ctx, rows, opts, summary)
		if err != nil {
			return nil, err
		}
	}

	summary.Rows = rows
	if err := store.WriteTitles(rows); err != nil {
		return nil, err
	}
	summary.TitlesPath = store.TitlesPath()

	if opts.OutputPath != "" {
		if err := WriteGeoJSON(opts.OutputPath, rows); err != nil {
			return nil, err
		}
		summary.OutputPath = opts.OutputPath
	}

	return summary, nil
}

func (s *Service) resolveBound(ctx context.Context, opts Options) (geo.Bound, string, error) {
	if opts.LiteralBound != "" {
		bound, err := geo.ParseBound(opts.LiteralBound)
		if err != nil {
			return geo.Bound{}, "", err
		}
		return bound, opts.Locality, nil
	}

	result, err := s.geocoder.Locate(ctx, opts.Locality)
	if err != nil {
		return geo.Bound{}, "", fmt.Errorf("geocode %q: %w", opts.Locality, err)
	}
	return result.Bound, result.Locality, nil
}

// projectBound converts both corners into the planar frame. A transform
// failure here is fatal: a sentinel corner would tile the wrong part of
// the province.
func (s *Service) projectBound(ctx context.Context, bound geo.Bound) (geo.PlanarBound, error) {
	ne, err := s.bridge.ToProjected(ctx, bound.Northeast)
	if err != nil {
		return geo.PlanarBound{}, fmt.Errorf("project northeast corner: %w", err)
	}
	sw, err := s.bridge.ToProjected(ctx, bound.Southwest)
	if err != nil {
		return geo.PlanarBound{}, fmt.Errorf("project southwest corner: %w", err)
	}

	planar := geo.PlanarBound{Northeast: ne, Southwest: sw}
	if !planar.Valid() {
		return geo.PlanarBound{}, fmt.Errorf("projected bound is inverted: ne=%v sw=%v", ne, sw)
	}
	return planar, nil
}

func (s *Service) buildJournal(ctx context.Context, store *checkpoint.Store, tiles grid.Batch, opts Options, summary *Summary) ([]journal.Entry, error) {
	if opts.ReuseJournalPath != "" {
		slog.InfoContext(ctx, "reusing journal checkpoint", "path", opts.ReuseJournalPath)
		return checkpoint.LoadJournal(opts.ReuseJournalPath)
	}

	if err := s.registry.Login(ctx); err != nil {
		// fatal: no partial session is usable
		return nil, fmt.Errorf("registry authentication: %w", err)
	}

	tables := make([]journal.Table, 0, len(tiles))
	for i, tile := range tiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		table, err := s.registry.QueryTile(ctx, tile)
		if err != nil {
			// one broken tile costs its own rows, never the run
			summary.Tally.TilesFailed++
			slog.WarnContext(ctx, "tile query failed, skipping",
				"tile", i+1, "of", len(tiles), "err", err)
			continue
		}
		summary.Tally.TilesQueried++
		tables = append(tables, table)
		slog.DebugContext(ctx, "tile queried",
			"tile", i+1, "of", len(tiles), "rows", len(table))
	}

	entries := journal.Build(tables)
	if err := store.WriteJournal(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Service) buildTitles(ctx context.Context, due []journal.Entry, opts Options, summary *Summary) ([]checkpoint.TitleRow, error) {
	if opts.ReuseTitlesPath != "" {
		slog.InfoContext(ctx, "reusing titles checkpoint", "path", opts.ReuseTitlesPath)
		return checkpoint.LoadTitles(opts.ReuseTitlesPath)
	}

	var rows []checkpoint.TitleRow
	for _, entry := range due {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := s.registry.FetchTitle(ctx, entry.ID)
		if err != nil {
			summary.Tally.RecordsDropped++
			slog.WarnContext(ctx, "title fetch failed, dropping record",
				"id", entry.ID, "err", err)
			continue
		}

		record, err := spin.ParseTitle(raw)
		if err != nil {
			summary.Tally.RecordsDropped++
			slog.WarnContext(ctx, "title parse failed, dropping record",
				"id", entry.ID, "err", err)
			continue
		}

		if record.Condo && !opts.IncludeCondos {
			summary.Tally.CondosExcluded++
			continue
		}

		summary.Tally.TitlesFetched++
		if err := s.saveRawTitle(record); err != nil {
			slog.WarnContext(ctx, "could not save raw title text",
				"title", record.TitleNumber, "err", err)
		}

		rows = append(rows, checkpoint.TitleRow{
			JournalID: entry.ID,
			Title:     record,
		})
	}
	return rows, nil
}

func (s *Service) correlate(ctx context.Context, rows []checkpoint.TitleRow, opts Options, summary *Summary) ([]checkpoint.TitleRow, error) {
	out := rows[:0]
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := rows[i]

		site, err := s.correlator.Locate(ctx, row.Title.Linc)
		if err != nil {
			summary.Tally.InvalidGeometries++
			slog.WarnContext(ctx, "map correlation failed",
				"linc", row.Title.Linc, "err", err)
			if opts.KeepInvalidGeometry {
				row.HasGeometry = true
				out = append(out, row)
			}
			continue
		}

		row.HasGeometry = true
		row.GeometryValid = site.Valid
		row.Lat = site.Coordinate.Lat
		row.Lng = site.Coordinate.Lng
		if !site.Valid {
			summary.Tally.InvalidGeometries++
			if !opts.KeepInvalidGeometry {
				continue
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *Service) saveRawTitle(record spin.TitleRecord) error {
	if s.cfg.TitlesDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.cfg.TitlesDir, 0755); err != nil {
		return err
	}
	name := strings.ReplaceAll(record.TitleNumber, " ", "") + ".txt"
	return os.WriteFile(filepath.Join(s.cfg.TitlesDir, name), []byte(record.RawText), 0644)
}
