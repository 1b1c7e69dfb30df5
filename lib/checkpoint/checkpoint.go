// Package checkpoint persists the journal and title tables as run-scoped
// parquet files, so an interrupted run resumes from its last completed
// stage instead of re-querying the registry.
package checkpoint

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jamwil/terra/lib/journal"
	"github.com/jamwil/terra/lib/scrapers/spin"

	"github.com/parquet-go/parquet-go"
)

// TitleRow is one line of the title table: the parsed record keyed by
// its journal id, plus the geometry columns filled in when the spatial
// correlator ran.
type TitleRow struct {
	JournalID     string           `parquet:"journal_id"`
	Title         spin.TitleRecord `parquet:"title"`
	Lat           float64          `parquet:"lat"`
	Lng           float64          `parquet:"lng"`
	HasGeometry   bool             `parquet:"has_geometry"`
	GeometryValid bool             `parquet:"geometry_valid"`
}

// Store writes both tables under dir, keyed by the run's start time.
type Store struct {
	dir      string
	runStart time.Time
}

func NewStore(dir string, runStart time.Time) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, runStart: runStart}, nil
}

func (s *Store) JournalPath() string {
	return filepath.Join(s.dir, fmt.Sprintf("%d-journal.parquet", s.runStart.Unix()))
}

func (s *Store) TitlesPath() string {
	return filepath.Join(s.dir, fmt.Sprintf("%d-titles.parquet", s.runStart.Unix()))
}

func (s *Store) WriteJournal(entries []journal.Entry) error {
	return writeTable(s.JournalPath(), entries)
}

func (s *Store) WriteTitles(rows []TitleRow) error {
	return writeTable(s.TitlesPath(), rows)
}

// LoadJournal reads a previously checkpointed journal, for runs invoked
// with the reuse flag.
func LoadJournal(path string) ([]journal.Entry, error) {
	return readTable[journal.Entry](path)
}

func LoadTitles(path string) ([]TitleRow, error) {
	return readTable[TitleRow](path)
}

func writeTable[T any](path string, rows []T) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := parquet.NewGenericWriter[T](file)
	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return writer.Close()
}

func readTable[T any](path string) ([]T, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}

	reader := parquet.NewGenericReader[T](pf)
	defer reader.Close()

	var out []T
	buffer := make([]T, 64)
	for {
		n, err := reader.Read(buffer)
		out = append(out, buffer[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet %s: %w", path, err)
		}
	}
	return out, nil
}
