// Package bundle packages a run's artifacts, the raw title texts, site
// screenshots and GeoJSON output, into a single timestamped zip for
// delivery.
package bundle

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	GeoJSONDir string `json:"geojson_dir"`
	TitlesDir  string `json:"titles_dir"`
	SitesDir   string `json:"sites_dir"`
	BundlesDir string `json:"bundles_dir"`
}

func DefaultConfig() Config {
	return Config{
		GeoJSONDir: "data/geojson",
		TitlesDir:  "data/titles",
		SitesDir:   "data/sites",
		BundlesDir: "data/bundles",
	}
}

// Uploader pushes a finished bundle to remote storage and returns a
// public link. Nil disables the upload step.
type Uploader interface {
	Upload(ctx context.Context, path string, key string) (string, error)
}

type Result struct {
	Path string
	// artifacts referenced by the geojson but missing on disk
	Skipped int
	// public link, when an uploader is configured
	Link string
}

type Bundler struct {
	cfg      Config
	uploader Uploader
}

func NewBundler(cfg Config, uploader Uploader) *Bundler {
	return &Bundler{cfg: cfg, uploader: uploader}
}

// the slice of a feature collection bundling cares about
type featureCollection struct {
	Features []struct {
		Properties struct {
			TitleNumber string `json:"title_number"`
			Linc        int64  `json:"linc"`
		} `json:"properties"`
	} `json:"features"`
}

// Create bundles the artifacts behind each named geojson file into one
// zip keyed by the current unix timestamp. Artifacts missing on disk
// (a record that was never correlated has no screenshot) are skipped
// and counted, never fatal.
func (b *Bundler) Create(ctx context.Context, geojsonNames []string) (Result, error) {
	var result Result

	if err := os.MkdirAll(b.cfg.BundlesDir, 0755); err != nil {
		return result, err
	}
	timestamp := time.Now().Unix()
	result.Path = filepath.Join(b.cfg.BundlesDir, fmt.Sprintf("%d.zip", timestamp))

	out, err := os.Create(result.Path)
	if err != nil {
		return result, err
	}
	defer out.Close()

	archive := zip.NewWriter(out)
	for _, name := range geojsonNames {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := b.addLocality(ctx, archive, name, &result); err != nil {
			return result, fmt.Errorf("bundle %s: %w", name, err)
		}
	}
	if err := archive.Close(); err != nil {
		return result, err
	}
	if err := out.Close(); err != nil {
		return result, err
	}

	if b.uploader != nil {
		key := uploadKey(geojsonNames, timestamp)
		link, err := b.uploader.Upload(ctx, result.Path, key)
		if err != nil {
			return result, fmt.Errorf("upload bundle: %w", err)
		}
		result.Link = link
	}
	return result, nil
}

func (b *Bundler) addLocality(ctx context.Context, archive *zip.Writer, name string, result *Result) error {
	geojsonPath := filepath.Join(b.cfg.GeoJSONDir, name)
	data, err := os.ReadFile(geojsonPath)
	if err != nil {
		return err
	}
	var collection featureCollection
	if err := json.Unmarshal(data, &collection); err != nil {
		return fmt.Errorf("parse geojson: %w", err)
	}

	for _, feature := range collection.Features {
		titleFile := strings.ReplaceAll(feature.Properties.TitleNumber, " ", "") + ".txt"
		siteFile := fmt.Sprintf("%010d.png", feature.Properties.Linc)

		if err := b.addFile(ctx, archive, filepath.Join(b.cfg.TitlesDir, titleFile), "titles/"+titleFile, result); err != nil {
			return err
		}
		if err := b.addFile(ctx, archive, filepath.Join(b.cfg.SitesDir, siteFile), "sites/"+siteFile, result); err != nil {
			return err
		}
	}
	return b.addFile(ctx, archive, geojsonPath, "geojson/"+name, result)
}

func (b *Bundler) addFile(ctx context.Context, archive *zip.Writer, src, dst string, result *Result) error {
	file, err := os.Open(src)
	if os.IsNotExist(err) {
		result.Skipped++
		slog.WarnContext(ctx, "artifact missing, skipping", "path", src)
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()

	w, err := archive.Create(dst)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, file)
	return err
}

// uploadKey names the remote object <first-locality>-<timestamp>.zip,
// matching the link format consumers already expect.
func uploadKey(geojsonNames []string, timestamp int64) string {
	locality := "bundle"
	if len(geojsonNames) > 0 {
		locality = strings.TrimSuffix(geojsonNames[len(geojsonNames)-1], ".geojson")
	}
	return fmt.Sprintf("%s-%d.zip", locality, timestamp)
}
