package acquire

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/jamwil/terra/lib/checkpoint"
)

// Feature and FeatureCollection are the GeoJSON subset terra emits.
// Records without a correlated coordinate carry a null geometry.
type Feature struct {
	Type       string         `json:"type"`
	Geometry   *Geometry      `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type Geometry struct {
	Type string `json:"type"`
	// lng, lat per the GeoJSON spec
	Coordinates [2]float64 `json:"coordinates"`
}

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// WriteGeoJSON serializes the title table to path.
func WriteGeoJSON(path string, rows []checkpoint.TitleRow) error {
	collection := FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]Feature, 0, len(rows)),
	}

	for _, row := range rows {
		feature := Feature{
			Type: "Feature",
			Properties: map[string]any{
				"linc":              row.Title.Linc,
				"title_number":      row.Title.TitleNumber,
				"short_legal":       row.Title.ShortLegal,
				"municipality":      row.Title.Municipality,
				"registration":      row.Title.Registration,
				"registration_date": row.Title.RegistrationDate,
				"document_type":     row.Title.DocumentType,
				"condo":             row.Title.Condo,
			},
		}
		if row.Title.SwornValue != nil {
			feature.Properties["sworn_value"] = *row.Title.SwornValue
		}
		if row.Title.Consideration != nil {
			feature.Properties["consideration"] = *row.Title.Consideration
		}
		if row.HasGeometry {
			feature.Properties["geometry_valid"] = row.GeometryValid
		}
		if row.HasGeometry && row.GeometryValid {
			feature.Geometry = &Geometry{
				Type:        "Point",
				Coordinates: [2]float64{row.Lng, row.Lat},
			}
		}
		collection.Features = append(collection.Features, feature)
	}

	data, err := json.MarshalIndent(collection, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// ReadGeoJSON loads a collection previously written by WriteGeoJSON,
// used by the bundle command to enumerate a run's artifacts.
func ReadGeoJSON(path string) (FeatureCollection, error) {
	var collection FeatureCollection
	data, err := os.ReadFile(path)
	if err != nil {
		return collection, err
	}
	err = json.Unmarshal(data, &collection)
	return collection, err
}
