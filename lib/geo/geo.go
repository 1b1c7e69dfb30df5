package geo

import (
	"fmt"
	"strconv"
	"strings"
)

// Coordinate is a geodetic WGS84 position.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Point is a position in the registry's projected planar frame
// (NAD83 10-TM Forest). X runs east, Y runs north.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Bound is a geodetic bounding box.
type Bound struct {
	Northeast Coordinate `json:"northeast"`
	Southwest Coordinate `json:"southwest"`
}

func (b Bound) Northwest() Coordinate {
	return Coordinate{Lat: b.Northeast.Lat, Lng: b.Southwest.Lng}
}

func (b Bound) Southeast() Coordinate {
	return Coordinate{Lat: b.Southwest.Lat, Lng: b.Northeast.Lng}
}

// PlanarBound is a bounding box in the projected frame. Valid when the
// northeast corner is at or beyond the southwest corner on both axes.
type PlanarBound struct {
	Northeast Point `json:"northeast"`
	Southwest Point `json:"southwest"`
}

func (b PlanarBound) Valid() bool {
	return b.Northeast.X >= b.Southwest.X && b.Northeast.Y >= b.Southwest.Y
}

// ParseBound reads a literal "lat,lng;lat,lng" pair (northeast first),
// used to bypass the geocoder entirely.
func ParseBound(s string) (Bound, error) {
	corners := strings.Split(strings.TrimSpace(s), ";")
	if len(corners) != 2 {
		return Bound{}, fmt.Errorf("expected two corners separated by ';', got %q", s)
	}

	parse := func(corner string) (Coordinate, error) {
		parts := strings.Split(strings.TrimSpace(corner), ",")
		if len(parts) != 2 {
			return Coordinate{}, fmt.Errorf("expected 'lat,lng', got %q", corner)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return Coordinate{}, err
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return Coordinate{}, err
		}
		return Coordinate{Lat: lat, Lng: lng}, nil
	}

	ne, err := parse(corners[0])
	if err != nil {
		return Bound{}, err
	}
	sw, err := parse(corners[1])
	if err != nil {
		return Bound{}, err
	}
	return Bound{Northeast: ne, Southwest: sw}, nil
}
