// Package grid decomposes a projected bounding box into the rectangular
// search tiles used to page spatial queries against the registry.
package grid

import (
	"github.com/jamwil/terra/lib/geo"
)

// DefaultDensity is the tile edge length in projected units.
const DefaultDensity = 500

// Tile is a closed rectangle in the projected frame: four corners walked
// clockwise from the southwest, plus the first corner repeated to close
// the ring.
type Tile struct {
	Points [5]geo.Point
}

func (t Tile) Southwest() geo.Point {
	return t.Points[0]
}

// Ring returns the open corner sequence, without the closing point.
func (t Tile) Ring() []geo.Point {
	return t.Points[:4]
}

// Batch is an ordered collection of tiles. It exists as an explicit type
// so callers never have to inspect whether they were handed one tile or
// many; a single tile is a Batch of one.
type Batch []Tile

// Generate tiles the integer-truncated rectangle spanned by bound, column
// major: all tiles for a given x before advancing x, ascending x then
// ascending y. Progress reporting downstream depends on this order being
// deterministic.
//
// Both corners are truncated toward zero, so coverage stops short of the
// fractional upper edges. That under-coverage is deliberate and matches
// the original survey behavior; do not "fix" it by rounding.
func Generate(bound geo.PlanarBound, density int) Batch {
	if density <= 0 {
		density = DefaultDensity
	}

	xMin, xMax := int(bound.Southwest.X), int(bound.Northeast.X)
	yMin, yMax := int(bound.Southwest.Y), int(bound.Northeast.Y)

	var batch Batch
	for x := xMin; x < xMax; x += density {
		for y := yMin; y < yMax; y += density {
			fx, fy, fd := float64(x), float64(y), float64(density)
			batch = append(batch, Tile{
				Points: [5]geo.Point{
					{X: fx, Y: fy},
					{X: fx, Y: fy + fd},
					{X: fx + fd, Y: fy + fd},
					{X: fx + fd, Y: fy},
					{X: fx, Y: fy},
				},
			})
		}
	}
	return batch
}
