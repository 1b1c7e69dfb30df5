package geo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBound(t *testing.T) {
	b, err := ParseBound("51.2,-113.9;51.0,-114.3")
	require.NoError(t, err)
	require.Equal(t, Coordinate{Lat: 51.2, Lng: -113.9}, b.Northeast)
	require.Equal(t, Coordinate{Lat: 51.0, Lng: -114.3}, b.Southwest)

	require.Equal(t, Coordinate{Lat: 51.2, Lng: -114.3}, b.Northwest())
	require.Equal(t, Coordinate{Lat: 51.0, Lng: -113.9}, b.Southeast())
}

func TestParseBoundRejectsGarbage(t *testing.T) {
	for _, s := range []string{
		"",
		"51.2,-113.9",
		"51.2;-113.9;51.0",
		"51.2,-113.9;51.0",
		"abc,def;51.0,-114.3",
	} {
		_, err := ParseBound(s)
		require.Error(t, err, "input %q", s)
	}
}

func TestPlanarBoundValid(t *testing.T) {
	require.True(t, PlanarBound{
		Northeast: Point{X: 10, Y: 10},
		Southwest: Point{X: 0, Y: 0},
	}.Valid())
	require.False(t, PlanarBound{
		Northeast: Point{X: 0, Y: 0},
		Southwest: Point{X: 10, Y: 10},
	}.Valid())
}
