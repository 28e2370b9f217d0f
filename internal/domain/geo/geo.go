package geo

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean radius of Earth used for Haversine distance.
const EarthRadiusMeters = 6_371_000.0

// DefaultCellSizeDeg is the default coarse-bucket cell size in degrees.
// Roughly 5.5 km north-south, narrower east-west away from the equator.
const DefaultCellSizeDeg = 0.05

// Haversine returns the great-circle distance in meters between two points
// specified by latitude and longitude in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1r := lat1 * math.Pi / 180
	lat2r := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1r)*math.Cos(lat2r)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// ValidateCoordinates checks that latitude is in [-90,90] and longitude in [-180,180].
func ValidateCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Cell identifies a coarse location bucket on a fixed lat/lon grid.
type Cell struct {
	Row int
	Col int
}

// String renders the cell as a stable bucket key component.
func (c Cell) String() string { return fmt.Sprintf("%d_%d", c.Row, c.Col) }

// CellAt returns the grid cell containing the given coordinates.
// cellSizeDeg <= 0 falls back to DefaultCellSizeDeg.
func CellAt(lat, lon, cellSizeDeg float64) Cell {
	if cellSizeDeg <= 0 {
		cellSizeDeg = DefaultCellSizeDeg
	}
	return Cell{
		Row: int(math.Floor(lat / cellSizeDeg)),
		Col: int(math.Floor(lon / cellSizeDeg)),
	}
}

// metersPerDegreeLat is the approximate north-south extent of one degree.
const metersPerDegreeLat = 111_320.0

// CellsWithin returns every grid cell intersecting the bounding box of a
// radius around a point. Longitude degrees shrink toward the poles, so the
// box widens with latitude.
func CellsWithin(lat, lon, radiusM, cellSizeDeg float64) []Cell {
	if cellSizeDeg <= 0 {
		cellSizeDeg = DefaultCellSizeDeg
	}
	latDelta := radiusM / metersPerDegreeLat
	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	lonDelta := radiusM / (metersPerDegreeLat * cosLat)

	minCell := CellAt(lat-latDelta, lon-lonDelta, cellSizeDeg)
	maxCell := CellAt(lat+latDelta, lon+lonDelta, cellSizeDeg)

	out := make([]Cell, 0, (maxCell.Row-minCell.Row+1)*(maxCell.Col-minCell.Col+1))
	for row := minCell.Row; row <= maxCell.Row; row++ {
		for col := minCell.Col; col <= maxCell.Col; col++ {
			out = append(out, Cell{Row: row, Col: col})
		}
	}
	return out
}

// Neighbors returns the cell and its eight surrounding cells. Items near a
// cell boundary land in adjacent cells, so lookups fan out over all nine.
func (c Cell) Neighbors() []Cell {
	out := make([]Cell, 0, 9)
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			out = append(out, Cell{Row: c.Row + dr, Col: c.Col + dc})
		}
	}
	return out
}
