// Package geo provides the bounding boxes and the tiling scheme used to split a
// city into fixed-size crawl cells.
package geo

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"strconv"
	"strings"

	"github.com/mmcloughlin/geohash"
	"github.com/paulmach/orb"
)

// MinStep is the smallest tile edge the generator accepts. Boundaries are
// rounded to two decimals, so anything finer would emit duplicate cells.
const MinStep = 0.01

// cellPrecision is the geohash length of a tile key (~5m cells).
const cellPrecision = 9

var (
	// ErrInvalidStep is returned when the step cannot produce reproducible tiles.
	ErrInvalidStep = errors.New("invalid tile step")

	// ErrInvalidBox is returned for boxes with inverted or non-finite bounds.
	ErrInvalidBox = errors.New("invalid bounding box")
)

// Box is a latitude/longitude bounding box in degrees.
type Box struct {
	MinLat float64 `json:"min_lat" mapstructure:"min_lat"`
	MaxLat float64 `json:"max_lat" mapstructure:"max_lat"`
	MinLon float64 `json:"min_lon" mapstructure:"min_lon"`
	MaxLon float64 `json:"max_lon" mapstructure:"max_lon"`
}

// Validate checks that the box is finite, inside the coordinate space and not inverted.
func (b Box) Validate() error {
	for _, v := range []float64{b.MinLat, b.MaxLat, b.MinLon, b.MaxLon} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite bound in %s", ErrInvalidBox, b)
		}
	}
	if b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
		return fmt.Errorf("%w: min exceeds max in %s", ErrInvalidBox, b)
	}
	if b.MinLat < -90 || b.MaxLat > 90 || b.MinLon < -180 || b.MaxLon > 180 {
		return fmt.Errorf("%w: %s is outside the coordinate space", ErrInvalidBox, b)
	}
	return nil
}

// Bound returns the box as an orb bound (x = longitude, y = latitude).
func (b Box) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLon, b.MinLat},
		Max: orb.Point{b.MaxLon, b.MaxLat},
	}
}

// FromBound converts an orb bound back into a Box.
func FromBound(bound orb.Bound) Box {
	return Box{
		MinLat: bound.Min.Lat(),
		MaxLat: bound.Max.Lat(),
		MinLon: bound.Min.Lon(),
		MaxLon: bound.Max.Lon(),
	}
}

// Contains reports whether the point lies inside the box, edges included.
func (b Box) Contains(lat, lon float64) bool {
	return b.Bound().Contains(orb.Point{lon, lat})
}

// Cell returns the geohash of the box centre. Tiles of one generation never
// share a centre, so the cell identifies a tile within its (ds, group type).
func (b Box) Cell() string {
	c := b.Bound().Center()
	return geohash.EncodeWithPrecision(c.Lat(), c.Lon(), cellPrecision)
}

func (b Box) String() string {
	return fmt.Sprintf("lat %s-%s lon %s-%s",
		FormatCoord(b.MinLat), FormatCoord(b.MaxLat), FormatCoord(b.MinLon), FormatCoord(b.MaxLon))
}

// FormatCoord renders a coordinate with the shortest exact representation.
func FormatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Generate lazily enumerates the tiles covering box in row-major order:
// latitude in the outer loop, longitude in the inner loop.
//
// The i-th boundary along an axis is Round2(min + i*step), computed from the
// index rather than by accumulation, so a fresh run and a resumed run emit
// byte-identical boundaries. The last tile on each axis is clamped to the
// parent's max and may be narrower than step.
func Generate(box Box, step float64) (iter.Seq[Box], error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(step) || math.IsInf(step, 0) || step < MinStep-1e-9 {
		return nil, fmt.Errorf("%w: %v (must be >= %v)", ErrInvalidStep, step, MinStep)
	}

	lats := edges(box.MinLat, box.MaxLat, step)
	lons := edges(box.MinLon, box.MaxLon, step)

	return func(yield func(Box) bool) {
		for _, lat := range lats {
			for _, lon := range lons {
				tile := Box{MinLat: lat[0], MaxLat: lat[1], MinLon: lon[0], MaxLon: lon[1]}
				if !yield(tile) {
					return
				}
			}
		}
	}, nil
}

// Tiles collects Generate into a slice.
func Tiles(box Box, step float64) ([]Box, error) {
	seq, err := Generate(box, step)
	if err != nil {
		return nil, err
	}
	var tiles []Box
	for t := range seq {
		tiles = append(tiles, t)
	}
	return tiles, nil
}

// edges returns the [start, end] pairs along one axis.
func edges(min, max, step float64) [][2]float64 {
	var out [][2]float64
	for i := 0; ; i++ {
		start := Round2(min + float64(i)*step)
		if start >= max {
			break
		}
		end := math.Min(Round2(min+float64(i+1)*step), max)
		out = append(out, [2]float64{start, end})
	}
	return out
}

// BoxFromPolyline derives a bounding box from a district outline given as
// "lon,lat" points separated by ';' or '|'.
func BoxFromPolyline(polyline string) (Box, error) {
	var points orb.MultiPoint
	for _, raw := range strings.FieldsFunc(polyline, func(r rune) bool { return r == ';' || r == '|' }) {
		parts := strings.Split(strings.TrimSpace(raw), ",")
		if len(parts) != 2 {
			return Box{}, fmt.Errorf("%w: malformed point %q", ErrInvalidBox, raw)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return Box{}, fmt.Errorf("%w: longitude %q: %v", ErrInvalidBox, parts[0], err)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return Box{}, fmt.Errorf("%w: latitude %q: %v", ErrInvalidBox, parts[1], err)
		}
		points = append(points, orb.Point{lon, lat})
	}
	if len(points) == 0 {
		return Box{}, fmt.Errorf("%w: empty polyline", ErrInvalidBox)
	}
	box := FromBound(points.Bound())
	return box, box.Validate()
}
