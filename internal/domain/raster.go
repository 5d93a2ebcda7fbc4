package domain

import "fmt"

// Bounds is a WGS84 bounding box in degrees.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Valid reports whether the box is non-degenerate and within WGS84 range.
func (b Bounds) Valid() bool {
	return b.North > b.South &&
		b.North <= 90 && b.South >= -90 &&
		b.East > b.West &&
		b.East <= 180 && b.West >= -180
}

// RasterBuffer is a decoded multi-band pixel grid anchored to a WGS84
// bounding box. Band values are stored as float64 regardless of the source
// sample type so that palette math and day-bit extraction share one
// representation. Buffers are immutable once decoded; transformations such
// as day-bit expansion produce new buffers.
type RasterBuffer struct {
	Width  int
	Height int
	Bands  [][]float64
	Bounds Bounds
}

// Band returns band i, or an error when the index is out of range.
func (r *RasterBuffer) Band(i int) ([]float64, error) {
	if i < 0 || i >= len(r.Bands) {
		return nil, fmt.Errorf("raster has %d bands, band %d requested", len(r.Bands), i)
	}
	return r.Bands[i], nil
}

// NewSingleBand wraps one band in a RasterBuffer sharing r's geometry.
func (r *RasterBuffer) NewSingleBand(band []float64) *RasterBuffer {
	return &RasterBuffer{
		Width:  r.Width,
		Height: r.Height,
		Bands:  [][]float64{band},
		Bounds: r.Bounds,
	}
}
