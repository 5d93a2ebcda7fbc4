package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/helioviz/solar-layer-engine/internal/domain"
)

// PaletteOptions configures a gradient render of one band.
type PaletteOptions struct {
	Data   *domain.RasterBuffer
	Mask   *domain.RasterBuffer // optional, 0 forces transparency
	Colors []string             // hex stops, low to high
	Min    *float64             // nil computes the band's finite minimum
	Max    *float64             // nil computes the band's finite maximum
	Band   int
}

// Palette renders one band through a gradient palette. Values outside
// [min,max] clamp to the endpoints; non-finite values render transparent.
func Palette(opts PaletteOptions) (*image.RGBA, error) {
	band, err := opts.Data.Band(opts.Band)
	if err != nil {
		return nil, err
	}
	lut, err := buildLUT(opts.Colors)
	if err != nil {
		return nil, err
	}
	if err := checkMask(opts.Data, opts.Mask); err != nil {
		return nil, err
	}

	lo, hi := rangeOf(band, opts.Min, opts.Max)
	span := hi - lo
	if span <= 0 {
		span = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, opts.Data.Width, opts.Data.Height))
	for i, v := range band {
		if !visible(opts.Mask, i) {
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		n := (v - lo) / span
		if n < 0 {
			n = 0
		} else if n > 1 {
			n = 1
		}
		setPixel(img, i, lut[int(n*float64(lutSize-1))])
	}
	return img, nil
}

// Binary renders a band as a two-color frame: exact zero takes the first
// stop, anything else the second. Used for masks and hourly shade frames.
func Binary(data, mask *domain.RasterBuffer, band int, stops []string) (*image.RGBA, error) {
	values, err := data.Band(band)
	if err != nil {
		return nil, err
	}
	if len(stops) != 2 {
		return nil, fmt.Errorf("binary palette needs exactly 2 colors, got %d", len(stops))
	}
	off, err := parseHexColor(stops[0])
	if err != nil {
		return nil, err
	}
	on, err := parseHexColor(stops[1])
	if err != nil {
		return nil, err
	}
	if err := checkMask(data, mask); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, data.Width, data.Height))
	for i, v := range values {
		if !visible(mask, i) {
			continue
		}
		if v == 0 {
			setPixel(img, i, off)
		} else {
			setPixel(img, i, on)
		}
	}
	return img, nil
}

// RGB composes bands 0, 1, 2 directly as red, green, blue with no stretching.
func RGB(data, mask *domain.RasterBuffer) (*image.RGBA, error) {
	if len(data.Bands) < 3 {
		return nil, fmt.Errorf("true-color render needs 3 bands, raster has %d", len(data.Bands))
	}
	if err := checkMask(data, mask); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, data.Width, data.Height))
	r, g, b := data.Bands[0], data.Bands[1], data.Bands[2]
	for i := range r {
		if !visible(mask, i) {
			continue
		}
		setPixel(img, i, color.RGBA{R: clamp8(r[i]), G: clamp8(g[i]), B: clamp8(b[i]), A: 255})
	}
	return img, nil
}

// AutoRange returns the minimum and maximum finite values of a band. The
// full sort matches the reference behavior and is acceptable at
// single-building raster sizes.
func AutoRange(values []float64) (lo, hi float64) {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return 0, 1
	}
	sort.Float64s(finite)
	return finite[0], finite[len(finite)-1]
}

func rangeOf(band []float64, minOpt, maxOpt *float64) (lo, hi float64) {
	if minOpt != nil && maxOpt != nil {
		return *minOpt, *maxOpt
	}
	lo, hi = AutoRange(band)
	if minOpt != nil {
		lo = *minOpt
	}
	if maxOpt != nil {
		hi = *maxOpt
	}
	return lo, hi
}

func checkMask(data, mask *domain.RasterBuffer) error {
	if mask == nil {
		return nil
	}
	if mask.Width != data.Width || mask.Height != data.Height {
		return fmt.Errorf("mask is %dx%d but data is %dx%d",
			mask.Width, mask.Height, data.Width, data.Height)
	}
	if len(mask.Bands) == 0 {
		return fmt.Errorf("mask raster has no bands")
	}
	return nil
}

// visible reports whether the mask allows the pixel. Pixels start fully
// transparent (zero RGBA), so masked pixels are simply never written.
func visible(mask *domain.RasterBuffer, i int) bool {
	return mask == nil || mask.Bands[0][i] != 0
}

func setPixel(img *image.RGBA, i int, c color.RGBA) {
	img.Pix[i*4+0] = c.R
	img.Pix[i*4+1] = c.G
	img.Pix[i*4+2] = c.B
	img.Pix[i*4+3] = c.A
}

func clamp8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
