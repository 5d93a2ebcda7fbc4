// Package render turns decoded raster bands into displayable RGBA frames
// using binary, gradient, or true-color palette rules. A mask raster, where
// supplied, forces full transparency on off-roof pixels regardless of the
// palette result.
package render

import (
	"fmt"
	"image/color"
)

// Hex color stop lists for the engine's fixed palettes, low to high.
var (
	// BinaryPalette renders roof masks: dark off, light blue on.
	BinaryPalette = []string{"212121", "B3E5FC"}

	// SunlightPalette renders hourly shade frames: dark shadow, amber sun.
	SunlightPalette = []string{"212121", "FFCA28"}

	// IronPalette is the heat scale used for flux layers.
	IronPalette = []string{"00000A", "91009C", "E64616", "FEB400", "FFFFF6"}

	// RainbowPalette is the elevation scale used for the DSM layer.
	RainbowPalette = []string{"3949AB", "81D4FA", "66BB6A", "FFE082", "E53935"}
)

const lutSize = 256

// parseHexColor accepts RRGGBB with an optional leading '#'.
func parseHexColor(s string) (color.RGBA, error) {
	if len(s) > 0 && s[0] == '#' {
		s = s[1:]
	}
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("bad hex color %q", s)
	}
	var v [3]uint8
	for i := 0; i < 3; i++ {
		hi, ok1 := hexNibble(s[i*2])
		lo, ok2 := hexNibble(s[i*2+1])
		if !ok1 || !ok2 {
			return color.RGBA{}, fmt.Errorf("bad hex color %q", s)
		}
		v[i] = hi<<4 | lo
	}
	return color.RGBA{R: v[0], G: v[1], B: v[2], A: 255}, nil
}

func hexNibble(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// buildLUT expands an ordered stop list into a 256-entry lookup table by
// linear interpolation between adjacent stops.
func buildLUT(stops []string) ([]color.RGBA, error) {
	if len(stops) < 2 {
		return nil, fmt.Errorf("palette needs at least 2 color stops, got %d", len(stops))
	}
	parsed := make([]color.RGBA, len(stops))
	for i, s := range stops {
		c, err := parseHexColor(s)
		if err != nil {
			return nil, err
		}
		parsed[i] = c
	}

	lut := make([]color.RGBA, lutSize)
	segments := len(parsed) - 1
	for i := range lut {
		pos := float64(i) / float64(lutSize-1) * float64(segments)
		seg := int(pos)
		if seg >= segments {
			seg = segments - 1
		}
		t := pos - float64(seg)
		a, b := parsed[seg], parsed[seg+1]
		lut[i] = color.RGBA{
			R: lerp8(a.R, b.R, t),
			G: lerp8(a.G, b.G, t),
			B: lerp8(a.B, b.B, t),
			A: 255,
		}
	}
	return lut, nil
}

func lerp8(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t + 0.5)
}
