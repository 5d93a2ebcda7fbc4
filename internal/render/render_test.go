package render

import (
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helioviz/solar-layer-engine/internal/domain"
)

func buffer(width, height int, bands ...[]float64) *domain.RasterBuffer {
	return &domain.RasterBuffer{Width: width, Height: height, Bands: bands}
}

func pixelAt(t *testing.T, img interface{ At(x, y int) color.Color }, x, y int) color.RGBA {
	t.Helper()
	r, g, b, a := img.At(x, y).RGBA()
	return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
}

func TestParseHexColor(t *testing.T) {
	c, err := parseHexColor("FFCA28")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0xFF, G: 0xCA, B: 0x28, A: 255}, c)

	c, err = parseHexColor("#212121")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0x21, G: 0x21, B: 0x21, A: 255}, c)

	for _, bad := range []string{"", "FFF", "GGGGGG", "12345", "#12"} {
		_, err := parseHexColor(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestBuildLUTEndpoints(t *testing.T) {
	lut, err := buildLUT(IronPalette)
	require.NoError(t, err)
	require.Len(t, lut, 256)

	assert.Equal(t, color.RGBA{R: 0x00, G: 0x00, B: 0x0A, A: 255}, lut[0])
	assert.Equal(t, color.RGBA{R: 0xFF, G: 0xFF, B: 0xF6, A: 255}, lut[255])

	_, err = buildLUT([]string{"212121"})
	assert.Error(t, err)
}

func TestPaletteClampsToRange(t *testing.T) {
	// Values below min and above max take the endpoint colors.
	data := buffer(3, 1, []float64{-50, 900, 5000})
	lo, hi := 0.0, 1800.0
	img, err := Palette(PaletteOptions{Data: data, Colors: IronPalette, Min: &lo, Max: &hi})
	require.NoError(t, err)

	lut, _ := buildLUT(IronPalette)
	assert.Equal(t, lut[0], pixelAt(t, img, 0, 0))
	assert.Equal(t, lut[127], pixelAt(t, img, 1, 0))
	assert.Equal(t, lut[255], pixelAt(t, img, 2, 0))
}

func TestPaletteNonFiniteTransparent(t *testing.T) {
	data := buffer(3, 1, []float64{math.NaN(), math.Inf(1), 1})
	lo, hi := 0.0, 1.0
	img, err := Palette(PaletteOptions{Data: data, Colors: RainbowPalette, Min: &lo, Max: &hi})
	require.NoError(t, err)

	assert.Equal(t, uint8(0), pixelAt(t, img, 0, 0).A)
	assert.Equal(t, uint8(0), pixelAt(t, img, 1, 0).A)
	assert.Equal(t, uint8(255), pixelAt(t, img, 2, 0).A)
}

func TestPaletteMasking(t *testing.T) {
	data := buffer(2, 2, []float64{1, 2, 3, 4})
	mask := buffer(2, 2, []float64{1, 0, 1, 0})
	img, err := Palette(PaletteOptions{Data: data, Mask: mask, Colors: IronPalette})
	require.NoError(t, err)

	assert.Equal(t, uint8(255), pixelAt(t, img, 0, 0).A)
	assert.Equal(t, uint8(0), pixelAt(t, img, 1, 0).A)
	assert.Equal(t, uint8(255), pixelAt(t, img, 0, 1).A)
	assert.Equal(t, uint8(0), pixelAt(t, img, 1, 1).A)
}

func TestPaletteAllMaskedIsFullyTransparent(t *testing.T) {
	data := buffer(2, 2, []float64{1, 2, 3, 4})
	mask := buffer(2, 2, []float64{0, 0, 0, 0})
	img, err := Palette(PaletteOptions{Data: data, Mask: mask, Colors: IronPalette})
	require.NoError(t, err)

	for _, p := range img.Pix {
		assert.Equal(t, uint8(0), p)
	}
}

func TestPaletteMaskDimensionMismatch(t *testing.T) {
	data := buffer(2, 2, []float64{1, 2, 3, 4})
	mask := buffer(3, 1, []float64{1, 1, 1})
	_, err := Palette(PaletteOptions{Data: data, Mask: mask, Colors: IronPalette})
	assert.Error(t, err)
}

func TestPaletteUniformBandDoesNotDivideByZero(t *testing.T) {
	data := buffer(2, 1, []float64{7, 7})
	img, err := Palette(PaletteOptions{Data: data, Colors: IronPalette})
	require.NoError(t, err)

	lut, _ := buildLUT(IronPalette)
	assert.Equal(t, lut[0], pixelAt(t, img, 0, 0))
	assert.Equal(t, lut[0], pixelAt(t, img, 1, 0))
}

func TestBinary(t *testing.T) {
	data := buffer(3, 1, []float64{0, 1, 255})
	img, err := Binary(data, nil, 0, BinaryPalette)
	require.NoError(t, err)

	off, _ := parseHexColor(BinaryPalette[0])
	on, _ := parseHexColor(BinaryPalette[1])
	assert.Equal(t, off, pixelAt(t, img, 0, 0))
	assert.Equal(t, on, pixelAt(t, img, 1, 0))
	assert.Equal(t, on, pixelAt(t, img, 2, 0))
}

func TestBinarySelfMask(t *testing.T) {
	// The roof mask clips itself: zero pixels go transparent, not dark.
	data := buffer(2, 1, []float64{0, 1})
	img, err := Binary(data, data, 0, BinaryPalette)
	require.NoError(t, err)

	assert.Equal(t, uint8(0), pixelAt(t, img, 0, 0).A)
	on, _ := parseHexColor(BinaryPalette[1])
	assert.Equal(t, on, pixelAt(t, img, 1, 0))
}

func TestBinaryNeedsTwoStops(t *testing.T) {
	data := buffer(1, 1, []float64{1})
	_, err := Binary(data, nil, 0, IronPalette)
	assert.Error(t, err)
}

func TestRGB(t *testing.T) {
	data := buffer(2, 1,
		[]float64{10, 300}, // red clamps at 255
		[]float64{20, -5},  // green clamps at 0
		[]float64{30, 128},
	)
	img, err := RGB(data, nil)
	require.NoError(t, err)

	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, pixelAt(t, img, 0, 0))
	assert.Equal(t, color.RGBA{R: 255, G: 0, B: 128, A: 255}, pixelAt(t, img, 1, 0))
}

func TestRGBNeedsThreeBands(t *testing.T) {
	data := buffer(2, 1, []float64{1, 2})
	_, err := RGB(data, nil)
	assert.Error(t, err)
}

func TestAutoRange(t *testing.T) {
	lo, hi := AutoRange([]float64{5, math.NaN(), -3, math.Inf(1), 12})
	assert.Equal(t, -3.0, lo)
	assert.Equal(t, 12.0, hi)

	lo, hi = AutoRange([]float64{math.NaN()})
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 1.0, hi)

	lo, hi = AutoRange(nil)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 1.0, hi)
}
