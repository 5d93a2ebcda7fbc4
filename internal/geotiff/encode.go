package geotiff

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
)

// Raster describes a GeoTIFF to be written by Encode. It exists for the mock
// bundle generator and for decoder tests; the output is always little-endian,
// chunky, uncompressed, single-strip.
type Raster struct {
	Width, Height int
	Bands         [][]float64

	BitsPerSample int // 8, 32, or 64
	SampleFormat  int // formatUint (1) or formatFloat (3)

	// Geo-referencing. EPSG 4326 is written as a geographic model, anything
	// else as a projected model. OmitGeo drops the geo tags entirely.
	EPSG             int
	OriginX, OriginY float64 // model coordinates of the top-left corner
	ScaleX, ScaleY   float64 // pixel size in model units
	OmitGeo          bool
}

// Sample format values for Raster.SampleFormat.
const (
	FormatUint  = formatUint
	FormatFloat = formatFloat
)

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

// Encode writes r as a classic TIFF. Sample values outside the declared
// sample type are truncated the way the provider's own writer would.
func Encode(w io.Writer, r Raster) error {
	if r.Width <= 0 || r.Height <= 0 || len(r.Bands) == 0 {
		return fmt.Errorf("geotiff: empty raster")
	}
	for i, b := range r.Bands {
		if len(b) != r.Width*r.Height {
			return fmt.Errorf("geotiff: band %d has %d values, want %d", i, len(b), r.Width*r.Height)
		}
	}
	if r.BitsPerSample == 0 {
		r.BitsPerSample = 32
	}
	if r.SampleFormat == 0 {
		r.SampleFormat = formatFloat
	}

	pixels, err := encodePixels(r)
	if err != nil {
		return err
	}
	samples := len(r.Bands)

	le := binary.LittleEndian
	u16 := func(vs ...uint16) []byte {
		b := make([]byte, 2*len(vs))
		for i, v := range vs {
			le.PutUint16(b[i*2:], v)
		}
		return b
	}
	u32 := func(v uint32) []byte {
		b := make([]byte, 4)
		le.PutUint32(b, v)
		return b
	}
	f64 := func(vs ...float64) []byte {
		b := make([]byte, 8*len(vs))
		for i, v := range vs {
			le.PutUint64(b[i*8:], math.Float64bits(v))
		}
		return b
	}
	repeat16 := func(v uint16, n int) []byte {
		vs := make([]uint16, n)
		for i := range vs {
			vs[i] = v
		}
		return u16(vs...)
	}

	entries := []ifdEntry{
		{tagImageWidth, typeLong, 1, u32(uint32(r.Width))},
		{tagImageLength, typeLong, 1, u32(uint32(r.Height))},
		{tagBitsPerSample, typeShort, uint32(samples), repeat16(uint16(r.BitsPerSample), samples)},
		{tagCompression, typeShort, 1, u16(compressionNone)},
		{tagPhotometric, typeShort, 1, u16(1)}, // BlackIsZero
		{tagStripOffsets, typeLong, 1, u32(0)}, // patched below
		{tagSamplesPerPixel, typeShort, 1, u16(uint16(samples))},
		{tagRowsPerStrip, typeLong, 1, u32(uint32(r.Height))},
		{tagStripByteCounts, typeLong, 1, u32(uint32(len(pixels)))},
		{tagSampleFormat, typeShort, uint32(samples), repeat16(uint16(r.SampleFormat), samples)},
	}

	if !r.OmitGeo {
		modelType := uint16(modelTypeProjected)
		csKey := uint16(keyProjectedCS)
		if r.EPSG == epsgWGS84 {
			modelType = modelTypeGeographic
			csKey = keyGeographicType
		}
		dir := []uint16{
			1, 1, 0, 3, // version, revision, minor, key count
			keyGTModelType, 0, 1, modelType,
			keyGTRasterType, 0, 1, 1, // RasterPixelIsArea
			csKey, 0, 1, uint16(r.EPSG),
		}
		entries = append(entries,
			ifdEntry{tagModelPixelScale, typeDouble, 3, f64(r.ScaleX, r.ScaleY, 0)},
			ifdEntry{tagModelTiepoint, typeDouble, 6, f64(0, 0, 0, r.OriginX, r.OriginY, 0)},
			ifdEntry{tagGeoKeyDirectory, typeShort, uint32(len(dir)), u16(dir...)},
		)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	// Layout: 8-byte header, IFD, overflow value area, pixel strip.
	ifdSize := 2 + 12*len(entries) + 4
	valueOff := 8 + ifdSize
	var overflow []byte
	for i := range entries {
		e := &entries[i]
		if len(e.data) > 4 {
			off := uint32(valueOff + len(overflow))
			overflow = append(overflow, e.data...)
			e.data = u32(off)
		}
	}
	pixelOff := uint32(valueOff + len(overflow))
	for i := range entries {
		if entries[i].tag == tagStripOffsets {
			entries[i].data = u32(pixelOff)
		}
	}

	out := make([]byte, 0, int(pixelOff)+len(pixels))
	out = append(out, 'I', 'I', 42, 0)
	out = append(out, u32(8)...)
	out = append(out, u16(uint16(len(entries)))...)
	for _, e := range entries {
		out = append(out, u16(e.tag, e.typ)...)
		out = append(out, u32(e.count)...)
		var val [4]byte
		copy(val[:], e.data)
		out = append(out, val[:]...)
	}
	out = append(out, u32(0)...) // no next IFD
	out = append(out, overflow...)
	out = append(out, pixels...)

	_, err = w.Write(out)
	return err
}

func encodePixels(r Raster) ([]byte, error) {
	le := binary.LittleEndian
	samples := len(r.Bands)
	bytesPer := r.BitsPerSample / 8
	out := make([]byte, r.Width*r.Height*samples*bytesPer)
	for i := 0; i < r.Width*r.Height; i++ {
		for s := 0; s < samples; s++ {
			off := (i*samples + s) * bytesPer
			v := r.Bands[s][i]
			switch {
			case r.BitsPerSample == 8 && r.SampleFormat == formatUint:
				out[off] = uint8(v)
			case r.BitsPerSample == 32 && r.SampleFormat == formatUint:
				le.PutUint32(out[off:], uint32(int64(v)))
			case r.BitsPerSample == 32 && r.SampleFormat == formatFloat:
				le.PutUint32(out[off:], math.Float32bits(float32(v)))
			case r.BitsPerSample == 64 && r.SampleFormat == formatFloat:
				le.PutUint64(out[off:], math.Float64bits(v))
			default:
				return nil, fmt.Errorf("geotiff: unsupported sample type %d/%d", r.BitsPerSample, r.SampleFormat)
			}
		}
	}
	return out, nil
}
