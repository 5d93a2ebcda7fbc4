// Package geotiff reads and writes the GeoTIFF rasters published by the
// solar data provider: classic little/big-endian TIFF containers holding
// one or more numeric bands plus geo-referencing tags (pixel scale, tiepoint,
// geokey directory). The decoder covers the subset the provider emits
// (stripped or tiled layout, chunky or planar organization, uncompressed or
// deflate payloads) and hard-fails on anything outside it rather than
// guessing.
package geotiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/helioviz/solar-layer-engine/internal/domain"
)

// TIFF field types.
const (
	typeByte      = 1
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeRational  = 5
	typeSByte     = 6
	typeUndefined = 7
	typeSShort    = 8
	typeSLong     = 9
	typeSRational = 10
	typeFloat     = 11
	typeDouble    = 12
)

// Baseline and GeoTIFF tags consumed by the decoder.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagPredictor       = 317
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339

	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
)

const (
	compressionNone       = 1
	compressionDeflate    = 8
	compressionDeflateOld = 32946

	predictorNone       = 1
	predictorHorizontal = 2

	formatUint  = 1
	formatInt   = 2
	formatFloat = 3
)

var typeSizes = map[uint16]int{
	typeByte:      1,
	typeASCII:     1,
	typeShort:     2,
	typeLong:      4,
	typeRational:  8,
	typeSByte:     1,
	typeUndefined: 1,
	typeSShort:    2,
	typeSLong:     4,
	typeSRational: 8,
	typeFloat:     4,
	typeDouble:    8,
}

func errDecode(format string, args ...any) error {
	return &domain.DecodeError{Reason: fmt.Sprintf(format, args...)}
}

type field struct {
	typ   uint16
	count uint32
	data  []byte
}

type parser struct {
	bo     binary.ByteOrder
	fields map[uint16]field
}

// Decode parses a GeoTIFF into a multi-band pixel buffer with its bounding
// box reprojected to WGS84. All failures are *domain.DecodeError.
func Decode(data []byte) (*domain.RasterBuffer, error) {
	p, err := parse(data)
	if err != nil {
		return nil, err
	}

	width := int(p.uintOr(tagImageWidth, 0))
	height := int(p.uintOr(tagImageLength, 0))
	if width <= 0 || height <= 0 {
		return nil, errDecode("missing or invalid image dimensions")
	}

	samples := int(p.uintOr(tagSamplesPerPixel, 1))
	bits, err := p.uniformSampleValue(tagBitsPerSample, samples, 8)
	if err != nil {
		return nil, err
	}
	format, err := p.uniformSampleValue(tagSampleFormat, samples, formatUint)
	if err != nil {
		return nil, err
	}
	if err := validateSampleType(bits, format); err != nil {
		return nil, err
	}

	compression := p.uintOr(tagCompression, compressionNone)
	predictor := p.uintOr(tagPredictor, predictorNone)
	if predictor != predictorNone && predictor != predictorHorizontal {
		return nil, errDecode("unsupported predictor %d", predictor)
	}
	if predictor == predictorHorizontal && format == formatFloat {
		return nil, errDecode("horizontal predictor on float samples is unsupported")
	}

	bands := make([][]float64, samples)
	for i := range bands {
		bands[i] = make([]float64, width*height)
	}

	geom := rasterGeometry{
		width:     width,
		height:    height,
		samples:   samples,
		bits:      int(bits),
		format:    format,
		predictor: predictor,
	}
	if _, tiled := p.fields[tagTileOffsets]; tiled {
		err = p.readTiles(data, geom, compression, bands)
	} else {
		err = p.readStrips(data, geom, compression, bands)
	}
	if err != nil {
		return nil, err
	}

	bounds, err := p.bounds(width, height)
	if err != nil {
		return nil, err
	}

	return &domain.RasterBuffer{
		Width:  width,
		Height: height,
		Bands:  bands,
		Bounds: bounds,
	}, nil
}

func parse(data []byte) (*parser, error) {
	if len(data) < 8 {
		return nil, errDecode("truncated header")
	}
	var bo binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		bo = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		bo = binary.BigEndian
	default:
		return nil, errDecode("not a TIFF container")
	}
	switch magic := bo.Uint16(data[2:4]); magic {
	case 42:
	case 43:
		return nil, errDecode("BigTIFF is unsupported")
	default:
		return nil, errDecode("bad TIFF magic %d", magic)
	}

	ifdOff := int(bo.Uint32(data[4:8]))
	if ifdOff < 8 || ifdOff+2 > len(data) {
		return nil, errDecode("IFD offset out of range")
	}
	n := int(bo.Uint16(data[ifdOff:]))
	entriesEnd := ifdOff + 2 + n*12
	if entriesEnd > len(data) {
		return nil, errDecode("truncated IFD")
	}

	p := &parser{bo: bo, fields: make(map[uint16]field, n)}
	for i := 0; i < n; i++ {
		base := ifdOff + 2 + i*12
		tag := bo.Uint16(data[base:])
		typ := bo.Uint16(data[base+2:])
		count := bo.Uint32(data[base+4:])
		size := typeSizes[typ] * int(count)
		if size == 0 {
			continue // unknown field type, skip
		}
		var raw []byte
		if size <= 4 {
			raw = data[base+8 : base+8+size]
		} else {
			off := int(bo.Uint32(data[base+8:]))
			if off < 8 || off+size > len(data) {
				return nil, errDecode("field %d data out of range", tag)
			}
			raw = data[off : off+size]
		}
		p.fields[tag] = field{typ: typ, count: count, data: raw}
	}
	return p, nil
}

// uints returns the field's values widened to uint64, or nil when absent.
func (p *parser) uints(tag uint16) []uint64 {
	f, ok := p.fields[tag]
	if !ok {
		return nil
	}
	out := make([]uint64, 0, f.count)
	for i := 0; i < int(f.count); i++ {
		switch f.typ {
		case typeByte:
			out = append(out, uint64(f.data[i]))
		case typeShort:
			out = append(out, uint64(p.bo.Uint16(f.data[i*2:])))
		case typeLong:
			out = append(out, uint64(p.bo.Uint32(f.data[i*4:])))
		default:
			return nil
		}
	}
	return out
}

func (p *parser) uintOr(tag uint16, def uint64) uint64 {
	vs := p.uints(tag)
	if len(vs) == 0 {
		return def
	}
	return vs[0]
}

// doubles returns FLOAT or DOUBLE field values, or nil when absent.
func (p *parser) doubles(tag uint16) []float64 {
	f, ok := p.fields[tag]
	if !ok {
		return nil
	}
	out := make([]float64, 0, f.count)
	for i := 0; i < int(f.count); i++ {
		switch f.typ {
		case typeFloat:
			out = append(out, float64(math.Float32frombits(p.bo.Uint32(f.data[i*4:]))))
		case typeDouble:
			out = append(out, math.Float64frombits(p.bo.Uint64(f.data[i*8:])))
		default:
			return nil
		}
	}
	return out
}

// uniformSampleValue reads a per-sample field (BitsPerSample, SampleFormat)
// and requires every band to share one value. The field must carry either a
// single value or exactly one per sample.
func (p *parser) uniformSampleValue(tag uint16, samples int, def uint64) (uint64, error) {
	vs := p.uints(tag)
	if len(vs) == 0 {
		return def, nil
	}
	if len(vs) != 1 && len(vs) != samples {
		return 0, errDecode("field %d has %d values for %d samples", tag, len(vs), samples)
	}
	for _, v := range vs[1:] {
		if v != vs[0] {
			return 0, errDecode("mixed per-band values for field %d", tag)
		}
	}
	return vs[0], nil
}

func validateSampleType(bits, format uint64) error {
	switch bits {
	case 8, 16:
		if format == formatFloat {
			return errDecode("%d-bit float samples are unsupported", bits)
		}
	case 32:
	case 64:
		if format != formatFloat {
			return errDecode("64-bit integer samples are unsupported")
		}
	default:
		return errDecode("unsupported bits per sample %d", bits)
	}
	return nil
}

type rasterGeometry struct {
	width, height int
	samples       int
	bits          int
	format        uint64
	predictor     uint64
}

type segment struct {
	off, count int
}

func (p *parser) segments(offTag, countTag uint16) ([]segment, error) {
	offs := p.uints(offTag)
	counts := p.uints(countTag)
	if len(offs) == 0 || len(offs) != len(counts) {
		return nil, errDecode("inconsistent segment offsets and byte counts")
	}
	segs := make([]segment, len(offs))
	for i := range offs {
		segs[i] = segment{off: int(offs[i]), count: int(counts[i])}
	}
	return segs, nil
}

func segmentBytes(data []byte, seg segment, compression uint64) ([]byte, error) {
	if seg.off < 0 || seg.count < 0 || seg.off+seg.count > len(data) {
		return nil, errDecode("segment out of range")
	}
	raw := data[seg.off : seg.off+seg.count]
	switch compression {
	case compressionNone:
		return raw, nil
	case compressionDeflate, compressionDeflateOld:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, &domain.DecodeError{Reason: "bad deflate stream", Err: err}
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, &domain.DecodeError{Reason: "bad deflate stream", Err: err}
		}
		return out, nil
	default:
		return nil, errDecode("unsupported compression %d", compression)
	}
}

func (p *parser) readStrips(data []byte, g rasterGeometry, compression uint64, bands [][]float64) error {
	segs, err := p.segments(tagStripOffsets, tagStripByteCounts)
	if err != nil {
		return err
	}
	rps := int(p.uintOr(tagRowsPerStrip, uint64(g.height)))
	if rps <= 0 {
		return errDecode("invalid rows per strip")
	}
	stripsPerBand := (g.height + rps - 1) / rps
	planar := p.uintOr(tagPlanarConfig, 1)

	switch planar {
	case 1:
		if len(segs) < stripsPerBand {
			return errDecode("expected %d strips, found %d", stripsPerBand, len(segs))
		}
		for i := 0; i < stripsPerBand; i++ {
			raw, err := segmentBytes(data, segs[i], compression)
			if err != nil {
				return err
			}
			rows := min(rps, g.height-i*rps)
			if err := p.fillChunkyRows(raw, g, bands, i*rps, rows); err != nil {
				return err
			}
		}
	case 2:
		if len(segs) < stripsPerBand*g.samples {
			return errDecode("expected %d planar strips, found %d", stripsPerBand*g.samples, len(segs))
		}
		for i := 0; i < stripsPerBand*g.samples; i++ {
			raw, err := segmentBytes(data, segs[i], compression)
			if err != nil {
				return err
			}
			band := i / stripsPerBand
			startRow := (i % stripsPerBand) * rps
			rows := min(rps, g.height-startRow)
			if err := p.fillPlanarRows(raw, g, bands[band], startRow, rows); err != nil {
				return err
			}
		}
	default:
		return errDecode("unsupported planar configuration %d", planar)
	}
	return nil
}

func (p *parser) readTiles(data []byte, g rasterGeometry, compression uint64, bands [][]float64) error {
	segs, err := p.segments(tagTileOffsets, tagTileByteCounts)
	if err != nil {
		return err
	}
	tw := int(p.uintOr(tagTileWidth, 0))
	tl := int(p.uintOr(tagTileLength, 0))
	if tw <= 0 || tl <= 0 {
		return errDecode("missing tile dimensions")
	}
	if p.uintOr(tagPlanarConfig, 1) != 1 {
		return errDecode("planar tiled layout is unsupported")
	}
	across := (g.width + tw - 1) / tw
	down := (g.height + tl - 1) / tl
	if len(segs) < across*down {
		return errDecode("expected %d tiles, found %d", across*down, len(segs))
	}

	bytesPer := g.bits / 8
	for ty := 0; ty < down; ty++ {
		for tx := 0; tx < across; tx++ {
			raw, err := segmentBytes(data, segs[ty*across+tx], compression)
			if err != nil {
				return err
			}
			if g.predictor == predictorHorizontal {
				undoHorizontalPredictor(raw, tw, g.samples, bytesPer, p.bo)
			}
			need := tw * tl * g.samples * bytesPer
			if len(raw) < need {
				return errDecode("tile payload too short: %d < %d", len(raw), need)
			}
			for r := 0; r < tl; r++ {
				gy := ty*tl + r
				if gy >= g.height {
					break
				}
				for c := 0; c < tw; c++ {
					gx := tx*tw + c
					if gx >= g.width {
						continue
					}
					base := (r*tw + c) * g.samples
					for s := 0; s < g.samples; s++ {
						bands[s][gy*g.width+gx] = sampleValue(raw, (base+s)*bytesPer, g.bits, g.format, p.bo)
					}
				}
			}
		}
	}
	return nil
}

func (p *parser) fillChunkyRows(raw []byte, g rasterGeometry, bands [][]float64, startRow, rows int) error {
	bytesPer := g.bits / 8
	if g.predictor == predictorHorizontal {
		undoHorizontalPredictor(raw, g.width, g.samples, bytesPer, p.bo)
	}
	need := rows * g.width * g.samples * bytesPer
	if len(raw) < need {
		return errDecode("strip payload too short: %d < %d", len(raw), need)
	}
	for r := 0; r < rows; r++ {
		rowBase := r * g.width * g.samples
		dst := (startRow + r) * g.width
		for x := 0; x < g.width; x++ {
			for s := 0; s < g.samples; s++ {
				bands[s][dst+x] = sampleValue(raw, (rowBase+x*g.samples+s)*bytesPer, g.bits, g.format, p.bo)
			}
		}
	}
	return nil
}

func (p *parser) fillPlanarRows(raw []byte, g rasterGeometry, band []float64, startRow, rows int) error {
	bytesPer := g.bits / 8
	if g.predictor == predictorHorizontal {
		undoHorizontalPredictor(raw, g.width, 1, bytesPer, p.bo)
	}
	need := rows * g.width * bytesPer
	if len(raw) < need {
		return errDecode("planar strip payload too short: %d < %d", len(raw), need)
	}
	for r := 0; r < rows; r++ {
		dst := (startRow + r) * g.width
		for x := 0; x < g.width; x++ {
			band[dst+x] = sampleValue(raw, (r*g.width+x)*bytesPer, g.bits, g.format, p.bo)
		}
	}
	return nil
}

func sampleValue(raw []byte, off, bits int, format uint64, bo binary.ByteOrder) float64 {
	switch bits {
	case 8:
		v := raw[off]
		if format == formatInt {
			return float64(int8(v))
		}
		return float64(v)
	case 16:
		v := bo.Uint16(raw[off:])
		if format == formatInt {
			return float64(int16(v))
		}
		return float64(v)
	case 32:
		v := bo.Uint32(raw[off:])
		switch format {
		case formatFloat:
			return float64(math.Float32frombits(v))
		case formatInt:
			return float64(int32(v))
		default:
			return float64(v)
		}
	case 64:
		return math.Float64frombits(bo.Uint64(raw[off:]))
	}
	return 0
}

// undoHorizontalPredictor reverses per-row horizontal differencing in place.
// Each sample is the delta from the same channel one pixel to the left.
func undoHorizontalPredictor(raw []byte, cols, channels, bytesPer int, bo binary.ByteOrder) {
	rowBytes := cols * channels * bytesPer
	if rowBytes == 0 {
		return
	}
	for rowOff := 0; rowOff+rowBytes <= len(raw); rowOff += rowBytes {
		row := raw[rowOff : rowOff+rowBytes]
		switch bytesPer {
		case 1:
			for i := channels; i < len(row); i++ {
				row[i] += row[i-channels]
			}
		case 2:
			for i := channels; i < cols*channels; i++ {
				v := bo.Uint16(row[i*2:]) + bo.Uint16(row[(i-channels)*2:])
				bo.PutUint16(row[i*2:], v)
			}
		case 4:
			for i := channels; i < cols*channels; i++ {
				v := bo.Uint32(row[i*4:]) + bo.Uint32(row[(i-channels)*4:])
				bo.PutUint32(row[i*4:], v)
			}
		}
	}
}
