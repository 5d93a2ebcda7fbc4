package geotiff

import (
	"math"

	"github.com/helioviz/solar-layer-engine/internal/domain"
	"github.com/wroge/wgs84"
)

// GeoKey IDs from the GeoTIFF key directory.
const (
	keyGTModelType    = 1024
	keyGTRasterType   = 1025
	keyGeographicType = 2048
	keyProjectedCS    = 3072
)

const (
	modelTypeProjected  = 1
	modelTypeGeographic = 2

	epsgWGS84       = 4326
	epsgUserDefined = 32767
)

// bounds derives the raster's WGS84 bounding box from the geo-referencing
// tags. Missing tags, an unresolvable geokey directory, or an EPSG code the
// reprojection table does not know are all hard decode errors; there is no
// fallback positioning for a map overlay.
func (p *parser) bounds(width, height int) (domain.Bounds, error) {
	scale := p.doubles(tagModelPixelScale)
	tie := p.doubles(tagModelTiepoint)
	dir := p.uints(tagGeoKeyDirectory)
	if len(scale) < 2 || len(tie) < 6 || len(dir) < 4 {
		return domain.Bounds{}, errDecode("missing geo-referencing tags")
	}

	code, err := epsgFromGeoKeys(dir)
	if err != nil {
		return domain.Bounds{}, err
	}

	// The tiepoint maps raster point (i,j) to model point (x,y); the provider
	// anchors the top-left corner.
	west := tie[3] - tie[0]*scale[0]
	north := tie[4] + tie[1]*scale[1]
	east := west + scale[0]*float64(width)
	south := north - scale[1]*float64(height)

	return reprojectBounds(code, west, south, east, north)
}

func epsgFromGeoKeys(dir []uint64) (int, error) {
	// Directory header: version, key revision, minor revision, key count.
	n := int(dir[3])
	modelType, geographic, projected := -1, -1, -1
	for i := 0; i < n; i++ {
		base := 4 + i*4
		if base+3 >= len(dir) {
			break
		}
		keyID, loc, count, val := dir[base], dir[base+1], dir[base+2], dir[base+3]
		if loc != 0 || count != 1 {
			continue // value stored outside the directory, not a code we read
		}
		switch keyID {
		case keyGTModelType:
			modelType = int(val)
		case keyGeographicType:
			geographic = int(val)
		case keyProjectedCS:
			projected = int(val)
		}
	}

	switch modelType {
	case modelTypeProjected:
		if projected <= 0 || projected == epsgUserDefined {
			return 0, errDecode("missing or user-defined ProjectedCSTypeGeoKey")
		}
		return projected, nil
	case modelTypeGeographic:
		if geographic <= 0 || geographic == epsgUserDefined {
			return 0, errDecode("missing or user-defined GeographicTypeGeoKey")
		}
		return geographic, nil
	default:
		return 0, errDecode("missing or unsupported GTModelTypeGeoKey")
	}
}

// reprojectBounds maps the four native corners into WGS84 and takes the
// enclosing box, so projections that rotate axes still yield a valid extent.
func reprojectBounds(code int, west, south, east, north float64) (domain.Bounds, error) {
	if code == epsgWGS84 {
		b := domain.Bounds{North: north, South: south, East: east, West: west}
		if !b.Valid() {
			return domain.Bounds{}, errDecode("degenerate WGS84 bounds")
		}
		return b, nil
	}

	crs := wgs84.EPSG().Code(code)
	if crs == nil {
		return domain.Bounds{}, errDecode("unsupported EPSG code %d", code)
	}
	toLonLat := wgs84.Transform(crs, wgs84.LonLat())

	corners := [4][2]float64{
		{west, south}, {west, north}, {east, south}, {east, north},
	}
	minLon, minLat := math.Inf(1), math.Inf(1)
	maxLon, maxLat := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		lon, lat, _ := toLonLat(c[0], c[1], 0)
		if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
			return domain.Bounds{}, errDecode("reprojection from EPSG %d failed", code)
		}
		minLon = math.Min(minLon, lon)
		maxLon = math.Max(maxLon, lon)
		minLat = math.Min(minLat, lat)
		maxLat = math.Max(maxLat, lat)
	}

	b := domain.Bounds{North: maxLat, South: minLat, East: maxLon, West: minLon}
	if !b.Valid() {
		return domain.Bounds{}, errDecode("degenerate bounds after reprojection from EPSG %d", code)
	}
	return b, nil
}
