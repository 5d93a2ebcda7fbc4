// Command validate performs end-to-end integrity checks on a genmock raster
// bundle: it decodes every GeoTIFF through the engine's own decoder and
// verifies band counts, geo-referencing, cross-raster consistency, day-bit
// encoding, and that dataLayers.json matches the files on disk.
//
// Usage:
//
//	go run ./cmd/validate -dir data/mock
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/helioviz/solar-layer-engine/internal/domain"
	"github.com/helioviz/solar-layer-engine/internal/geotiff"
)

// rasterSpec maps a bundle file to its expected band count.
type rasterSpec struct {
	file  string
	bands int
}

var specs = buildSpecs()

func buildSpecs() []rasterSpec {
	s := []rasterSpec{
		{file: "mask.tif", bands: 1},
		{file: "dsm.tif", bands: 1},
		{file: "rgb.tif", bands: 3},
		{file: "annualFlux.tif", bands: 1},
		{file: "monthlyFlux.tif", bands: 12},
	}
	for month := 1; month <= 12; month++ {
		s = append(s, rasterSpec{file: fmt.Sprintf("hourlyShade_%02d.tif", month), bands: 24})
	}
	return s
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dir := flag.String("dir", "", "directory containing a genmock raster bundle")
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*dir); code != 0 {
		os.Exit(code)
	}
}

func run(dir string) int {
	fmt.Println("=== Mock Raster Bundle Validation ===")
	fmt.Println()

	rasters, err := loadAllRasters(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load rasters: %v\n", err)
		return 1
	}

	manifest, err := loadManifest(filepath.Join(dir, "dataLayers.json"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load dataLayers.json: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateRasterContracts(rasters),
		validateGeoReferencing(rasters),
		validateCrossRaster(rasters),
		validateManifest(manifest, rasters),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rasters: %d files, %d hourly shade months, manifest with %d shade URLs\n",
		len(rasters), 12, len(manifest.HourlyShadeURLs))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func loadAllRasters(dir string) (map[string]*domain.RasterBuffer, error) {
	rasters := make(map[string]*domain.RasterBuffer, len(specs))
	for _, s := range specs {
		data, err := os.ReadFile(filepath.Join(dir, s.file))
		if err != nil {
			return nil, err
		}
		raster, err := geotiff.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.file, err)
		}
		rasters[s.file] = raster
	}
	return rasters, nil
}

func loadManifest(p string) (domain.RasterURLs, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return domain.RasterURLs{}, err
	}
	var urls domain.RasterURLs
	if err := json.Unmarshal(data, &urls); err != nil {
		return domain.RasterURLs{}, err
	}
	return urls, nil
}

// ── Phase 1: Raster Contracts ──
// Band counts and dimensions every raster must satisfy before the loader
// will accept it.

func validateRasterContracts(rasters map[string]*domain.RasterBuffer) *phase {
	p := &phase{name: "Phase 1: Raster Contracts (bands, dims)"}

	mask := rasters["mask.tif"]
	for _, s := range specs {
		r := rasters[s.file]
		if len(r.Bands) != s.bands {
			p.errorf("%s: %d bands, want %d", s.file, len(r.Bands), s.bands)
		}
		if r.Width <= 0 || r.Height <= 0 {
			p.errorf("%s: empty dimensions %dx%d", s.file, r.Width, r.Height)
		}
		if r.Width != mask.Width || r.Height != mask.Height {
			p.errorf("%s: %dx%d does not match mask %dx%d",
				s.file, r.Width, r.Height, mask.Width, mask.Height)
		}
	}

	roof, yard := 0, 0
	for i, v := range mask.Bands[0] {
		switch v {
		case 0:
			yard++
		case 1:
			roof++
		default:
			p.errorf("mask.tif: pixel %d has value %g, want 0 or 1", i, v)
		}
	}
	if roof == 0 {
		p.errorf("mask.tif: no roof pixels")
	}
	if yard == 0 {
		p.errorf("mask.tif: no off-roof pixels")
	}

	for band, vals := range rasters["rgb.tif"].Bands {
		for i, v := range vals {
			if v != math.Trunc(v) || v < 0 || v > 255 {
				p.errorf("rgb.tif: band %d pixel %d has value %g, want integer 0..255", band, i, v)
				break
			}
		}
	}

	return p
}

// ── Phase 2: Geo-Referencing ──
// Every raster must carry a valid WGS84 box, and the bundle must share one
// footprint so the overlays line up on the map.

func validateGeoReferencing(rasters map[string]*domain.RasterBuffer) *phase {
	p := &phase{name: "Phase 2: Geo-Referencing (WGS84 bounds)"}

	ref := rasters["mask.tif"].Bounds
	for _, s := range specs {
		b := rasters[s.file].Bounds
		if !b.Valid() {
			p.errorf("%s: degenerate bounds %+v", s.file, b)
			continue
		}
		if b.North > 90 || b.South < -90 || b.East > 180 || b.West < -180 {
			p.errorf("%s: bounds outside WGS84 range %+v", s.file, b)
		}
		if !boundsEq(b, ref) {
			p.errorf("%s: bounds %+v do not match mask bounds %+v", s.file, b, ref)
		}
	}
	return p
}

// ── Phase 3: Cross-Raster Consistency ──
// The monthly flux bands must sum back to the annual flux, and the hourly
// shade words must carry the mock's uniform day-bit encoding.

func validateCrossRaster(rasters map[string]*domain.RasterBuffer) *phase {
	p := &phase{name: "Phase 3: Cross-Raster Consistency"}

	checkFluxSum(p, rasters)
	for month := 1; month <= 12; month++ {
		checkDayBits(p, fmt.Sprintf("hourlyShade_%02d.tif", month), rasters)
	}
	return p
}

// checkFluxSum verifies the seasonal split: per pixel, the twelve monthly
// values add up to the annual value (within float32 round-trip error).
func checkFluxSum(p *phase, rasters map[string]*domain.RasterBuffer) {
	annual := rasters["annualFlux.tif"].Bands[0]
	monthly := rasters["monthlyFlux.tif"].Bands

	for i, want := range annual {
		sum := 0.0
		for _, band := range monthly {
			sum += band[i]
		}
		if math.Abs(sum-want) > 0.5 {
			p.errorf("pixel %d: monthly flux sums to %g, annual is %g", i, sum, want)
			return
		}
	}
}

// checkDayBits verifies the hourly shade encoding: every word fits uint32,
// and since the mock writes one state for the whole month, each word is
// either fully dark or fully lit. At least one hour of each must exist.
func checkDayBits(p *phase, file string, rasters map[string]*domain.RasterBuffer) {
	lit, dark := 0, 0
	for hour, band := range rasters[file].Bands {
		anyLit := false
		for i, v := range band {
			if v != math.Trunc(v) || v < 0 || v > float64(uint32(0xFFFFFFFF)) {
				p.errorf("%s: hour %d pixel %d value %g is not a 32-bit word", file, hour, i, v)
				return
			}
			switch uint32(int64(v)) {
			case 0:
			case 0xFFFFFFFF:
				anyLit = true
			default:
				p.errorf("%s: hour %d pixel %d word %#x varies by day", file, hour, i, uint32(int64(v)))
				return
			}
		}
		if anyLit {
			lit++
		} else {
			dark++
		}
	}
	if lit == 0 {
		p.errorf("%s: no daylight hours", file)
	}
	if dark == 0 {
		p.errorf("%s: no night hours", file)
	}
}

// ── Phase 4: Manifest Consistency ──
// dataLayers.json must reference exactly the files on disk, with one hourly
// shade source per calendar month.

func validateManifest(urls domain.RasterURLs, rasters map[string]*domain.RasterBuffer) *phase {
	p := &phase{name: "Phase 4: Manifest Consistency (dataLayers.json)"}

	named := map[string]string{
		"maskUrl":        urls.MaskURL,
		"dsmUrl":         urls.DSMURL,
		"rgbUrl":         urls.RGBURL,
		"annualFluxUrl":  urls.AnnualFluxURL,
		"monthlyFluxUrl": urls.MonthlyFluxURL,
	}
	for field, raw := range named {
		checkURL(p, field, raw, rasters)
	}

	if len(urls.HourlyShadeURLs) != 12 {
		p.errorf("hourlyShadeUrls has %d entries, want 12", len(urls.HourlyShadeURLs))
		return p
	}
	for month := 1; month <= 12; month++ {
		raw, err := urls.HourlyShadeURL(month)
		if err != nil {
			p.errorf("month %d: %v", month, err)
			continue
		}
		file := checkURL(p, fmt.Sprintf("hourlyShadeUrls[%d]", month-1), raw, rasters)
		want := fmt.Sprintf("hourlyShade_%02d.tif", month)
		if file != "" && file != want {
			p.errorf("month %d: manifest points at %s, want %s", month, file, want)
		}
	}
	return p
}

// checkURL parses a manifest URL and confirms it names a decoded raster.
// Returns the file basename, or "" when the check failed.
func checkURL(p *phase, field, raw string, rasters map[string]*domain.RasterBuffer) string {
	if raw == "" {
		p.errorf("%s is empty", field)
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		p.errorf("%s: %v", field, err)
		return ""
	}
	file := path.Base(u.Path)
	if _, ok := rasters[file]; !ok {
		p.errorf("%s: %s not present in bundle directory", field, file)
		return ""
	}
	return file
}

// ── Helpers ──

func boundsEq(a, b domain.Bounds) bool {
	const eps = 1e-9
	return math.Abs(a.North-b.North) < eps &&
		math.Abs(a.South-b.South) < eps &&
		math.Abs(a.East-b.East) < eps &&
		math.Abs(a.West-b.West) < eps
}
