// Command genmock synthesizes a complete mock raster bundle for local
// development and tests: one GeoTIFF per layer plus a dataLayers.json
// response, written with the same encoder the decoder tests use. With -serve
// it also serves the bundle over HTTP so the engine can run end to end
// against it.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock
//	go run ./cmd/genmock -out data/mock -serve :8090
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"

	"github.com/helioviz/solar-layer-engine/internal/domain"
	"github.com/helioviz/solar-layer-engine/internal/geotiff"
)

const (
	size   = 64 // pixels per side
	epsg   = 4326
	west   = -122.09000
	north  = 37.42000
	pxSize = 0.00001 // degrees per pixel
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory for the mock bundle")
	baseURL := flag.String("base-url", "http://localhost:8090", "URL prefix recorded in dataLayers.json")
	serve := flag.String("serve", "", "if set, serve the bundle on this address after generating")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}

	rasters := map[string]geotiff.Raster{
		"mask.tif":       maskRaster(),
		"dsm.tif":        dsmRaster(),
		"rgb.tif":        rgbRaster(),
		"annualFlux.tif": annualFluxRaster(),
	}
	urls := domain.RasterURLs{
		MaskURL:       *baseURL + "/mask.tif",
		DSMURL:        *baseURL + "/dsm.tif",
		RGBURL:        *baseURL + "/rgb.tif",
		AnnualFluxURL: *baseURL + "/annualFlux.tif",
	}

	monthly := monthlyFluxRaster()
	rasters["monthlyFlux.tif"] = monthly
	urls.MonthlyFluxURL = *baseURL + "/monthlyFlux.tif"

	for month := 1; month <= 12; month++ {
		name := fmt.Sprintf("hourlyShade_%02d.tif", month)
		rasters[name] = hourlyShadeRaster(month)
		urls.HourlyShadeURLs = append(urls.HourlyShadeURLs, *baseURL+"/"+name)
	}

	for name, r := range rasters {
		if err := writeRaster(filepath.Join(*out, name), r); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	log.Printf("wrote %d rasters to %s", len(rasters), *out)

	// The dataLayers.json mirrors the provider's dataLayers:get response so
	// the engine can point SOLAR_BASE_URL at the mock server unchanged.
	response := map[string]any{
		"imageryQuality":  "HIGH",
		"maskUrl":         urls.MaskURL,
		"dsmUrl":          urls.DSMURL,
		"rgbUrl":          urls.RGBURL,
		"annualFluxUrl":   urls.AnnualFluxURL,
		"monthlyFluxUrl":  urls.MonthlyFluxURL,
		"hourlyShadeUrls": urls.HourlyShadeURLs,
	}
	data, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(*out, "dataLayers.json"), data, 0o600); err != nil {
		return err
	}
	log.Printf("wrote dataLayers.json")

	if *serve != "" {
		log.Printf("serving %s on %s", *out, *serve)
		return http.ListenAndServe(*serve, http.FileServer(http.Dir(*out)))
	}
	return nil
}

func writeRaster(path string, r geotiff.Raster) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := geotiff.Encode(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func base() geotiff.Raster {
	return geotiff.Raster{
		Width:   size,
		Height:  size,
		EPSG:    epsg,
		OriginX: west,
		OriginY: north,
		ScaleX:  pxSize,
		ScaleY:  pxSize,
	}
}

// onRoof is a centered disc covering most of the tile, standing in for the
// building footprint.
func onRoof(x, y int) bool {
	c := float64(size)/2 - 0.5
	dx, dy := float64(x)-c, float64(y)-c
	return math.Sqrt(dx*dx+dy*dy) < float64(size)*0.4
}

func maskRaster() geotiff.Raster {
	r := base()
	r.BitsPerSample = 8
	r.SampleFormat = geotiff.FormatUint
	band := make([]float64, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if onRoof(x, y) {
				band[y*size+x] = 1
			}
		}
	}
	r.Bands = [][]float64{band}
	return r
}

// dsmRaster slopes from 10m at the south edge to 18m at the north, a gabled
// roof seen from above.
func dsmRaster() geotiff.Raster {
	r := base()
	r.BitsPerSample = 32
	r.SampleFormat = geotiff.FormatFloat
	band := make([]float64, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			band[y*size+x] = 10 + 8*float64(size-1-y)/float64(size-1)
		}
	}
	r.Bands = [][]float64{band}
	return r
}

func rgbRaster() geotiff.Raster {
	r := base()
	r.BitsPerSample = 8
	r.SampleFormat = geotiff.FormatUint
	red := make([]float64, size*size)
	green := make([]float64, size*size)
	blue := make([]float64, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := y*size + x
			if onRoof(x, y) {
				red[i], green[i], blue[i] = 120, 110, 100 // roof gray
			} else {
				red[i], green[i], blue[i] = 60, 130, 60 // yard green
			}
		}
	}
	r.Bands = [][]float64{red, green, blue}
	return r
}

// annualFluxRaster peaks at the tile center and falls off toward the edges.
func annualFluxRaster() geotiff.Raster {
	r := base()
	r.BitsPerSample = 32
	r.SampleFormat = geotiff.FormatFloat
	band := make([]float64, size*size)
	c := float64(size) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)-c, float64(y)-c
			d := math.Sqrt(dx*dx+dy*dy) / c
			band[y*size+x] = 1700 * (1 - 0.6*d)
		}
	}
	r.Bands = [][]float64{band}
	return r
}

// monthlyFluxRaster scales the annual pattern by a seasonal curve peaking in
// June.
func monthlyFluxRaster() geotiff.Raster {
	annual := annualFluxRaster()
	r := base()
	r.BitsPerSample = 32
	r.SampleFormat = geotiff.FormatFloat
	for month := 0; month < 12; month++ {
		season := 0.5 + 0.5*math.Cos(2*math.Pi*float64(month-5)/12)
		band := make([]float64, size*size)
		for i, v := range annual.Bands[0] {
			band[i] = v / 12 * (0.4 + 1.2*season)
		}
		r.Bands = append(r.Bands, band)
	}
	return r
}

// hourlyShadeRaster encodes one band per hour of the day. Each pixel's value
// is a bit field over the days of the month, bit (day-1) set when the pixel
// is sunlit that day at that hour; the mock sets the same state for every
// day. Daylight hours widen toward June, and a shadow creeps across the tile
// from the east in the morning to the west in the evening.
func hourlyShadeRaster(month int) geotiff.Raster {
	r := base()
	r.BitsPerSample = 32
	r.SampleFormat = geotiff.FormatUint

	season := 0.5 + 0.5*math.Cos(2*math.Pi*float64(month-6)/12)
	sunrise := 8.0 - 2.5*season
	sunset := 16.0 + 3.5*season

	for hour := 0; hour < 24; hour++ {
		band := make([]float64, size*size)
		h := float64(hour)
		if h >= sunrise && h <= sunset {
			// Shadow edge sweeps west to east over the day.
			frac := (h - sunrise) / (sunset - sunrise)
			shadowEdge := int(frac * float64(size))
			for y := 0; y < size; y++ {
				for x := 0; x < size; x++ {
					lit := x < shadowEdge || h > 10 && h < 15
					if lit {
						band[y*size+x] = float64(uint32(0xFFFFFFFF))
					}
				}
			}
		}
		r.Bands = append(r.Bands, band)
	}
	return r
}
