// Package layers assembles displayable layers from provider rasters: it
// fetches and decodes the GeoTIFFs a layer needs (concurrently, all or
// nothing), applies the layer's palette rule, and hands back a validated
// frame sequence. A bounded FIFO cache plus a preloader sit in front of the
// loader so the showcase never fetches the same layer twice.
package layers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/helioviz/solar-layer-engine/internal/domain"
	"github.com/helioviz/solar-layer-engine/internal/geotiff"
	"github.com/helioviz/solar-layer-engine/internal/observability"
	"github.com/helioviz/solar-layer-engine/internal/render"
)

// Fixed display ranges for the flux layers. Monthly frames share one range
// so frame-to-frame comparison stays visually consistent.
const (
	annualFluxMax  = 1800 // kWh/kW/year
	monthlyFluxMax = 200  // kWh/kW/month
)

// Daylight-only hourly shade covers 05:00 through 20:00.
const (
	daylightFirstHour = 5
	daylightLastHour  = 20
	hoursPerDay       = 24
)

// Fetcher retrieves raw raster bytes. Implemented by solarapi.Client.
type Fetcher interface {
	FetchRaster(ctx context.Context, url string) ([]byte, error)
}

// Options select the variant of a layer load.
type Options struct {
	DayOfYear    int  // hourlyShade only
	DaylightOnly bool // hourlyShade: render 16 daylight hours instead of 24
}

// Loader builds layers from provider rasters.
type Loader struct {
	fetcher Fetcher
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
}

// NewLoader creates a Loader.
func NewLoader(fetcher Fetcher, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	return &Loader{fetcher: fetcher, logger: logger, metrics: metrics}
}

// CheckReadiness returns nil once at least one layer has loaded end to end.
func (l *Loader) CheckReadiness(_ context.Context) error {
	if !l.ready.Load() {
		return errors.New("no layer has been loaded yet")
	}
	return nil
}

// Load fetches, decodes, and renders one layer. Every raster the layer needs
// is fetched concurrently and the layer is only returned once all of them
// resolved; a single failure fails the whole load.
func (l *Loader) Load(ctx context.Context, id domain.LayerID, urls domain.RasterURLs, opts Options) (domain.Layer, error) {
	start := time.Now()

	var (
		layer domain.Layer
		err   error
	)
	switch id {
	case domain.LayerMask:
		layer, err = l.loadMask(ctx, urls)
	case domain.LayerDSM:
		layer, err = l.loadDSM(ctx, urls)
	case domain.LayerRGB:
		layer, err = l.loadRGB(ctx, urls)
	case domain.LayerAnnualFlux:
		layer, err = l.loadAnnualFlux(ctx, urls)
	case domain.LayerMonthlyFlux:
		layer, err = l.loadMonthlyFlux(ctx, urls)
	case domain.LayerHourlyShade:
		layer, err = l.loadHourlyShade(ctx, urls, opts)
	default:
		return domain.Layer{}, fmt.Errorf("unknown layer id %q", id)
	}
	if err != nil {
		return domain.Layer{}, fmt.Errorf("load layer %s: %w", id, err)
	}

	l.ready.Store(true)
	l.metrics.LayersLoaded.WithLabelValues(string(id)).Inc()
	l.metrics.LayerLoadDuration.WithLabelValues(string(id)).Observe(time.Since(start).Seconds())
	l.logger.Debug("layer loaded", "layer", id, "frames", len(layer.Frames), "duration", time.Since(start))
	return layer, nil
}

func (l *Loader) loadMask(ctx context.Context, urls domain.RasterURLs) (domain.Layer, error) {
	mask, err := l.fetchRaster(ctx, urls.MaskURL)
	if err != nil {
		return domain.Layer{}, err
	}
	// The mask clips itself, so off-roof pixels are transparent rather
	// than painted with the zero color.
	img, err := render.Binary(mask, mask, 0, render.BinaryPalette)
	if err != nil {
		return domain.Layer{}, err
	}
	return domain.NewLayer(domain.LayerMask, mask.Bounds,
		[]domain.RenderedFrame{{Image: img, Bounds: mask.Bounds}},
		&domain.PaletteDescription{Colors: render.BinaryPalette, MinLabel: "No roof", MaxLabel: "Roof"})
}

func (l *Loader) loadDSM(ctx context.Context, urls domain.RasterURLs) (domain.Layer, error) {
	dsm, mask, err := l.fetchPair(ctx, urls.DSMURL, urls.MaskURL)
	if err != nil {
		return domain.Layer{}, err
	}
	lo, hi := render.AutoRange(dsm.Bands[0])
	img, err := render.Palette(render.PaletteOptions{
		Data: dsm, Mask: mask, Colors: render.RainbowPalette, Min: &lo, Max: &hi,
	})
	if err != nil {
		return domain.Layer{}, err
	}
	return domain.NewLayer(domain.LayerDSM, dsm.Bounds,
		[]domain.RenderedFrame{{Image: img, Bounds: dsm.Bounds}},
		&domain.PaletteDescription{
			Colors:   render.RainbowPalette,
			MinLabel: fmt.Sprintf("%.1f m", lo),
			MaxLabel: fmt.Sprintf("%.1f m", hi),
		})
}

func (l *Loader) loadRGB(ctx context.Context, urls domain.RasterURLs) (domain.Layer, error) {
	rgb, mask, err := l.fetchPair(ctx, urls.RGBURL, urls.MaskURL)
	if err != nil {
		return domain.Layer{}, err
	}
	img, err := render.RGB(rgb, mask)
	if err != nil {
		return domain.Layer{}, err
	}
	return domain.NewLayer(domain.LayerRGB, rgb.Bounds,
		[]domain.RenderedFrame{{Image: img, Bounds: rgb.Bounds}}, nil)
}

func (l *Loader) loadAnnualFlux(ctx context.Context, urls domain.RasterURLs) (domain.Layer, error) {
	flux, mask, err := l.fetchPair(ctx, urls.AnnualFluxURL, urls.MaskURL)
	if err != nil {
		return domain.Layer{}, err
	}
	lo, hi := 0.0, float64(annualFluxMax)
	img, err := render.Palette(render.PaletteOptions{
		Data: flux, Mask: mask, Colors: render.IronPalette, Min: &lo, Max: &hi,
	})
	if err != nil {
		return domain.Layer{}, err
	}
	return domain.NewLayer(domain.LayerAnnualFlux, flux.Bounds,
		[]domain.RenderedFrame{{Image: img, Bounds: flux.Bounds}},
		&domain.PaletteDescription{Colors: render.IronPalette, MinLabel: "Shady", MaxLabel: "Sunny"})
}

func (l *Loader) loadMonthlyFlux(ctx context.Context, urls domain.RasterURLs) (domain.Layer, error) {
	flux, mask, err := l.fetchPair(ctx, urls.MonthlyFluxURL, urls.MaskURL)
	if err != nil {
		return domain.Layer{}, err
	}
	if len(flux.Bands) < 12 {
		return domain.Layer{}, &domain.DecodeError{
			Reason: fmt.Sprintf("monthly flux raster has %d bands, want 12", len(flux.Bands)),
		}
	}
	lo, hi := 0.0, float64(monthlyFluxMax)
	frames := make([]domain.RenderedFrame, 0, 12)
	for month := 0; month < 12; month++ {
		img, err := render.Palette(render.PaletteOptions{
			Data: flux, Mask: mask, Colors: render.IronPalette, Min: &lo, Max: &hi, Band: month,
		})
		if err != nil {
			return domain.Layer{}, err
		}
		frames = append(frames, domain.RenderedFrame{Image: img, Bounds: flux.Bounds})
	}
	return domain.NewLayer(domain.LayerMonthlyFlux, flux.Bounds, frames,
		&domain.PaletteDescription{Colors: render.IronPalette, MinLabel: "Shady", MaxLabel: "Sunny"})
}

func (l *Loader) loadHourlyShade(ctx context.Context, urls domain.RasterURLs, opts Options) (domain.Layer, error) {
	month, day := domain.DayOfYearToMonthDay(opts.DayOfYear)
	shadeURL, err := urls.HourlyShadeURL(month)
	if err != nil {
		return domain.Layer{}, &domain.DecodeError{Reason: err.Error()}
	}
	shade, mask, err := l.fetchPair(ctx, shadeURL, urls.MaskURL)
	if err != nil {
		return domain.Layer{}, err
	}
	if len(shade.Bands) < hoursPerDay {
		// A partial hour set cannot animate smoothly; fail the whole layer.
		return domain.Layer{}, &domain.DecodeError{
			Reason: fmt.Sprintf("hourly shade raster has %d bands, want %d", len(shade.Bands), hoursPerDay),
		}
	}

	firstHour, lastHour := 0, hoursPerDay-1
	if opts.DaylightOnly {
		firstHour, lastHour = daylightFirstHour, daylightLastHour
	}
	frames := make([]domain.RenderedFrame, 0, lastHour-firstHour+1)
	for hour := firstHour; hour <= lastHour; hour++ {
		band, err := shade.Band(hour)
		if err != nil {
			return domain.Layer{}, &domain.DecodeError{Reason: "missing hour band", Err: err}
		}
		bits := shade.NewSingleBand(domain.DecodeDayBits(band, day))
		img, err := render.Binary(bits, mask, 0, render.SunlightPalette)
		if err != nil {
			return domain.Layer{}, err
		}
		frames = append(frames, domain.RenderedFrame{Image: img, Bounds: shade.Bounds})
	}
	return domain.NewLayer(domain.LayerHourlyShade, shade.Bounds, frames,
		&domain.PaletteDescription{Colors: render.SunlightPalette, MinLabel: "Shade", MaxLabel: "Sun"})
}

// fetchPair retrieves a data raster and the clipping mask concurrently.
// Either failure fails the pair; a partial layer is never returned.
func (l *Loader) fetchPair(ctx context.Context, dataURL, maskURL string) (data, mask *domain.RasterBuffer, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		data, err = l.fetchRaster(gctx, dataURL)
		return err
	})
	g.Go(func() error {
		var err error
		mask, err = l.fetchRaster(gctx, maskURL)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return data, mask, nil
}

func (l *Loader) fetchRaster(ctx context.Context, url string) (*domain.RasterBuffer, error) {
	if url == "" {
		return nil, &domain.FetchError{URL: url, Err: errors.New("no source url")}
	}
	data, err := l.fetcher.FetchRaster(ctx, url)
	if err != nil {
		l.metrics.FetchErrors.Inc()
		return nil, err
	}
	raster, err := geotiff.Decode(data)
	if err != nil {
		l.metrics.DecodeErrors.Inc()
		return nil, err
	}
	l.metrics.RastersFetched.Inc()
	return raster, nil
}
