package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// layer engine and showcase orchestrator.
type Metrics struct {
	RastersFetched prometheus.Counter
	FetchErrors    prometheus.Counter
	DecodeErrors   prometheus.Counter

	LayersLoaded      *prometheus.CounterVec   // labels: layer
	LayerLoadDuration *prometheus.HistogramVec // labels: layer
	CacheLookups      *prometheus.CounterVec   // labels: result={hit,miss}
	PreloadFailures   prometheus.Counter

	ShowcaseRuns      prometheus.Counter
	ShowcaseCompleted prometheus.Counter
	ShowcaseAborted   prometheus.Counter
	StepsSkipped      prometheus.Counter
	ActiveSessions    prometheus.Gauge
}

// NewMetrics creates and registers all engine metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RastersFetched,
		m.FetchErrors,
		m.DecodeErrors,
		m.LayersLoaded,
		m.LayerLoadDuration,
		m.CacheLookups,
		m.PreloadFailures,
		m.ShowcaseRuns,
		m.ShowcaseCompleted,
		m.ShowcaseAborted,
		m.StepsSkipped,
		m.ActiveSessions,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RastersFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solar_engine",
			Name:      "rasters_fetched_total",
			Help:      "Total rasters fetched and decoded successfully.",
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solar_engine",
			Name:      "fetch_errors_total",
			Help:      "Total raster fetch failures (transport or non-2xx).",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solar_engine",
			Name:      "decode_errors_total",
			Help:      "Total raster decode failures.",
		}),
		LayersLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solar_engine",
			Name:      "layers_loaded_total",
			Help:      "Layers loaded successfully, by layer type.",
		}, []string{"layer"}),
		LayerLoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "solar_engine",
			Name:      "layer_load_duration_seconds",
			Help:      "Duration of a complete layer fetch, decode, and render.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"layer"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solar_engine",
			Name:      "layer_cache_lookups_total",
			Help:      "Layer cache lookups by result.",
		}, []string{"result"}),
		PreloadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solar_engine",
			Name:      "preload_failures_total",
			Help:      "Preload attempts that failed; the showcase degrades gracefully.",
		}),
		ShowcaseRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solar_engine",
			Name:      "showcase_runs_total",
			Help:      "Showcase sessions started.",
		}),
		ShowcaseCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solar_engine",
			Name:      "showcase_completed_total",
			Help:      "Showcase sessions that reached the final step.",
		}),
		ShowcaseAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solar_engine",
			Name:      "showcase_aborted_total",
			Help:      "Showcase sessions aborted before completion.",
		}),
		StepsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solar_engine",
			Name:      "showcase_steps_skipped_total",
			Help:      "Steps skipped because their layer failed to load.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "solar_engine",
			Name:      "showcase_active_sessions",
			Help:      "1 while a showcase session is live, 0 otherwise.",
		}),
	}
}
