package layers

import (
	"context"
	"log/slog"
	"sync"

	"github.com/helioviz/solar-layer-engine/internal/domain"
	"github.com/helioviz/solar-layer-engine/internal/observability"
)

// Preloader is the cache-through front of the loader. It serves layers from
// the cache, deduplicates concurrent loads of the same key, and supports the
// showcase's two preload passes: the eager preload-all at session start and
// the per-step look-ahead prefetch.
type Preloader struct {
	loader       *Loader
	cache        *Cache
	urls         domain.RasterURLs
	daylightOnly bool
	logger       *slog.Logger
	metrics      *observability.Metrics

	mu       sync.Mutex
	inflight map[Key]*inflightLoad
}

type inflightLoad struct {
	done  chan struct{}
	layer domain.Layer
	err   error
}

// NewPreloader creates a Preloader for one building's raster bundle.
func NewPreloader(loader *Loader, cache *Cache, urls domain.RasterURLs, daylightOnly bool, logger *slog.Logger, metrics *observability.Metrics) *Preloader {
	return &Preloader{
		loader:       loader,
		cache:        cache,
		urls:         urls,
		daylightOnly: daylightOnly,
		logger:       logger,
		metrics:      metrics,
		inflight:     make(map[Key]*inflightLoad),
	}
}

// Get returns the layer for key, loading it on a cache miss. Concurrent
// callers for the same key share one load; the same key is never fetched
// twice at once.
func (p *Preloader) Get(ctx context.Context, key Key) (domain.Layer, error) {
	if layer, ok := p.cache.Get(key); ok {
		p.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return layer, nil
	}
	p.metrics.CacheLookups.WithLabelValues("miss").Inc()

	p.mu.Lock()
	if fl, ok := p.inflight[key]; ok {
		p.mu.Unlock()
		select {
		case <-fl.done:
			return fl.layer, fl.err
		case <-ctx.Done():
			return domain.Layer{}, ctx.Err()
		}
	}
	fl := &inflightLoad{done: make(chan struct{})}
	p.inflight[key] = fl
	p.mu.Unlock()

	fl.layer, fl.err = p.loader.Load(ctx, key.ID, p.urls, Options{
		DayOfYear:    key.DayOfYear,
		DaylightOnly: p.daylightOnly,
	})
	if fl.err == nil {
		p.cache.Put(key, fl.layer)
	}

	p.mu.Lock()
	delete(p.inflight, key)
	p.mu.Unlock()
	close(fl.done)

	return fl.layer, fl.err
}

// Prefetch starts a background load for key unless it is already cached or
// in flight. Failures are discarded; the consumer will load on demand when
// the step is reached. The load outlives ctx cancellation: an aborted
// session may no longer want the layer, but finishing the write into the
// cache is idempotent and safe.
func (p *Preloader) Prefetch(ctx context.Context, key Key) {
	if _, ok := p.cache.Get(key); ok {
		return
	}
	p.mu.Lock()
	_, busy := p.inflight[key]
	p.mu.Unlock()
	if busy {
		return
	}

	go func() {
		if _, err := p.Get(context.WithoutCancel(ctx), key); err != nil {
			p.metrics.PreloadFailures.Inc()
			p.logger.Debug("look-ahead preload failed", "key", key.String(), "error", err)
		}
	}()
}

// PreloadAll loads every key in parallel, tolerating individual failures: a
// failed slot stays empty and the showcase degrades gracefully. It returns
// when every load has settled.
func (p *Preloader) PreloadAll(ctx context.Context, keys []Key) {
	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(key Key) {
			defer wg.Done()
			if _, err := p.Get(ctx, key); err != nil {
				p.metrics.PreloadFailures.Inc()
				p.logger.Warn("eager preload failed", "key", key.String(), "error", err)
			}
		}(key)
	}
	wg.Wait()
}
