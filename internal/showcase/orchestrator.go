package showcase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/helioviz/solar-layer-engine/internal/domain"
	"github.com/helioviz/solar-layer-engine/internal/layers"
	"github.com/helioviz/solar-layer-engine/internal/observability"
)

// Status is the orchestrator's session state. Transitions are
// Idle → Preloading → Running → Completed, with Aborted reachable from
// Preloading and Running. Completed and Aborted are terminal.
type Status int

const (
	StatusIdle Status = iota
	StatusPreloading
	StatusRunning
	StatusCompleted
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPreloading:
		return "preloading"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// LayerSource provides showcase layers: cache-checked loads, the eager
// preload pass, and look-ahead prefetching. Implemented by layers.Preloader.
type LayerSource interface {
	Get(ctx context.Context, key layers.Key) (domain.Layer, error)
	Prefetch(ctx context.Context, key layers.Key)
	PreloadAll(ctx context.Context, keys []layers.Key)
}

// MapSurface is the external map rendering surface. The orchestrator
// guarantees at most one installed overlay at any time: it retires the
// previous overlay before installing the next.
type MapSurface interface {
	SetOverlay(frame domain.RenderedFrame)
	SetOverlayVisible(visible bool)
	ClearOverlay()
}

// Observer receives session callbacks. Completed fires exactly once per
// session and never after an abort.
type Observer interface {
	StepChanged(index int, step Step)
	ProgressUpdated(overall, step float64)
	Completed()
}

// Observers fans callbacks out to multiple observers.
type Observers []Observer

func (os Observers) StepChanged(index int, step Step) {
	for _, o := range os {
		o.StepChanged(index, step)
	}
}

func (os Observers) ProgressUpdated(overall, step float64) {
	for _, o := range os {
		o.ProgressUpdated(overall, step)
	}
}

func (os Observers) Completed() {
	for _, o := range os {
		o.Completed()
	}
}

// Config carries the script and timing knobs. Zero values take defaults.
type Config struct {
	Script []Step

	ToggleInterval       time.Duration // default 1s
	ToggleFlips          int           // default 8 (four full on/off cycles, ends visible)
	MonthlyFrameInterval time.Duration // default 334ms, ≈3 months per second
	HourlyFrameInterval  time.Duration // default 1s, one simulated hour per second
	ProgressInterval     time.Duration // default 100ms
	PreloadTimeout       time.Duration // default 20s, then proceed with whatever loaded
	CompletionHold       time.Duration // default 1500ms, final frame stays visible
}

func (c *Config) applyDefaults() {
	if len(c.Script) == 0 {
		c.Script = DefaultScript()
	}
	if c.ToggleInterval <= 0 {
		c.ToggleInterval = time.Second
	}
	if c.ToggleFlips <= 0 {
		c.ToggleFlips = 8
	}
	if c.MonthlyFrameInterval <= 0 {
		c.MonthlyFrameInterval = 334 * time.Millisecond
	}
	if c.HourlyFrameInterval <= 0 {
		c.HourlyFrameInterval = time.Second
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = 100 * time.Millisecond
	}
	if c.PreloadTimeout <= 0 {
		c.PreloadTimeout = 20 * time.Second
	}
	if c.CompletionHold <= 0 {
		c.CompletionHold = 1500 * time.Millisecond
	}
}

// Orchestrator runs one showcase session. It is single-use: once the session
// reaches Completed or Aborted a new Orchestrator is needed for another run.
type Orchestrator struct {
	source  LayerSource
	surface MapSurface
	obs     Observer
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	cfg     Config

	mu         sync.Mutex
	status     Status
	stepActive bool
	cancel     context.CancelFunc

	done chan struct{} // closed when the run loop exits
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock injects the time source; tests pass a fake clock.
func WithClock(c clockwork.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithConfig overrides the script and timing defaults.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// New creates an Orchestrator in the Idle state.
func New(source LayerSource, surface MapSurface, obs Observer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:  source,
		surface: surface,
		obs:     obs,
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
		metrics: observability.NewMetricsForTesting(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.cfg.applyDefaults()
	return o
}

// Status reports the current session state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Done is closed when the session has finished, completed or aborted.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// Start begins the session: eager preload, then the step sequence. Calling
// Start on a session that is not Idle is a no-op.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.status != StatusIdle {
		status := o.status
		o.mu.Unlock()
		o.logger.Info("showcase start ignored", "status", status.String())
		return
	}
	o.status = StatusPreloading
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.mu.Unlock()

	o.metrics.ShowcaseRuns.Inc()
	o.metrics.ActiveSessions.Set(1)
	o.logger.Info("showcase starting", "steps", len(o.cfg.Script))

	go o.run(runCtx)
}

// Abort cancels the session: all pending timers stop, in-flight loads are
// discarded, and the completion callback never fires. Safe to call multiple
// times and at any state; only a live session changes state.
func (o *Orchestrator) Abort() {
	o.mu.Lock()
	if o.status != StatusPreloading && o.status != StatusRunning {
		o.mu.Unlock()
		return
	}
	o.status = StatusAborted
	cancel := o.cancel
	o.mu.Unlock()

	o.metrics.ShowcaseAborted.Inc()
	o.logger.Info("showcase aborted")
	if cancel != nil {
		cancel()
	}
}

func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.done)
	defer o.metrics.ActiveSessions.Set(0)

	// Eager preload of every layer the script needs, bounded: after the
	// timeout the showcase proceeds with whatever is cached and loads the
	// rest on demand.
	preloaded := make(chan struct{})
	go func() {
		o.source.PreloadAll(ctx, scriptKeys(o.cfg.Script))
		close(preloaded)
	}()
	select {
	case <-preloaded:
	case <-o.clock.After(o.cfg.PreloadTimeout):
		o.logger.Warn("preload timed out, proceeding with partial cache")
	case <-ctx.Done():
		o.markAborted()
		return
	}

	if !o.transition(StatusPreloading, StatusRunning) {
		return // aborted during preload
	}

	for i := range o.cfg.Script {
		if ctx.Err() != nil {
			o.markAborted()
			return
		}
		o.runStep(ctx, i)
	}

	o.complete(ctx)
}

// runStep displays one step: load (cache-checked), overlay swap, optional
// toggle flash, then timed animation and progress. A load failure skips the
// step; the sequence always moves forward.
func (o *Orchestrator) runStep(ctx context.Context, i int) {
	o.mu.Lock()
	if o.stepActive {
		o.mu.Unlock()
		o.logger.Warn("step blocked, another step is in progress", "step", i)
		return
	}
	o.stepActive = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.stepActive = false
		o.mu.Unlock()
	}()

	step := o.cfg.Script[i]
	layer, err := o.source.Get(ctx, step.Key())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		o.metrics.StepsSkipped.Inc()
		o.logger.Warn("skipping step, layer unavailable",
			"step", i, "layer", step.Layer, "error", err)
		return
	}

	// Warm the next step's layer while this one is on screen.
	if i+1 < len(o.cfg.Script) {
		o.source.Prefetch(ctx, o.cfg.Script[i+1].Key())
	}

	if !o.alive(ctx) {
		return
	}
	// Retire the previous overlay before installing the new one; exactly one
	// overlay exists at any instant.
	o.surface.ClearOverlay()
	o.surface.SetOverlay(layer.Frames[0])
	o.surface.SetOverlayVisible(true)
	o.obs.StepChanged(i, step)
	o.logger.Debug("step started", "step", i, "layer", step.Layer, "frames", len(layer.Frames))

	if step.Toggle {
		o.toggleOverlay(ctx)
	}
	o.animate(ctx, i, step, layer)
}

// toggleOverlay flips overlay visibility a fixed even number of times at the
// toggle interval, ending visible.
func (o *Orchestrator) toggleOverlay(ctx context.Context) {
	visible := true
	for f := 0; f < o.cfg.ToggleFlips; f++ {
		select {
		case <-ctx.Done():
			return
		case <-o.clock.After(o.cfg.ToggleInterval):
		}
		visible = !visible
		o.surface.SetOverlayVisible(visible)
	}
}

// animate holds the step on screen for its duration, cycling frames for
// animated layers and advancing the linear progress indicator.
func (o *Orchestrator) animate(ctx context.Context, i int, step Step, layer domain.Layer) {
	progress := o.clock.NewTicker(o.cfg.ProgressInterval)
	defer progress.Stop()

	var frameC <-chan time.Time
	if layer.ID.Animated() && len(layer.Frames) > 1 {
		interval := o.cfg.HourlyFrameInterval
		if layer.ID == domain.LayerMonthlyFlux {
			interval = o.cfg.MonthlyFrameInterval
		}
		frames := o.clock.NewTicker(interval)
		defer frames.Stop()
		frameC = frames.Chan()
	}

	start := o.clock.Now()
	frame := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-frameC:
			frame = (frame + 1) % len(layer.Frames)
			o.surface.SetOverlay(layer.Frames[frame])
		case <-progress.Chan():
			elapsed := o.clock.Since(start)
			stepProgress := float64(elapsed) / float64(step.Duration)
			if stepProgress > 1 {
				stepProgress = 1
			}
			overall := (float64(i) + stepProgress) / float64(len(o.cfg.Script))
			o.obs.ProgressUpdated(overall, stepProgress)
			if elapsed >= step.Duration {
				return
			}
		}
	}
}

// complete holds the final frame briefly, then transitions to Completed and
// fires the completion callback exactly once.
func (o *Orchestrator) complete(ctx context.Context) {
	select {
	case <-ctx.Done():
		o.markAborted()
		return
	case <-o.clock.After(o.cfg.CompletionHold):
	}

	if !o.transition(StatusRunning, StatusCompleted) {
		return
	}
	o.metrics.ShowcaseCompleted.Inc()
	o.logger.Info("showcase completed")
	o.obs.Completed()
}

// transition moves from one state to another unless the session was aborted
// in the meantime.
func (o *Orchestrator) transition(from, to Status) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status != from {
		return false
	}
	o.status = to
	return true
}

// markAborted records an abort caused by context cancellation from outside
// (parent context, unmount) rather than an explicit Abort call.
func (o *Orchestrator) markAborted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status == StatusPreloading || o.status == StatusRunning {
		o.status = StatusAborted
		o.metrics.ShowcaseAborted.Inc()
	}
}

// alive guards surface and observer mutation: nothing is touched after the
// session context is cancelled.
func (o *Orchestrator) alive(ctx context.Context) bool {
	return ctx.Err() == nil
}
