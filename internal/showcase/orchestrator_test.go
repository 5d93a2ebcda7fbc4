package showcase

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helioviz/solar-layer-engine/internal/domain"
	"github.com/helioviz/solar-layer-engine/internal/layers"
)

func testFrames(n int) []domain.RenderedFrame {
	fs := make([]domain.RenderedFrame, n)
	for i := range fs {
		fs[i] = domain.RenderedFrame{Image: image.NewRGBA(image.Rect(0, 0, 1, 1))}
	}
	return fs
}

func testLayer(t *testing.T, id domain.LayerID, frames int) domain.Layer {
	t.Helper()
	layer, err := domain.NewLayer(id, domain.Bounds{North: 1, East: 1}, testFrames(frames), nil)
	require.NoError(t, err)
	return layer
}

// fakeSource serves layers from a fixed map and records traffic.
type fakeSource struct {
	mu         sync.Mutex
	layers     map[layers.Key]domain.Layer
	fail       map[layers.Key]error
	preloaded  []layers.Key
	prefetched []layers.Key
}

func (s *fakeSource) Get(_ context.Context, key layers.Key) (domain.Layer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.fail[key]; ok {
		return domain.Layer{}, err
	}
	layer, ok := s.layers[key]
	if !ok {
		return domain.Layer{}, errors.New("layer missing: " + key.String())
	}
	return layer, nil
}

func (s *fakeSource) Prefetch(_ context.Context, key layers.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefetched = append(s.prefetched, key)
}

func (s *fakeSource) PreloadAll(_ context.Context, keys []layers.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preloaded = append(s.preloaded, keys...)
}

// fakeSurface records overlay operations and checks the one-overlay rule.
type fakeSurface struct {
	mu         sync.Mutex
	installed  bool
	visible    bool
	setCount   int
	clearCount int
	flipCount  int
}

func (s *fakeSurface) SetOverlay(_ domain.RenderedFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installed = true
	s.visible = true
	s.setCount++
}

func (s *fakeSurface) SetOverlayVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = visible
	s.flipCount++
}

func (s *fakeSurface) ClearOverlay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installed = false
	s.visible = false
	s.clearCount++
}

type recordingObserver struct {
	mu        sync.Mutex
	steps     []int
	progress  []float64
	completed int
}

func (o *recordingObserver) StepChanged(index int, _ Step) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.steps = append(o.steps, index)
}

func (o *recordingObserver) ProgressUpdated(overall, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress = append(o.progress, overall)
}

func (o *recordingObserver) Completed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed++
}

func fullSource(t *testing.T) *fakeSource {
	t.Helper()
	return &fakeSource{
		layers: map[layers.Key]domain.Layer{
			{ID: domain.LayerRGB}:                         testLayer(t, domain.LayerRGB, 1),
			{ID: domain.LayerDSM}:                         testLayer(t, domain.LayerDSM, 1),
			{ID: domain.LayerMask}:                        testLayer(t, domain.LayerMask, 1),
			{ID: domain.LayerAnnualFlux}:                  testLayer(t, domain.LayerAnnualFlux, 1),
			{ID: domain.LayerMonthlyFlux}:                 testLayer(t, domain.LayerMonthlyFlux, 12),
			{ID: domain.LayerHourlyShade, DayOfYear: 172}: testLayer(t, domain.LayerHourlyShade, 16),
			{ID: domain.LayerHourlyShade, DayOfYear: 355}: testLayer(t, domain.LayerHourlyShade, 16),
		},
		fail: map[layers.Key]error{},
	}
}

// fastConfig keeps the default 8-step script but compresses every timing so
// a full run finishes in well under a second.
func fastConfig() Config {
	script := DefaultScript()
	for i := range script {
		script[i].Duration = 20 * time.Millisecond
	}
	return Config{
		Script:               script,
		ToggleInterval:       time.Millisecond,
		MonthlyFrameInterval: 5 * time.Millisecond,
		HourlyFrameInterval:  5 * time.Millisecond,
		ProgressInterval:     2 * time.Millisecond,
		PreloadTimeout:       time.Second,
		CompletionHold:       5 * time.Millisecond,
	}
}

func newTestOrchestrator(source LayerSource, surface MapSurface, obs Observer, cfg Config) *Orchestrator {
	return New(source, surface, obs, WithConfig(cfg),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func waitDone(t *testing.T, o *Orchestrator) {
	t.Helper()
	select {
	case <-o.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("showcase did not finish")
	}
}

func TestShowcaseRunsToCompletion(t *testing.T) {
	source := fullSource(t)
	surface := &fakeSurface{}
	obs := &recordingObserver{}
	o := newTestOrchestrator(source, surface, obs, fastConfig())

	assert.Equal(t, StatusIdle, o.Status())
	o.Start(context.Background())
	waitDone(t, o)

	assert.Equal(t, StatusCompleted, o.Status())
	assert.Equal(t, 1, obs.completed)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, obs.steps)

	// Every distinct script key was eagerly preloaded before step one.
	assert.Len(t, source.preloaded, 7)

	// Each step clears the previous overlay before installing its own.
	assert.Equal(t, 8, surface.clearCount)
	assert.GreaterOrEqual(t, surface.setCount, 8)
	assert.True(t, surface.installed)
	assert.True(t, surface.visible)
}

func TestShowcaseAnimatesMultiFrameLayers(t *testing.T) {
	source := fullSource(t)
	surface := &fakeSurface{}
	obs := &recordingObserver{}
	o := newTestOrchestrator(source, surface, obs, fastConfig())

	o.Start(context.Background())
	waitDone(t, o)

	// 8 initial frames plus animation frames from monthlyFlux and the two
	// hourlyShade steps (20ms steps at 5ms per frame).
	assert.Greater(t, surface.setCount, 10)
}

func TestShowcaseProgressIsMonotonic(t *testing.T) {
	source := fullSource(t)
	surface := &fakeSurface{}
	obs := &recordingObserver{}
	o := newTestOrchestrator(source, surface, obs, fastConfig())

	o.Start(context.Background())
	waitDone(t, o)

	require.NotEmpty(t, obs.progress)
	prev := 0.0
	for i, p := range obs.progress {
		assert.GreaterOrEqual(t, p, prev, "progress regressed at sample %d", i)
		assert.LessOrEqual(t, p, 1.0)
		prev = p
	}
}

func TestShowcaseLooksAheadOneStep(t *testing.T) {
	source := fullSource(t)
	surface := &fakeSurface{}
	obs := &recordingObserver{}
	o := newTestOrchestrator(source, surface, obs, fastConfig())

	o.Start(context.Background())
	waitDone(t, o)

	// Steps 0..6 each prefetch their successor; the last step has none.
	require.Len(t, source.prefetched, 7)
	script := DefaultScript()
	for i, key := range source.prefetched {
		assert.Equal(t, script[i+1].Key(), key)
	}
}

func TestShowcaseSkipsFailedSteps(t *testing.T) {
	source := fullSource(t)
	source.fail[layers.Key{ID: domain.LayerDSM}] = errors.New("dsm upstream 500")
	surface := &fakeSurface{}
	obs := &recordingObserver{}
	o := newTestOrchestrator(source, surface, obs, fastConfig())

	o.Start(context.Background())
	waitDone(t, o)

	// The roof-shape layer appears at steps 1 and 7; both are skipped, the
	// other six steps still run and the session completes.
	assert.Equal(t, StatusCompleted, o.Status())
	assert.Equal(t, 1, obs.completed)
	assert.Equal(t, []int{0, 2, 3, 4, 5, 6}, obs.steps)
}

func TestShowcaseToggleFlipsEndVisible(t *testing.T) {
	source := fullSource(t)
	surface := &fakeSurface{}
	obs := &recordingObserver{}
	cfg := fastConfig()
	cfg.Script = []Step{{Layer: domain.LayerMask, Duration: 5 * time.Millisecond, Toggle: true}}
	o := newTestOrchestrator(source, surface, obs, cfg)

	o.Start(context.Background())
	waitDone(t, o)

	// One visibility call installs the overlay, then the default flip count
	// is even, so the overlay lands visible.
	assert.Equal(t, 9, surface.flipCount)
	assert.True(t, surface.visible)
}

func TestStartIsSingleUse(t *testing.T) {
	source := fullSource(t)
	surface := &fakeSurface{}
	obs := &recordingObserver{}
	o := newTestOrchestrator(source, surface, obs, fastConfig())

	o.Start(context.Background())
	o.Start(context.Background()) // ignored, session already live
	waitDone(t, o)

	assert.Equal(t, 1, obs.completed)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, obs.steps)

	o.Start(context.Background()) // ignored, session finished
	assert.Equal(t, StatusCompleted, o.Status())
}

func TestAbortSuppressesCompletion(t *testing.T) {
	source := fullSource(t)
	surface := &fakeSurface{}
	obs := &recordingObserver{}
	cfg := fastConfig()
	for i := range cfg.Script {
		cfg.Script[i].Duration = 10 * time.Second
	}
	o := newTestOrchestrator(source, surface, obs, cfg)

	o.Start(context.Background())
	require.Eventually(t, func() bool {
		obs.mu.Lock()
		defer obs.mu.Unlock()
		return len(obs.steps) > 0
	}, 5*time.Second, time.Millisecond)

	o.Abort()
	waitDone(t, o)

	assert.Equal(t, StatusAborted, o.Status())
	assert.Equal(t, 0, obs.completed)

	stepsAtAbort := len(obs.steps)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stepsAtAbort, len(obs.steps), "callbacks after abort")
}

func TestAbortIsIdempotent(t *testing.T) {
	source := fullSource(t)
	surface := &fakeSurface{}
	obs := &recordingObserver{}
	cfg := fastConfig()
	cfg.Script[0].Duration = 10 * time.Second
	o := newTestOrchestrator(source, surface, obs, cfg)

	o.Start(context.Background())
	o.Abort()
	o.Abort()
	waitDone(t, o)
	assert.Equal(t, StatusAborted, o.Status())
}

func TestAbortBeforeStartIsNoOp(t *testing.T) {
	o := newTestOrchestrator(fullSource(t), &fakeSurface{}, &recordingObserver{}, fastConfig())
	o.Abort()
	assert.Equal(t, StatusIdle, o.Status())
}

func TestParentContextCancelAborts(t *testing.T) {
	source := fullSource(t)
	surface := &fakeSurface{}
	obs := &recordingObserver{}
	cfg := fastConfig()
	for i := range cfg.Script {
		cfg.Script[i].Duration = 10 * time.Second
	}
	o := newTestOrchestrator(source, surface, obs, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	o.Start(ctx)
	require.Eventually(t, func() bool {
		return o.Status() == StatusRunning
	}, 5*time.Second, time.Millisecond)

	cancel()
	waitDone(t, o)

	assert.Equal(t, StatusAborted, o.Status())
	assert.Equal(t, 0, obs.completed)
}

func TestObserversFanOut(t *testing.T) {
	a := &recordingObserver{}
	b := &recordingObserver{}
	obs := Observers{a, b}

	obs.StepChanged(3, Step{Layer: domain.LayerMask})
	obs.ProgressUpdated(0.5, 0.5)
	obs.Completed()

	for _, o := range []*recordingObserver{a, b} {
		assert.Equal(t, []int{3}, o.steps)
		assert.Equal(t, []float64{0.5}, o.progress)
		assert.Equal(t, 1, o.completed)
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "idle", StatusIdle.String())
	assert.Equal(t, "preloading", StatusPreloading.String())
	assert.Equal(t, "running", StatusRunning.String())
	assert.Equal(t, "completed", StatusCompleted.String())
	assert.Equal(t, "aborted", StatusAborted.String())
	assert.Equal(t, "unknown", Status(99).String())
}
