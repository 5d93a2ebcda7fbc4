// Package pngsurface is a headless map surface: every installed overlay is
// written to disk as a numbered PNG with a JSON sidecar carrying its
// geographic bounds, so a run leaves an inspectable trail of exactly what
// the showcase displayed.
package pngsurface

import (
	"encoding/json"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/helioviz/solar-layer-engine/internal/domain"
)

// Surface implements showcase.MapSurface by writing overlays to a directory.
type Surface struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	seq     int
	current string // filename of the installed overlay, "" when cleared
	visible bool
}

type sidecar struct {
	North   float64 `json:"north"`
	South   float64 `json:"south"`
	East    float64 `json:"east"`
	West    float64 `json:"west"`
	Visible bool    `json:"visible"`
}

// New creates a Surface writing into dir, creating it if needed.
func New(dir string, logger *slog.Logger) (*Surface, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Surface{dir: dir, logger: logger}, nil
}

// SetOverlay writes the frame as the next numbered overlay and makes it the
// installed one. The previous overlay's files stay on disk as history; only
// one overlay is ever "installed" at a time.
func (s *Surface) SetOverlay(frame domain.RenderedFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	name := fmt.Sprintf("overlay_%04d", s.seq)
	if err := s.write(name, frame); err != nil {
		s.logger.Warn("write overlay", "name", name, "error", err)
		return
	}
	s.current = name
	s.visible = true
}

// SetOverlayVisible records the visibility flip in the current overlay's
// sidecar.
func (s *Surface) SetOverlayVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.visible = visible
	if s.current == "" {
		return
	}
	path := filepath.Join(s.dir, s.current+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return
	}
	sc.Visible = visible
	s.writeSidecar(s.current, sc)
}

// ClearOverlay retires the installed overlay.
func (s *Surface) ClearOverlay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = ""
	s.visible = false
}

// Current returns the installed overlay's base filename and visibility.
func (s *Surface) Current() (name string, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.visible
}

func (s *Surface) write(name string, frame domain.RenderedFrame) error {
	f, err := os.Create(filepath.Join(s.dir, name+".png"))
	if err != nil {
		return err
	}
	if err := png.Encode(f, frame.Image); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return s.writeSidecar(name, sidecar{
		North:   frame.Bounds.North,
		South:   frame.Bounds.South,
		East:    frame.Bounds.East,
		West:    frame.Bounds.West,
		Visible: true,
	})
}

func (s *Surface) writeSidecar(name string, sc sidecar) error {
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, name+".json"), data, 0o644)
}
