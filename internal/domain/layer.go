package domain

import (
	"fmt"
	"image"
)

// LayerID identifies one of the six displayable data layers.
type LayerID string

const (
	LayerMask        LayerID = "mask"
	LayerDSM         LayerID = "dsm"
	LayerRGB         LayerID = "rgb"
	LayerAnnualFlux  LayerID = "annualFlux"
	LayerMonthlyFlux LayerID = "monthlyFlux"
	LayerHourlyShade LayerID = "hourlyShade"
)

// ParseLayerID validates a layer name.
func ParseLayerID(s string) (LayerID, error) {
	switch id := LayerID(s); id {
	case LayerMask, LayerDSM, LayerRGB, LayerAnnualFlux, LayerMonthlyFlux, LayerHourlyShade:
		return id, nil
	}
	return "", fmt.Errorf("unknown layer id %q", s)
}

// Animated reports whether the layer carries a multi-frame animation.
func (id LayerID) Animated() bool {
	return id == LayerMonthlyFlux || id == LayerHourlyShade
}

// RenderedFrame is one displayable RGBA grid plus the WGS84 box it should be
// anchored to on the map surface.
type RenderedFrame struct {
	Image  *image.RGBA
	Bounds Bounds
}

// PaletteDescription describes the color scale used to render a layer, for
// legend display alongside the overlay.
type PaletteDescription struct {
	Colors   []string `json:"colors"` // hex stops, low to high
	MinLabel string   `json:"minLabel"`
	MaxLabel string   `json:"maxLabel"`
}

// Layer is the fully rendered form of one data layer: an ordered frame
// sequence over a single bounding box. Layers are immutable; they are created
// by the layer loader, held by the cache, and discarded on eviction.
type Layer struct {
	ID      LayerID
	Bounds  Bounds
	Frames  []RenderedFrame
	Palette *PaletteDescription
}

// NewLayer builds a Layer and enforces the per-ID frame-count contract:
// 1 frame for static layers, 12 for monthlyFlux, 16 or 24 for hourlyShade.
func NewLayer(id LayerID, bounds Bounds, frames []RenderedFrame, palette *PaletteDescription) (Layer, error) {
	n := len(frames)
	ok := false
	switch id {
	case LayerMask, LayerDSM, LayerRGB, LayerAnnualFlux:
		ok = n == 1
	case LayerMonthlyFlux:
		ok = n == 12
	case LayerHourlyShade:
		ok = n == 16 || n == 24
	default:
		return Layer{}, fmt.Errorf("unknown layer id %q", id)
	}
	if !ok {
		return Layer{}, fmt.Errorf("layer %s: %d frames violates frame-count contract", id, n)
	}
	return Layer{ID: id, Bounds: bounds, Frames: frames, Palette: palette}, nil
}
