// Package plan defines the immutable render blueprint: an ordered list of
// visual segments and a list of timed overlay descriptors, produced once per
// render and only read afterwards.
package plan

import (
	"fmt"
	"math"
)

// ItemKind distinguishes still-image segments from clip pass-throughs.
type ItemKind string

const (
	KindStill ItemKind = "still"
	KindClip  ItemKind = "clip"
)

// Filter names one parameterized image operation. Order in a TrackItem's
// filter list is the order of application.
type Filter struct {
	Name   string             `json:"name"`
	Params map[string]float64 `json:"params,omitempty"`
}

// Motion holds the bounded pan/zoom parameters synthesized for a still
// segment. Zoom values are scale factors; pan values are fractions of the
// frame the focal point drifts by.
type Motion struct {
	ZoomStart float64 `json:"zoom_start"`
	ZoomEnd   float64 `json:"zoom_end"`
	PanX      float64 `json:"pan_x"`
	PanY      float64 `json:"pan_y"`
}

// TrackItem is one visual segment of the plan. Start and Duration are
// output-relative seconds.
type TrackItem struct {
	Phase         string   `json:"phase"`
	Kind          ItemKind `json:"kind"`
	Source        string   `json:"source"`
	Start         float64  `json:"start"`
	Duration      float64  `json:"duration"`
	ClipStart     float64  `json:"clip_start,omitempty"` // trim offset into the source, clips only
	NaturalWidth  int      `json:"natural_width"`
	NaturalHeight int      `json:"natural_height"`
	Motion        Motion   `json:"motion"`
	Filters       []Filter `json:"filters,omitempty"`
}

// End returns the output-relative end time of the segment.
func (it TrackItem) End() float64 {
	return it.Start + it.Duration
}

// Keyframe pairs a time offset (seconds from overlay start) with a value.
type Keyframe struct {
	Time  float64 `json:"time"`
	Value float64 `json:"value"`
}

// Track is an ordered keyframe sequence interpolated linearly between
// keyframes and clamped outside them.
type Track []Keyframe

// ValueAt evaluates the track at t.
func (tr Track) ValueAt(t float64) float64 {
	if len(tr) == 0 {
		return 0
	}
	if t <= tr[0].Time {
		return tr[0].Value
	}
	last := tr[len(tr)-1]
	if t >= last.Time {
		return last.Value
	}
	for i := 1; i < len(tr); i++ {
		if t <= tr[i].Time {
			prev, next := tr[i-1], tr[i]
			span := next.Time - prev.Time
			if span <= 0 {
				return next.Value
			}
			frac := (t - prev.Time) / span
			return prev.Value + (next.Value-prev.Value)*frac
		}
	}
	return last.Value
}

// Layer kinds understood by the overlay rasterizer.
const (
	LayerHook    = "hook"
	LayerPhrase  = "phrase"
	LayerChip    = "chip"
	LayerCounter = "counter"
	LayerCTA     = "cta"
)

// Anchor names for overlay placement. Offsets are applied relative to these.
const (
	AnchorCenter = "center"
	AnchorLeft   = "left"
	AnchorRight  = "right"
	AnchorTop    = "top"
	AnchorBottom = "bottom"
)

// LayerSpec declaratively describes one animated overlay layer. All motion is
// keyframed numeric tracks over overlay-relative time; the rasterizer
// interprets them against output-relative time, never wall-clock time.
type LayerSpec struct {
	Kind         string `json:"kind"`
	Text         string `json:"text"`
	FontSize     int    `json:"font_size"`
	Color        string `json:"color"`
	ShadowColor  string `json:"shadow_color"`
	OutlineWidth int    `json:"outline_width"`
	XAnchor      string `json:"x_anchor"`
	YAnchor      string `json:"y_anchor"`
	XOffset      Track  `json:"x_offset,omitempty"` // px offset from the X anchor
	YOffset      Track  `json:"y_offset,omitempty"` // px offset from the Y anchor
	Opacity      Track  `json:"opacity,omitempty"`  // 0..1
	Scale        Track  `json:"scale,omitempty"`    // font scale factor, empty means 1.0
	Progress     Track  `json:"progress,omitempty"` // counter bars only, 0..1 fill fraction
}

// Overlay is a timed overlay layer. Start and Duration are output-relative
// seconds; the layer's fade-out completes strictly inside the window.
type Overlay struct {
	Start    float64   `json:"start"`
	Duration float64   `json:"duration"`
	Layer    LayerSpec `json:"layer"`
}

// End returns the output-relative end time of the overlay.
func (o Overlay) End() float64 {
	return o.Start + o.Duration
}

// RenderPlan is the full blueprint for one render invocation.
type RenderPlan struct {
	Items          []TrackItem `json:"items"`
	Overlays       []Overlay   `json:"overlays"`
	AudioPath      string      `json:"audio_path,omitempty"`
	OutputDuration float64     `json:"output_duration"`
	Seed           int64       `json:"seed"`
}

// Validate checks the plan invariants: segments tile [0, OutputDuration]
// with no gaps or overlaps (within one frame duration), and every overlay
// window lies inside the output.
func (p RenderPlan) Validate(frameSec float64) error {
	if p.OutputDuration <= 0 {
		return fmt.Errorf("output duration must be positive, got %f", p.OutputDuration)
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("plan has no segments")
	}

	cursor := 0.0
	total := 0.0
	for i, item := range p.Items {
		if item.Duration <= 0 {
			return fmt.Errorf("segment %d (%s) has non-positive duration %f", i, item.Phase, item.Duration)
		}
		if math.Abs(item.Start-cursor) > frameSec {
			return fmt.Errorf("segment %d (%s) starts at %f, expected %f", i, item.Phase, item.Start, cursor)
		}
		cursor += item.Duration
		total += item.Duration
	}
	if math.Abs(total-p.OutputDuration) > frameSec {
		return fmt.Errorf("segments total %f, output duration is %f", total, p.OutputDuration)
	}

	for i, overlay := range p.Overlays {
		if overlay.Start < 0 {
			return fmt.Errorf("overlay %d starts before 0: %f", i, overlay.Start)
		}
		if overlay.Duration <= 0 {
			return fmt.Errorf("overlay %d has non-positive duration %f", i, overlay.Duration)
		}
		if overlay.End() > p.OutputDuration+frameSec {
			return fmt.Errorf("overlay %d ends at %f, beyond output duration %f", i, overlay.End(), p.OutputDuration)
		}
		if err := validateFadeOut(overlay); err != nil {
			return fmt.Errorf("overlay %d: %w", i, err)
		}
	}

	return nil
}

// validateFadeOut ensures the opacity track returns to zero strictly inside
// the overlay window.
func validateFadeOut(o Overlay) error {
	track := o.Layer.Opacity
	if len(track) == 0 {
		return nil
	}
	last := track[len(track)-1]
	if last.Value != 0 {
		return fmt.Errorf("opacity track must end at 0, ends at %f", last.Value)
	}
	if last.Time >= o.Duration {
		return fmt.Errorf("fade-out completes at %f, not inside window %f", last.Time, o.Duration)
	}
	return nil
}
