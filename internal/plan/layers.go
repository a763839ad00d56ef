package plan

import (
	"math"

	"reelforge/internal/config"
)

// fadeOutMargin is how far before the overlay window closes the fade-out
// must finish.
const fadeOutMargin = 0.05

// fadeTrack builds the standard fade-in / hold / fade-out opacity envelope
// for an overlay of the given duration. The fade-out always completes
// fadeOutMargin before the window closes.
func fadeTrack(duration, fadeIn, fadeOut float64) Track {
	fadeIn = math.Min(fadeIn, duration/3)
	fadeOut = math.Min(fadeOut, duration/3)
	holdEnd := duration - fadeOut - fadeOutMargin
	if holdEnd < fadeIn {
		holdEnd = fadeIn
	}
	return Track{
		{Time: 0, Value: 0},
		{Time: fadeIn, Value: 1},
		{Time: holdEnd, Value: 1},
		{Time: duration - fadeOutMargin, Value: 0},
	}
}

// bounceTrack is the hook/CTA scale bounce: 0.95 -> 1.05 -> 1.0 across the
// fade-in.
func bounceTrack(fadeIn float64) Track {
	return Track{
		{Time: 0, Value: 0.95},
		{Time: fadeIn, Value: 1.05},
		{Time: fadeIn + 0.18, Value: 1.0},
	}
}

// slideTrack moves a phrase in from its origin side during the fade-in.
// Offset values are pixels relative to the side anchor.
func slideTrack(fadeIn, travel float64) Track {
	return Track{
		{Time: 0, Value: -travel},
		{Time: fadeIn, Value: 0},
	}
}

// HookLayer builds the opening hook text layer.
func HookLayer(cfg config.Config, text string, duration float64) LayerSpec {
	fadeIn := cfg.Timing.FadeInSec
	return LayerSpec{
		Kind:         LayerHook,
		Text:         text,
		FontSize:     cfg.Overlays.FontSizeHook,
		Color:        cfg.Overlays.BrandColor,
		ShadowColor:  cfg.Overlays.ShadowColor,
		OutlineWidth: cfg.Overlays.OutlineWidth,
		XAnchor:      AnchorCenter,
		YAnchor:      AnchorTop,
		YOffset:      Track{{Time: 0, Value: topInset(cfg)}},
		Opacity:      fadeTrack(duration, fadeIn, cfg.Timing.FadeOutSec),
		Scale:        bounceTrack(fadeIn),
	}
}

// PhraseLayer builds a sequential phrase layer. The origin side alternates
// purely by index parity; parity varies the entrance, never the timing.
func PhraseLayer(cfg config.Config, text string, index int, duration float64) LayerSpec {
	fadeIn := cfg.Timing.FadeInSec
	side := AnchorLeft
	inset := float64(cfg.SafeZone.LeftPx)
	if index%2 == 1 {
		side = AnchorRight
		inset = float64(cfg.SafeZone.RightPx)
	}
	slide := slideTrack(fadeIn, 60)
	for i := range slide {
		slide[i].Value += inset
	}
	return LayerSpec{
		Kind:         LayerPhrase,
		Text:         text,
		FontSize:     cfg.Overlays.FontSizePhrase,
		Color:        cfg.Overlays.BrandColor,
		ShadowColor:  cfg.Overlays.ShadowColor,
		OutlineWidth: cfg.Overlays.OutlineWidth,
		XAnchor:      side,
		YAnchor:      AnchorBottom,
		XOffset:      slide,
		YOffset:      Track{{Time: 0, Value: bottomInset(cfg)}},
		Opacity:      fadeTrack(duration, fadeIn, cfg.Timing.FadeOutSec),
	}
}

// ChipLayer builds one item of a staggered chip list. Position stacks
// downward by index; the stagger itself is applied to the overlay start
// time, not inside the layer.
func ChipLayer(cfg config.Config, text string, index int, duration float64) LayerSpec {
	const chipLineHeight = 1.4
	rowStep := float64(cfg.Overlays.FontSizeChip) * chipLineHeight
	return LayerSpec{
		Kind:         LayerChip,
		Text:         text,
		FontSize:     cfg.Overlays.FontSizeChip,
		Color:        cfg.Overlays.BrandColor,
		ShadowColor:  cfg.Overlays.ShadowColor,
		OutlineWidth: cfg.Overlays.OutlineWidth,
		XAnchor:      AnchorLeft,
		YAnchor:      AnchorTop,
		XOffset:      Track{{Time: 0, Value: float64(cfg.SafeZone.LeftPx)}},
		YOffset:      Track{{Time: 0, Value: topInset(cfg) + float64(index+1)*rowStep}},
		Opacity:      fadeTrack(duration, cfg.Timing.FadeInSec, cfg.Timing.FadeOutSec),
	}
}

// CounterLayer builds a progress bar whose fill spans the layer's full
// active duration linearly.
func CounterLayer(cfg config.Config, duration float64) LayerSpec {
	return LayerSpec{
		Kind:        LayerCounter,
		Color:       cfg.Overlays.BrandColor,
		ShadowColor: cfg.Overlays.ShadowColor,
		XAnchor:     AnchorLeft,
		YAnchor:     AnchorBottom,
		XOffset:     Track{{Time: 0, Value: float64(cfg.SafeZone.LeftPx)}},
		YOffset:     Track{{Time: 0, Value: bottomInset(cfg) / 2}},
		Opacity:     fadeTrack(duration, cfg.Timing.FadeInSec, cfg.Timing.FadeOutSec),
		Progress: Track{
			{Time: 0, Value: 0},
			{Time: duration, Value: 1},
		},
	}
}

// CTALayer builds the closing call-to-action layer.
func CTALayer(cfg config.Config, text string, duration float64) LayerSpec {
	fadeIn := cfg.Timing.FadeInSec
	return LayerSpec{
		Kind:         LayerCTA,
		Text:         text,
		FontSize:     cfg.Overlays.FontSizeCTA,
		Color:        cfg.Overlays.BrandColor,
		ShadowColor:  cfg.Overlays.ShadowColor,
		OutlineWidth: cfg.Overlays.OutlineWidth,
		XAnchor:      AnchorCenter,
		YAnchor:      AnchorCenter,
		Opacity:      fadeTrack(duration, fadeIn, cfg.Timing.FadeOutSec),
		Scale:        bounceTrack(fadeIn),
	}
}

func topInset(cfg config.Config) float64 {
	return cfg.SafeZone.TopFrac * float64(cfg.Video.Height)
}

func bottomInset(cfg config.Config) float64 {
	return cfg.SafeZone.BottomFrac * float64(cfg.Video.Height)
}
