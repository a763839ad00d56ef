package render

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"reelforge/internal/config"
	"reelforge/internal/plan"
)

// ErrOverlaysDegraded reports that most of an export's overlay layers could
// not be rasterized. Isolated layer failures degrade silently; losing the
// majority of the text treatment fails the export instead.
var ErrOverlaysDegraded = errors.New("overlay rasterization degraded pervasively")

// BuildOverlayFilters rasterizes the plan's overlay descriptors as ffmpeg
// filters. Every expression is a function of the output-relative timestamp t,
// so repeated exports are identical regardless of when they run. A layer that
// cannot be rasterized is skipped with a log line, never fatal on its own;
// the dropped count lets the exporter escalate when the loss is pervasive.
func BuildOverlayFilters(overlays []plan.Overlay, cfg config.Config, logger *log.Logger) ([]string, int) {
	var filters []string
	dropped := 0
	for i, overlay := range overlays {
		rendered, err := rasterizeLayer(overlay, cfg)
		if err != nil {
			dropped++
			if logger != nil {
				logger.Printf("overlay %d (%s) degraded: %v", i, overlay.Layer.Kind, err)
			}
			continue
		}
		if rendered != "" {
			filters = append(filters, rendered)
		}
	}
	return filters, dropped
}

func rasterizeLayer(overlay plan.Overlay, cfg config.Config) (string, error) {
	switch overlay.Layer.Kind {
	case plan.LayerHook, plan.LayerPhrase, plan.LayerChip, plan.LayerCTA:
		return buildTextLayer(overlay, cfg)
	case plan.LayerCounter:
		return buildCounterLayer(overlay, cfg), nil
	default:
		return "", fmt.Errorf("unknown layer kind %q", overlay.Layer.Kind)
	}
}

func buildTextLayer(overlay plan.Overlay, cfg config.Config) (string, error) {
	spec := overlay.Layer
	text := strings.TrimSpace(spec.Text)
	if text == "" {
		return "", fmt.Errorf("empty text")
	}

	fontSize := spec.FontSize
	if fontSize < 12 {
		fontSize = 12
	}

	values := []string{
		fmt.Sprintf("text='%s'", escapeDrawText(text)),
		fontSizeValue(fontSize, spec.Scale, overlay.Start),
		fmt.Sprintf("fontcolor=%s", fallback(spec.Color, "white")),
		fmt.Sprintf("bordercolor=%s", fallback(spec.ShadowColor, "black")),
		fmt.Sprintf("borderw=%d", maxInt(spec.OutlineWidth, 0)),
		fmt.Sprintf("x='%s'", escapeFilterValue(xExpression(spec, overlay.Start))),
		fmt.Sprintf("y='%s'", escapeFilterValue(yExpression(spec, overlay.Start))),
	}

	if fontFile := strings.TrimSpace(cfg.Overlays.FontFile); fontFile != "" {
		values = append(values, fmt.Sprintf("fontfile='%s'", escapeFFmpegPath(fontFile)))
	}

	enable := fmt.Sprintf("between(t,%s,%s)", formatFloat(overlay.Start), formatFloat(overlay.End()))
	values = append(values, fmt.Sprintf("enable='%s'", escapeFilterValue(enable)))
	values = append(values, fmt.Sprintf("alpha='%s'", escapeFilterValue(trackExpression(spec.Opacity, overlay.Start))))

	return "drawtext=" + strings.Join(values, ":"), nil
}

// fontSizeValue applies the scale-bounce track to the base size when one is
// present.
func fontSizeValue(base int, scale plan.Track, start float64) string {
	if len(scale) == 0 {
		return fmt.Sprintf("fontsize=%d", base)
	}
	expr := fmt.Sprintf("%d*(%s)", base, trackExpression(scale, start))
	return fmt.Sprintf("fontsize='%s'", escapeFilterValue(expr))
}

// buildCounterLayer renders a progress bar as a drawbox whose width follows
// the layer's progress track linearly across its active window.
func buildCounterLayer(overlay plan.Overlay, cfg config.Config) string {
	const barHeight = 12
	spec := overlay.Layer

	barSpan := cfg.Video.Width - cfg.SafeZone.LeftPx - cfg.SafeZone.RightPx
	if barSpan < 1 {
		barSpan = cfg.Video.Width
	}

	x := spec.XOffset.ValueAt(0)
	yInset := spec.YOffset.ValueAt(0)
	widthExpr := fmt.Sprintf("%d*(%s)", barSpan, trackExpression(spec.Progress, overlay.Start))
	enable := fmt.Sprintf("between(t,%s,%s)", formatFloat(overlay.Start), formatFloat(overlay.End()))

	values := []string{
		fmt.Sprintf("x=%s", formatFloat(x)),
		fmt.Sprintf("y=ih-%s-%d", formatFloat(yInset), barHeight),
		fmt.Sprintf("w='%s'", escapeFilterValue(widthExpr)),
		fmt.Sprintf("h=%d", barHeight),
		fmt.Sprintf("color=%s", fallback(spec.Color, "white")),
		"t=fill",
		fmt.Sprintf("enable='%s'", escapeFilterValue(enable)),
	}
	return "drawbox=" + strings.Join(values, ":")
}

func xExpression(spec plan.LayerSpec, start float64) string {
	offset := trackExpression(spec.XOffset, start)
	switch spec.XAnchor {
	case plan.AnchorCenter:
		if len(spec.XOffset) == 0 {
			return "(w-text_w)/2"
		}
		return fmt.Sprintf("(w-text_w)/2+(%s)", offset)
	case plan.AnchorRight:
		return fmt.Sprintf("w-text_w-(%s)", offset)
	default:
		return offset
	}
}

func yExpression(spec plan.LayerSpec, start float64) string {
	offset := trackExpression(spec.YOffset, start)
	switch spec.YAnchor {
	case plan.AnchorCenter:
		if len(spec.YOffset) == 0 {
			return "(h-text_h)/2"
		}
		return fmt.Sprintf("(h-text_h)/2+(%s)", offset)
	case plan.AnchorBottom:
		return fmt.Sprintf("h-text_h-(%s)", offset)
	default:
		return offset
	}
}

// trackExpression compiles a keyframe track into a piecewise-linear ffmpeg
// expression of t. Keyframe times are overlay-relative; start shifts them
// onto the output timeline. Outside the keyframe range the track clamps to
// its boundary values.
func trackExpression(track plan.Track, start float64) string {
	if len(track) == 0 {
		return "0"
	}
	if len(track) == 1 {
		return formatFloat(track[0].Value)
	}

	var builder strings.Builder
	depth := 0

	first := start + track[0].Time
	builder.WriteString("if(lt(t,")
	builder.WriteString(formatFloat(first))
	builder.WriteString("),")
	builder.WriteString(formatFloat(track[0].Value))
	builder.WriteString(",")
	depth++

	for i := 1; i < len(track); i++ {
		prev, next := track[i-1], track[i]
		segStart := start + prev.Time
		segEnd := start + next.Time
		span := next.Time - prev.Time

		var segment string
		if span <= 0 || prev.Value == next.Value {
			segment = formatFloat(next.Value)
		} else {
			segment = fmt.Sprintf("%s+%s*(t-%s)/%s",
				formatFloat(prev.Value),
				formatFloat(next.Value-prev.Value),
				formatFloat(segStart),
				formatFloat(span))
		}

		if i == len(track)-1 {
			builder.WriteString("if(lt(t,")
			builder.WriteString(formatFloat(segEnd))
			builder.WriteString("),")
			builder.WriteString(segment)
			builder.WriteString(",")
			builder.WriteString(formatFloat(next.Value))
			builder.WriteString(")")
		} else {
			builder.WriteString("if(lt(t,")
			builder.WriteString(formatFloat(segEnd))
			builder.WriteString("),")
			builder.WriteString(segment)
			builder.WriteString(",")
			depth++
		}
	}

	for i := 0; i < depth; i++ {
		builder.WriteString(")")
	}
	return builder.String()
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func escapeDrawText(value string) string {
	value = strings.ReplaceAll(value, "\r\n", "\n")
	value = strings.ReplaceAll(value, "\r", "\n")

	const newlinePlaceholder = "\u0000"
	value = strings.ReplaceAll(value, "\n", newlinePlaceholder)

	value = escapeFilterValueNoQuotes(value)
	value = strings.ReplaceAll(value, newlinePlaceholder, `\n`)
	value = strings.ReplaceAll(value, "'", "''")
	return value
}

func escapeFFmpegPath(value string) string {
	value = filepath.Clean(value)
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, ":", `\:`)
	value = strings.ReplaceAll(value, "'", `\'`)
	return value
}

func escapeFilterValue(value string) string {
	value = escapeFilterValueNoQuotes(value)
	value = strings.ReplaceAll(value, "'", `\'`)
	return value
}

func escapeFilterValueNoQuotes(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, ":", `\:`)
	value = strings.ReplaceAll(value, ",", `\,`)
	return value
}
