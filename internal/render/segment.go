package render

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"

	"reelforge/internal/config"
	"reelforge/internal/plan"
)

// BuildSegmentFilterGraph constructs the full video filter graph for one
// TrackItem: aspect-fit base transform, synthesized motion for stills, then
// the item's named filter chain in order.
func BuildSegmentFilterGraph(item plan.TrackItem, cfg config.Config, logger *log.Logger) (string, error) {
	if cfg.Video.Width <= 0 || cfg.Video.Height <= 0 {
		return "", errors.New("invalid video dimensions")
	}
	if cfg.Video.FPS <= 0 {
		return "", errors.New("invalid video fps")
	}
	if item.Duration <= 0 {
		return "", fmt.Errorf("segment %s missing duration", item.Phase)
	}

	var filters []string
	switch item.Kind {
	case plan.KindStill:
		filters = stillChain(item, cfg)
	case plan.KindClip:
		filters = baseChain(cfg)
	default:
		return "", fmt.Errorf("unknown segment kind %q", item.Kind)
	}

	named, err := BuildFilterChain(item.Filters, logger)
	if err != nil {
		return "", err
	}
	filters = append(filters, named...)

	return strings.Join(filters, ","), nil
}

// BaseSegmentFilterGraph is the reduced-fidelity fallback used when the full
// chain cannot be built: motion and fit only, no named filters.
func BaseSegmentFilterGraph(item plan.TrackItem, cfg config.Config) string {
	var filters []string
	if item.Kind == plan.KindStill {
		filters = stillChain(item, cfg)
	} else {
		filters = baseChain(cfg)
	}
	return strings.Join(filters, ",")
}

// stillChain fits the image to the frame, then drives a bounded Ken Burns
// pan/zoom across the segment's frames.
func stillChain(item plan.TrackItem, cfg config.Config) []string {
	frames := int(math.Round(item.Duration * float64(cfg.Video.FPS)))
	if frames < 1 {
		frames = 1
	}
	return []string{
		fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=1:flags=lanczos",
			cfg.Video.Width, cfg.Video.Height),
		fmt.Sprintf("pad=w=%d:h=%d:x=(ow-iw)/2:y=(oh-ih)/2:color=black",
			cfg.Video.Width, cfg.Video.Height),
		zoomPan(item.Motion, frames, cfg),
		"setsar=1",
	}
}

// zoomPan renders the motion parameters as a zoompan filter. Zoom
// interpolates linearly from start to end across the segment; pan drifts the
// focal point by the motion's frame fractions.
func zoomPan(m plan.Motion, frames int, cfg config.Config) string {
	zs := clampFloat(m.ZoomStart, 1.0, 1.5)
	ze := clampFloat(m.ZoomEnd, 1.0, 1.5)
	denom := frames - 1
	if denom < 1 {
		denom = 1
	}

	zoomExpr := fmt.Sprintf("%s+(%s)*on/%d",
		formatFloat(zs), formatFloat(ze-zs), denom)
	xExpr := fmt.Sprintf("iw/2-(iw/zoom/2)+(%s*iw)*on/%d", formatFloat(m.PanX), denom)
	yExpr := fmt.Sprintf("ih/2-(ih/zoom/2)+(%s*ih)*on/%d", formatFloat(m.PanY), denom)

	return fmt.Sprintf("zoompan=z='%s':x='%s':y='%s':d=%d:s=%dx%d:fps=%d",
		zoomExpr, xExpr, yExpr, frames, cfg.Video.Width, cfg.Video.Height, cfg.Video.FPS)
}

// BuildSegmentArgs assembles the ffmpeg CLI arguments that encode one
// TrackItem into a self-contained clip of exactly item.Duration. Segment
// clips never carry audio; the stitcher owns the single audio track.
func BuildSegmentArgs(item plan.TrackItem, outputPath, filterGraph string, cfg config.Config) ([]string, error) {
	if strings.TrimSpace(item.Source) == "" {
		return nil, errors.New("segment source is empty")
	}
	if strings.TrimSpace(outputPath) == "" {
		return nil, errors.New("output path is empty")
	}
	if strings.TrimSpace(filterGraph) == "" {
		return nil, errors.New("video filter graph is empty")
	}

	args := []string{
		"-hide_banner",
		"-y",
	}

	if item.Kind == plan.KindClip && item.ClipStart > 0 {
		args = append(args, "-ss", formatFloat(item.ClipStart))
	}

	args = append(args,
		"-i", item.Source,
		"-t", formatFloat(item.Duration),
		"-vf", filterGraph,
		"-an",
	)

	args = append(args, encodeArgs(cfg)...)
	args = append(args, "-movflags", "+faststart", outputPath)
	return args, nil
}

func encodeArgs(cfg config.Config) []string {
	codec := strings.TrimSpace(cfg.Encode.Codec)
	if codec == "" {
		codec = "libx264"
	}
	args := []string{"-c:v", codec}
	if preset := strings.TrimSpace(cfg.Encode.Preset); preset != "" {
		args = append(args, "-preset", preset)
	}
	if cfg.Encode.CRF >= 0 {
		args = append(args, "-crf", strconv.Itoa(cfg.Encode.CRF))
	}
	args = append(args, "-pix_fmt", "yuv420p")
	return args
}
