package render

import (
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"

	"reelforge/internal/config"
	"reelforge/internal/plan"
)

// filterBuilder turns one named filter's parameters into an ffmpeg filter
// string. Returning an empty string drops the filter from the chain.
type filterBuilder func(params map[string]float64) (string, error)

// filterRegistry maps the plan's named image operations onto ffmpeg filters.
// Names absent from the registry are skipped, not errors.
var filterRegistry = map[string]filterBuilder{
	"grade":     buildGrade,
	"chromatic": buildChromatic,
	"vignette":  buildVignette,
	"lightleak": buildLightLeak,
	"grain":     buildGrain,
	"blur":      buildBlur,
	"breathe":   buildBreathe,
	"parallax":  buildBreathe,
	"velocity":  buildVelocity,
	"flash":     buildFlash,
}

// KnownFilterNames returns the registry's filter names sorted, for doctor
// output and tests.
func KnownFilterNames() []string {
	names := make([]string, 0, len(filterRegistry))
	for name := range filterRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildFilterChain renders the item's named filters to ffmpeg filter strings
// in plan order. Unknown filter names are skipped with a log line; a builder
// failure aborts the chain so the caller can fall back to the base graph.
func BuildFilterChain(filters []plan.Filter, logger *log.Logger) ([]string, error) {
	var out []string
	for _, f := range filters {
		builder, ok := filterRegistry[f.Name]
		if !ok {
			if logger != nil {
				logger.Printf("skipping unknown filter %q", f.Name)
			}
			continue
		}
		rendered, err := builder(f.Params)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.Name, err)
		}
		if rendered != "" {
			out = append(out, rendered)
		}
	}
	return out, nil
}

func param(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

func buildGrade(params map[string]float64) (string, error) {
	contrast := param(params, "contrast", 1.0)
	saturation := param(params, "saturation", 1.0)
	brightness := param(params, "brightness", 0.0)
	warmth := param(params, "warmth", 0.0)

	parts := []string{
		fmt.Sprintf("eq=contrast=%s:saturation=%s:brightness=%s",
			formatFloat(contrast), formatFloat(saturation), formatFloat(brightness)),
	}
	if warmth != 0 {
		parts = append(parts, fmt.Sprintf("colorbalance=rs=%s:bs=%s",
			formatFloat(warmth), formatFloat(-warmth)))
	}
	return strings.Join(parts, ","), nil
}

func buildChromatic(params map[string]float64) (string, error) {
	amount := int(math.Round(param(params, "amount", 2)))
	if amount <= 0 {
		return "", nil
	}
	return fmt.Sprintf("rgbashift=rh=%d:bh=%d", amount, -amount), nil
}

func buildVignette(params map[string]float64) (string, error) {
	angle := param(params, "angle", 0.5)
	if angle <= 0 {
		return "", nil
	}
	return fmt.Sprintf("vignette=angle=%s", formatFloat(angle)), nil
}

// buildLightLeak approximates a light leak by brightening toward the frame
// edges (an inverse vignette).
func buildLightLeak(params map[string]float64) (string, error) {
	strength := param(params, "strength", 0.2)
	if strength <= 0 {
		return "", nil
	}
	angle := 0.2 + strength*0.6
	return fmt.Sprintf("vignette=angle=%s:mode=backward", formatFloat(angle)), nil
}

func buildGrain(params map[string]float64) (string, error) {
	strength := int(math.Round(param(params, "strength", 8)))
	if strength <= 0 {
		return "", nil
	}
	return fmt.Sprintf("noise=alls=%d:allf=t+u", strength), nil
}

func buildBlur(params map[string]float64) (string, error) {
	sigma := param(params, "sigma", 10)
	if sigma <= 0 {
		return "", nil
	}
	return fmt.Sprintf("gblur=sigma=%s", formatFloat(sigma)), nil
}

// buildBreathe adds a slow periodic scale sway. The crop restores the frame
// size after the oscillating upscale.
func buildBreathe(params map[string]float64) (string, error) {
	amount := param(params, "amount", 0.015)
	if amount <= 0 {
		return "", nil
	}
	if amount > 0.05 {
		return "", fmt.Errorf("breathe amount %f out of range", amount)
	}
	expr := fmt.Sprintf("ceil(iw*(1+%s*(0.5+0.5*sin(t*2*PI/3)))/2)*2", formatFloat(amount))
	return fmt.Sprintf("scale=w='%s':h=-2:eval=frame,crop=iw/(1+%s):ih/(1+%s)",
		expr, formatFloat(amount), formatFloat(amount)), nil
}

// buildVelocity pulses exposure on the beat period.
func buildVelocity(params map[string]float64) (string, error) {
	intensity := param(params, "intensity", 0.5)
	period := param(params, "period", 0.5)
	if intensity <= 0 || period <= 0 {
		return "", nil
	}
	amplitude := 0.06 * intensity
	return fmt.Sprintf("eq=brightness='%s*sin(t*2*PI/%s)':eval=frame",
		formatFloat(amplitude), formatFloat(period)), nil
}

// buildFlash brightens the frame briefly at a fixed offset, used for beat
// drop moments.
func buildFlash(params map[string]float64) (string, error) {
	at := param(params, "at", 0)
	duration := param(params, "duration", 0.15)
	if duration <= 0 {
		return "", nil
	}
	return fmt.Sprintf("eq=brightness='if(between(t,%s,%s),0.3,0)':eval=frame",
		formatFloat(at), formatFloat(at+duration)), nil
}

// baseChain is the uniform aspect-fit transform every segment gets: fit the
// natural size inside the render frame, center on padding, normalize SAR and
// frame rate.
func baseChain(cfg config.Config) []string {
	return []string{
		fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=1:flags=lanczos",
			cfg.Video.Width, cfg.Video.Height),
		fmt.Sprintf("pad=w=%d:h=%d:x=(ow-iw)/2:y=(oh-ih)/2:color=black",
			cfg.Video.Width, cfg.Video.Height),
		"setsar=1",
		fmt.Sprintf("fps=%d", cfg.Video.FPS),
	}
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func clampFloat(value, minVal, maxVal float64) float64 {
	return math.Max(minVal, math.Min(maxVal, value))
}
