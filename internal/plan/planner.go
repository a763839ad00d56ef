package plan

import (
	"fmt"
	"math"
	"math/rand"

	"reelforge/internal/beatmap"
	"reelforge/internal/config"
	"reelforge/internal/media"
	"reelforge/pkg/content"
)

// hardDurationCapSec is the absolute output ceiling regardless of config.
const hardDurationCapSec = 15.0

// OutputDuration returns the output length a render will target.
func OutputDuration(cfg config.Config) float64 {
	return math.Min(cfg.Video.MaxDurationSec, hardDurationCapSec)
}

// Planner converts a template, content summary, and media bundle into a
// RenderPlan. Build is pure and deterministic for a given seed: the seed only
// feeds the synthesized still motion, never timing.
type Planner struct {
	Config config.Config
}

// Build validates inputs aggressively and produces the plan. It returns an
// error, never a partial plan, when required media is missing, requested
// duration is not positive, or any input image cannot be decoded.
func (p Planner) Build(
	tmpl content.Template,
	summary content.Summary,
	bundle media.Bundle,
	beats beatmap.BeatMap,
	seed int64,
) (RenderPlan, error) {
	duration := OutputDuration(p.Config)
	if duration <= 0 {
		return RenderPlan{}, fmt.Errorf("requested duration %f is not positive", duration)
	}
	if err := tmpl.Validate(); err != nil {
		return RenderPlan{}, fmt.Errorf("template: %w", err)
	}
	if err := summary.Validate(); err != nil {
		return RenderPlan{}, fmt.Errorf("content summary: %w", err)
	}

	imageSlots := make([]string, 0, len(tmpl.Phases))
	needsBRoll := false
	seen := map[string]bool{}
	for _, slot := range tmpl.RequiredSlots() {
		if slot == content.SlotBRoll {
			needsBRoll = true
			continue
		}
		if !seen[slot] {
			seen[slot] = true
			imageSlots = append(imageSlots, slot)
		}
	}
	if needsBRoll && len(bundle.BRoll) == 0 {
		return RenderPlan{}, fmt.Errorf("template uses b-roll but bundle has no clips")
	}

	infos, err := media.InspectBundle(bundle, imageSlots)
	if err != nil {
		return RenderPlan{}, err
	}

	scale := duration / tmpl.ReferenceSec

	result := RenderPlan{
		AudioPath:      bundle.Audio,
		OutputDuration: duration,
		Seed:           seed,
	}

	phraseIndex := 0
	brollIndex := 0

	for i, phase := range tmpl.Phases {
		start := phase.StartSec * scale
		end := phase.EndSec * scale
		if i == len(tmpl.Phases)-1 {
			end = duration // absorb rounding so phases tile exactly
		}

		item, err := p.buildItem(phase, i, start, end, bundle, infos, beats, seed, &brollIndex)
		if err != nil {
			return RenderPlan{}, err
		}
		result.Items = append(result.Items, item)

		overlays := p.buildOverlays(phase, summary, beats, start, end, &phraseIndex)
		result.Overlays = append(result.Overlays, overlays...)
	}

	if err := result.Validate(1.0 / float64(p.Config.Video.FPS)); err != nil {
		return RenderPlan{}, fmt.Errorf("plan invariant violated: %w", err)
	}
	return result, nil
}

func (p Planner) buildItem(
	phase content.PhaseSpec,
	index int,
	start, end float64,
	bundle media.Bundle,
	infos map[string]media.ImageInfo,
	beats beatmap.BeatMap,
	seed int64,
	brollIndex *int,
) (TrackItem, error) {
	item := TrackItem{
		Phase:    phase.Name,
		Start:    start,
		Duration: end - start,
		Filters:  p.resolveFilters(phase, beats, start, end),
	}

	if phase.MediaSlot == content.SlotBRoll {
		item.Kind = KindClip
		item.Source = bundle.BRoll[*brollIndex%len(bundle.BRoll)]
		*brollIndex++
		return item, nil
	}

	path, ok := bundle.ImageFor(phase.MediaSlot)
	if !ok {
		return TrackItem{}, fmt.Errorf("phase %q requires media slot %q which is missing", phase.Name, phase.MediaSlot)
	}
	info, ok := infos[phase.MediaSlot]
	if !ok {
		inspected, err := media.Inspect(path)
		if err != nil {
			return TrackItem{}, err
		}
		info = inspected
	}

	item.Kind = KindStill
	item.Source = path
	item.NaturalWidth = info.Width
	item.NaturalHeight = info.Height
	item.Motion = synthesizeMotion(seed, index)
	return item, nil
}

// synthesizeMotion derives bounded Ken Burns parameters from the seed and
// phase index. Identical seeds always yield identical motion.
func synthesizeMotion(seed int64, phaseIndex int) Motion {
	rng := rand.New(rand.NewSource(seed + int64(phaseIndex)*7919))
	return Motion{
		ZoomStart: 1.0 + rng.Float64()*0.04,
		ZoomEnd:   1.08 + rng.Float64()*0.10,
		PanX:      (rng.Float64() - 0.5) * 0.08,
		PanY:      (rng.Float64() - 0.5) * 0.08,
	}
}

// resolveFilters copies the phase's filter chain, binding beat-driven
// parameters: velocity filters get their period from the beat interval, and
// any drop moment inside the phase window adds a flash.
func (p Planner) resolveFilters(phase content.PhaseSpec, beats beatmap.BeatMap, start, end float64) []Filter {
	var filters []Filter
	for _, spec := range phase.Filters {
		filter := Filter{Name: spec.Name, Params: make(map[string]float64, len(spec.Params)+1)}
		for k, v := range spec.Params {
			filter.Params[k] = v
		}
		if spec.Name == "velocity" {
			if interval := beats.BeatInterval(); interval > 0 {
				filter.Params["period"] = interval
			}
		}
		filters = append(filters, filter)
	}

	for _, drop := range beats.DropMoments {
		if drop >= start && drop < end {
			filters = append(filters, Filter{
				Name: "flash",
				Params: map[string]float64{
					"at":       drop - start,
					"duration": 0.15,
				},
			})
		}
	}
	return filters
}

const (
	overlayLeadFrac  = 0.05
	overlaySpanFrac  = 0.90
	minOverlaySec    = 0.5
	maxChips         = 4
	maxPhaseSteps    = 3
	chipBaseLeadFrac = 0.25
)

func (p Planner) buildOverlays(
	phase content.PhaseSpec,
	summary content.Summary,
	beats beatmap.BeatMap,
	start, end float64,
	phraseIndex *int,
) []Overlay {
	var overlays []Overlay
	phaseLen := end - start
	cfg := p.Config

	switch phase.Kind {
	case content.KindHook:
		if text := summary.Expand(phase.Text); text != "" {
			o := p.timedOverlay(beats, start, end, phaseLen)
			o.Layer = HookLayer(cfg, text, o.Duration)
			overlays = append(overlays, o)
		}

	case content.KindCTA:
		if text := summary.Expand(phase.Text); text != "" {
			o := p.timedOverlay(beats, start, end, phaseLen)
			o.Layer = CTALayer(cfg, text, o.Duration)
			overlays = append(overlays, o)

			counter := o
			counter.Layer = CounterLayer(cfg, counter.Duration)
			overlays = append(overlays, counter)
		}

	case content.KindTransformation:
		overlays = append(overlays, p.sequentialPhrases(phase, summary, beats, start, end, phraseIndex)...)
		overlays = append(overlays, p.chipList(phase, summary, start, end)...)

	default:
		if text := summary.Expand(phase.Text); text != "" {
			o := p.timedOverlay(beats, start, end, phaseLen)
			o.Layer = PhraseLayer(cfg, text, *phraseIndex, o.Duration)
			*phraseIndex++
			overlays = append(overlays, o)
		}
	}

	return overlays
}

// timedOverlay places a single overlay spanning most of the phase, with its
// start snapped to the nearest beat cue that keeps the window inside the
// phase.
func (p Planner) timedOverlay(beats beatmap.BeatMap, start, end, phaseLen float64) Overlay {
	dur := phaseLen * overlaySpanFrac
	desired := start + phaseLen*overlayLeadFrac
	snapped := beats.NearestIn(desired, start, end-dur)
	return Overlay{Start: snapped, Duration: dur}
}

// sequentialPhrases spreads up to maxPhaseSteps recipe steps across the
// phase as non-overlapping phrase overlays, alternating origin side by
// sequence index.
func (p Planner) sequentialPhrases(
	phase content.PhaseSpec,
	summary content.Summary,
	beats beatmap.BeatMap,
	start, end float64,
	phraseIndex *int,
) []Overlay {
	texts := make([]string, 0, maxPhaseSteps)
	for _, step := range summary.Steps {
		if len(texts) == maxPhaseSteps {
			break
		}
		texts = append(texts, step)
	}
	if len(texts) == 0 {
		if text := summary.Expand(phase.Text); text != "" {
			texts = append(texts, text)
		}
	}
	if len(texts) == 0 {
		return nil
	}

	phaseLen := end - start
	slot := phaseLen / float64(len(texts))
	var overlays []Overlay
	for i, text := range texts {
		slotStart := start + float64(i)*slot
		slotEnd := slotStart + slot
		dur := slot * overlaySpanFrac
		if dur < minOverlaySec {
			break
		}
		snapped := beats.NearestIn(slotStart+slot*overlayLeadFrac, slotStart, slotEnd-dur)
		o := Overlay{Start: snapped, Duration: dur}
		o.Layer = PhraseLayer(p.Config, text, *phraseIndex, o.Duration)
		*phraseIndex++
		overlays = append(overlays, o)
	}
	return overlays
}

// chipList builds the staggered chip overlays for a phase. Item i begins at
// base + i*stagger; all chips share one end so N items finish appearing
// within N*stagger of each other.
func (p Planner) chipList(phase content.PhaseSpec, summary content.Summary, start, end float64) []Overlay {
	var source []string
	switch phase.ChipSource {
	case "ingredients":
		source = summary.Ingredients
	case "steps":
		source = summary.Steps
	default:
		return nil
	}
	if len(source) == 0 {
		return nil
	}
	if len(source) > maxChips {
		source = source[:maxChips]
	}

	phaseLen := end - start
	base := start + phaseLen*chipBaseLeadFrac
	chipEnd := end - phaseLen*overlayLeadFrac
	stagger := p.Config.Timing.StaggerSec

	var overlays []Overlay
	for i, text := range source {
		chipStart := base + float64(i)*stagger
		dur := chipEnd - chipStart
		if dur < minOverlaySec {
			break
		}
		overlays = append(overlays, Overlay{
			Start:    chipStart,
			Duration: dur,
			Layer:    ChipLayer(p.Config, "• "+text, i, dur),
		})
	}
	return overlays
}
