package content

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Phase kinds understood by the planner.
const (
	KindHook           = "hook"
	KindPromise        = "promise"
	KindTransformation = "transformation"
	KindReveal         = "reveal"
	KindCTA            = "cta"
)

// Media slots a phase may draw its visual from.
const (
	SlotBefore  = "before"
	SlotProcess = "process"
	SlotAfter   = "after"
	SlotBRoll   = "broll"
)

// FilterSpec names one parameterized image operation applied to a phase's
// segment. Order in the list is the order of application.
type FilterSpec struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params,omitempty"`
}

// PhaseSpec describes one timed phase of a template. Start and End are
// expressed in seconds on the template's reference duration scale; the
// planner rescales them to the requested output duration.
type PhaseSpec struct {
	Name       string       `yaml:"name"`
	Kind       string       `yaml:"kind"`
	StartSec   float64      `yaml:"start_s"`
	EndSec     float64      `yaml:"end_s"`
	MediaSlot  string       `yaml:"media_slot"`
	Text       string       `yaml:"text"`
	ChipSource string       `yaml:"chip_source,omitempty"` // "ingredients" or "steps"
	Filters    []FilterSpec `yaml:"filters,omitempty"`
}

// Duration returns the phase length on the reference scale.
func (p PhaseSpec) Duration() float64 {
	return p.EndSec - p.StartSec
}

// Template is the declarative shape of a reel: an ordered phase table on a
// reference time scale.
type Template struct {
	Name         string      `yaml:"name"`
	ReferenceSec float64     `yaml:"reference_s"`
	Phases       []PhaseSpec `yaml:"phases"`
}

// Reference returns the built-in before/after transformation template on a
// 15 second reference scale.
func Reference() Template {
	return Template{
		Name:         "transformation",
		ReferenceSec: 15,
		Phases: []PhaseSpec{
			{
				Name:      "hook",
				Kind:      KindHook,
				StartSec:  0,
				EndSec:    3,
				MediaSlot: SlotBefore,
				Text:      "{title}",
				Filters: []FilterSpec{
					{Name: "grade", Params: map[string]float64{"warmth": 0.15, "contrast": 1.1}},
					{Name: "breathe", Params: map[string]float64{"amount": 0.015}},
				},
			},
			{
				Name:      "promise",
				Kind:      KindPromise,
				StartSec:  3,
				EndSec:    5,
				MediaSlot: SlotProcess,
				Text:      "{minutes} minutes. {step_count} steps.",
				Filters: []FilterSpec{
					{Name: "grade", Params: map[string]float64{"saturation": 1.15}},
				},
			},
			{
				Name:       "transformation",
				Kind:       KindTransformation,
				StartSec:   5,
				EndSec:     11,
				MediaSlot:  SlotProcess,
				Text:       "{step1}",
				ChipSource: "ingredients",
				Filters: []FilterSpec{
					{Name: "velocity", Params: map[string]float64{"intensity": 0.5}},
					{Name: "grain", Params: map[string]float64{"strength": 8}},
				},
			},
			{
				Name:      "reveal",
				Kind:      KindReveal,
				StartSec:  11,
				EndSec:    13,
				MediaSlot: SlotAfter,
				Text:      "{servings} servings, ready to go",
				Filters: []FilterSpec{
					{Name: "grade", Params: map[string]float64{"saturation": 1.2, "contrast": 1.15}},
					{Name: "vignette", Params: map[string]float64{"angle": 0.4}},
					{Name: "lightleak", Params: map[string]float64{"strength": 0.2}},
				},
			},
			{
				Name:      "cta",
				Kind:      KindCTA,
				StartSec:  13,
				EndSec:    15,
				MediaSlot: SlotAfter,
				Text:      "{cta}",
				Filters: []FilterSpec{
					{Name: "blur", Params: map[string]float64{"sigma": 12}},
				},
			},
		},
	}
}

// LoadTemplate reads and validates a template YAML file. A missing file
// yields the built-in reference template.
func LoadTemplate(path string) (Template, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Reference(), nil
		}
		return Template{}, fmt.Errorf("read template: %w", err)
	}

	var tmpl Template
	if err := yaml.Unmarshal(contents, &tmpl); err != nil {
		return Template{}, fmt.Errorf("unmarshal template: %w", err)
	}
	if err := tmpl.Validate(); err != nil {
		return Template{}, err
	}
	return tmpl, nil
}

const phaseEpsilon = 1e-6

// Validate checks phase table structure: known kinds and slots, positive
// reference duration, and phases tiling [0, ReferenceSec] with no gaps or
// overlaps.
func (t Template) Validate() error {
	var errs ValidationErrors

	if strings.TrimSpace(t.Name) == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "required"})
	}
	if t.ReferenceSec <= 0 {
		errs = append(errs, ValidationError{Field: "reference_s", Message: "must be positive"})
	}
	if len(t.Phases) == 0 {
		errs = append(errs, ValidationError{Field: "phases", Message: "at least one phase required"})
		return errs
	}

	knownKinds := map[string]bool{
		KindHook: true, KindPromise: true, KindTransformation: true,
		KindReveal: true, KindCTA: true,
	}
	knownSlots := map[string]bool{
		SlotBefore: true, SlotProcess: true, SlotAfter: true, SlotBRoll: true,
	}

	for i, phase := range t.Phases {
		field := fmt.Sprintf("phases[%d]", i)
		if !knownKinds[phase.Kind] {
			errs = append(errs, ValidationError{Field: field + ".kind", Message: fmt.Sprintf("unknown kind %q", phase.Kind)})
		}
		if !knownSlots[phase.MediaSlot] {
			errs = append(errs, ValidationError{Field: field + ".media_slot", Message: fmt.Sprintf("unknown slot %q", phase.MediaSlot)})
		}
		if phase.Duration() <= 0 {
			errs = append(errs, ValidationError{Field: field, Message: "phase duration must be positive"})
		}
		if phase.ChipSource != "" && phase.ChipSource != "ingredients" && phase.ChipSource != "steps" {
			errs = append(errs, ValidationError{Field: field + ".chip_source", Message: fmt.Sprintf("unknown chip source %q", phase.ChipSource)})
		}
	}

	// Phases must tile [0, ReferenceSec] in order.
	if math.Abs(t.Phases[0].StartSec) > phaseEpsilon {
		errs = append(errs, ValidationError{Field: "phases[0].start_s", Message: "first phase must start at 0"})
	}
	for i := 1; i < len(t.Phases); i++ {
		if math.Abs(t.Phases[i].StartSec-t.Phases[i-1].EndSec) > phaseEpsilon {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("phases[%d].start_s", i),
				Message: fmt.Sprintf("phase must start where previous ends (%.3f)", t.Phases[i-1].EndSec),
			})
		}
	}
	if t.ReferenceSec > 0 {
		last := t.Phases[len(t.Phases)-1]
		if math.Abs(last.EndSec-t.ReferenceSec) > phaseEpsilon {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("phases[%d].end_s", len(t.Phases)-1),
				Message: fmt.Sprintf("last phase must end at reference duration %.3f", t.ReferenceSec),
			})
		}
	}

	return errs.OrNil()
}

// RequiredSlots returns the distinct media slots the template draws from.
func (t Template) RequiredSlots() []string {
	seen := make(map[string]bool)
	var slots []string
	for _, phase := range t.Phases {
		if !seen[phase.MediaSlot] {
			seen[phase.MediaSlot] = true
			slots = append(slots, phase.MediaSlot)
		}
	}
	return slots
}
