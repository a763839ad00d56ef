package content

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Summary is the recipe-shaped content a render is built from. It is produced
// by an external summarizer; this package only loads and validates it.
type Summary struct {
	Title        string   `yaml:"title"`
	Steps        []string `yaml:"steps"`
	Ingredients  []string `yaml:"ingredients"`
	TotalMinutes int      `yaml:"total_minutes"`
	Servings     int      `yaml:"servings"`
	CallToAction string   `yaml:"call_to_action"`
}

// LoadSummary reads and validates a content summary YAML file.
func LoadSummary(path string) (Summary, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, fmt.Errorf("read content summary: %w", err)
	}

	var summary Summary
	if err := yaml.Unmarshal(contents, &summary); err != nil {
		return Summary{}, fmt.Errorf("unmarshal content summary: %w", err)
	}
	if err := summary.Validate(); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

// Validate checks the summary has enough substance to fill a template.
func (s Summary) Validate() error {
	var errs ValidationErrors
	if strings.TrimSpace(s.Title) == "" {
		errs = append(errs, ValidationError{Field: "title", Message: "required"})
	}
	if len(s.Steps) == 0 {
		errs = append(errs, ValidationError{Field: "steps", Message: "at least one step required"})
	}
	for i, step := range s.Steps {
		if strings.TrimSpace(step) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("steps[%d]", i),
				Message: "empty step",
			})
		}
	}
	if s.TotalMinutes < 0 {
		errs = append(errs, ValidationError{Field: "total_minutes", Message: "must not be negative"})
	}
	return errs.OrNil()
}

// Expand substitutes summary placeholders in tmpl. Supported placeholders:
// {title}, {cta}, {minutes}, {servings}, {ingredients}, {step_count} and
// {step1}..{stepN}. Unknown placeholders are left untouched.
func (s Summary) Expand(tmpl string) string {
	replacements := []string{
		"{title}", s.Title,
		"{cta}", s.CallToAction,
		"{minutes}", strconv.Itoa(s.TotalMinutes),
		"{servings}", strconv.Itoa(s.Servings),
		"{ingredients}", strings.Join(s.Ingredients, ", "),
		"{step_count}", strconv.Itoa(len(s.Steps)),
	}
	for i, step := range s.Steps {
		replacements = append(replacements, "{step"+strconv.Itoa(i+1)+"}", step)
	}

	replacer := strings.NewReplacer(replacements...)
	return strings.TrimSpace(replacer.Replace(tmpl))
}
