package config

import (
	"fmt"
)

// Safe-zone floors. Platform chrome obscures at least this much of the frame.
const (
	minSafeTopFrac    = 0.10
	minSafeBottomFrac = 0.10
	minSafeSidePx     = 24
)

// ValidationResult captures a single validation finding.
type ValidationResult struct {
	Level   string `json:"level"` // "error" or "warning"
	Message string `json:"message"`
}

// Validate runs all structural validations against the config and returns
// structured results. A config with any "error" level result must not be used
// to drive a render.
func (c Config) Validate() []ValidationResult {
	var results []ValidationResult
	results = append(results, c.validateVideo()...)
	results = append(results, c.validateSafeZone()...)
	results = append(results, c.validateMemory()...)
	return results
}

func (c Config) validateVideo() []ValidationResult {
	var results []ValidationResult
	if c.Video.Width <= 0 || c.Video.Height <= 0 {
		results = append(results, ValidationResult{
			Level:   "error",
			Message: fmt.Sprintf("invalid frame size %dx%d", c.Video.Width, c.Video.Height),
		})
	}
	if c.Video.Width%2 != 0 || c.Video.Height%2 != 0 {
		results = append(results, ValidationResult{
			Level:   "error",
			Message: fmt.Sprintf("frame size %dx%d must have even dimensions", c.Video.Width, c.Video.Height),
		})
	}
	if c.Video.FPS <= 0 {
		results = append(results, ValidationResult{
			Level:   "error",
			Message: fmt.Sprintf("invalid fps %d", c.Video.FPS),
		})
	}
	if c.Video.MaxDurationSec <= 0 {
		results = append(results, ValidationResult{
			Level:   "error",
			Message: "max_duration_s must be positive",
		})
	}
	if c.Video.Width > c.Video.Height {
		results = append(results, ValidationResult{
			Level:   "warning",
			Message: fmt.Sprintf("frame size %dx%d is landscape; short-form targets are portrait", c.Video.Width, c.Video.Height),
		})
	}
	return results
}

func (c Config) validateSafeZone() []ValidationResult {
	var results []ValidationResult
	if c.SafeZone.TopFrac < minSafeTopFrac {
		results = append(results, ValidationResult{
			Level:   "error",
			Message: fmt.Sprintf("safe_zone top_frac %.2f below minimum %.2f", c.SafeZone.TopFrac, minSafeTopFrac),
		})
	}
	if c.SafeZone.BottomFrac < minSafeBottomFrac {
		results = append(results, ValidationResult{
			Level:   "error",
			Message: fmt.Sprintf("safe_zone bottom_frac %.2f below minimum %.2f", c.SafeZone.BottomFrac, minSafeBottomFrac),
		})
	}
	if c.SafeZone.LeftPx < minSafeSidePx || c.SafeZone.RightPx < minSafeSidePx {
		results = append(results, ValidationResult{
			Level:   "error",
			Message: fmt.Sprintf("safe_zone side insets %d/%d below minimum %dpx", c.SafeZone.LeftPx, c.SafeZone.RightPx, minSafeSidePx),
		})
	}
	if c.SafeZone.TopFrac+c.SafeZone.BottomFrac >= 0.8 {
		results = append(results, ValidationResult{
			Level:   "warning",
			Message: "safe zone leaves less than 20% of frame height for content",
		})
	}
	return results
}

func (c Config) validateMemory() []ValidationResult {
	var results []ValidationResult
	if c.Memory.CriticalMB <= c.Memory.WarningMB {
		results = append(results, ValidationResult{
			Level:   "error",
			Message: fmt.Sprintf("memory critical_mb %d must exceed warning_mb %d", c.Memory.CriticalMB, c.Memory.WarningMB),
		})
	}
	return results
}

// HasErrors reports whether any result is error level.
func HasErrors(results []ValidationResult) bool {
	for _, r := range results {
		if r.Level == "error" {
			return true
		}
	}
	return false
}
