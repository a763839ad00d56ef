package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures every tunable the render pipeline consumes. It is passed by
// value into each stage and never mutated mid-render.
type Config struct {
	Version  int            `yaml:"version"`
	Video    VideoConfig    `yaml:"video"`
	Audio    AudioConfig    `yaml:"audio"`
	SafeZone SafeZoneConfig `yaml:"safe_zone"`
	Overlays OverlaysConfig `yaml:"overlays"`
	Timing   TimingConfig   `yaml:"timing"`
	Memory   MemoryConfig   `yaml:"memory"`
	Encode   EncodeConfig   `yaml:"encode"`
}

// VideoConfig contains output frame geometry and duration limits.
type VideoConfig struct {
	Width          int     `yaml:"width"`
	Height         int     `yaml:"height"`
	FPS            int     `yaml:"fps"`
	MaxDurationSec float64 `yaml:"max_duration_s"`
}

// AudioConfig describes audio encoding and the beat grid fallback.
type AudioConfig struct {
	ACodec      string  `yaml:"acodec"`
	BitrateKbps int     `yaml:"bitrate_kbps"`
	SampleRate  int     `yaml:"sample_rate"`
	Channels    int     `yaml:"channels"`
	FallbackBPM float64 `yaml:"fallback_bpm"`
}

// SafeZoneConfig keeps overlays clear of platform UI chrome. Top and bottom
// are fractions of the frame height; left and right are pixel insets.
type SafeZoneConfig struct {
	TopFrac    float64 `yaml:"top_frac"`
	BottomFrac float64 `yaml:"bottom_frac"`
	LeftPx     int     `yaml:"left_px"`
	RightPx    int     `yaml:"right_px"`
}

// OverlaysConfig groups text styling for each overlay class.
type OverlaysConfig struct {
	FontFile       string `yaml:"font_file"`
	FontSizeHook   int    `yaml:"font_size_hook"`
	FontSizePhrase int    `yaml:"font_size_phrase"`
	FontSizeChip   int    `yaml:"font_size_chip"`
	FontSizeCTA    int    `yaml:"font_size_cta"`
	BrandColor     string `yaml:"brand_color"`
	ShadowColor    string `yaml:"shadow_color"`
	OutlineWidth   int    `yaml:"outline_width"`
}

// TimingConfig holds the animation timing constants shared by every overlay.
type TimingConfig struct {
	FadeInSec     float64 `yaml:"fade_in_s"`
	FadeOutSec    float64 `yaml:"fade_out_s"`
	StaggerSec    float64 `yaml:"stagger_s"`
	SpringDamping float64 `yaml:"spring_damping"`
}

// MemoryConfig drives the resource governor.
type MemoryConfig struct {
	WarningMB           int     `yaml:"warning_mb"`
	CriticalMB          int     `yaml:"critical_mb"`
	SustainedWarningSec float64 `yaml:"sustained_warning_s"`
	PoolMaxKeys         int     `yaml:"pool_max_keys"`
}

// EncodeConfig controls the encoder invocation and the export watchdog.
type EncodeConfig struct {
	Codec             string  `yaml:"codec"`
	Preset            string  `yaml:"preset"`
	CRF               int     `yaml:"crf"`
	Concurrency       int     `yaml:"concurrency"`
	ParallelThreshold int     `yaml:"parallel_threshold"`
	WatchdogSec       float64 `yaml:"watchdog_s"`
	MinOutputBytes    int64   `yaml:"min_output_bytes"`
}

// Default returns the baseline configuration: 1080x1920 portrait at 30fps,
// capped at 15 seconds.
func Default() Config {
	return Config{
		Version: 1,
		Video: VideoConfig{
			Width:          1080,
			Height:         1920,
			FPS:            30,
			MaxDurationSec: 15,
		},
		Audio: AudioConfig{
			ACodec:      "aac",
			BitrateKbps: 192,
			SampleRate:  44100,
			Channels:    2,
			FallbackBPM: 120,
		},
		SafeZone: SafeZoneConfig{
			TopFrac:    0.10,
			BottomFrac: 0.12,
			LeftPx:     48,
			RightPx:    48,
		},
		Overlays: OverlaysConfig{
			FontSizeHook:   72,
			FontSizePhrase: 54,
			FontSizeChip:   40,
			FontSizeCTA:    64,
			BrandColor:     "white",
			ShadowColor:    "black@0.6",
			OutlineWidth:   3,
		},
		Timing: TimingConfig{
			FadeInSec:     0.4,
			FadeOutSec:    0.35,
			StaggerSec:    0.13,
			SpringDamping: 0.8,
		},
		Memory: MemoryConfig{
			WarningMB:           250,
			CriticalMB:          300,
			SustainedWarningSec: 10,
			PoolMaxKeys:         16,
		},
		Encode: EncodeConfig{
			Codec:             "libx264",
			Preset:            "veryfast",
			CRF:               21,
			Concurrency:       2,
			ParallelThreshold: 4,
			WatchdogSec:       60,
			MinOutputBytes:    1024,
		},
	}
}

// Load reads the YAML configuration from disk if it exists, otherwise returns
// the default configuration.
func Load(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults backfills zero values that have no sensible zero meaning.
func (c *Config) ApplyDefaults() {
	def := Default()
	if c.Video.Width <= 0 {
		c.Video.Width = def.Video.Width
	}
	if c.Video.Height <= 0 {
		c.Video.Height = def.Video.Height
	}
	if c.Video.FPS <= 0 {
		c.Video.FPS = def.Video.FPS
	}
	if c.Video.MaxDurationSec <= 0 {
		c.Video.MaxDurationSec = def.Video.MaxDurationSec
	}
	if c.Audio.FallbackBPM <= 0 {
		c.Audio.FallbackBPM = def.Audio.FallbackBPM
	}
	if c.Memory.WarningMB <= 0 {
		c.Memory.WarningMB = def.Memory.WarningMB
	}
	if c.Memory.CriticalMB <= 0 {
		c.Memory.CriticalMB = def.Memory.CriticalMB
	}
	if c.Memory.SustainedWarningSec <= 0 {
		c.Memory.SustainedWarningSec = def.Memory.SustainedWarningSec
	}
	if c.Memory.PoolMaxKeys <= 0 {
		c.Memory.PoolMaxKeys = def.Memory.PoolMaxKeys
	}
	if c.Encode.Codec == "" {
		c.Encode.Codec = def.Encode.Codec
	}
	if c.Encode.Concurrency <= 0 {
		c.Encode.Concurrency = def.Encode.Concurrency
	}
	if c.Encode.ParallelThreshold <= 0 {
		c.Encode.ParallelThreshold = def.Encode.ParallelThreshold
	}
	if c.Encode.WatchdogSec <= 0 {
		c.Encode.WatchdogSec = def.Encode.WatchdogSec
	}
	if c.Encode.MinOutputBytes <= 0 {
		c.Encode.MinOutputBytes = def.Encode.MinOutputBytes
	}
	if c.Timing.FadeInSec <= 0 {
		c.Timing.FadeInSec = def.Timing.FadeInSec
	}
	if c.Timing.FadeOutSec <= 0 {
		c.Timing.FadeOutSec = def.Timing.FadeOutSec
	}
	if c.Timing.StaggerSec <= 0 {
		c.Timing.StaggerSec = def.Timing.StaggerSec
	}
}

// FrameDuration returns the duration of one output frame.
func (c Config) FrameDuration() time.Duration {
	fps := c.Video.FPS
	if fps <= 0 {
		fps = Default().Video.FPS
	}
	return time.Duration(float64(time.Second) / float64(fps))
}

// MaxDuration returns the configured output ceiling as a time.Duration.
func (c Config) MaxDuration() time.Duration {
	return time.Duration(c.Video.MaxDurationSec * float64(time.Second))
}

// WarningBytes returns the memory warning threshold in bytes.
func (c Config) WarningBytes() uint64 {
	return uint64(c.Memory.WarningMB) * 1024 * 1024
}

// CriticalBytes returns the memory critical threshold in bytes.
func (c Config) CriticalBytes() uint64 {
	return uint64(c.Memory.CriticalMB) * 1024 * 1024
}

// Save writes the configuration as YAML.
func (c Config) Save(path string) error {
	contents, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
