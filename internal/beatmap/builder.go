package beatmap

import (
	"context"
	"fmt"
	"log"

	"reelforge/internal/ffmpegx"
)

// Builder derives a beat map for the given audio (empty path means none) and
// output duration. Implementations must never fail because of the audio
// itself: an unreadable track falls back to the silent grid.
type Builder interface {
	Build(ctx context.Context, audioPath string, duration float64) (BeatMap, error)
}

// FixedGridBuilder places cues on a constant-tempo grid. When audio is
// present it uses the same grid at the fallback tempo (no onset analysis) and
// adds measure-level strong beats plus drop moments at fixed fractions of the
// duration.
type FixedGridBuilder struct {
	FallbackBPM float64
	Runner      ffmpegx.Runner
	Logger      *log.Logger
}

// NewFixedGridBuilder constructs the default heuristic builder.
func NewFixedGridBuilder(fallbackBPM float64, runner ffmpegx.Runner, logger *log.Logger) *FixedGridBuilder {
	if fallbackBPM <= 0 {
		fallbackBPM = 120
	}
	if runner == nil {
		runner = ffmpegx.CmdRunner{}
	}
	return &FixedGridBuilder{FallbackBPM: fallbackBPM, Runner: runner, Logger: logger}
}

// Build implements Builder.
func (b *FixedGridBuilder) Build(ctx context.Context, audioPath string, duration float64) (BeatMap, error) {
	if duration <= 0 {
		return BeatMap{}, fmt.Errorf("beat map duration must be positive, got %f", duration)
	}

	if audioPath == "" {
		return b.silentGrid(duration), nil
	}

	info, err := ffmpegx.Probe(ctx, b.Runner, audioPath)
	if err != nil || !info.HasAudio {
		// Audio that cannot be read never fails the render; fall back to
		// the silent grid.
		if b.Logger != nil {
			b.Logger.Printf("audio %s unusable, using silent beat grid: %v", audioPath, err)
		}
		return b.silentGrid(duration), nil
	}

	bpm := b.estimateBPM(info)
	grid := beatGrid(bpm, duration)

	var drops []float64
	if duration > 8 {
		drops = []float64{duration / 3, 2 * duration / 3}
	}

	m := BeatMap{
		BPM:         bpm,
		CueTimes:    mergeCues(duration, grid, drops),
		StrongBeats: everyNth(grid, 4),
		DropMoments: mergeCues(duration, drops),
	}
	return m, nil
}

// estimateBPM returns the tempo for the probed track. Real spectral analysis
// is out of scope; the fallback tempo stands in for it.
func (b *FixedGridBuilder) estimateBPM(ffmpegx.MediaInfo) float64 {
	return b.FallbackBPM
}

func (b *FixedGridBuilder) silentGrid(duration float64) BeatMap {
	grid := beatGrid(b.FallbackBPM, duration)
	return BeatMap{
		BPM:         b.FallbackBPM,
		CueTimes:    grid,
		StrongBeats: everyNth(grid, 4),
	}
}

// beatGrid produces cues every 60/bpm seconds from 0 through duration.
func beatGrid(bpm, duration float64) []float64 {
	interval := 60 / bpm
	var cues []float64
	for i := 0; ; i++ {
		t := float64(i) * interval
		if t > duration {
			break
		}
		cues = append(cues, t)
	}
	return cues
}

func everyNth(cues []float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	var out []float64
	for i := 0; i < len(cues); i += n {
		out = append(out, cues[i])
	}
	return out
}
