// Package engine orchestrates the full render pipeline: plan, segments,
// stitch, overlays, export. It owns the phase boundaries where cancellation
// and memory pressure are observed.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"syscall"

	"github.com/gofrs/flock"

	"reelforge/internal/beatmap"
	"reelforge/internal/config"
	"reelforge/internal/ffmpegx"
	"reelforge/internal/govern"
	"reelforge/internal/media"
	"reelforge/internal/paths"
	"reelforge/internal/plan"
	"reelforge/internal/render"
	"reelforge/pkg/content"
)

// Phase names one pipeline stage, reported in progress snapshots and errors.
type Phase string

const (
	PhaseValidate Phase = "validate"
	PhasePlan     Phase = "plan"
	PhaseSegments Phase = "segments"
	PhaseStitch   Phase = "stitch"
	PhaseExport   Phase = "export"
	PhaseFinalize Phase = "finalize"
)

// Progress is an ephemeral snapshot emitted during rendering.
type Progress struct {
	Phase       Phase
	Fraction    float64
	MemoryBytes uint64
}

// ProgressFunc receives progress snapshots. It may be called from a
// background goroutine and must not block.
type ProgressFunc func(Progress)

// Options tunes one render invocation.
type Options struct {
	Seed       int64
	Token      *govern.Token // optional; engine issues one when nil
	OnProgress ProgressFunc
	Reporter   render.ProgressReporter
}

// Engine wires the pipeline stages together around one governor instance.
// All services are explicit fields; nothing is process-global.
type Engine struct {
	Workspace paths.Workspace
	Config    config.Config
	Runner    ffmpegx.Runner
	Governor  *govern.Governor
	Beats     beatmap.Builder
	Logger    *log.Logger
}

// New builds an engine with the default heuristic beat builder.
func New(ws paths.Workspace, cfg config.Config, runner ffmpegx.Runner, gov *govern.Governor, logger *log.Logger) *Engine {
	if runner == nil {
		runner = ffmpegx.CmdRunner{}
	}
	if logger == nil {
		logger = log.New(discard{}, "", 0)
	}
	if gov == nil {
		gov = govern.New(govern.Options{
			WarningBytes:  cfg.WarningBytes(),
			CriticalBytes: cfg.CriticalBytes(),
			PoolMaxKeys:   cfg.Memory.PoolMaxKeys,
			Logger:        logger,
		})
	}
	return &Engine{
		Workspace: ws,
		Config:    cfg,
		Runner:    runner,
		Governor:  gov,
		Beats:     beatmap.NewFixedGridBuilder(cfg.Audio.FallbackBPM, runner, logger),
		Logger:    logger,
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Render runs the full pipeline and returns the final output path. Failures
// are always *Error values carrying a kind and recovery hint; cancellation
// is the distinct KindCancelled terminal state.
func (e *Engine) Render(ctx context.Context, tmpl content.Template, summary content.Summary, bundle media.Bundle, opts Options) (string, error) {
	token := opts.Token
	if token == nil {
		token = e.Governor.NewToken()
	}
	defer e.Governor.Unregister(token)

	// One render per workspace at a time.
	lock := flock.New(e.Workspace.LockFile)
	if err := e.Workspace.EnsureDirs(); err != nil {
		return "", newError(KindPipelineFailure, PhaseValidate, err)
	}
	locked, err := lock.TryLock()
	if err != nil {
		return "", newError(KindPipelineFailure, PhaseValidate, fmt.Errorf("acquire workspace lock: %w", err))
	}
	if !locked {
		return "", newError(KindPipelineFailure, PhaseValidate,
			errors.New("another render is already running in this workspace"))
	}
	defer lock.Unlock()

	// Transient files (staged media, segment clips, stitch scratch) are
	// cleared on every exit, failed renders included, while the lock is
	// still held.
	defer func() {
		if err := e.Workspace.CleanTemp(); err != nil && e.Logger != nil {
			e.Logger.Printf("temp cleanup: %v", err)
		}
	}()

	emit := func(phase Phase, fraction float64) {
		if opts.OnProgress == nil {
			return
		}
		status := e.Governor.Status()
		opts.OnProgress(Progress{Phase: phase, Fraction: fraction, MemoryBytes: status.CurrentUsage})
	}

	// Validate.
	if err := e.checkpoint(ctx, token, PhaseValidate); err != nil {
		return "", err
	}
	if results := e.Config.Validate(); config.HasErrors(results) {
		return "", newError(KindInputValidation, PhaseValidate, fmt.Errorf("config: %s", firstError(results)))
	}
	if status := e.Governor.Status(); status.Pressure == govern.PressureCritical {
		e.Governor.ForceCleanup()
		if after := e.Governor.Status(); after.Pressure == govern.PressureCritical {
			return "", newError(KindResourceExhaustion, PhaseValidate,
				fmt.Errorf("memory usage %d bytes above critical threshold %d", after.CurrentUsage, after.CriticalThreshold))
		}
	}
	emit(PhaseValidate, 0.05)

	// Plan.
	if err := e.checkpoint(ctx, token, PhasePlan); err != nil {
		return "", err
	}
	staged, err := media.Stage(ctx, bundle, e.Workspace.TempDir, e.Governor)
	if err != nil {
		return "", e.classify(PhasePlan, err)
	}
	duration := plan.OutputDuration(e.Config)
	beats, err := e.Beats.Build(ctx, staged.Audio, duration)
	if err != nil {
		return "", newError(KindInputValidation, PhasePlan, err)
	}
	planner := plan.Planner{Config: e.Config}
	rp, err := planner.Build(tmpl, summary, staged, beats, opts.Seed)
	if err != nil {
		return "", newError(KindInputValidation, PhasePlan, err)
	}
	emit(PhasePlan, 0.10)

	// Segments.
	if err := e.checkpoint(ctx, token, PhaseSegments); err != nil {
		return "", err
	}
	service, err := render.NewService(e.Workspace, e.Config, e.Runner, e.Governor, e.Logger)
	if err != nil {
		return "", newError(KindPipelineFailure, PhaseSegments, err)
	}
	reporter := &segmentProgress{
		total: len(rp.Items),
		emit:  func(fraction float64) { emit(PhaseSegments, fraction) },
		next:  opts.Reporter,
	}
	segmentPaths, err := service.RenderSegments(ctx, rp, token, reporter)
	if err != nil {
		return "", e.classify(PhaseSegments, err)
	}
	// A lone fallback graph degrades silently; losing most of the filter
	// treatment fails the render.
	if total, degraded := len(rp.Items), reporter.degradedCount(); total > 0 && degraded*2 > total {
		return "", newError(KindPipelineFailure, PhaseSegments,
			fmt.Errorf("%d of %d segments fell back to the base filter graph", degraded, total))
	}
	emit(PhaseSegments, 0.70)

	// Stitch, then drop the consumed segment files immediately.
	if err := e.checkpoint(ctx, token, PhaseStitch); err != nil {
		return "", err
	}
	stitchedPath, err := service.Stitch(ctx, rp, segmentPaths)
	if err != nil {
		return "", e.classify(PhaseStitch, err)
	}
	service.RemoveSegments(segmentPaths)
	emit(PhaseStitch, 0.78)

	// Overlay pass + export.
	if err := e.checkpoint(ctx, token, PhaseExport); err != nil {
		return "", err
	}
	exporter, err := render.NewExporter(e.Config, e.Runner, e.Logger)
	if err != nil {
		return "", newError(KindPipelineFailure, PhaseExport, err)
	}
	if err := exporter.Export(ctx, stitchedPath, rp.Overlays, e.Workspace.OutputFile, rp.OutputDuration); err != nil {
		return "", e.classify(PhaseExport, err)
	}
	emit(PhaseExport, 0.95)

	emit(PhaseFinalize, 1.0)
	return e.Workspace.OutputFile, nil
}

// checkpoint is the per-phase boundary: resample memory, force cleanup on a
// transition into critical pressure, and observe cooperative cancellation.
func (e *Engine) checkpoint(ctx context.Context, token *govern.Token, phase Phase) error {
	status := e.Governor.Status()
	if status.Pressure == govern.PressureCritical {
		e.Governor.ForceCleanup()
	}
	if ctx.Err() != nil {
		return newError(KindCancelled, phase, ctx.Err())
	}
	if e.Governor.ShouldCancel(token) {
		return newError(KindCancelled, phase, errors.New("cancellation requested"))
	}
	return nil
}

// classify maps stage errors onto the failure taxonomy.
func (e *Engine) classify(phase Phase, err error) error {
	switch {
	case errors.Is(err, render.ErrCancelled), errors.Is(err, context.Canceled):
		return newError(KindCancelled, phase, err)
	case errors.Is(err, render.ErrOverlaysDegraded):
		return newError(KindOverlayDegradation, phase, err)
	case errors.Is(err, syscall.ENOSPC):
		return newError(KindResourceExhaustion, phase, err)
	default:
		return newError(KindPipelineFailure, phase, err)
	}
}

func firstError(results []config.ValidationResult) string {
	for _, r := range results {
		if r.Level == "error" {
			return r.Message
		}
	}
	return "invalid configuration"
}

// segmentProgress maps completed segment counts onto the engine's overall
// progress band and forwards to any caller-supplied reporter.
type segmentProgress struct {
	mu       sync.Mutex
	done     int
	degraded int
	total    int
	emit     func(float64)
	next     render.ProgressReporter
}

func (p *segmentProgress) degradedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.degraded
}

func (p *segmentProgress) SegmentStart(index int, item plan.TrackItem) {
	if p.next != nil {
		p.next.SegmentStart(index, item)
	}
}

func (p *segmentProgress) SegmentDone(result render.SegmentResult) {
	p.mu.Lock()
	p.done++
	if result.Degraded {
		p.degraded++
	}
	done, total := p.done, p.total
	p.mu.Unlock()

	if total > 0 && p.emit != nil {
		// Segments occupy the 0.10..0.70 band of overall progress.
		p.emit(0.10 + 0.60*float64(done)/float64(total))
	}
	if p.next != nil {
		p.next.SegmentDone(result)
	}
}
