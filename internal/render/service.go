package render

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"reelforge/internal/config"
	"reelforge/internal/ffmpegx"
	"reelforge/internal/govern"
	"reelforge/internal/paths"
	"reelforge/internal/plan"
)

// ErrCancelled reports a cooperative cancellation observed between segments.
// Callers must keep it distinct from ordinary failures.
var ErrCancelled = errors.New("render cancelled")

// SegmentResult captures the outcome of one segment render attempt.
type SegmentResult struct {
	Index      int
	Phase      string
	OutputPath string
	LogPath    string
	Degraded   bool // rendered with the fallback filter graph
	Err        error
}

// ProgressReporter receives notifications as segments move through the
// render pipeline.
type ProgressReporter interface {
	SegmentStart(index int, item plan.TrackItem)
	SegmentDone(result SegmentResult)
}

// Service renders plan segments into self-contained clips. One shared
// service (and one shared probe cache) is reused across all segment renders;
// it is safe for concurrent use.
type Service struct {
	Workspace paths.Workspace
	Config    config.Config
	Runner    ffmpegx.Runner
	Governor  *govern.Governor
	Logger    *log.Logger

	ffmpegPath string

	probeMu    sync.Mutex
	probeCache map[string]ffmpegx.MediaInfo
}

// NewService prepares a segment renderer bound to a workspace. The service's
// probe cache registers with the governor so the cleanup cascade can clear it.
func NewService(ws paths.Workspace, cfg config.Config, runner ffmpegx.Runner, gov *govern.Governor, logger *log.Logger) (*Service, error) {
	if runner == nil {
		runner = ffmpegx.CmdRunner{}
	}
	if err := ws.EnsureDirs(); err != nil {
		return nil, err
	}

	ffmpegPath, err := ffmpegx.Lookup("ffmpeg")
	if err != nil {
		return nil, err
	}

	s := &Service{
		Workspace:  ws,
		Config:     cfg,
		Runner:     runner,
		Governor:   gov,
		Logger:     logger,
		ffmpegPath: ffmpegPath,
		probeCache: make(map[string]ffmpegx.MediaInfo),
	}
	if gov != nil {
		gov.RegisterCache(s.clearProbeCache)
	}
	return s, nil
}

func (s *Service) clearProbeCache() {
	s.probeMu.Lock()
	s.probeCache = make(map[string]ffmpegx.MediaInfo)
	s.probeMu.Unlock()
}

// ProbeCached probes target through the service's cache.
func (s *Service) ProbeCached(ctx context.Context, target string) (ffmpegx.MediaInfo, error) {
	s.probeMu.Lock()
	if info, ok := s.probeCache[target]; ok {
		s.probeMu.Unlock()
		return info, nil
	}
	s.probeMu.Unlock()

	info, err := ffmpegx.Probe(ctx, s.Runner, target)
	if err != nil {
		return ffmpegx.MediaInfo{}, err
	}

	s.probeMu.Lock()
	s.probeCache[target] = info
	s.probeMu.Unlock()
	return info, nil
}

// RenderSegments renders every TrackItem in the plan into a clip under the
// temp directory and returns the clip paths in plan order. The execution
// strategy is chosen by plan size: sequential below the parallel threshold,
// errgroup-bounded parallel at or above it. Both produce identical
// timelines.
func (s *Service) RenderSegments(ctx context.Context, rp plan.RenderPlan, token *govern.Token, reporter ProgressReporter) ([]string, error) {
	results := make([]SegmentResult, len(rp.Items))

	if len(rp.Items) >= s.Config.Encode.ParallelThreshold {
		if err := s.renderParallel(ctx, rp, token, reporter, results); err != nil {
			return nil, err
		}
	} else {
		if err := s.renderSequential(ctx, rp, token, reporter, results); err != nil {
			return nil, err
		}
	}

	outputs := make([]string, len(results))
	for i, res := range results {
		if res.Err != nil {
			return nil, fmt.Errorf("segment %d (%s): %w", res.Index, res.Phase, res.Err)
		}
		outputs[i] = res.OutputPath
	}
	return outputs, nil
}

func (s *Service) renderSequential(ctx context.Context, rp plan.RenderPlan, token *govern.Token, reporter ProgressReporter, results []SegmentResult) error {
	for i, item := range rp.Items {
		if err := s.checkCancel(ctx, token); err != nil {
			return err
		}
		if reporter != nil {
			reporter.SegmentStart(i, item)
		}
		results[i] = s.renderOne(ctx, i, item)
		if reporter != nil {
			reporter.SegmentDone(results[i])
		}
	}
	return nil
}

func (s *Service) renderParallel(ctx context.Context, rp plan.RenderPlan, token *govern.Token, reporter ProgressReporter, results []SegmentResult) error {
	group, groupCtx := errgroup.WithContext(ctx)
	concurrency := s.Config.Encode.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	group.SetLimit(concurrency)

	for i, item := range rp.Items {
		i, item := i, item
		group.Go(func() error {
			if err := s.checkCancel(groupCtx, token); err != nil {
				return err
			}
			if reporter != nil {
				reporter.SegmentStart(i, item)
			}
			results[i] = s.renderOne(groupCtx, i, item)
			if reporter != nil {
				reporter.SegmentDone(results[i])
			}
			return nil
		})
	}
	return group.Wait()
}

// checkCancel is the cooperative cancellation point between segments.
func (s *Service) checkCancel(ctx context.Context, token *govern.Token) error {
	if err := ctx.Err(); err != nil {
		return ErrCancelled
	}
	if s.Governor != nil && token != nil && s.Governor.ShouldCancel(token) {
		return ErrCancelled
	}
	return nil
}

func (s *Service) renderOne(ctx context.Context, index int, item plan.TrackItem) SegmentResult {
	result := SegmentResult{Index: index, Phase: item.Phase}

	base := fmt.Sprintf("seg_%03d_%s", index, item.Phase)
	outputPath := filepath.Join(s.Workspace.SegmentsDir, base+".mp4")
	logPath := filepath.Join(s.Workspace.LogsDir, base+".log")
	result.OutputPath = outputPath
	result.LogPath = logPath

	filterGraph, err := BuildSegmentFilterGraph(item, s.Config, s.Logger)
	if err != nil {
		// Graceful degradation: a broken filter chain drops to the bare
		// fit-and-motion graph instead of failing the segment.
		if s.Logger != nil {
			s.Logger.Printf("segment %d (%s) filter chain degraded: %v", index, item.Phase, err)
		}
		filterGraph = BaseSegmentFilterGraph(item, s.Config)
		result.Degraded = true
	}

	args, err := BuildSegmentArgs(item, outputPath, filterGraph, s.Config)
	if err != nil {
		result.Err = err
		return result
	}

	logFile, err := os.Create(logPath)
	if err != nil {
		result.Err = fmt.Errorf("open segment log: %w", err)
		return result
	}
	defer logFile.Close()

	if s.Logger != nil {
		s.Logger.Printf("rendering segment %d (%s) -> %s", index, item.Phase, filepath.Base(outputPath))
	}

	runOpts := ffmpegx.RunOptions{
		Dir:    s.Workspace.Root,
		Stderr: logFile,
	}
	if _, err := s.Runner.Run(ctx, s.ffmpegPath, args, runOpts); err != nil {
		_ = os.Remove(outputPath)
		if ctx.Err() != nil {
			result.Err = ErrCancelled
			return result
		}
		result.Err = fmt.Errorf("ffmpeg failed: %w (see %s)", err, logPath)
		return result
	}

	return result
}

// Stitch concatenates the segment clips and attaches looped audio, writing
// the intermediate timeline into the temp directory.
func (s *Service) Stitch(ctx context.Context, rp plan.RenderPlan, segmentPaths []string) (string, error) {
	concatFile := filepath.Join(s.Workspace.TempDir, "concat.txt")
	if err := WriteConcatList(concatFile, segmentPaths); err != nil {
		return "", err
	}

	audioDuration := 0.0
	audioPath := rp.AudioPath
	if audioPath != "" {
		info, err := s.ProbeCached(ctx, audioPath)
		if err != nil || !info.HasAudio {
			if s.Logger != nil {
				s.Logger.Printf("audio %s unusable at stitch, dropping track: %v", audioPath, err)
			}
			audioPath = ""
		} else {
			audioDuration = info.DurationSeconds
		}
	}

	stitchedPath := filepath.Join(s.Workspace.TempDir, "stitched.mp4")
	args, err := BuildStitchArgs(concatFile, audioPath, stitchedPath, rp.OutputDuration, audioDuration, s.Config)
	if err != nil {
		return "", err
	}

	logPath := filepath.Join(s.Workspace.LogsDir, "stitch.log")
	logFile, err := os.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("open stitch log: %w", err)
	}
	defer logFile.Close()

	if _, err := s.Runner.Run(ctx, s.ffmpegPath, args, ffmpegx.RunOptions{Stderr: logFile}); err != nil {
		_ = os.Remove(stitchedPath)
		if ctx.Err() != nil {
			return "", ErrCancelled
		}
		return "", fmt.Errorf("stitch failed: %w (see %s)", err, logPath)
	}
	return stitchedPath, nil
}

// RemoveSegments deletes consumed temp segment clips. Called by the engine
// immediately after the stitch so transient files do not accumulate.
func (s *Service) RemoveSegments(segmentPaths []string) {
	for _, path := range segmentPaths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && s.Logger != nil {
			s.Logger.Printf("could not remove segment %s: %v", path, err)
		}
	}
}
