package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"reelforge/internal/config"
	"reelforge/internal/ffmpegx"
	"reelforge/internal/plan"
)

// ErrEncodeTimeout reports that the final encode made no forward progress
// within the configured watchdog ceiling and was force-cancelled.
var ErrEncodeTimeout = errors.New("encode made no progress before watchdog ceiling")

// Exporter burns the overlay layer set onto the stitched timeline and
// finalizes the container file. It writes to a temp path and renames on
// success so a failed export never leaves a partial file at the destination.
type Exporter struct {
	Config config.Config
	Runner ffmpegx.Runner
	Logger *log.Logger

	ffmpegPath string
}

// NewExporter resolves ffmpeg and returns an exporter.
func NewExporter(cfg config.Config, runner ffmpegx.Runner, logger *log.Logger) (*Exporter, error) {
	if runner == nil {
		runner = ffmpegx.CmdRunner{}
	}
	ffmpegPath, err := ffmpegx.Lookup("ffmpeg")
	if err != nil {
		return nil, err
	}
	return &Exporter{
		Config:     cfg,
		Runner:     runner,
		Logger:     logger,
		ffmpegPath: ffmpegPath,
	}, nil
}

// BuildExportArgs assembles the final encode invocation, in a separate
// function so tests can assert the command line without running ffmpeg.
func BuildExportArgs(stitchedPath, outputPath string, overlayGraph string, outputDuration float64, cfg config.Config) ([]string, error) {
	if strings.TrimSpace(stitchedPath) == "" {
		return nil, errors.New("stitched input path is empty")
	}
	if strings.TrimSpace(outputPath) == "" {
		return nil, errors.New("output path is empty")
	}

	args := []string{
		"-hide_banner",
		"-y",
		"-i", stitchedPath,
	}
	if strings.TrimSpace(overlayGraph) != "" {
		args = append(args, "-vf", overlayGraph)
	}
	args = append(args, "-t", formatFloat(outputDuration))
	args = append(args, encodeArgs(cfg)...)
	args = append(args, "-c:a", "copy")
	args = append(args,
		"-progress", "pipe:1",
		"-movflags", "+faststart",
		outputPath,
	)
	return args, nil
}

// Export encodes stitchedPath with the overlay pass into outputPath.
func (e *Exporter) Export(ctx context.Context, stitchedPath string, overlays []plan.Overlay, outputPath string, outputDuration float64) error {
	filters, dropped := BuildOverlayFilters(overlays, e.Config, e.Logger)
	if total := len(overlays); total > 0 && dropped*2 > total {
		return fmt.Errorf("%w: %d of %d layers dropped", ErrOverlaysDegraded, dropped, total)
	}
	overlayGraph := strings.Join(filters, ",")

	tempPath := filepath.Join(
		filepath.Dir(outputPath),
		fmt.Sprintf(".%s.tmp-%s.mp4", strings.TrimSuffix(filepath.Base(outputPath), filepath.Ext(outputPath)), uuid.NewString()[:8]),
	)

	args, err := BuildExportArgs(stitchedPath, tempPath, overlayGraph, outputDuration, e.Config)
	if err != nil {
		return err
	}

	if err := e.runWatched(ctx, args, tempPath); err != nil {
		_ = os.Remove(tempPath)
		return err
	}

	if err := e.validate(ctx, tempPath, outputDuration); err != nil {
		_ = os.Remove(tempPath)
		return err
	}

	if err := os.Rename(tempPath, outputPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("finalize output: %w", err)
	}
	return nil
}

// runWatched executes the encode while polling its -progress stream. If the
// reported out_time stops advancing for the watchdog ceiling the encode is
// force-cancelled and reported as a timeout.
func (e *Exporter) runWatched(ctx context.Context, args []string, outputPath string) error {
	ceiling := time.Duration(e.Config.Encode.WatchdogSec * float64(time.Second))
	if ceiling <= 0 {
		ceiling = 60 * time.Second
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	watcher := newProgressWatcher()
	timedOut := make(chan struct{})
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		ticker := time.NewTicker(ceiling / 4)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if watcher.stalledFor() > ceiling {
					close(timedOut)
					cancel()
					return
				}
			}
		}
	}()

	_, runErr := e.Runner.Run(runCtx, e.ffmpegPath, args, ffmpegx.RunOptions{Stdout: watcher})
	cancel()
	<-watchDone

	select {
	case <-timedOut:
		return fmt.Errorf("export %s: %w", outputPath, ErrEncodeTimeout)
	default:
	}
	if runErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("export encode failed: %w", runErr)
	}
	return nil
}

// validate rejects near-empty or mis-timed output as a failure rather than
// a silent success.
func (e *Exporter) validate(ctx context.Context, path string, expectedDuration float64) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat exported file: %w", err)
	}
	minBytes := e.Config.Encode.MinOutputBytes
	if minBytes <= 0 {
		minBytes = 1024
	}
	if info.Size() < minBytes {
		return fmt.Errorf("exported file is %d bytes, below minimum %d", info.Size(), minBytes)
	}

	probed, err := ffmpegx.Probe(ctx, e.Runner, path)
	if err != nil {
		// A probe failure here is suspicious but the encode succeeded and
		// the file has substance; log and accept.
		if e.Logger != nil {
			e.Logger.Printf("could not probe exported file %s: %v", path, err)
		}
		return nil
	}
	if probed.DurationSeconds > 0 {
		frame := 1.0 / float64(e.Config.Video.FPS)
		if math.Abs(probed.DurationSeconds-expectedDuration) > frame*1.5 {
			return fmt.Errorf("exported duration %.3fs, expected %.3fs",
				probed.DurationSeconds, expectedDuration)
		}
	}
	return nil
}

// progressWatcher parses ffmpeg -progress key=value output and records when
// out_time last advanced.
type progressWatcher struct {
	mu          sync.Mutex
	buf         bytes.Buffer
	lastOutTime int64 // microseconds
	lastAdvance time.Time
}

func newProgressWatcher() *progressWatcher {
	return &progressWatcher{lastAdvance: time.Now()}
}

func (w *progressWatcher) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Keep the partial line for the next write.
			w.buf.WriteString(line)
			break
		}
		w.consumeLine(strings.TrimSpace(line))
	}
	return len(p), nil
}

func (w *progressWatcher) consumeLine(line string) {
	value, ok := strings.CutPrefix(line, "out_time_us=")
	if !ok {
		return
	}
	us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return
	}
	if us > w.lastOutTime {
		w.lastOutTime = us
		w.lastAdvance = time.Now()
	}
}

func (w *progressWatcher) stalledFor() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Since(w.lastAdvance)
}
