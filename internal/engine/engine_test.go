package engine

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"

	"reelforge/internal/config"
	"reelforge/internal/ffmpegx"
	"reelforge/internal/media"
	"reelforge/internal/paths"
	"reelforge/internal/render"
	"reelforge/pkg/content"
)

type fakeRunner struct {
	onFFmpeg  func(ctx context.Context, args []string, opts ffmpegx.RunOptions) (ffmpegx.RunResult, error)
	onFFprobe func(ctx context.Context, args []string) (ffmpegx.RunResult, error)
}

func (r fakeRunner) Run(ctx context.Context, command string, args []string, opts ffmpegx.RunOptions) (ffmpegx.RunResult, error) {
	switch filepath.Base(command) {
	case "ffprobe":
		if r.onFFprobe != nil {
			return r.onFFprobe(ctx, args)
		}
	default:
		if r.onFFmpeg != nil {
			return r.onFFmpeg(ctx, args, opts)
		}
	}
	return ffmpegx.RunResult{}, nil
}

func stubTools(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"ffmpeg", "ffprobe"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("PATH", dir)
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func testInputs(t *testing.T) (content.Template, content.Summary, media.Bundle) {
	t.Helper()
	dir := t.TempDir()
	before := filepath.Join(dir, "before.png")
	after := filepath.Join(dir, "after.png")
	writePNG(t, before, 640, 960)
	writePNG(t, after, 640, 960)

	summary := content.Summary{
		Title:        "Weeknight Ramen",
		Steps:        []string{"Boil broth", "Cook noodles", "Assemble bowl"},
		Ingredients:  []string{"broth", "noodles", "egg"},
		TotalMinutes: 20,
		Servings:     2,
		CallToAction: "Save this for later",
	}
	bundle := media.Bundle{Images: map[string]string{
		content.SlotBefore: before,
		content.SlotAfter:  after,
	}}
	return content.Reference(), summary, bundle
}

func successRunner() fakeRunner {
	return fakeRunner{
		onFFmpeg: func(ctx context.Context, args []string, opts ffmpegx.RunOptions) (ffmpegx.RunResult, error) {
			return ffmpegx.RunResult{}, os.WriteFile(args[len(args)-1], make([]byte, 4096), 0o644)
		},
		onFFprobe: func(ctx context.Context, args []string) (ffmpegx.RunResult, error) {
			out := `{"format":{"format_name":"mov,mp4","duration":"15.000000"},"streams":[{"codec_type":"video","width":1080,"height":1920}]}`
			return ffmpegx.RunResult{Stdout: []byte(out)}, nil
		},
	}
}

func TestRenderEndToEnd(t *testing.T) {
	stubTools(t)
	ws := paths.New(t.TempDir())
	tmpl, summary, bundle := testInputs(t)

	eng := New(ws, config.Default(), successRunner(), nil, nil)

	var mu sync.Mutex
	var phases []Phase
	lastFraction := 0.0
	opts := Options{
		Seed: 42,
		OnProgress: func(p Progress) {
			mu.Lock()
			phases = append(phases, p.Phase)
			lastFraction = p.Fraction
			mu.Unlock()
		},
	}

	output, err := eng.Render(context.Background(), tmpl, summary, bundle, opts)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if output != ws.OutputFile {
		t.Errorf("output = %q, want %q", output, ws.OutputFile)
	}
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("final output missing: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	seen := map[Phase]bool{}
	for _, phase := range phases {
		seen[phase] = true
	}
	for _, want := range []Phase{PhaseValidate, PhasePlan, PhaseSegments, PhaseStitch, PhaseExport, PhaseFinalize} {
		if !seen[want] {
			t.Errorf("progress never reported phase %q", want)
		}
	}
	if lastFraction != 1.0 {
		t.Errorf("final fraction = %v, want 1.0", lastFraction)
	}

	// Transient segment and staging files are cleared at finalize.
	for _, dir := range []string{ws.TempDir, ws.SegmentsDir} {
		entries, err := os.ReadDir(dir)
		if err == nil && len(entries) != 0 {
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				names = append(names, e.Name())
			}
			t.Errorf("%s not cleaned: %v", dir, names)
		}
	}
}

func TestRenderCancelledBeforeStart(t *testing.T) {
	stubTools(t)
	ws := paths.New(t.TempDir())
	tmpl, summary, bundle := testInputs(t)

	eng := New(ws, config.Default(), successRunner(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Render(ctx, tmpl, summary, bundle, Options{})
	if !IsCancelled(err) {
		t.Fatalf("expected cancelled, got %v", err)
	}
	if _, statErr := os.Stat(ws.OutputFile); !os.IsNotExist(statErr) {
		t.Error("cancelled render must not produce an output file")
	}
}

func TestRenderInvalidConfig(t *testing.T) {
	stubTools(t)
	ws := paths.New(t.TempDir())
	tmpl, summary, bundle := testInputs(t)

	cfg := config.Default()
	cfg.Video.FPS = 0

	eng := New(ws, cfg, successRunner(), nil, nil)
	_, err := eng.Render(context.Background(), tmpl, summary, bundle, Options{})
	if KindOf(err) != KindInputValidation {
		t.Fatalf("expected input validation failure, got %v", err)
	}
}

func TestRenderSegmentFailureIsPipelineFailure(t *testing.T) {
	stubTools(t)
	ws := paths.New(t.TempDir())
	tmpl, summary, bundle := testInputs(t)

	runner := successRunner()
	runner.onFFmpeg = func(ctx context.Context, args []string, opts ffmpegx.RunOptions) (ffmpegx.RunResult, error) {
		return ffmpegx.RunResult{}, errors.New("codec not found")
	}

	eng := New(ws, config.Default(), runner, nil, nil)
	_, err := eng.Render(context.Background(), tmpl, summary, bundle, Options{})
	if KindOf(err) != KindPipelineFailure {
		t.Fatalf("expected pipeline failure, got %v", err)
	}

	var engErr *Error
	if !errors.As(err, &engErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if engErr.Hint != HintRetry {
		t.Errorf("Hint = %q, want retry", engErr.Hint)
	}
	if engErr.Phase != PhaseSegments {
		t.Errorf("Phase = %q, want segments", engErr.Phase)
	}
}

func TestRenderPervasiveSegmentDegradation(t *testing.T) {
	stubTools(t)
	ws := paths.New(t.TempDir())
	tmpl, summary, bundle := testInputs(t)

	// An out-of-range breathe amount fails every segment's filter graph,
	// forcing each one onto the base fallback.
	for i := range tmpl.Phases {
		tmpl.Phases[i].Filters = []content.FilterSpec{
			{Name: "breathe", Params: map[string]float64{"amount": 0.9}},
		}
	}

	eng := New(ws, config.Default(), successRunner(), nil, nil)
	_, err := eng.Render(context.Background(), tmpl, summary, bundle, Options{Seed: 7})
	if KindOf(err) != KindPipelineFailure {
		t.Fatalf("expected pipeline failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "fell back") {
		t.Errorf("error should name the fallback loss: %v", err)
	}

	var engErr *Error
	if !errors.As(err, &engErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if engErr.Phase != PhaseSegments {
		t.Errorf("Phase = %q, want segments", engErr.Phase)
	}
}

func TestRenderFailureCleansTransientFiles(t *testing.T) {
	stubTools(t)
	ws := paths.New(t.TempDir())
	tmpl, summary, bundle := testInputs(t)

	runner := successRunner()
	runner.onFFmpeg = func(ctx context.Context, args []string, opts ffmpegx.RunOptions) (ffmpegx.RunResult, error) {
		return ffmpegx.RunResult{}, errors.New("codec not found")
	}

	eng := New(ws, config.Default(), runner, nil, nil)
	if _, err := eng.Render(context.Background(), tmpl, summary, bundle, Options{}); err == nil {
		t.Fatal("expected render failure")
	}

	for _, dir := range []string{ws.TempDir, ws.SegmentsDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("read %s: %v", dir, err)
		}
		if len(entries) != 0 {
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				names = append(names, e.Name())
			}
			t.Errorf("%s not cleaned after failure: %v", dir, names)
		}
	}
}

func TestRenderRejectsConcurrentWorkspaceUse(t *testing.T) {
	stubTools(t)
	ws := paths.New(t.TempDir())
	tmpl, summary, bundle := testInputs(t)

	if err := ws.EnsureDirs(); err != nil {
		t.Fatal(err)
	}

	blocked := make(chan struct{})
	release := make(chan struct{})
	runner := successRunner()
	inner := runner.onFFmpeg
	var once sync.Once
	runner.onFFmpeg = func(ctx context.Context, args []string, opts ffmpegx.RunOptions) (ffmpegx.RunResult, error) {
		once.Do(func() { close(blocked) })
		<-release
		return inner(ctx, args, opts)
	}

	eng := New(ws, config.Default(), runner, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := eng.Render(context.Background(), tmpl, summary, bundle, Options{})
		done <- err
	}()

	<-blocked
	second := New(ws, config.Default(), successRunner(), nil, nil)
	_, err := second.Render(context.Background(), tmpl, summary, bundle, Options{})
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock contention error, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first render failed: %v", err)
	}
}

func TestClassify(t *testing.T) {
	eng := &Engine{}

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"render cancellation", render.ErrCancelled, KindCancelled},
		{"context cancellation", context.Canceled, KindCancelled},
		{"pervasive overlay loss", render.ErrOverlaysDegraded, KindOverlayDegradation},
		{"disk full", syscall.ENOSPC, KindResourceExhaustion},
		{"anything else", errors.New("boom"), KindPipelineFailure},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(eng.classify(PhaseStitch, tc.err)); got != tc.want {
				t.Errorf("classify(%v) kind = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestErrorSurface(t *testing.T) {
	inner := errors.New("segment 2 (reveal): ffmpeg failed")
	err := newError(KindPipelineFailure, PhaseSegments, inner)

	if !strings.Contains(err.Error(), "pipeline-failure during segments") {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("Unwrap should expose the cause")
	}
	msg := err.UserMessage()
	if !strings.Contains(msg, "Rendering failed partway through") || !strings.Contains(msg, "Retrying") {
		t.Errorf("UserMessage = %q", msg)
	}
}

func TestHints(t *testing.T) {
	if hintFor(KindResourceExhaustion) != HintFreeStorage {
		t.Error("resource exhaustion should suggest freeing storage")
	}
	if hintFor(KindCancelled) != HintNone {
		t.Error("cancellation needs no recovery hint")
	}
	if hintFor(KindOverlayDegradation) != HintRetry {
		t.Error("overlay degradation should suggest retry")
	}
}

func TestKindOfNonEngineError(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
	if IsCancelled(errors.New("plain")) {
		t.Error("plain errors are not cancellations")
	}
}
