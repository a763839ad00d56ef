package ffmpegx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type scriptedRunner struct {
	stdout []byte
	stderr []byte
	err    error

	lastCommand string
	lastArgs    []string
}

func (r *scriptedRunner) Run(ctx context.Context, command string, args []string, opts RunOptions) (RunResult, error) {
	r.lastCommand = command
	r.lastArgs = args
	return RunResult{Stdout: r.stdout, Stderr: r.stderr}, r.err
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

func TestProbeParsesStreams(t *testing.T) {
	stubTools(t)
	runner := &scriptedRunner{stdout: []byte(`{
		"format": {"format_name": "mov,mp4,m4a", "duration": "14.500000"},
		"streams": [
			{"codec_type": "video", "width": 1080, "height": 1920},
			{"codec_type": "audio"}
		]
	}`)}

	info, err := Probe(context.Background(), runner, "/media/reel.mp4")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}

	if info.FormatName != "mov,mp4,m4a" {
		t.Errorf("FormatName = %q", info.FormatName)
	}
	if info.DurationSeconds != 14.5 {
		t.Errorf("DurationSeconds = %v, want 14.5", info.DurationSeconds)
	}
	if !info.HasVideo || !info.HasAudio {
		t.Errorf("HasVideo=%v HasAudio=%v, want both", info.HasVideo, info.HasAudio)
	}
	if info.Width != 1080 || info.Height != 1920 {
		t.Errorf("dimensions = %dx%d", info.Width, info.Height)
	}

	joined := strings.Join(runner.lastArgs, " ")
	for _, expected := range []string{"-show_format", "-show_streams", "-print_format json", "/media/reel.mp4"} {
		if !strings.Contains(joined, expected) {
			t.Errorf("args missing %q: %s", expected, joined)
		}
	}
}

func TestProbeAudioStreamDurationFallback(t *testing.T) {
	stubTools(t)
	runner := &scriptedRunner{stdout: []byte(`{
		"format": {"format_name": "mp3"},
		"streams": [{"codec_type": "audio", "duration": "3.250000"}]
	}`)}

	info, err := Probe(context.Background(), runner, "/media/track.mp3")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.DurationSeconds != 3.25 {
		t.Errorf("DurationSeconds = %v, want stream fallback 3.25", info.DurationSeconds)
	}
	if info.HasVideo {
		t.Error("mp3 should not report video")
	}
}

func TestProbeFirstVideoStreamWins(t *testing.T) {
	stubTools(t)
	runner := &scriptedRunner{stdout: []byte(`{
		"format": {"duration": "5"},
		"streams": [
			{"codec_type": "video", "width": 640, "height": 960},
			{"codec_type": "video", "width": 320, "height": 480}
		]
	}`)}

	info, err := Probe(context.Background(), runner, "/media/multi.mp4")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.Width != 640 || info.Height != 960 {
		t.Errorf("dimensions = %dx%d, want first stream 640x960", info.Width, info.Height)
	}
}

func TestProbeErrors(t *testing.T) {
	stubTools(t)

	tests := []struct {
		name    string
		runner  *scriptedRunner
		wantSub string
	}{
		{
			name:    "runner failure includes stderr",
			runner:  &scriptedRunner{err: errors.New("exit status 1"), stderr: []byte("Invalid data found\n")},
			wantSub: "Invalid data found",
		},
		{
			name:    "empty output",
			runner:  &scriptedRunner{stdout: nil},
			wantSub: "produced no output",
		},
		{
			name:    "malformed json",
			runner:  &scriptedRunner{stdout: []byte("not json at all")},
			wantSub: "decode ffprobe output",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Probe(context.Background(), tc.runner, "/media/bad.mp4")
			if err == nil || !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error = %v, want substring %q", err, tc.wantSub)
			}
		})
	}
}

func TestProbeMissingTool(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	_, err := Probe(context.Background(), &scriptedRunner{}, "/media/reel.mp4")
	if err == nil || !strings.Contains(err.Error(), "locate ffprobe") {
		t.Fatalf("error = %v, want lookup failure", err)
	}
}

func TestCheckReportsVersion(t *testing.T) {
	stubTools(t)
	runner := &scriptedRunner{stdout: []byte("ffmpeg version 6.1.1 Copyright\nbuilt with gcc\n")}

	status := Check(context.Background(), runner, "ffmpeg")
	if !status.OK {
		t.Fatalf("status not OK: %+v", status)
	}
	if status.Version != "ffmpeg version 6.1.1 Copyright" {
		t.Errorf("Version = %q", status.Version)
	}
	if status.Path == "" {
		t.Error("Path should be resolved")
	}
}

func TestCheckMissingTool(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	status := Check(context.Background(), &scriptedRunner{}, "ffprobe")
	if status.OK {
		t.Fatal("missing tool should not be OK")
	}
	if !strings.Contains(status.Detail, "locate ffprobe") {
		t.Errorf("Detail = %q", status.Detail)
	}
}

func TestCheckVersionCommandFails(t *testing.T) {
	stubTools(t)
	runner := &scriptedRunner{err: errors.New("exit status 127")}

	status := Check(context.Background(), runner, "ffmpeg")
	if status.OK {
		t.Fatal("failed -version should not be OK")
	}
	if !strings.Contains(status.Detail, "-version failed") {
		t.Errorf("Detail = %q", status.Detail)
	}
}
