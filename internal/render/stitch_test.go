package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reelforge/internal/config"
)

func TestWriteConcatList(t *testing.T) {
	dir := t.TempDir()
	segA := filepath.Join(dir, "seg_000_hook.mp4")
	segB := filepath.Join(dir, "seg_001_o'clock.mp4")
	for _, path := range []string{segA, segB} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	concatFile := filepath.Join(dir, "concat.txt")
	if err := WriteConcatList(concatFile, []string{segA, segB}); err != nil {
		t.Fatalf("WriteConcatList: %v", err)
	}

	contents, err := os.ReadFile(concatFile)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(contents)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if !strings.HasPrefix(lines[0], "file '") {
		t.Fatalf("unexpected line: %q", lines[0])
	}
	if !strings.Contains(lines[1], `o'\''clock`) {
		t.Fatalf("single quote not escaped: %q", lines[1])
	}
}

func TestWriteConcatListRejectsMissingSegments(t *testing.T) {
	dir := t.TempDir()
	err := WriteConcatList(filepath.Join(dir, "concat.txt"), []string{filepath.Join(dir, "gone.mp4")})
	if err == nil {
		t.Fatal("expected error for missing segment")
	}
	if !strings.Contains(err.Error(), "gone.mp4") {
		t.Fatalf("error should name the missing file: %v", err)
	}
}

func TestAudioLoopCount(t *testing.T) {
	cases := []struct {
		output, audio float64
		want          int
	}{
		{15, 4, 4},
		{15, 15, 1},
		{15, 20, 1},
		{15, 5, 3},
		{15, 0, 0},
		{0, 4, 0},
	}
	for _, tc := range cases {
		if got := AudioLoopCount(tc.output, tc.audio); got != tc.want {
			t.Errorf("AudioLoopCount(%v, %v) = %d, want %d", tc.output, tc.audio, got, tc.want)
		}
	}
}

func TestBuildStitchArgsWithAudio(t *testing.T) {
	cfg := config.Default()
	args, err := BuildStitchArgs("/tmp/concat.txt", "/media/song.mp3", "/tmp/stitched.mp4", 15, 4, cfg)
	if err != nil {
		t.Fatalf("BuildStitchArgs: %v", err)
	}
	joined := strings.Join(args, " ")

	for _, expected := range []string{
		"-f concat -safe 0 -i /tmp/concat.txt",
		"-stream_loop 3", // four plays of a 4s track cover 15s
		"-i /media/song.mp3",
		"-t 15",
		"-map 0:v:0 -map 1:a:0",
		"-c:v copy",
		"-c:a aac",
		"-b:a 192k",
		"-ar 44100",
		"-ac 2",
		"-movflags +faststart /tmp/stitched.mp4",
	} {
		if !strings.Contains(joined, expected) {
			t.Fatalf("args missing %q\nargs: %s", expected, joined)
		}
	}
}

func TestBuildStitchArgsAudioLongerThanOutput(t *testing.T) {
	cfg := config.Default()
	args, err := BuildStitchArgs("/tmp/concat.txt", "/media/song.mp3", "/tmp/stitched.mp4", 15, 30, cfg)
	if err != nil {
		t.Fatalf("BuildStitchArgs: %v", err)
	}
	if strings.Contains(strings.Join(args, " "), "-stream_loop") {
		t.Fatal("no looping needed when audio covers the output")
	}
}

func TestBuildStitchArgsWithoutAudio(t *testing.T) {
	cfg := config.Default()
	args, err := BuildStitchArgs("/tmp/concat.txt", "", "/tmp/stitched.mp4", 15, 0, cfg)
	if err != nil {
		t.Fatalf("BuildStitchArgs: %v", err)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-an") {
		t.Fatalf("silent stitch should drop audio: %s", joined)
	}
	if strings.Contains(joined, "-map 1:a:0") {
		t.Fatal("silent stitch must not map an audio stream")
	}
}

func TestBuildStitchArgsValidation(t *testing.T) {
	cfg := config.Default()
	if _, err := BuildStitchArgs("", "", "/tmp/out.mp4", 15, 0, cfg); err == nil {
		t.Fatal("expected error for empty concat file")
	}
	if _, err := BuildStitchArgs("/tmp/concat.txt", "", "", 15, 0, cfg); err == nil {
		t.Fatal("expected error for empty output")
	}
	if _, err := BuildStitchArgs("/tmp/concat.txt", "", "/tmp/out.mp4", 0, 0, cfg); err == nil {
		t.Fatal("expected error for zero duration")
	}
}
