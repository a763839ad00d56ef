package media

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"reelforge/internal/govern"
	"reelforge/pkg/content"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestFromDirConvention(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "before.png"), 10, 10)
	writePNG(t, filepath.Join(dir, "after.png"), 10, 10)
	for _, name := range []string{"track.mp3", "clip_b.mp4", "clip_a.mov", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	bundle, err := FromDir(dir)
	if err != nil {
		t.Fatalf("FromDir: %v", err)
	}

	if len(bundle.Images) != 2 {
		t.Fatalf("images = %d, want 2", len(bundle.Images))
	}
	if bundle.Audio == "" || filepath.Base(bundle.Audio) != "track.mp3" {
		t.Fatalf("audio = %q", bundle.Audio)
	}
	if len(bundle.BRoll) != 2 {
		t.Fatalf("b-roll = %v, want 2 clips", bundle.BRoll)
	}
	// B-roll order is sorted, not directory order.
	if filepath.Base(bundle.BRoll[0]) != "clip_a.mov" {
		t.Fatalf("b-roll[0] = %q, want clip_a.mov", bundle.BRoll[0])
	}
}

func TestImageForProcessFallsBackToBefore(t *testing.T) {
	bundle := Bundle{Images: map[string]string{content.SlotBefore: "/tmp/before.png"}}

	path, ok := bundle.ImageFor(content.SlotProcess)
	if !ok || path != "/tmp/before.png" {
		t.Fatalf("ImageFor(process) = %q, %v", path, ok)
	}
	if _, ok := bundle.ImageFor(content.SlotAfter); ok {
		t.Fatal("missing after slot should not resolve")
	}
}

func TestInspectReadsDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.png")
	writePNG(t, path, 320, 480)

	info, err := Inspect(path)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.Width != 320 || info.Height != 480 || info.Format != "png" {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestInspectRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.png")
	if err := os.WriteFile(path, []byte("definitely not a png"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Inspect(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestStageCopiesBundle(t *testing.T) {
	src := t.TempDir()
	writePNG(t, filepath.Join(src, "before.png"), 10, 10)
	writePNG(t, filepath.Join(src, "after.png"), 10, 10)
	if err := os.WriteFile(filepath.Join(src, "song.mp3"), []byte("audio bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "roll.mp4"), []byte("clip bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	bundle, err := FromDir(src)
	if err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	gov := govern.New(govern.Options{PoolMaxKeys: 4})
	staged, err := Stage(context.Background(), bundle, dest, gov)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}

	if filepath.Dir(staged.Images[content.SlotBefore]) != dest {
		t.Fatalf("staged image outside dest: %q", staged.Images[content.SlotBefore])
	}
	if filepath.Base(staged.Audio) != "audio.mp3" {
		t.Fatalf("staged audio = %q, want audio.mp3", staged.Audio)
	}
	if len(staged.BRoll) != 1 || filepath.Base(staged.BRoll[0]) != "broll_00.mp4" {
		t.Fatalf("staged b-roll = %v", staged.BRoll)
	}

	copied, err := os.ReadFile(staged.Audio)
	if err != nil {
		t.Fatal(err)
	}
	if string(copied) != "audio bytes" {
		t.Fatalf("staged audio content = %q", copied)
	}

	// The copy scratch returned to the pool for the next render.
	if gov.PoolKeyCount() != 1 {
		t.Fatalf("pool keys = %d after staging, want 1", gov.PoolKeyCount())
	}
}

func TestStageWithoutBuffersStillCopies(t *testing.T) {
	src := t.TempDir()
	writePNG(t, filepath.Join(src, "before.png"), 10, 10)
	bundle := Bundle{Images: map[string]string{content.SlotBefore: filepath.Join(src, "before.png")}}

	staged, err := Stage(context.Background(), bundle, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if _, err := Inspect(staged.Images[content.SlotBefore]); err != nil {
		t.Fatalf("staged copy undecodable: %v", err)
	}
}

func TestStageHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := t.TempDir()
	writePNG(t, filepath.Join(src, "before.png"), 10, 10)
	bundle := Bundle{Images: map[string]string{content.SlotBefore: filepath.Join(src, "before.png")}}

	if _, err := Stage(ctx, bundle, t.TempDir(), nil); err == nil {
		t.Fatal("expected cancellation error")
	}
}
