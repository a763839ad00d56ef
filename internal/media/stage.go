package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"reelforge/internal/govern"
)

// stageChunkBytes is the copy scratch size. Staged copies share one pooled
// bucket so repeated renders reuse the same allocation.
const stageChunkBytes = 256 * 1024

var stageBufferKey = govern.BufferKey{Width: stageChunkBytes, Height: 1, Variant: "stage"}

// BufferSource provides reusable scratch buffers for staging copies.
// *govern.Governor satisfies it.
type BufferSource interface {
	AcquireBuffer(key govern.BufferKey) *govern.PixelBuffer
	ReleaseBuffer(buf *govern.PixelBuffer)
}

// Stage copies every bundle file into destDir under deterministic names and
// returns a bundle pointing at the copies. Rendering then reads only staged
// paths, so the caller's originals can move or change mid-render without
// corrupting the encode, and ffmpeg never sees an awkward source path.
func Stage(ctx context.Context, bundle Bundle, destDir string, buffers BufferSource) (Bundle, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Bundle{}, fmt.Errorf("ensure staging dir: %w", err)
	}

	staged := Bundle{Images: make(map[string]string, len(bundle.Images))}

	for slot, src := range bundle.Images {
		dst := filepath.Join(destDir, slot+filepath.Ext(src))
		if err := stageFile(ctx, src, dst, buffers); err != nil {
			return Bundle{}, fmt.Errorf("stage %s image: %w", slot, err)
		}
		staged.Images[slot] = dst
	}

	if bundle.Audio != "" {
		dst := filepath.Join(destDir, "audio"+filepath.Ext(bundle.Audio))
		if err := stageFile(ctx, bundle.Audio, dst, buffers); err != nil {
			return Bundle{}, fmt.Errorf("stage audio: %w", err)
		}
		staged.Audio = dst
	}

	for i, src := range bundle.BRoll {
		dst := filepath.Join(destDir, fmt.Sprintf("broll_%02d%s", i, filepath.Ext(src)))
		if err := stageFile(ctx, src, dst, buffers); err != nil {
			return Bundle{}, fmt.Errorf("stage b-roll %d: %w", i, err)
		}
		staged.BRoll = append(staged.BRoll, dst)
	}

	return staged, nil
}

func stageFile(ctx context.Context, src, dst string, buffers BufferSource) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	var scratch []byte
	if buffers != nil {
		buf := buffers.AcquireBuffer(stageBufferKey)
		defer buffers.ReleaseBuffer(buf)
		scratch = buf.Pix
	} else {
		scratch = make([]byte, stageChunkBytes)
	}

	if _, err := io.CopyBuffer(out, in, scratch); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return nil
}
