package render

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"reelforge/internal/config"
)

// WriteConcatList writes an ffmpeg concat demuxer list. It verifies each
// segment path exists before writing so a missing segment fails here rather
// than mid-encode.
func WriteConcatList(concatFile string, segmentPaths []string) error {
	var missing []string
	for _, path := range segmentPaths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			missing = append(missing, path)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %d segment file(s):\n  %s", len(missing), strings.Join(missing, "\n  "))
	}

	f, err := os.Create(concatFile)
	if err != nil {
		return fmt.Errorf("create concat list: %w", err)
	}
	defer f.Close()

	for _, path := range segmentPaths {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		escaped := strings.ReplaceAll(abs, "'", "'\\''")
		fmt.Fprintf(f, "file '%s'\n", escaped)
	}
	return nil
}

// AudioLoopCount returns how many times the audio must play, first iteration
// included, to cover outputDuration. The final iteration is trimmed by the
// stitch's -t, never padded with silence.
func AudioLoopCount(outputDuration, audioDuration float64) int {
	if audioDuration <= 0 || outputDuration <= 0 {
		return 0
	}
	return int(math.Ceil(outputDuration / audioDuration))
}

// BuildStitchArgs assembles the ffmpeg invocation that concatenates the
// segment clips into one timeline and attaches the audio track at time 0,
// looping it to cover the full duration. Segments already share a uniform
// codec so the video stream is copied, not re-encoded.
func BuildStitchArgs(concatFile, audioPath, outputPath string, outputDuration, audioDuration float64, cfg config.Config) ([]string, error) {
	if strings.TrimSpace(concatFile) == "" {
		return nil, errors.New("concat file is empty")
	}
	if strings.TrimSpace(outputPath) == "" {
		return nil, errors.New("output path is empty")
	}
	if outputDuration <= 0 {
		return nil, fmt.Errorf("invalid output duration %f", outputDuration)
	}

	args := []string{
		"-hide_banner",
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", concatFile,
	}

	hasAudio := strings.TrimSpace(audioPath) != ""
	if hasAudio {
		// -stream_loop counts extra plays beyond the first.
		extraLoops := AudioLoopCount(outputDuration, audioDuration) - 1
		if extraLoops > 0 {
			args = append(args, "-stream_loop", strconv.Itoa(extraLoops))
		}
		args = append(args, "-i", audioPath)
	}

	args = append(args, "-t", formatFloat(outputDuration))

	if hasAudio {
		args = append(args, "-map", "0:v:0", "-map", "1:a:0")
		args = append(args, "-c:v", "copy")
		if acodec := strings.TrimSpace(cfg.Audio.ACodec); acodec != "" {
			args = append(args, "-c:a", acodec)
		}
		if cfg.Audio.BitrateKbps > 0 {
			args = append(args, "-b:a", fmt.Sprintf("%dk", cfg.Audio.BitrateKbps))
		}
		if cfg.Audio.SampleRate > 0 {
			args = append(args, "-ar", strconv.Itoa(cfg.Audio.SampleRate))
		}
		if cfg.Audio.Channels > 0 {
			args = append(args, "-ac", strconv.Itoa(cfg.Audio.Channels))
		}
	} else {
		args = append(args, "-map", "0:v:0", "-c:v", "copy", "-an")
	}

	args = append(args, "-movflags", "+faststart", outputPath)
	return args, nil
}
