package ffmpegx

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MediaInfo summarizes the streams of a probed file.
type MediaInfo struct {
	FormatName      string
	DurationSeconds float64
	Width           int
	Height          int
	HasVideo        bool
	HasAudio        bool
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Duration  string `json:"duration"`
}

// Probe runs ffprobe against target and parses the JSON report.
func Probe(ctx context.Context, runner Runner, target string) (MediaInfo, error) {
	ffprobePath, err := Lookup("ffprobe")
	if err != nil {
		return MediaInfo{}, err
	}

	args := []string{
		"-v", "error",
		"-show_format",
		"-show_streams",
		"-print_format", "json",
		target,
	}

	result, runErr := runner.Run(ctx, ffprobePath, args, RunOptions{})
	if runErr != nil {
		stderr := strings.TrimSpace(string(result.Stderr))
		if stderr != "" {
			return MediaInfo{}, fmt.Errorf("ffprobe %s: %w (%s)", target, runErr, stderr)
		}
		return MediaInfo{}, fmt.Errorf("ffprobe %s: %w", target, runErr)
	}
	if len(result.Stdout) == 0 {
		return MediaInfo{}, fmt.Errorf("ffprobe %s: produced no output", target)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(result.Stdout, &parsed); err != nil {
		return MediaInfo{}, fmt.Errorf("decode ffprobe output: %w", err)
	}

	info := MediaInfo{FormatName: parsed.Format.FormatName}
	if parsed.Format.Duration != "" {
		if v, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
			info.DurationSeconds = v
		}
	}

	for _, stream := range parsed.Streams {
		switch stream.CodecType {
		case "video":
			info.HasVideo = true
			if info.Width == 0 {
				info.Width = stream.Width
				info.Height = stream.Height
			}
		case "audio":
			info.HasAudio = true
			if info.DurationSeconds == 0 && stream.Duration != "" {
				if v, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
					info.DurationSeconds = v
				}
			}
		}
	}

	return info, nil
}
