package ffmpegx

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Lookup resolves a tool binary on PATH.
func Lookup(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("locate %s: %w", name, err)
	}
	return path, nil
}

// ToolStatus describes a resolved external tool.
type ToolStatus struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Version string `json:"version"`
	OK      bool   `json:"ok"`
	Detail  string `json:"detail,omitempty"`
}

// Check resolves the tool and reports its version line. Used by doctor.
func Check(ctx context.Context, runner Runner, name string) ToolStatus {
	status := ToolStatus{Name: name}

	path, err := Lookup(name)
	if err != nil {
		status.Detail = err.Error()
		return status
	}
	status.Path = path

	result, err := runner.Run(ctx, path, []string{"-version"}, RunOptions{})
	if err != nil {
		status.Detail = fmt.Sprintf("%s -version failed: %v", name, err)
		return status
	}

	lines := strings.SplitN(strings.TrimSpace(string(result.Stdout)), "\n", 2)
	if len(lines) > 0 {
		status.Version = strings.TrimSpace(lines[0])
	}
	status.OK = true
	return status
}
