package ffmpegx

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
)

// RunOptions controls a single tool invocation. Stdout and Stderr, when set,
// receive output as it is produced in addition to the captured copy; the
// export progress watcher depends on the live stream.
type RunOptions struct {
	Dir    string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// RunResult holds the full captured output of a finished invocation.
type RunResult struct {
	Stdout []byte
	Stderr []byte
}

// Runner abstracts process execution so the pipeline can be tested without
// ffmpeg installed.
type Runner interface {
	Run(ctx context.Context, command string, args []string, opts RunOptions) (RunResult, error)
}

// CmdRunner runs the real binaries through os/exec.
type CmdRunner struct{}

var _ Runner = CmdRunner{}

func (CmdRunner) Run(ctx context.Context, command string, args []string, opts RunOptions) (RunResult, error) {
	var outBuf, errBuf bytes.Buffer

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	cmd.Stdout = tee(&outBuf, opts.Stdout)
	cmd.Stderr = tee(&errBuf, opts.Stderr)

	err := cmd.Run()
	return RunResult{Stdout: outBuf.Bytes(), Stderr: errBuf.Bytes()}, err
}

// tee mirrors captured output to an optional live writer.
func tee(capture *bytes.Buffer, live io.Writer) io.Writer {
	if live == nil {
		return capture
	}
	return io.MultiWriter(capture, live)
}
