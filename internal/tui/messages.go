package tui

import "reelforge/internal/engine"

// ProgressMsg carries one pipeline progress snapshot into the model.
type ProgressMsg struct {
	Progress engine.Progress
}

// SegmentMsg updates one segment row's status.
type SegmentMsg struct {
	Index  int
	Phase  string
	Status string // "rendering", "rendered", "degraded", "error"
}

// WorkDoneMsg signals that the render finished.
type WorkDoneMsg struct {
	OutputPath string
}

// ErrorMsg signals a fatal error; the TUI should quit.
type ErrorMsg struct {
	Err error
}
