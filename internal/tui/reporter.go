package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"reelforge/internal/engine"
	"reelforge/internal/plan"
	"reelforge/internal/render"
)

// Reporter adapts pipeline callbacks to bubbletea message sends so the
// render goroutine never touches the model directly.
type Reporter struct {
	send func(tea.Msg)
}

// NewReporter constructs a reporter around a program's Send function.
func NewReporter(send func(tea.Msg)) *Reporter {
	return &Reporter{send: send}
}

// OnProgress implements engine.ProgressFunc.
func (r *Reporter) OnProgress(p engine.Progress) {
	r.send(ProgressMsg{Progress: p})
}

// SegmentStart implements render.ProgressReporter.
func (r *Reporter) SegmentStart(index int, item plan.TrackItem) {
	r.send(SegmentMsg{Index: index, Phase: item.Phase, Status: "rendering"})
}

// SegmentDone implements render.ProgressReporter.
func (r *Reporter) SegmentDone(result render.SegmentResult) {
	status := "rendered"
	switch {
	case result.Err != nil:
		status = "error"
	case result.Degraded:
		status = "degraded"
	}
	r.send(SegmentMsg{Index: result.Index, Phase: result.Phase, Status: status})
}

var _ render.ProgressReporter = (*Reporter)(nil)
