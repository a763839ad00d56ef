package tui

import (
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// RunWithWork runs the progress program while workFn executes on a
// background goroutine. workFn reports through the provided send callback
// and its return value closes the program: the output path on success, an
// error otherwise. The returned error is either the program's own failure
// or the work's.
func RunWithWork(out io.Writer, model RenderModel, workFn func(send func(tea.Msg)) (string, error)) error {
	p := tea.NewProgram(model, tea.WithOutput(out))

	go func() {
		// Give the event loop a beat to draw its first frame.
		time.Sleep(50 * time.Millisecond)

		output, err := workFn(func(msg tea.Msg) {
			p.Send(msg)
			// Brief pause between sends keeps the frame updates visible.
			time.Sleep(5 * time.Millisecond)
		})
		if err != nil {
			p.Send(ErrorMsg{Err: err})
			return
		}
		p.Send(WorkDoneMsg{OutputPath: output})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := finalModel.(RenderModel); ok && m.err != nil {
		return m.err
	}
	return nil
}
