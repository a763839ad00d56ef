package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"reelforge/internal/engine"
)

// segmentRow tracks one plan segment's display state.
type segmentRow struct {
	Phase  string
	Status string
}

// RenderModel is a bubbletea model showing pipeline phase, an overall
// progress bar, per-segment status lines, and current memory usage.
type RenderModel struct {
	title    string
	bar      progress.Model
	phase    engine.Phase
	fraction float64
	memory   uint64
	segments []segmentRow
	done     bool
	output   string
	err      error
}

// NewRenderModel creates the render progress model with one row per planned
// segment phase.
func NewRenderModel(title string, segmentPhases []string) RenderModel {
	rows := make([]segmentRow, len(segmentPhases))
	for i, phase := range segmentPhases {
		rows[i] = segmentRow{Phase: phase, Status: "pending"}
	}
	return RenderModel{
		title:    title,
		bar:      progress.New(progress.WithDefaultGradient()),
		segments: rows,
	}
}

// Init satisfies the tea.Model interface.
func (m RenderModel) Init() tea.Cmd {
	return nil
}

// Update satisfies the tea.Model interface.
func (m RenderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case ProgressMsg:
		m.phase = msg.Progress.Phase
		m.fraction = msg.Progress.Fraction
		m.memory = msg.Progress.MemoryBytes
	case SegmentMsg:
		if msg.Index >= 0 && msg.Index < len(m.segments) {
			m.segments[msg.Index].Status = msg.Status
		}
	case WorkDoneMsg:
		m.done = true
		m.output = msg.OutputPath
		return m, tea.Quit
	case ErrorMsg:
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

// View satisfies the tea.Model interface.
func (m RenderModel) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render(m.title))
	b.WriteString("\n\n")

	phase := string(m.phase)
	if phase == "" {
		phase = "starting"
	}
	b.WriteString(PhaseStyle.Render(phase))
	b.WriteString("  ")
	b.WriteString(m.bar.ViewAs(m.fraction))
	b.WriteString("\n")

	for _, seg := range m.segments {
		b.WriteString(fmt.Sprintf("  %-16s %s\n", seg.Phase, StatusStyle(seg.Status).Render(seg.Status)))
	}

	if m.memory > 0 {
		b.WriteString(MemoryStyle.Render(fmt.Sprintf("memory: %.1f MB", float64(m.memory)/(1024*1024))))
		b.WriteString("\n")
	}

	if m.done {
		b.WriteString("\nwrote " + m.output + "\n")
	}
	if m.err != nil {
		b.WriteString("\nerror: " + m.err.Error() + "\n")
	}
	return b.String()
}
