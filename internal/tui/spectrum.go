// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"micspectrum/internal/analysis"
	"micspectrum/internal/transport"
)

var (
	barStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
	peakStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F25D94")).Bold(true)
	axisStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))

	quitKeys = key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"))
)

// Eighth-block glyphs for the fractional top of a bar.
var partialBlocks = []rune{' ', '▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

const (
	chromeLines  = 5 // title, blank, axis rule, axis labels, help
	tickSpacing  = 12
	minBarHeight = 4
)

// snapshotMsg carries a copy of the latest analysis snapshot into the model.
type snapshotMsg struct {
	snap *analysis.Snapshot
}

// closedMsg tells the model the sink has been closed.
type closedMsg struct{}

// Sink forwards snapshots to a SpectrumModel. Only the newest snapshot is
// kept: if the UI has not picked up the previous one it is replaced.
type Sink struct {
	ch        chan *analysis.Snapshot
	done      chan struct{}
	closed    atomic.Bool
	published atomic.Uint64
	replaced  atomic.Uint64
}

// NewSink creates a sink for a SpectrumModel.
func NewSink() *Sink {
	return &Sink{
		ch:   make(chan *analysis.Snapshot, 1),
		done: make(chan struct{}),
	}
}

// Publish hands a copy of snap to the UI without blocking.
func (s *Sink) Publish(snap *analysis.Snapshot) error {
	if s.closed.Load() {
		return nil
	}
	c := snap.Clone()
	for {
		select {
		case s.ch <- c:
			s.published.Add(1)
			return nil
		default:
		}
		// Discard the unread snapshot and retry with the newer one.
		select {
		case <-s.ch:
			s.replaced.Add(1)
		default:
		}
	}
}

// Close wakes the model so it can exit. It is safe to call more than once.
func (s *Sink) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		close(s.done)
	}
	return nil
}

// Replaced returns how many snapshots were overwritten before the UI read them.
func (s *Sink) Replaced() uint64 { return s.replaced.Load() }

// wait returns a command that blocks until the next snapshot arrives.
func (s *Sink) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case snap := <-s.ch:
			return snapshotMsg{snap: snap}
		case <-s.done:
			return closedMsg{}
		}
	}
}

var _ transport.Sink = (*Sink)(nil)

// SpectrumModel draws the envelope spectrum as vertical bars with a
// frequency axis underneath.
type SpectrumModel struct {
	sink           *Sink
	title          string
	amplitudeScale float64
	snap           *analysis.Snapshot
	width          int
	height         int
	ready          bool
}

// NewSpectrumModel creates a model fed by sink. amplitudeScale is the
// envelope magnitude that fills a bar.
func NewSpectrumModel(sink *Sink, title string, amplitudeScale float64) SpectrumModel {
	if amplitudeScale <= 0 {
		amplitudeScale = 1
	}
	return SpectrumModel{
		sink:           sink,
		title:          title,
		amplitudeScale: amplitudeScale,
	}
}

// Init starts listening for snapshots.
func (m SpectrumModel) Init() tea.Cmd {
	return m.sink.wait()
}

// Update handles snapshots, resizes and quit keys.
func (m SpectrumModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true

	case snapshotMsg:
		m.snap = msg.snap
		return m, m.sink.wait()

	case closedMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		if key.Matches(msg, quitKeys) {
			return m, tea.Quit
		}
	}
	return m, nil
}

// View renders the spectrum.
func (m SpectrumModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.snap == nil || m.snap.MaxBin == 0 {
		return fmt.Sprintf("%s\n\nWaiting for audio...", titleStyle.Render(m.title))
	}

	columns := max(1, m.width)
	rows := max(minBarHeight, m.height-chromeLines)
	levels := m.columnLevels(columns)

	bin, peak := m.snap.Peak()
	header := fmt.Sprintf("%s  peak %s  %s",
		titleStyle.Render(m.title),
		peakStyle.Render(formatHz(m.snap.BinFrequency(bin))),
		infoStyle.Render(fmt.Sprintf("%.2f  dropped %d", peak, m.snap.Dropped)))

	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n\n")
	sb.WriteString(renderBars(levels, rows))
	sb.WriteString(axisStyle.Render(strings.Repeat("─", columns)))
	sb.WriteString("\n")
	sb.WriteString(axisStyle.Render(m.axisLabels(columns)))
	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render("q/esc: Quit"))
	return sb.String()
}

// columnLevels maps the displayed bins onto columns. Each column takes the
// loudest bin it covers, scaled to [0, 1].
func (m SpectrumModel) columnLevels(columns int) []float64 {
	visible := m.snap.Visible()
	levels := make([]float64, columns)
	for c := range levels {
		lo := c * len(visible) / columns
		hi := max(lo+1, (c+1)*len(visible)/columns)
		hi = min(hi, len(visible))
		v := 0.0
		for _, x := range visible[lo:hi] {
			v = max(v, x)
		}
		levels[c] = min(1, v/m.amplitudeScale)
	}
	return levels
}

// renderBars draws bars bottom-up with eighth-block resolution.
func renderBars(levels []float64, rows int) string {
	var sb strings.Builder
	line := make([]rune, len(levels))
	for r := rows - 1; r >= 0; r-- {
		for c, level := range levels {
			eighths := int(math.Round(level*float64(rows)*8)) - r*8
			switch {
			case eighths >= 8:
				line[c] = partialBlocks[8]
			case eighths <= 0:
				line[c] = ' '
			default:
				line[c] = partialBlocks[eighths]
			}
		}
		sb.WriteString(barStyle.Render(string(line)))
		sb.WriteString("\n")
	}
	return sb.String()
}

// axisLabels places tick labels from AxisTicks under the bars. Labels that
// would overlap the previous one are skipped.
func (m SpectrumModel) axisLabels(columns int) string {
	n := max(1, columns/tickSpacing)
	ticks := analysis.AxisTicks(m.snap.MaxBin, m.snap.SampleRate, m.snap.FrameSize, n)

	line := []rune(strings.Repeat(" ", columns))
	next := 0
	for i, hz := range ticks {
		label := []rune(formatHz(hz))
		pos := i * columns / n
		if pos+len(label) > columns {
			pos = columns - len(label)
		}
		if pos < next || pos < 0 {
			continue
		}
		copy(line[pos:], label)
		next = pos + len(label) + 1
	}
	return string(line)
}

func formatHz(hz float64) string {
	if hz >= 1000 {
		return fmt.Sprintf("%.1fk", hz/1000)
	}
	return fmt.Sprintf("%.0f", hz)
}

// StartSpectrumUI runs the spectrum view until the user quits or the sink
// is closed.
func StartSpectrumUI(sink *Sink, title string, amplitudeScale float64) error {
	p := tea.NewProgram(
		NewSpectrumModel(sink, title, amplitudeScale),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}
