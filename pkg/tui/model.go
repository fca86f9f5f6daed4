// Package tui implements the live playback status view shown
// during audio device output.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Progress reports rendered frames out of the expected total.
type Progress struct {
	Done, Total uint32
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)
	barDoneStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	barRestStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Model is the playback view model.
type Model struct {
	Name  string
	SRate uint32

	progress <-chan Progress
	stop     chan<- struct{}

	width    int
	done     uint32
	total    uint32
	stopped  bool
}

// NewModel creates a playback view for the named script. Progress
// updates arrive on progress; closing it ends the view. The stop
// channel is closed when the user quits early.
func NewModel(name string, srate uint32,
	progress <-chan Progress, stop chan<- struct{}) Model {
	return Model{
		Name:     name,
		SRate:    srate,
		progress: progress,
		stop:     stop,
		width:    80,
	}
}

type doneMsg struct{}

func waitProgress(ch <-chan Progress) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-ch
		if !ok {
			return doneMsg{}
		}
		return p
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return waitProgress(m.progress)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case Progress:
		m.done = msg.Done
		m.total = msg.Total
		return m, waitProgress(m.progress)

	case doneMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !m.stopped {
				m.stopped = true
				close(m.stop)
			}
			return m, nil
		}
	}
	return m, nil
}

func (m Model) seconds(frames uint32) float64 {
	if m.SRate == 0 {
		return 0
	}
	return float64(frames) / float64(m.SRate)
}

// View implements tea.Model
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("saugns: " + m.Name))
	b.WriteString("\n\n")

	barWidth := m.width - 4
	if barWidth < 10 {
		barWidth = 10
	}
	fill := 0
	if m.total > 0 {
		fill = int(float64(barWidth) * float64(m.done) / float64(m.total))
		if fill > barWidth {
			fill = barWidth
		}
	}
	b.WriteString("  ")
	b.WriteString(barDoneStyle.Render(strings.Repeat("█", fill)))
	b.WriteString(barRestStyle.Render(strings.Repeat("░", barWidth-fill)))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("  %6.2f s / %.2f s",
		m.seconds(m.done), m.seconds(m.total)))
	if m.stopped {
		b.WriteString("  (stopping)")
	}
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("  q: stop and quit"))
	b.WriteString("\n")
	return b.String()
}

// Run displays the playback view until rendering completes or the
// user quits.
func Run(m Model) error {
	p := tea.NewProgram(m)
	_, err := p.Run()
	return err
}
