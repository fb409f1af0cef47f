// Package console renders a live status view of a driven session.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/timvw/pane-driver/internal/monitor"
)

// Source is the run the console observes. *driver.Driver satisfies it.
type Source interface {
	Snapshot() monitor.Progress
	Done() <-chan struct{}
	HaltReason() monitor.HaltReason
	RequestExit()
}

// Console shows progress until the run ends or the operator quits.
type Console struct {
	Source  Source
	Theme   Theme
	Refresh time.Duration // snapshot interval, default 200ms
	// Output defaults to stderr; stdout is reserved for the final pane print.
	Output io.Writer
}

type (
	refreshMsg struct{}
	doneMsg    struct{}
)

type consoleModel struct {
	src     Source
	styles  styles
	spinner spinner.Model
	refresh time.Duration

	progress monitor.Progress
	done     bool
	reason   monitor.HaltReason
	quitting bool
	width    int
}

func newModel(src Source, theme Theme, refresh time.Duration) *consoleModel {
	st := newStyles(theme)
	if refresh <= 0 {
		refresh = 200 * time.Millisecond
	}
	return &consoleModel{
		src:      src,
		styles:   st,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(st.spinner)),
		refresh:  refresh,
		progress: src.Snapshot(),
	}
}

// Run blocks until the run finishes, the operator quits or ctx is cancelled.
func (c *Console) Run(ctx context.Context) error {
	out := c.Output
	if out == nil {
		out = os.Stderr
	}
	m := newModel(c.Source, c.Theme, c.Refresh)
	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithOutput(out))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m *consoleModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.scheduleRefresh(), m.waitDone())
}

func (m *consoleModel) scheduleRefresh() tea.Cmd {
	return tea.Tick(m.refresh, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

func (m *consoleModel) waitDone() tea.Cmd {
	done := m.src.Done()
	return func() tea.Msg {
		<-done
		return doneMsg{}
	}
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			m.src.RequestExit()
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case refreshMsg:
		if m.done {
			return m, nil
		}
		m.progress = m.src.Snapshot()
		return m, m.scheduleRefresh()

	case doneMsg:
		m.done = true
		m.reason = m.src.HaltReason()
		m.progress = m.src.Snapshot()
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *consoleModel) View() string {
	s := m.styles
	p := m.progress
	var b strings.Builder

	b.WriteString(s.title.Render("Pane Driver"))
	b.WriteString("  ")
	b.WriteString(s.label.Render("q=stop and clean up"))
	b.WriteString("\n")

	b.WriteString(s.label.Render("session  "))
	b.WriteString(s.session.Render(p.Session))
	b.WriteString("  ")
	b.WriteString(m.statusText())
	b.WriteString("\n")

	b.WriteString(s.label.Render("tasks    "))
	b.WriteString(s.text.Render(fmt.Sprintf("%d/%d sent, %d queued", sent(p), p.Total, p.Remaining)))
	if p.Next != "" {
		b.WriteString(s.label.Render("  next: "))
		b.WriteString(s.text.Render(truncate(p.Next, 40)))
	}
	b.WriteString("\n")

	width := m.width
	if width <= 0 {
		width = 80
	}
	b.WriteString(s.rule.Render(strings.Repeat("─", min(width, 80))))
	b.WriteString("\n")
	b.WriteString(s.text.Render(truncate(p.Line, width-2)))
	b.WriteString("\n")
	return b.String()
}

func (m *consoleModel) statusText() string {
	s := m.styles
	switch {
	case m.done && m.reason == monitor.HaltError:
		return s.err.Render("halted on error")
	case m.done:
		return s.polling.Render("finished (" + string(m.reason) + ")")
	case m.quitting:
		return s.busy.Render("stopping...")
	case m.progress.Status == monitor.Dispatching:
		return m.spinner.View() + " " + s.busy.Render("dispatching")
	default:
		return m.spinner.View() + " " + s.polling.Render(m.progress.Status.String())
	}
}

// sent returns how many tasks have been dispatched; the counter starts at 1.
func sent(p monitor.Progress) int {
	if p.Dispatched < 1 {
		return 0
	}
	return p.Dispatched - 1
}

// truncate cuts a string to at most maxLen characters.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:max(maxLen, 0)])
	}
	return string(r[:maxLen-3]) + "..."
}
