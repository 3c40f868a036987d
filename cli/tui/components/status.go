package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/briefcase-hq/briefcase/cli/tui/styles"
	"github.com/briefcase-hq/briefcase/engine/agenttask"
	"github.com/briefcase-hq/briefcase/engine/monitor"
	"github.com/briefcase-hq/briefcase/engine/monitor/stream"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	defaultRefresh = 250 * time.Millisecond
	visibleEvents  = 5
)

// StateSource is what the status indicator renders.
type StateSource interface {
	State() monitor.State
}

type refreshMsg time.Time

// TaskStartedMsg and TaskFinishedMsg carry bus broadcasts into the program.
type TaskStartedMsg agenttask.TaskStarted

type TaskFinishedMsg agenttask.TaskFinished

type cancelResultMsg struct{ err error }

type statusKeys struct {
	Quit   key.Binding
	Cancel key.Binding
	Copy   key.Binding
}

func defaultStatusKeys() statusKeys {
	return statusKeys{
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "detach")),
		Cancel: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "cancel task")),
		Copy:   key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy")),
	}
}

// StatusModel is a persistent indicator of the monitored task.
type StatusModel struct {
	source   StateSource
	onCancel func() error
	copyText func(string) error
	refresh  time.Duration
	keys     statusKeys
	spinner  spinner.Model
	progress progress.Model
	state    monitor.State
	notice   string
	err      error
	width    int
	done     bool
	quitting bool
}

// NewStatusModel renders source; onCancel may be nil to disable cancelling.
func NewStatusModel(source StateSource, onCancel func() error) StatusModel {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.TitleStyle))
	return StatusModel{
		source:   source,
		onCancel: onCancel,
		copyText: clipboard.WriteAll,
		refresh:  defaultRefresh,
		keys:     defaultStatusKeys(),
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

// WithRefresh sets how often the state is re-read.
func (m StatusModel) WithRefresh(d time.Duration) StatusModel {
	if d > 0 {
		m.refresh = d
	}
	return m
}

func (m StatusModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.tick())
}

func (m StatusModel) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

// Done reports whether the task reached a final state.
func (m StatusModel) Done() bool {
	return m.done
}

// Err is the last cancel failure, if any.
func (m StatusModel) Err() error {
	return m.err
}

func (m StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = min(max(msg.Width-20, 10), 60)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case refreshMsg:
		m.state = m.source.State()
		if m.finished() {
			m.done = true
			return m, tea.Quit
		}
		return m, m.tick()
	case cancelResultMsg:
		m.err = msg.err
		m.state = m.source.State()
		return m, tea.Quit
	case TaskStartedMsg:
		m.notice = fmt.Sprintf("Task %s started", msg.TaskID)
		return m, nil
	case TaskFinishedMsg:
		m.notice = fmt.Sprintf("Task %s %s", msg.TaskID, msg.Status)
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m StatusModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Cancel) && m.onCancel != nil && m.state.Active != nil:
		cancel := m.onCancel
		return m, func() tea.Msg { return cancelResultMsg{err: cancel()} }
	case key.Matches(msg, m.keys.Copy):
		text := m.copyable()
		if text == "" {
			return m, nil
		}
		if err := m.copyText(text); err != nil {
			m.notice = "Copy failed: " + err.Error()
		} else {
			m.notice = "Copied to clipboard"
		}
	}
	return m, nil
}

// copyable is the summary of a finished task, else the task id.
func (m StatusModel) copyable() string {
	if t := m.state.LastCompleted; t != nil && m.state.Active == nil {
		if t.Result.Summary != "" {
			return t.Result.Summary
		}
		return t.ID.String()
	}
	if t := m.state.Active; t != nil {
		return t.ID.String()
	}
	return ""
}

func (m StatusModel) finished() bool {
	return m.state.Active == nil && m.state.Cancelling == nil && m.state.LastCompleted != nil
}

func (m StatusModel) View() string {
	var b strings.Builder
	task := m.state.Active
	if task == nil {
		task = m.state.Cancelling
	}
	if task == nil {
		task = m.state.LastCompleted
	}
	if task == nil {
		b.WriteString(styles.MutedStyle.Render("No active task"))
		b.WriteString("\n")
		return styles.BoxStyle.Render(b.String())
	}

	header := fmt.Sprintf("%s %s", styles.TitleStyle.Render(truncate(task.Goal, 60)), styles.StatusBadge(task.Status))
	if !task.Status.IsTerminal() {
		header = m.spinner.View() + " " + header
	}
	b.WriteString(header + "\n")
	b.WriteString(m.progress.ViewAs(float64(task.Progress.Percent)/100) + "\n")
	if step := task.Progress.CurrentStep; step != "" {
		b.WriteString(styles.MutedStyle.Render("Step: "+step) + "\n")
	}
	if task.Result.Summary != "" {
		b.WriteString(task.Result.Summary + "\n")
	}
	if task.Error != "" {
		b.WriteString(styles.ErrorStyle.Render(task.Error) + "\n")
	}
	if m.state.Stalled {
		b.WriteString(styles.WarningStyle.Render("No progress for a while, the task may be stalled") + "\n")
	}
	if line := connectionLine(m.state); line != "" {
		b.WriteString(styles.MutedStyle.Render(line) + "\n")
	}
	events := m.state.Events
	if len(events) > visibleEvents {
		events = events[len(events)-visibleEvents:]
	}
	for _, ev := range events {
		b.WriteString(fmt.Sprintf("%s %s %s\n",
			styles.MutedStyle.Render(ev.Timestamp.Format("15:04:05")), ev.Icon, ev.Message))
	}
	if m.notice != "" {
		b.WriteString(styles.MutedStyle.Render(m.notice) + "\n")
	}
	if m.err != nil {
		b.WriteString(styles.ErrorStyle.Render(m.err.Error()) + "\n")
	}
	help := m.keys.Quit.Help().Key + " " + m.keys.Quit.Help().Desc +
		" • " + m.keys.Copy.Help().Key + " " + m.keys.Copy.Help().Desc
	if m.onCancel != nil && m.state.Active != nil {
		help += " • " + m.keys.Cancel.Help().Key + " " + m.keys.Cancel.Help().Desc
	}
	b.WriteString(styles.HelpStyle.Render(help))
	return styles.BoxStyle.Render(b.String())
}

func connectionLine(st monitor.State) string {
	if st.Active == nil {
		return ""
	}
	switch st.Connection {
	case stream.StateConnected:
		return "live"
	case stream.StateError, stream.StateConnecting:
		if st.Reconnect.Attempt > 0 {
			return fmt.Sprintf("reconnecting (%d/%d)", st.Reconnect.Attempt, st.Reconnect.MaxAttempts)
		}
		return "connecting"
	default:
		if st.Polling {
			return "polling"
		}
		return ""
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
