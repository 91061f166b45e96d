// Package tui renders the live project status table for `weft dev --tui`.
//
// The model follows The Elm Architecture: engine snapshots arrive as
// messages, Update folds them into the model and View renders the table.
package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/weft/internal/logbook"
	"github.com/kingrea/weft/internal/stream"
	"github.com/kingrea/weft/internal/workflow/engine"
)

// Source provides engine snapshots. *engine.Engine satisfies it.
type Source interface {
	Snapshot() engine.State
	Updates() *stream.Stream[engine.State]
}

type stateMsg struct {
	state engine.State
}

type sourceStoppedMsg struct{}

type keyMap struct {
	Quit key.Binding
	Up   key.Binding
	Down key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Up:   key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
}

// Option customizes App construction.
type Option func(*App)

// WithLogbook shows the tail of the build journal under the table.
func WithLogbook(lb *logbook.Logbook) Option {
	return func(a *App) {
		a.logbook = lb
	}
}

// WithQuit registers a hook run when the user quits.
func WithQuit(fn func()) Option {
	return func(a *App) {
		a.onQuit = fn
	}
}

// App is the status board model.
type App struct {
	source   Source
	updates  *stream.Consumer[engine.State]
	logbook  *logbook.Logbook
	onQuit   func()
	spinner  spinner.Model
	state    engine.State
	selected int
	width    int
	height   int
	stopped  bool
}

// NewApp subscribes to src and seeds the model with its current snapshot.
func NewApp(src Source, opts ...Option) *App {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = labelStyleRunning
	a := &App{
		source:  src,
		updates: src.Updates().Subscribe(),
		spinner: sp,
		state:   src.Snapshot(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Init starts the spinner and the update pump.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.waitForState())
}

func (a *App) waitForState() tea.Cmd {
	consumer := a.updates
	return func() tea.Msg {
		state, err := consumer.Next(context.Background())
		if err != nil {
			return sourceStoppedMsg{}
		}
		return stateMsg{state: state}
	}
}

// Update folds one message into the model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(m, keys.Quit):
			return a, a.quit()
		case key.Matches(m, keys.Up):
			if a.selected > 0 {
				a.selected--
			}
		case key.Matches(m, keys.Down):
			if a.selected < len(a.state.Projects)-1 {
				a.selected++
			}
		}
		return a, nil
	case tea.WindowSizeMsg:
		a.width = m.Width
		a.height = m.Height
		return a, nil
	case stateMsg:
		a.state = m.state
		if a.selected >= len(a.state.Projects) {
			a.selected = max(0, len(a.state.Projects)-1)
		}
		return a, a.waitForState()
	case sourceStoppedMsg:
		a.stopped = true
		return a, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(m)
		return a, cmd
	}
	return a, nil
}

func (a *App) quit() tea.Cmd {
	a.updates.Close()
	if a.onQuit != nil {
		a.onQuit()
		a.onQuit = nil
	}
	return tea.Quit
}

// View renders the board.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		Render("⬡ WEFT")
	sections := []string{
		lipgloss.JoinHorizontal(lipgloss.Top, header, "  ", a.renderSummary()),
		"",
		renderTable(a.state.Projects, a.selected, width-4),
	}
	if node, ok := a.current(); ok {
		sections = append(sections, "", renderDetails(node, width-4))
	}
	if panel := a.renderLogPanel(width - 4); panel != "" {
		sections = append(sections, "", panel)
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		Render(fmt.Sprintf("%s · %s · %s", keys.Up.Help().Key+"/"+keys.Down.Help().Key+" select", keys.Quit.Help().Key+" quit", a.state.Root))
	sections = append(sections, "", footer)
	return lipgloss.NewStyle().Padding(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (a *App) current() (engine.ProjectState, bool) {
	if a.selected < 0 || a.selected >= len(a.state.Projects) {
		return engine.ProjectState{}, false
	}
	return a.state.Projects[a.selected], true
}

func (a *App) renderSummary() string {
	status := string(a.state.Status)
	if status == "" {
		status = string(engine.EngineStatusIdle)
	}
	label := labelStyleForStatus(status).Render(strings.ToUpper(status))
	switch a.state.Status {
	case engine.EngineStatusInstalling, engine.EngineStatusBuilding:
		label = a.spinner.View() + " " + label
	}
	counts := a.state.Counts()
	parts := []string{
		label,
		detailTextStyle.Render(fmt.Sprintf("%s · %s mode · profiles %s", a.state.Workspace, a.state.Mode, strings.Join(a.state.Profiles, " "))),
		detailTextStyle.Render(fmt.Sprintf("%d ready · %d building · %d failed", counts[engine.ProjectReady], counts[engine.ProjectBuilding], counts[engine.ProjectFailed])),
	}
	if a.state.StatusReason != "" {
		parts = append(parts, labelStyleFailed.Render(a.state.StatusReason))
	}
	return strings.Join(parts, "  ")
}

func (a *App) renderLogPanel(width int) string {
	if a.logbook == nil {
		return ""
	}
	lines, _ := a.logbook.Tail(6)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render("LOG · " + fileName)
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(max(20, width)).
		Render(head + "\n" + body)
}
