package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/weft/internal/workflow/engine"
)

var (
	labelStyleReady   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyleRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStyleQueued  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	labelStyleClosed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	labelStyleDefault = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	detailTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	columnHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#888888"))
)

const (
	nameWidth   = 20
	statusWidth = 12
	filesWidth  = 7
	buildWidth  = 12
)

func labelStyleForStatus(status string) lipgloss.Style {
	switch status {
	case string(engine.ProjectReady): // same value as engine.EngineStatusReady
		return labelStyleReady
	case string(engine.ProjectFailed), string(engine.EngineStatusError):
		return labelStyleFailed
	case string(engine.ProjectBuilding), string(engine.ProjectGenerating), string(engine.EngineStatusInstalling):
		return labelStyleRunning
	case string(engine.ProjectQueued):
		return labelStyleQueued
	case string(engine.ProjectClosed), string(engine.EngineStatusStopped):
		return labelStyleClosed
	default:
		return labelStyleDefault
	}
}

func renderTable(projects []engine.ProjectState, selected, width int) string {
	if len(projects) == 0 {
		return detailTextStyle.Render("No projects in this workspace.")
	}
	rows := []string{columnHeaderStyle.Render(row("PROJECT", "STATUS", "FILES", "LAST BUILD", "REASONS", width))}
	for i, p := range projects {
		line := row(p.Name, string(p.Status), fmt.Sprint(p.Files), lastBuild(p.LastBuild), reasons(p.LastBuild), width)
		style := labelStyleForStatus(string(p.Status))
		if i == selected {
			style = style.Reverse(true)
		}
		rows = append(rows, style.Render(line))
	}
	return strings.Join(rows, "\n")
}

func row(name, status, files, build, why string, width int) string {
	fixed := nameWidth + statusWidth + filesWidth + buildWidth + 4
	line := pad(name, nameWidth) + " " + pad(status, statusWidth) + " " + pad(files, filesWidth) + " " + pad(build, buildWidth) + " "
	if rest := width - fixed; rest > 0 {
		line += truncate(why, rest)
	}
	return line
}

func lastBuild(record *engine.BuildRecord) string {
	if record == nil {
		return "-"
	}
	if record.Result == engine.BuildRunning {
		return "running"
	}
	return fmt.Sprintf("%s %s", record.Result, record.Duration().Round(10*time.Millisecond))
}

func reasons(record *engine.BuildRecord) string {
	if record == nil {
		return ""
	}
	return strings.Join(record.Reasons, ", ")
}

func renderDetails(p engine.ProjectState, width int) string {
	lines := []string{
		labelStyleDefault.Bold(true).Render(p.Name) + detailTextStyle.Render("  "+p.Path),
		detailTextStyle.Render("profiles: " + joinOr(p.Profiles, "-")),
		detailTextStyle.Render("depends on: " + joinOr(p.Dependencies, "-") + " · used by: " + joinOr(p.Dependents, "-")),
	}
	if len(p.Missing) > 0 {
		lines = append(lines, labelStyleFailed.Render("unknown deps: "+strings.Join(p.Missing, ", ")))
	}
	for _, diag := range p.Unresolved {
		lines = append(lines, labelStyleQueued.Render("unresolved "+diag.String()))
	}
	if p.Error != "" {
		lines = append(lines, labelStyleFailed.Render(truncate(p.Error, max(20, width))))
	}
	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#5B8DEF")).
		Padding(0, 1).
		Width(max(20, width)).
		Render(strings.Join(lines, "\n"))
}

func joinOr(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return strings.Join(values, ", ")
}

func pad(s string, n int) string {
	s = truncate(s, n)
	if w := lipgloss.Width(s); w < n {
		s += strings.Repeat(" ", n-w)
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
