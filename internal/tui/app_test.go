package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/weft/internal/stream"
	"github.com/kingrea/weft/internal/workflow/engine"
)

type fakeSource struct {
	state   engine.State
	updates *stream.Stream[engine.State]
}

func (f *fakeSource) Snapshot() engine.State                { return f.state }
func (f *fakeSource) Updates() *stream.Stream[engine.State] { return f.updates }

func sampleState() engine.State {
	return engine.State{
		Workspace: "demo",
		Mode:      "watch",
		Profiles:  []string{"#web"},
		Status:    engine.EngineStatusBuilding,
		Projects: []engine.ProjectState{
			{Name: "core", Status: engine.ProjectReady, Files: 3, LastBuild: &engine.BuildRecord{
				Result:     engine.BuildSucceeded,
				Reasons:    []string{"install"},
				StartedAt:  time.Unix(0, 0),
				FinishedAt: time.Unix(2, 0),
			}},
			{Name: "app", Status: engine.ProjectFailed, Files: 5, Dependencies: []string{"core"}, Error: "tsc exited 2"},
		},
	}
}

func newTestApp(t *testing.T) (*App, *fakeSource) {
	t.Helper()
	src := &fakeSource{state: sampleState(), updates: stream.New[engine.State]()}
	return NewApp(src), src
}

func TestViewRendersProjects(t *testing.T) {
	app, _ := newTestApp(t)
	view := app.View()
	for _, want := range []string{"WEFT", "demo", "core", "app", "succeeded 2s", "install", "1 ready"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestSelectionFollowsKeys(t *testing.T) {
	app, _ := newTestApp(t)
	app.Update(tea.KeyMsg{Type: tea.KeyDown})
	if app.selected != 1 {
		t.Fatalf("selected = %d, want 1", app.selected)
	}
	app.Update(tea.KeyMsg{Type: tea.KeyDown})
	if app.selected != 1 {
		t.Fatalf("selection should stop at the last project, got %d", app.selected)
	}
	if !strings.Contains(app.View(), "tsc exited 2") {
		t.Fatalf("details panel should show the selected project's error")
	}
	app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	if app.selected != 0 {
		t.Fatalf("selected = %d, want 0", app.selected)
	}
}

func TestStateMessagesReplaceSnapshot(t *testing.T) {
	app, src := newTestApp(t)
	app.selected = 1
	next := sampleState()
	next.Projects = next.Projects[:1]
	next.Status = engine.EngineStatusReady
	src.updates.Push(next)

	msg := app.waitForState()()
	_, cmd := app.Update(msg)
	if cmd == nil {
		t.Fatalf("expected the update pump to be re-armed")
	}
	if app.state.Status != engine.EngineStatusReady || len(app.state.Projects) != 1 {
		t.Fatalf("state = %+v", app.state)
	}
	if app.selected != 0 {
		t.Fatalf("selection should be clamped, got %d", app.selected)
	}
}

func TestQuitRunsHookAndStoppedSourceQuits(t *testing.T) {
	src := &fakeSource{state: sampleState(), updates: stream.New[engine.State]()}
	called := 0
	app := NewApp(src, WithQuit(func() { called++ }))
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil || called != 1 {
		t.Fatalf("quit cmd = %v, hook calls = %d", cmd, called)
	}

	other, src2 := newTestApp(t)
	src2.updates.Stop()
	msg := other.waitForState()()
	if _, ok := msg.(sourceStoppedMsg); !ok {
		t.Fatalf("msg = %T, want sourceStoppedMsg", msg)
	}
	if _, cmd := other.Update(msg); cmd == nil || !other.stopped {
		t.Fatalf("stopped source should quit")
	}
}
