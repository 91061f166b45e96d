package engine

import (
	"time"

	"github.com/kingrea/weft/internal/profile"
	"github.com/kingrea/weft/internal/workflow/resolver"
)

// EngineStatus enumerates coarse engine phases.
type EngineStatus string

const (
	EngineStatusIdle       EngineStatus = "idle"
	EngineStatusInstalling EngineStatus = "installing"
	EngineStatusBuilding   EngineStatus = "building"
	EngineStatusReady      EngineStatus = "ready"
	EngineStatusError      EngineStatus = "error"
	EngineStatusStopped    EngineStatus = "stopped"
)

// ProjectStatus is the per-project state shown by the status table.
type ProjectStatus string

const (
	ProjectIdle       ProjectStatus = "idle"
	ProjectGenerating ProjectStatus = "generating"
	ProjectQueued     ProjectStatus = "queued"
	ProjectBuilding   ProjectStatus = "building"
	ProjectReady      ProjectStatus = "ready"
	ProjectFailed     ProjectStatus = "failed"
	ProjectClosed     ProjectStatus = "closed"
)

// BuildResult is the outcome of one build attempt.
type BuildResult string

const (
	BuildRunning   BuildResult = "running"
	BuildSucceeded BuildResult = "succeeded"
	BuildFailed    BuildResult = "failed"
	BuildAborted   BuildResult = "aborted"
)

// BuildRecord persists the last known build of a project.
type BuildRecord struct {
	ID         string      `json:"id"`
	Result     BuildResult `json:"result"`
	Reasons    []string    `json:"reasons,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Duration reports how long the build ran. Running builds report zero.
func (r BuildRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ProjectState exposes one project for UI and state consumers.
type ProjectState struct {
	Name         string               `json:"name"`
	Path         string               `json:"path"`
	Status       ProjectStatus        `json:"status"`
	GraphState   resolver.NodeState   `json:"graph_state"`
	Dependencies []string             `json:"dependencies,omitempty"`
	Dependents   []string             `json:"dependents,omitempty"`
	Missing      []string             `json:"missing,omitempty"`
	Profiles     []string             `json:"profiles,omitempty"`
	Files        int                  `json:"files"`
	Checksum     string               `json:"checksum,omitempty"`
	Written      []string             `json:"written,omitempty"`
	Unresolved   []profile.Diagnostic `json:"unresolved,omitempty"`
	LastBuild    *BuildRecord         `json:"last_build,omitempty"`
	Error        string               `json:"error,omitempty"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// State captures the persisted snapshot of an engine session.
type State struct {
	RunID     string       `json:"run_id"`
	Workspace string       `json:"workspace"`
	Root      string       `json:"root"`
	Mode      string       `json:"mode"`
	Profiles  []string     `json:"profiles"`
	Status    EngineStatus `json:"status"`
	// StatusReason provides a human readable explanation for error states.
	StatusReason string         `json:"status_reason,omitempty"`
	Order        []string       `json:"order"`
	Pending      []string       `json:"pending,omitempty"`
	Install      *InstallStatus `json:"install,omitempty"`
	Projects     []ProjectState `json:"projects"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Project looks a project up by name.
func (s State) Project(name string) (ProjectState, bool) {
	for _, p := range s.Projects {
		if p.Name == name {
			return p, true
		}
	}
	return ProjectState{}, false
}

// Counts tallies projects by status.
func (s State) Counts() map[ProjectStatus]int {
	out := map[ProjectStatus]int{}
	for _, p := range s.Projects {
		out[p.Status]++
	}
	return out
}

func deriveEngineStatus(projects []ProjectState, install *InstallStatus) (EngineStatus, string) {
	if install != nil {
		switch install.Phase {
		case InstallStart:
			return EngineStatusInstalling, ""
		case InstallFail:
			return EngineStatusError, "install failed: " + install.Error
		}
	}
	busy := false
	for _, p := range projects {
		switch p.Status {
		case ProjectFailed:
			return EngineStatusError, p.Name + " failed"
		case ProjectGenerating, ProjectQueued, ProjectBuilding:
			busy = true
		}
	}
	if busy {
		return EngineStatusBuilding, ""
	}
	for _, p := range projects {
		if p.Status != ProjectReady {
			return EngineStatusIdle, ""
		}
	}
	return EngineStatusReady, ""
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
