package workflow

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// WorkspaceDefinition models weft.yaml at the workspace root.
type WorkspaceDefinition struct {
	Name     string         `json:"name" yaml:"name"`
	Install  []string       `json:"install,omitempty" yaml:"install,omitempty"`
	Build    BuildCommands  `json:"build,omitempty" yaml:"build,omitempty"`
	Projects []ProjectRef   `json:"projects" yaml:"projects"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// BuildCommands lists the external commands run for each project. Every
// command runs with the project directory as its working directory.
type BuildCommands struct {
	Typecheck []string `json:"typecheck,omitempty" yaml:"typecheck,omitempty"`
	Bundle    []string `json:"bundle,omitempty" yaml:"bundle,omitempty"`
	Watch     []string `json:"watch,omitempty" yaml:"watch,omitempty"`
}

// Empty reports whether no build command is configured.
func (b BuildCommands) Empty() bool {
	return len(b.Typecheck) == 0 && len(b.Bundle) == 0 && len(b.Watch) == 0
}

// ProjectRef points at a project directory relative to the workspace root.
type ProjectRef struct {
	Path string `json:"path" yaml:"path"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Clone returns a deep copy of the definition.
func (def WorkspaceDefinition) Clone() WorkspaceDefinition {
	clone := WorkspaceDefinition{
		Name:    def.Name,
		Install: cloneStringSlice(def.Install),
		Build: BuildCommands{
			Typecheck: cloneStringSlice(def.Build.Typecheck),
			Bundle:    cloneStringSlice(def.Build.Bundle),
			Watch:     cloneStringSlice(def.Build.Watch),
		},
	}
	if len(def.Projects) > 0 {
		clone.Projects = append([]ProjectRef(nil), def.Projects...)
	}
	if len(def.Metadata) > 0 {
		clone.Metadata = make(map[string]any, len(def.Metadata))
		for k, v := range def.Metadata {
			clone.Metadata[k] = v
		}
	}
	return clone
}

// Normalized cleans project paths and validates the result.
func (def WorkspaceDefinition) Normalized() (WorkspaceDefinition, error) {
	clone := def.Clone()
	clone.Name = strings.TrimSpace(clone.Name)
	for i := range clone.Projects {
		clone.Projects[i].Path = cleanRelative(clone.Projects[i].Path)
		clone.Projects[i].Name = strings.TrimSpace(clone.Projects[i].Name)
	}
	if err := clone.Validate(); err != nil {
		return WorkspaceDefinition{}, err
	}
	return clone, nil
}

// Validate ensures the definition is self-consistent.
func (def WorkspaceDefinition) Validate() error {
	if def.Name == "" {
		return fmt.Errorf("workflow: workspace name is required")
	}
	if len(def.Projects) == 0 {
		return fmt.Errorf("workflow %s: at least one project is required", def.Name)
	}
	seen := map[string]struct{}{}
	for idx, ref := range def.Projects {
		if ref.Path == "" || ref.Path == "." {
			return fmt.Errorf("workflow %s project[%d]: path is required", def.Name, idx)
		}
		if strings.HasPrefix(ref.Path, "../") || path.IsAbs(ref.Path) {
			return fmt.Errorf("workflow %s project[%d]: path %s must stay inside the workspace", def.Name, idx, ref.Path)
		}
		if _, dup := seen[ref.Path]; dup {
			return fmt.Errorf("workflow %s: duplicate project path %s", def.Name, ref.Path)
		}
		seen[ref.Path] = struct{}{}
	}
	return nil
}

// ProjectPaths returns the project directories in declaration order.
func (def WorkspaceDefinition) ProjectPaths() []string {
	out := make([]string, 0, len(def.Projects))
	for _, ref := range def.Projects {
		out = append(out, ref.Path)
	}
	return out
}

func cleanRelative(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean(p), "./")
}

func mergeDependencies(existing, adds []string) []string {
	if len(adds) == 0 && len(existing) == 0 {
		return nil
	}
	set := map[string]struct{}{}
	for _, id := range append(append([]string{}, existing...), adds...) {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func cloneStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	clone := make([]string, len(values))
	copy(clone, values)
	return clone
}
