package workflow

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Project is a loaded workspace member.
type Project struct {
	// Path is the slash-separated directory relative to the workspace root.
	Path   string
	Dir    string
	Config ProjectConfig
}

// Name returns the project's configured name.
func (p Project) Name() string {
	return p.Config.Name
}

// Workspace is a loaded weft.yaml plus the config of every project.
type Workspace struct {
	Root       string
	Definition WorkspaceDefinition
	Projects   []Project
}

// LoadWorkspace reads weft.yaml under root and each project's config.
func LoadWorkspace(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("workflow: resolve %s: %w", root, err)
	}
	def, err := LoadWorkspaceFile(filepath.Join(abs, WorkspaceFile))
	if err != nil {
		return nil, err
	}
	ws := &Workspace{Root: abs, Definition: def}
	names := map[string]string{}
	for _, ref := range def.Projects {
		dir := filepath.Join(abs, filepath.FromSlash(ref.Path))
		cfg, err := LoadProjectFile(dir)
		if err != nil {
			return nil, err
		}
		if ref.Name != "" {
			cfg.Name = ref.Name
		}
		if other, dup := names[cfg.Name]; dup {
			return nil, fmt.Errorf("workflow %s: projects %s and %s share the name %s", def.Name, other, ref.Path, cfg.Name)
		}
		names[cfg.Name] = ref.Path
		ws.Projects = append(ws.Projects, Project{Path: ref.Path, Dir: dir, Config: cfg})
	}
	return ws, nil
}

// Project looks a member up by name.
func (w *Workspace) Project(name string) (Project, bool) {
	for _, p := range w.Projects {
		if p.Name() == name {
			return p, true
		}
	}
	return Project{}, false
}

// Names returns project names in declaration order.
func (w *Workspace) Names() []string {
	out := make([]string, 0, len(w.Projects))
	for _, p := range w.Projects {
		out = append(out, p.Name())
	}
	return out
}

// ProjectForPath returns the project owning an absolute or root-relative file
// path, along with the path relative to that project. Nested projects resolve
// to the deepest match.
func (w *Workspace) ProjectForPath(file string) (Project, string, bool) {
	rel := file
	if filepath.IsAbs(file) {
		r, err := filepath.Rel(w.Root, file)
		if err != nil {
			return Project{}, "", false
		}
		rel = r
	}
	rel = filepath.ToSlash(filepath.Clean(rel))
	if strings.HasPrefix(rel, "../") {
		return Project{}, "", false
	}
	candidates := append([]Project(nil), w.Projects...)
	sort.Slice(candidates, func(i, j int) bool {
		return len(candidates[i].Path) > len(candidates[j].Path)
	})
	for _, p := range candidates {
		if rel == p.Path {
			return p, ".", true
		}
		if strings.HasPrefix(rel, p.Path+"/") {
			return p, strings.TrimPrefix(rel, p.Path+"/"), true
		}
	}
	return Project{}, "", false
}
