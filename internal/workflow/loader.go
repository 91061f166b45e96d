package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// WorkspaceFile is the workspace definition at the repository root.
	WorkspaceFile = "weft.yaml"
	// ProjectFile holds the per-project user config.
	ProjectFile = "weft.project.yaml"
)

// ErrNoWorkspace is returned when no weft.yaml can be found.
var ErrNoWorkspace = errors.New("workflow: no " + WorkspaceFile + " found")

// ParseWorkspaceYAML decodes a workspace definition from YAML/JSON bytes.
func ParseWorkspaceYAML(data []byte) (WorkspaceDefinition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return WorkspaceDefinition{}, fmt.Errorf("workflow: workspace payload is empty")
	}
	var def WorkspaceDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return WorkspaceDefinition{}, fmt.Errorf("workflow: decode workspace: %w", err)
	}
	return def.Normalized()
}

// LoadWorkspaceReader reads a workspace definition from an io.Reader.
func LoadWorkspaceReader(r io.Reader) (WorkspaceDefinition, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return WorkspaceDefinition{}, fmt.Errorf("workflow: read workspace: %w", err)
	}
	return ParseWorkspaceYAML(content)
}

// LoadWorkspaceFile loads a workspace definition from an explicit file path.
func LoadWorkspaceFile(path string) (WorkspaceDefinition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return WorkspaceDefinition{}, fmt.Errorf("%w at %s", ErrNoWorkspace, path)
		}
		return WorkspaceDefinition{}, fmt.Errorf("workflow: read %s: %w", path, err)
	}
	def, parseErr := ParseWorkspaceYAML(content)
	if parseErr != nil {
		return WorkspaceDefinition{}, fmt.Errorf("workflow: %s: %w", path, parseErr)
	}
	return def, nil
}

// ParseProjectYAML decodes a project config. An empty payload yields the
// defaults for fallbackName.
func ParseProjectYAML(data []byte, fallbackName string) (ProjectConfig, error) {
	var cfg ProjectConfig
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return ProjectConfig{}, fmt.Errorf("workflow: decode project: %w", err)
		}
	}
	return cfg.Normalized(fallbackName)
}

// LoadProjectFile loads <dir>/weft.project.yaml. A missing file yields the
// defaults named after the directory.
func LoadProjectFile(dir string) (ProjectConfig, error) {
	path := filepath.Join(dir, ProjectFile)
	fallback := filepath.Base(dir)
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ParseProjectYAML(nil, fallback)
		}
		return ProjectConfig{}, fmt.Errorf("workflow: read %s: %w", path, err)
	}
	cfg, parseErr := ParseProjectYAML(content, fallback)
	if parseErr != nil {
		return ProjectConfig{}, fmt.Errorf("workflow: %s: %w", path, parseErr)
	}
	return cfg, nil
}

// FindRoot walks up from dir until it finds a directory holding weft.yaml.
func FindRoot(dir string) (string, error) {
	current, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("workflow: resolve %s: %w", dir, err)
	}
	for {
		if _, err := os.Stat(filepath.Join(current, WorkspaceFile)); err == nil {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", ErrNoWorkspace
		}
		current = parent
	}
}
