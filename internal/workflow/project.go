package workflow

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// Formats understood by the bundler input generator.
const (
	FormatESM  = "esm"
	FormatCJS  = "cjs"
	FormatIIFE = "iife"
)

// ProjectConfig models <project>/weft.project.yaml.
type ProjectConfig struct {
	Name     string            `json:"name" yaml:"name"`
	Exports  map[string]string `json:"exports,omitempty" yaml:"exports,omitempty"`
	Profiles []string          `json:"profiles,omitempty" yaml:"profiles,omitempty"`
	Deps     []string          `json:"deps,omitempty" yaml:"deps,omitempty"`
	Formats  []string          `json:"formats,omitempty" yaml:"formats,omitempty"`
	Target   string            `json:"target,omitempty" yaml:"target,omitempty"`
	Ignore   IgnoreConfig      `json:"ignore,omitempty" yaml:"ignore,omitempty"`
	Package  map[string]any    `json:"package,omitempty" yaml:"package,omitempty"`
}

// IgnoreConfig adjusts the generated ignore files. Include entries are added,
// exclude entries are removed from the defaults.
type IgnoreConfig struct {
	Include []string `json:"include,omitempty" yaml:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
}

// Clone returns a deep copy of the config.
func (cfg ProjectConfig) Clone() ProjectConfig {
	clone := ProjectConfig{
		Name:     cfg.Name,
		Profiles: cloneStringSlice(cfg.Profiles),
		Deps:     cloneStringSlice(cfg.Deps),
		Formats:  cloneStringSlice(cfg.Formats),
		Target:   cfg.Target,
		Ignore: IgnoreConfig{
			Include: cloneStringSlice(cfg.Ignore.Include),
			Exclude: cloneStringSlice(cfg.Ignore.Exclude),
		},
	}
	if len(cfg.Exports) > 0 {
		clone.Exports = make(map[string]string, len(cfg.Exports))
		for k, v := range cfg.Exports {
			clone.Exports[k] = v
		}
	}
	if len(cfg.Package) > 0 {
		clone.Package = make(map[string]any, len(cfg.Package))
		for k, v := range cfg.Package {
			clone.Package[k] = v
		}
	}
	return clone
}

// Normalized applies defaults and validates the result. fallbackName is used
// when the file omits a name, usually the project directory's base name.
func (cfg ProjectConfig) Normalized(fallbackName string) (ProjectConfig, error) {
	clone := cfg.Clone()
	clone.Name = strings.TrimSpace(clone.Name)
	if clone.Name == "" {
		clone.Name = strings.TrimSpace(fallbackName)
	}
	if len(clone.Exports) == 0 {
		clone.Exports = map[string]string{".": "./index.ts"}
	}
	for key, src := range clone.Exports {
		clone.Exports[key] = "./" + strings.TrimPrefix(path.Clean(strings.TrimSpace(src)), "./")
	}
	if len(clone.Formats) == 0 {
		clone.Formats = []string{FormatESM}
	}
	for i, f := range clone.Formats {
		clone.Formats[i] = strings.ToLower(strings.TrimSpace(f))
	}
	clone.Deps = mergeDependencies(nil, clone.Deps)
	if clone.Target == "" {
		clone.Target = "es2020"
	}
	if err := clone.Validate(); err != nil {
		return ProjectConfig{}, err
	}
	return clone, nil
}

// Validate ensures the config is usable.
func (cfg ProjectConfig) Validate() error {
	if cfg.Name == "" {
		return fmt.Errorf("workflow: project name is required")
	}
	for _, f := range cfg.Formats {
		switch f {
		case FormatESM, FormatCJS, FormatIIFE:
		default:
			return fmt.Errorf("workflow: project %s: unsupported format %q", cfg.Name, f)
		}
	}
	for _, dep := range cfg.Deps {
		if dep == cfg.Name {
			return fmt.Errorf("workflow: project %s depends on itself", cfg.Name)
		}
	}
	return nil
}

// ExportNames returns the export keys in sorted order.
func (cfg ProjectConfig) ExportNames() []string {
	out := make([]string, 0, len(cfg.Exports))
	for k := range cfg.Exports {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
