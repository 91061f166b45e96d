package workflow

import (
	"fmt"
	"path"
	"strings"
)

var sourceExtensions = []string{".ts", ".tsx", ".cts", ".mts", ".ctsx", ".mtsx"}

// DefaultIgnores are directories and files never treated as project sources.
var DefaultIgnores = []string{
	".git",
	".npm",
	".vscode",
	".weft",
	"node_modules",
	"dist",
	"build",
	"typings/dist",
	"*.tsbuildinfo",
	"*.log",
	"*.tmp",
	"tsconfig.json",
	"tsconfig.*.json",
	"package.json",
	"yarn.lock",
	"package-lock.json",
	"bundler.input.json",
}

// FileKind classifies a project-relative path.
type FileKind string

const (
	FileOther  FileKind = "other"
	FileSource FileKind = "source"
	FileType   FileKind = "type"
	FileTest   FileKind = "test"
	FileBin    FileKind = "bin"
	FileAsset  FileKind = "asset"
	FileConfig FileKind = "config"
)

// Classify reports how a project-relative path participates in a build.
func Classify(rel string) FileKind {
	rel = strings.TrimPrefix(path.Clean(strings.ReplaceAll(rel, "\\", "/")), "./")
	base := path.Base(rel)
	if rel == ProjectFile {
		return FileConfig
	}
	if Ignored(rel, nil) {
		return FileOther
	}
	if strings.HasPrefix(rel, "assets/") && path.Ext(rel) == ".json" {
		return FileAsset
	}
	if !hasSourceExtension(base) {
		return FileOther
	}
	if strings.HasSuffix(base, ".d.ts") {
		return FileType
	}
	if strings.HasPrefix(rel, "tests/") || strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") {
		return FileTest
	}
	if strings.HasPrefix(rel, "bin/") {
		return FileBin
	}
	return FileSource
}

// Compiled reports whether a file kind feeds the compiler file list.
func (k FileKind) Compiled() bool {
	switch k {
	case FileSource, FileTest, FileBin, FileAsset:
		return true
	default:
		return false
	}
}

// Ignored reports whether rel matches a default or extra ignore pattern. A
// pattern matches the whole path, any path prefix, or the base name.
func Ignored(rel string, extra []string) bool {
	rel = strings.TrimPrefix(path.Clean(strings.ReplaceAll(rel, "\\", "/")), "./")
	for _, pattern := range DefaultIgnores {
		if matchIgnore(pattern, rel) {
			return true
		}
	}
	for _, pattern := range extra {
		if matchIgnore(strings.TrimSpace(pattern), rel) {
			return true
		}
	}
	return false
}

// EffectiveIgnores applies include and exclude adjustments to base.
func EffectiveIgnores(base []string, cfg IgnoreConfig) []string {
	excluded := map[string]struct{}{}
	for _, e := range cfg.Exclude {
		excluded[strings.TrimSpace(e)] = struct{}{}
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(base)+len(cfg.Include))
	for _, entry := range append(append([]string{}, base...), cfg.Include...) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if _, skip := excluded[entry]; skip {
			continue
		}
		if _, dup := seen[entry]; dup {
			continue
		}
		seen[entry] = struct{}{}
		out = append(out, entry)
	}
	return out
}

func matchIgnore(pattern, rel string) bool {
	if pattern == "" {
		return false
	}
	if rel == pattern || strings.HasPrefix(rel, pattern+"/") {
		return true
	}
	for _, segment := range strings.Split(rel, "/") {
		if ok, _ := path.Match(pattern, segment); ok {
			return true
		}
	}
	return false
}

func hasSourceExtension(name string) bool {
	for _, ext := range sourceExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// EventKind is the kind of a file-system notification.
type EventKind string

const (
	EventAdd    EventKind = "add"
	EventChange EventKind = "change"
	EventUnlink EventKind = "unlink"
)

// ParseEventKind accepts the canonical names plus common aliases.
func ParseEventKind(s string) (EventKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "add", "create":
		return EventAdd, nil
	case "change", "write", "modify":
		return EventChange, nil
	case "unlink", "remove", "delete", "rename":
		return EventUnlink, nil
	default:
		return "", fmt.Errorf("workflow: unknown file event kind %q", s)
	}
}
