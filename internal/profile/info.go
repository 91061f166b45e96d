// Package profile resolves profile-tagged source variants. A file such as
// src/api#web#prod.ts is a variant of the logical path ./src/api that claims
// the #web and #prod tags.
package profile

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultProfile is used when no active profiles are supplied.
const DefaultProfile = "default"

var tagSegment = regexp.MustCompile(`#[^\\/.]+`)

// Info describes one physical file and the logical path it provides.
type Info struct {
	LogicalPath  string   `json:"logical_path"`
	PhysicalPath string   `json:"physical_path"`
	Tags         []string `json:"tags,omitempty"`
}

// Tagged reports whether the file declares at least one profile tag.
func (i Info) Tagged() bool {
	return len(i.Tags) > 0
}

// Has reports whether the file claims tag.
func (i Info) Has(tag string) bool {
	for _, t := range i.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Parse derives the logical path and profile tags for a project-relative path.
func Parse(p string) Info {
	physical := NormalizePath(p)
	var tags []string
	stripped := tagSegment.ReplaceAllStringFunc(physical, func(seg string) string {
		for _, part := range strings.Split(seg, "#") {
			if part != "" {
				tags = append(tags, "#"+part)
			}
		}
		return ""
	})
	logical := strings.TrimSuffix(stripped, path.Ext(stripped))
	return Info{
		LogicalPath:  logical,
		PhysicalPath: physical,
		Tags:         tags,
	}
}

// NormalizePath converts p to a slash-separated path rooted at "./".
func NormalizePath(p string) string {
	p = filepath.ToSlash(strings.TrimSpace(p))
	if p == "" {
		return "./"
	}
	if strings.HasPrefix(p, "/") {
		return path.Clean(p)
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "./"
	}
	if strings.HasPrefix(cleaned, "../") {
		return cleaned
	}
	return "./" + cleaned
}

// NormalizeProfiles prefixes each profile with "#" and drops duplicates. An
// empty input yields the default profile.
func NormalizeProfiles(profiles []string) []string {
	out := make([]string, 0, len(profiles))
	seen := map[string]struct{}{}
	for _, p := range profiles {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "#") {
			p = "#" + p
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	if len(out) == 0 {
		out = append(out, "#"+DefaultProfile)
	}
	return out
}
