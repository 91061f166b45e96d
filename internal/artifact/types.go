// Package artifact describes the generated documents a project needs before it
// can be built (compiler config, manifest, ignore files, bundler input) and
// persists them without touching files whose content did not change.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/kingrea/weft/internal/profile"
	"github.com/kingrea/weft/internal/workflow"
)

// Kind captures the serialization format for a document.
type Kind string

const (
	// KindJSON represents an indented JSON document.
	KindJSON Kind = "json"
	// KindText represents a newline separated text document.
	KindText Kind = "text"
)

// Well-known document names relative to the project directory.
const (
	TSConfig     = "tsconfig.json"
	PackageJSON  = "package.json"
	GitIgnore    = ".gitignore"
	NPMIgnore    = ".npmignore"
	BundlerInput = "bundler.input.json"
)

// Document is one generated file.
type Document struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
	Body []byte `json:"-"`
}

// Bundle is the full set of documents generated for a project in one pass.
// Bundles are immutable once built; compare them by Checksum.
type Bundle struct {
	Project   string     `json:"project"`
	Documents []Document `json:"documents"`
	Checksum  string     `json:"checksum"`
}

// NewBundle sorts docs by name and stamps the checksum.
func NewBundle(project string, docs ...Document) Bundle {
	sorted := append([]Document(nil), docs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	h := sha256.New()
	for _, doc := range sorted {
		h.Write([]byte(doc.Name))
		h.Write([]byte{0})
		h.Write(doc.Body)
		h.Write([]byte{0})
	}
	return Bundle{
		Project:   project,
		Documents: sorted,
		Checksum:  hex.EncodeToString(h.Sum(nil)),
	}
}

// Document returns the named document.
func (b Bundle) Document(name string) (Document, bool) {
	for _, doc := range b.Documents {
		if doc.Name == name {
			return doc, true
		}
	}
	return Document{}, false
}

// Empty reports whether the bundle holds no documents.
func (b Bundle) Empty() bool {
	return len(b.Documents) == 0
}

// Input is everything a generator needs for one project.
type Input struct {
	// ProjectPath is the project directory relative to the workspace root.
	ProjectPath string
	Config      workflow.ProjectConfig
	Profiles    []string
	Resolution  profile.Resolution
	// Files lists compiled sources relative to the project, "./" prefixed.
	Files     []string
	TypeFiles []string
	// Refs are dependency project paths relative to this project.
	Refs    []string
	Ignores []string
}

// Generator produces a project's documents.
type Generator interface {
	Generate(ctx context.Context, in Input) (Bundle, error)
}

// GeneratorFunc adapts a function into a Generator.
type GeneratorFunc func(ctx context.Context, in Input) (Bundle, error)

// Generate executes f(ctx, in).
func (f GeneratorFunc) Generate(ctx context.Context, in Input) (Bundle, error) {
	return f(ctx, in)
}
