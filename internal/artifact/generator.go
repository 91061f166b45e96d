package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/kingrea/weft/internal/profile"
)

// TSGenerator renders the default TypeScript project documents.
type TSGenerator struct {
	// Version is written into package.json when the project config does not
	// set one.
	Version string
}

// NewTSGenerator returns a generator with default settings.
func NewTSGenerator() *TSGenerator {
	return &TSGenerator{Version: "0.0.0"}
}

// Generate builds the document bundle for in.
func (g *TSGenerator) Generate(ctx context.Context, in Input) (Bundle, error) {
	if err := ctx.Err(); err != nil {
		return Bundle{}, err
	}
	name := in.Config.Name
	if name == "" {
		return Bundle{}, fmt.Errorf("artifact: project name is required")
	}
	tsconfig, err := encodeJSON(g.tsconfig(in))
	if err != nil {
		return Bundle{}, fmt.Errorf("artifact: encode %s for %s: %w", TSConfig, name, err)
	}
	manifest, err := encodeJSON(g.packageJSON(in))
	if err != nil {
		return Bundle{}, fmt.Errorf("artifact: encode %s for %s: %w", PackageJSON, name, err)
	}
	bundler, err := encodeJSON(g.bundlerInput(in))
	if err != nil {
		return Bundle{}, fmt.Errorf("artifact: encode %s for %s: %w", BundlerInput, name, err)
	}
	return NewBundle(name,
		Document{Name: TSConfig, Kind: KindJSON, Body: tsconfig},
		Document{Name: PackageJSON, Kind: KindJSON, Body: manifest},
		Document{Name: BundlerInput, Kind: KindJSON, Body: bundler},
		Document{Name: GitIgnore, Kind: KindText, Body: textLines(GitIgnoreEntries(in.Ignores))},
		Document{Name: NPMIgnore, Kind: KindText, Body: textLines(NPMIgnoreEntries(in.Ignores))},
	), nil
}

type tsReference struct {
	Path string `json:"path"`
}

type tsCompilerOptions struct {
	Target           string              `json:"target"`
	Module           string              `json:"module"`
	ModuleResolution string              `json:"moduleResolution"`
	Composite        bool                `json:"composite"`
	Declaration      bool                `json:"declaration"`
	OutDir           string              `json:"outDir"`
	Paths            map[string][]string `json:"paths,omitempty"`
}

type tsConfigDoc struct {
	CompilerOptions tsCompilerOptions `json:"compilerOptions"`
	Files           []string          `json:"files"`
	References      []tsReference     `json:"references,omitempty"`
}

func (g *TSGenerator) tsconfig(in Input) tsConfigDoc {
	doc := tsConfigDoc{
		CompilerOptions: tsCompilerOptions{
			Target:           in.Config.Target,
			Module:           "esnext",
			ModuleResolution: "bundler",
			Composite:        true,
			Declaration:      true,
			OutDir:           "./dist/types",
			Paths:            PathAliases(in.Resolution),
		},
		Files: CompiledFiles(in.Files, in.Resolution),
	}
	for _, ref := range in.Refs {
		doc.References = append(doc.References, tsReference{Path: ref})
	}
	return doc
}

func (g *TSGenerator) packageJSON(in Input) map[string]any {
	manifest := map[string]any{
		"name":    in.Config.Name,
		"version": g.Version,
		"type":    "module",
	}
	exports := map[string]any{}
	for _, key := range in.Config.ExportNames() {
		out := distPath(in.Config.Exports[key])
		exports[key] = map[string]string{
			"types":  "./dist/types/" + strings.TrimPrefix(out, "./dist/") + ".d.ts",
			"import": out + ".js",
		}
	}
	manifest["exports"] = exports
	if len(in.Config.Deps) > 0 {
		deps := map[string]string{}
		for _, dep := range in.Config.Deps {
			deps[dep] = "workspace:*"
		}
		manifest["dependencies"] = deps
	}
	for k, v := range in.Config.Package {
		manifest[k] = v
	}
	return manifest
}

type bundlerDoc struct {
	Name    string            `json:"name"`
	Target  string            `json:"target"`
	Formats []string          `json:"formats"`
	Entries map[string]string `json:"entries"`
	OutDir  string            `json:"outDir"`
}

func (g *TSGenerator) bundlerInput(in Input) bundlerDoc {
	entries := map[string]string{}
	for _, key := range in.Config.ExportNames() {
		entries[key] = ResolveEntry(in.Config.Exports[key], in.Resolution)
	}
	return bundlerDoc{
		Name:    in.Config.Name,
		Target:  in.Config.Target,
		Formats: append([]string(nil), in.Config.Formats...),
		Entries: entries,
		OutDir:  "./dist",
	}
}

// PathAliases maps "#logical" import aliases to the selected variant.
func PathAliases(res profile.Resolution) map[string][]string {
	if len(res.Paths) == 0 {
		return nil
	}
	aliases := make(map[string][]string, len(res.Paths))
	for logical, physical := range res.Paths {
		aliases["#"+strings.TrimPrefix(logical, "./")] = []string{physical}
	}
	return aliases
}

// CompiledFiles returns files without the variants the resolution left unused.
func CompiledFiles(files []string, res profile.Resolution) []string {
	unused := make(map[string]struct{}, len(res.Unused))
	for _, u := range res.Unused {
		unused[u] = struct{}{}
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		if _, skip := unused[profile.NormalizePath(f)]; skip {
			continue
		}
		out = append(out, profile.NormalizePath(f))
	}
	sort.Strings(out)
	return out
}

// ResolveEntry maps an export source through the profile resolution.
func ResolveEntry(src string, res profile.Resolution) string {
	info := profile.Parse(src)
	if selected, ok := res.Selected(info.LogicalPath); ok {
		return selected
	}
	return info.PhysicalPath
}

// GitIgnoreEntries lists the entries written to .gitignore.
func GitIgnoreEntries(ignores []string) []string {
	return mergeEntries(ignores, []string{"package.json", "tsconfig.json", BundlerInput, "dist", "build"})
}

// NPMIgnoreEntries lists the entries written to .npmignore.
func NPMIgnoreEntries(ignores []string) []string {
	return mergeEntries(ignores, []string{"src", "tests", "tsconfig*.json", BundlerInput, "*.tsbuildinfo"})
}

func mergeEntries(base, extra []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(base)+len(extra))
	for _, entry := range append(append([]string{}, base...), extra...) {
		if _, dup := seen[entry]; dup || entry == "" {
			continue
		}
		seen[entry] = struct{}{}
		out = append(out, entry)
	}
	return out
}

func distPath(src string) string {
	info := profile.Parse(src)
	trimmed := strings.TrimPrefix(info.LogicalPath, "./")
	trimmed = strings.TrimPrefix(trimmed, "src/")
	return "./dist/" + path.Clean(trimmed)
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func textLines(lines []string) []byte {
	if len(lines) == 0 {
		return []byte{}
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}
