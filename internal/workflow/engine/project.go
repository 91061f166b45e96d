package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/weft/internal/artifact"
	"github.com/kingrea/weft/internal/builder"
	"github.com/kingrea/weft/internal/lifecycle"
	"github.com/kingrea/weft/internal/loop"
	"github.com/kingrea/weft/internal/profile"
	"github.com/kingrea/weft/internal/stream"
	"github.com/kingrea/weft/internal/workflow"
)

// baseIgnores seed the generated ignore files of every project.
var baseIgnores = []string{"node_modules", "*.tsbuildinfo", "*.log"}

// project is one workspace member's regeneration pipeline.
type project struct {
	eng  *Engine
	name string
	path string
	dir  string
	deps []string

	files   *profile.Map
	configs *stream.Stream[workflow.ProjectConfig]
	bundles *stream.Stream[artifact.Bundle]
	regen   *loop.Loop[string]
	ctrl    *lifecycle.Controller[string]

	scanOnce sync.Once
	scanErr  error

	mu         sync.Mutex
	sources    map[string]workflow.FileKind
	status     ProjectStatus
	stable     ProjectStatus
	resolution profile.Resolution
	checksum   string
	written    []string
	reasons    []string
	current    *BuildRecord
	lastBuild  *BuildRecord
	lastErr    string
	updatedAt  time.Time
	idle       chan struct{}
	busy       bool
	waiting    bool
	handle     builder.Handle
}

func newProject(e *Engine, wp workflow.Project, deps []string) (*project, error) {
	idle := make(chan struct{})
	close(idle)
	p := &project{
		eng:     e,
		name:    wp.Name(),
		path:    wp.Path,
		dir:     wp.Dir,
		deps:    deps,
		files:   profile.NewMap(profile.WithLogger(e.logger)),
		configs: stream.New[workflow.ProjectConfig](),
		bundles: stream.New[artifact.Bundle](),
		sources: map[string]workflow.FileKind{},
		status:  ProjectIdle,
		stable:  ProjectIdle,
		idle:    idle,
	}
	p.regen = loop.New("regen "+p.name, p.regenerate,
		loop.WithDebounce(e.debounce.Files),
		loop.WithLogger(e.logger),
		loop.WithContext(e.ctx),
		loop.WithRunHook(func(_ int, err error) { e.metrics.regenerated(p.name, err) }),
	)
	ctrl, err := lifecycle.New("build "+p.name, p.open,
		lifecycle.WithDebounce(e.debounce.Controller),
		lifecycle.WithLogger(e.logger),
		lifecycle.WithContext(e.ctx),
		lifecycle.WithObserver(p.onTransition),
	)
	if err != nil {
		return nil, err
	}
	p.ctrl = ctrl
	p.configs.Push(wp.Config)
	p.configs.OnNext(func(workflow.ProjectConfig) { p.regen.Trigger("config") })
	p.bundles.OnNext(p.onBundle)
	return p, nil
}

func (p *project) config() workflow.ProjectConfig {
	cfg, _ := p.configs.Current()
	return cfg
}

// profiles returns the project's own profile list, or the engine's when the
// project does not set one.
func (p *project) profiles() []string {
	if own := p.config().Profiles; len(own) > 0 {
		return profile.NormalizeProfiles(own)
	}
	return profile.NormalizeProfiles(p.eng.profiles)
}

// scan walks the project directory once and records every source file.
func (p *project) scan() error {
	p.scanOnce.Do(func() {
		p.scanErr = filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == p.dir {
					return err
				}
				return nil
			}
			if path == p.dir {
				return nil
			}
			owner, rel, ok := p.eng.ws.ProjectForPath(path)
			if !ok || owner.Name() != p.name {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if workflow.Ignored(rel, nil) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if kind := workflow.Classify(rel); trackable(kind) {
				p.addFile(rel, kind)
			}
			return nil
		})
		if p.scanErr != nil {
			p.scanErr = fmt.Errorf("engine: scan %s: %w", p.name, p.scanErr)
		}
	})
	return p.scanErr
}

func trackable(kind workflow.FileKind) bool {
	return kind != workflow.FileOther && kind != workflow.FileConfig
}

// addFile records rel and reports whether it was new.
func (p *project) addFile(rel string, kind workflow.FileKind) bool {
	physical := profile.NormalizePath(rel)
	p.mu.Lock()
	if _, ok := p.sources[physical]; ok {
		p.mu.Unlock()
		return false
	}
	p.sources[physical] = kind
	p.mu.Unlock()
	p.files.Add(physical)
	return true
}

// removeFile forgets rel, or every file below rel when it names a directory.
func (p *project) removeFile(rel string) bool {
	physical := profile.NormalizePath(rel)
	prefix := strings.TrimSuffix(physical, "/") + "/"
	var removed []string
	p.mu.Lock()
	for known := range p.sources {
		if known == physical || strings.HasPrefix(known, prefix) {
			delete(p.sources, known)
			removed = append(removed, known)
		}
	}
	p.mu.Unlock()
	for _, known := range removed {
		p.files.Remove(known)
	}
	return len(removed) > 0
}

func (p *project) knows(rel string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.sources[profile.NormalizePath(rel)]
	return ok
}

// reloadConfig reads weft.project.yaml again and pushes it. The project keeps
// its workspace name; dependency edits take effect on the next session.
func (p *project) reloadConfig() {
	cfg, err := workflow.LoadProjectFile(p.dir)
	if err != nil {
		p.eng.logger.Printf("engine: reload %s config: %v", p.name, err)
		p.setError(err)
		return
	}
	cfg.Name = p.name
	if !sameStrings(cfg.Deps, p.config().Deps) {
		p.eng.logger.Printf("engine: %s dependencies changed; restart weft to rebuild the graph", p.name)
	}
	p.configs.Push(cfg)
}

func (p *project) input() artifact.Input {
	cfg := p.config()
	profiles := p.profiles()
	p.mu.Lock()
	var files, types []string
	for physical, kind := range p.sources {
		switch {
		case kind.Compiled():
			files = append(files, physical)
		case kind == workflow.FileType:
			types = append(types, physical)
		}
	}
	p.mu.Unlock()
	sort.Strings(files)
	sort.Strings(types)
	return artifact.Input{
		ProjectPath: p.path,
		Config:      cfg,
		Profiles:    profiles,
		Resolution:  p.files.Resolve(profiles),
		Files:       files,
		TypeFiles:   types,
		Refs:        p.eng.graph.Refs(p.name),
		Ignores:     workflow.EffectiveIgnores(baseIgnores, cfg.Ignore),
	}
}

// regenerate is the recompute loop body: derive the documents, write the
// changed ones and publish the bundle. A failure keeps the last bundle.
func (p *project) regenerate(ctx context.Context, reasons []string) error {
	p.setGenerating(true)
	defer p.setGenerating(false)
	if err := p.scan(); err != nil {
		p.setError(err)
		return err
	}
	in := p.input()
	for _, diag := range in.Resolution.Unresolved {
		p.eng.journal.Warn("%s: %s", p.name, diag)
	}
	bundle, err := p.eng.generator.Generate(ctx, in)
	if err != nil {
		err = fmt.Errorf("engine: generate %s: %w", p.name, err)
		p.setError(err)
		return err
	}
	written, err := p.eng.store.WriteBundle(p.dir, bundle)
	if err != nil {
		err = fmt.Errorf("engine: write %s: %w", p.name, err)
		p.setError(err)
		return err
	}
	p.mu.Lock()
	p.resolution = in.Resolution
	p.written = written
	p.lastErr = ""
	p.updatedAt = p.eng.now()
	p.mu.Unlock()
	if len(written) > 0 {
		p.eng.logger.Printf("engine: %s wrote %s", p.name, strings.Join(written, ", "))
	}
	p.bundles.Push(bundle)
	if p.eng.mode == builder.ModeOnce && contentChanged(reasons) {
		p.eng.enqueue(p.name, "sources changed")
	}
	return nil
}

func contentChanged(reasons []string) bool {
	for _, r := range reasons {
		if strings.HasPrefix(r, string(workflow.EventChange)+":") {
			return true
		}
	}
	return false
}

func (p *project) onBundle(b artifact.Bundle) {
	p.mu.Lock()
	changed := b.Checksum != p.checksum
	p.checksum = b.Checksum
	p.mu.Unlock()
	if changed {
		p.eng.enqueue(p.name, "artifacts changed")
	}
}

func (p *project) setGenerating(on bool) {
	p.mu.Lock()
	switch {
	case on && p.status == p.stable:
		p.status = ProjectGenerating
	case !on && p.status == ProjectGenerating:
		p.status = p.stable
	}
	p.updatedAt = p.eng.now()
	p.mu.Unlock()
	p.eng.persist()
}

func (p *project) setError(err error) {
	p.mu.Lock()
	p.lastErr = err.Error()
	p.updatedAt = p.eng.now()
	p.mu.Unlock()
}

func (p *project) markQueued(reason string) {
	p.mu.Lock()
	p.reasons = appendUnique(p.reasons, reason)
	if p.status != ProjectBuilding {
		p.status = ProjectQueued
	}
	p.holdIdleLocked()
	p.updatedAt = p.eng.now()
	p.mu.Unlock()
}

func (p *project) takeReasons() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.reasons
	p.reasons = nil
	return out
}

// holdIdleLocked opens a fresh idle channel unless one is already open.
func (p *project) holdIdleLocked() {
	if !p.busy {
		p.idle = make(chan struct{})
		p.busy = true
	}
}

func (p *project) releaseIdleLocked() {
	if p.busy {
		close(p.idle)
		p.busy = false
	}
}

// buildIdle is closed while the project has no queued or running build.
func (p *project) buildIdle() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle
}

// claim reserves the project for one dispatch worker. It reports false when
// another worker is still waiting to start a build for it.
func (p *project) claim() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.waiting {
		return false
	}
	p.waiting = true
	return true
}

func (p *project) unclaim() {
	p.mu.Lock()
	p.waiting = false
	p.mu.Unlock()
}

func (p *project) currentHandle() builder.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle
}

func (p *project) failed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stable == ProjectFailed
}

// open is the lifecycle opener: it starts a build and returns its closer.
func (p *project) open(ctx context.Context, _ []string) (lifecycle.Closer[string], error) {
	e := p.eng
	record := &BuildRecord{
		ID:        uuid.NewString(),
		Result:    BuildRunning,
		Reasons:   p.takeReasons(),
		StartedAt: e.now(),
	}
	p.mu.Lock()
	p.current = record
	p.lastBuild = record
	p.status = ProjectBuilding
	p.holdIdleLocked()
	p.updatedAt = record.StartedAt
	p.mu.Unlock()
	e.metrics.activeBuilds.Inc()
	e.journal.Info("build %s %s started (%s)", p.name, record.ID, strings.Join(record.Reasons, ", "))
	e.persist()

	h, err := e.builder.Open(ctx, builder.Job{
		ID:       record.ID,
		Project:  p.name,
		Dir:      p.dir,
		Mode:     e.mode,
		Commands: e.ws.Definition.Build,
		Reasons:  record.Reasons,
	})
	if err != nil {
		p.finish(record, err)
		return nil, err
	}
	p.mu.Lock()
	p.handle = h
	if e.mode == builder.ModeWatch {
		// A started watcher counts as built for its dependents.
		p.releaseIdleLocked()
	}
	p.mu.Unlock()
	go func() {
		<-h.Done()
		p.finish(record, h.Err())
	}()
	return func(ctx context.Context, _ []string) error {
		return h.Close(ctx)
	}, nil
}

// finish records the outcome of record. Only the latest build updates the
// project status.
func (p *project) finish(record *BuildRecord, err error) {
	e := p.eng
	now := e.now()
	result := BuildSucceeded
	switch {
	case errors.Is(err, builder.ErrAborted):
		result = BuildAborted
	case err != nil:
		result = BuildFailed
	}
	p.mu.Lock()
	record.Result = result
	record.FinishedAt = now
	if err != nil {
		record.Error = err.Error()
	}
	latest := p.current == record
	if latest {
		p.current = nil
		p.handle = nil
		switch result {
		case BuildSucceeded:
			p.stable = ProjectReady
			p.lastErr = ""
		case BuildFailed:
			p.stable = ProjectFailed
			p.lastErr = err.Error()
		case BuildAborted:
			p.stable = ProjectClosed
		}
		if p.status == ProjectBuilding {
			p.status = p.stable
		}
		p.releaseIdleLocked()
	}
	p.updatedAt = now
	p.mu.Unlock()

	e.metrics.activeBuilds.Dec()
	e.metrics.buildFinished(p.name, result, record.Duration())
	switch result {
	case BuildFailed:
		e.journal.Error("build %s %s failed after %s: %v", p.name, record.ID, record.Duration().Round(time.Millisecond), err)
	default:
		e.journal.Info("build %s %s %s after %s", p.name, record.ID, result, record.Duration().Round(time.Millisecond))
	}
	e.persist()
}

func (p *project) onTransition(tr lifecycle.Transition) {
	if tr.Err != nil {
		p.eng.logger.Printf("engine: %s %s -> %s: %v", p.name, tr.From, tr.To, tr.Err)
	}
	p.eng.persist()
}

func (p *project) snapshot() ProjectState {
	p.mu.Lock()
	defer p.mu.Unlock()
	node, _ := p.eng.graph.Node(p.name)
	state := ProjectState{
		Name:       p.name,
		Path:       p.path,
		Status:     p.status,
		Profiles:   p.profilesLocked(),
		Files:      len(p.sources),
		Checksum:   p.checksum,
		Written:    cloneStrings(p.written),
		Unresolved: append([]profile.Diagnostic(nil), p.resolution.Unresolved...),
		Error:      p.lastErr,
		UpdatedAt:  p.updatedAt,
	}
	if node != nil {
		state.GraphState = node.State
		state.Dependencies = cloneStrings(node.Dependencies)
		state.Dependents = cloneStrings(node.Dependents)
		state.Missing = cloneStrings(node.Missing)
	}
	if p.lastBuild != nil {
		record := *p.lastBuild
		record.Reasons = cloneStrings(record.Reasons)
		state.LastBuild = &record
	}
	return state
}

func (p *project) profilesLocked() []string {
	return cloneStrings(p.resolution.Profiles)
}

func appendUnique(values []string, v string) []string {
	for _, existing := range values {
		if existing == v {
			return values
		}
	}
	return append(values, v)
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// skip marks the project failed without running a build.
func (p *project) skip(err error) {
	p.mu.Lock()
	p.stable = ProjectFailed
	p.status = ProjectFailed
	p.lastErr = err.Error()
	p.reasons = nil
	p.releaseIdleLocked()
	p.updatedAt = p.eng.now()
	p.mu.Unlock()
	p.eng.journal.Warn("build %s skipped: %v", p.name, err)
	p.eng.persist()
}
