package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kingrea/weft/internal/artifact"
	"github.com/kingrea/weft/internal/builder"
	"github.com/kingrea/weft/internal/config"
	"github.com/kingrea/weft/internal/profile"
	"github.com/kingrea/weft/internal/stream"
	"github.com/kingrea/weft/internal/workflow"
	"github.com/kingrea/weft/internal/workflow/resolver"
	"github.com/kingrea/weft/internal/workflow/scheduler"
)

// Logger matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Journal records build milestones. logbook.Logbook satisfies it.
type Journal interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopJournal struct{}

func (nopJournal) Info(string, ...any)  {}
func (nopJournal) Warn(string, ...any)  {}
func (nopJournal) Error(string, ...any) {}

// Debounce holds the coalescing windows of the engine's loops.
type Debounce struct {
	// Files delays regeneration after a file event.
	Files time.Duration
	// Init delays the first regeneration after Start.
	Init time.Duration
	// Controller delays build restarts.
	Controller time.Duration
}

// DefaultDebounce mirrors the config defaults.
func DefaultDebounce() Debounce {
	return Debounce{
		Files:      config.DefaultFilesDebounce,
		Init:       config.DefaultInitDebounce,
		Controller: config.DefaultControllerDebounce,
	}
}

// Engine is the workspace context: it owns every project pipeline, the build
// queue and the worker pool. Engines share no global state.
type Engine struct {
	ws          *workflow.Workspace
	graph       *resolver.Graph
	queue       *scheduler.Queue
	order       []string
	cyclic      bool
	projects    map[string]*project
	install     *stream.Stream[InstallStatus]
	updates     *stream.Stream[State]
	profiles    []string
	mode        builder.Mode
	maxParallel int
	slots       *semaphore.Weighted
	debounce    Debounce

	generator artifact.Generator
	store     *artifact.Store
	builder   builder.Builder
	installer Installer
	repo      StateStore
	journal   Journal
	logger    Logger
	metrics   *Metrics
	clock     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	runID  string

	mu      sync.Mutex
	started bool
	stopped bool
	saveMu  sync.Mutex
}

// Option customizes the engine instance.
type Option func(*Engine)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithGenerator replaces the default TypeScript document generator.
func WithGenerator(g artifact.Generator) Option {
	return func(e *Engine) {
		if g != nil {
			e.generator = g
		}
	}
}

// WithDocumentStore replaces the default artifact store.
func WithDocumentStore(s *artifact.Store) Option {
	return func(e *Engine) {
		if s != nil {
			e.store = s
		}
	}
}

// WithBuilder replaces the default command builder.
func WithBuilder(b builder.Builder) Option {
	return func(e *Engine) {
		if b != nil {
			e.builder = b
		}
	}
}

// WithInstaller sets the package-manager install runner.
func WithInstaller(i Installer) Option {
	return func(e *Engine) {
		if i != nil {
			e.installer = i
		}
	}
}

// WithStateStore replaces the default on-disk repository.
func WithStateStore(s StateStore) Option {
	return func(e *Engine) {
		if s != nil {
			e.repo = s
		}
	}
}

// WithJournal records build milestones in j.
func WithJournal(j Journal) Option {
	return func(e *Engine) {
		if j != nil {
			e.journal = j
		}
	}
}

// WithMetrics shares a collector set, usually with the HTTP bridge.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithProfiles sets the active profiles for projects that do not declare
// their own.
func WithProfiles(profiles []string) Option {
	return func(e *Engine) {
		e.profiles = append([]string(nil), profiles...)
	}
}

// WithDebounce overrides the loop windows. Negative fields are ignored.
func WithDebounce(d Debounce) Option {
	return func(e *Engine) {
		if d.Files >= 0 {
			e.debounce.Files = d.Files
		}
		if d.Init >= 0 {
			e.debounce.Init = d.Init
		}
		if d.Controller >= 0 {
			e.debounce.Controller = d.Controller
		}
	}
}

// WithMaxParallel caps concurrent builds.
func WithMaxParallel(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

// WithMode selects one-shot or watch builds.
func WithMode(m builder.Mode) Option {
	return func(e *Engine) {
		if m != "" {
			e.mode = m
		}
	}
}

// New wires an engine to a loaded workspace. A dependency cycle is logged and
// the declaration order is used instead.
func New(ws *workflow.Workspace, opts ...Option) (*Engine, error) {
	if ws == nil {
		return nil, fmt.Errorf("engine: workspace is required")
	}
	graph, err := resolver.New(ws)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		ws:          ws,
		graph:       graph,
		queue:       scheduler.NewQueue(),
		projects:    map[string]*project{},
		install:     stream.New[InstallStatus](),
		updates:     stream.New[State](),
		mode:        builder.ModeOnce,
		maxParallel: config.DefaultMaxParallel(),
		debounce:    DefaultDebounce(),
		generator:   artifact.NewTSGenerator(),
		store:       artifact.NewStore(),
		journal:     nopJournal{},
		logger:      nopLogger{},
		clock:       time.Now,
		ctx:         ctx,
		cancel:      cancel,
		runID:       uuid.NewString(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.slots = semaphore.NewWeighted(int64(e.maxParallel))
	if e.metrics == nil {
		e.metrics = NewMetrics()
	}
	if e.repo == nil {
		e.repo = NewRepository(ws.Root)
	}
	if e.builder == nil || e.installer == nil {
		cmd := builder.NewCommandBuilder(builder.WithLogger(e.logger))
		if e.builder == nil {
			e.builder = cmd
		}
		if e.installer == nil {
			e.installer = cmd
		}
	}

	order, err := graph.Order()
	if err != nil {
		if !errors.Is(err, resolver.ErrCycle) {
			cancel()
			return nil, err
		}
		e.logger.Printf("engine: %v; falling back to declaration order", err)
		e.journal.Warn("%v", err)
		e.cyclic = true
		order = ws.Names()
	}
	e.order = order
	e.queue.UseOrder(order)
	for _, node := range graph.Nodes() {
		if len(node.Missing) > 0 {
			e.logger.Printf("engine: %s depends on unknown projects %v", node.ID, node.Missing)
		}
	}

	for _, wp := range ws.Projects {
		node, _ := graph.Node(wp.Name())
		p, err := newProject(e, wp, node.Dependencies)
		if err != nil {
			cancel()
			return nil, err
		}
		e.projects[p.name] = p
	}
	e.install.OnNext(e.onInstall)
	return e, nil
}

// RunID identifies this engine session.
func (e *Engine) RunID() string {
	return e.runID
}

// Workspace returns the loaded workspace.
func (e *Engine) Workspace() *workflow.Workspace {
	return e.ws
}

// Graph returns the dependency graph.
func (e *Engine) Graph() *resolver.Graph {
	return e.graph
}

// Metrics returns the engine's collectors.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Order returns the build order installed in the queue.
func (e *Engine) Order() []string {
	return append([]string(nil), e.order...)
}

// Updates streams a fresh State after every status change.
func (e *Engine) Updates() *stream.Stream[State] {
	return e.updates
}

// InstallStream exposes install progress.
func (e *Engine) InstallStream() *stream.Stream[InstallStatus] {
	return e.install
}

// Bundles returns the artifact stream of a project.
func (e *Engine) Bundles(name string) (*stream.Stream[artifact.Bundle], bool) {
	p, ok := e.projects[name]
	if !ok {
		return nil, false
	}
	return p.bundles, true
}

// Resolve scans the project if needed and returns its profile resolution.
func (e *Engine) Resolve(name string) (profile.Resolution, error) {
	p, ok := e.projects[name]
	if !ok {
		return profile.Resolution{}, fmt.Errorf("engine: unknown project %s", name)
	}
	if err := p.scan(); err != nil {
		return profile.Resolution{}, err
	}
	return p.files.Resolve(p.profiles()), nil
}

// Start scans every project, schedules the initial regeneration and kicks
// off the install step. It does not start build workers; Run does.
func (e *Engine) Start(ctx context.Context) error {
	return e.start(ctx, e.debounce.Init, true)
}

func (e *Engine) start(ctx context.Context, initDelay time.Duration, asyncInstall bool) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()

	var errs []error
	for _, id := range e.order {
		p := e.projects[id]
		if err := p.scan(); err != nil {
			e.logger.Printf("%v", err)
			errs = append(errs, err)
			continue
		}
		p.regen.TriggerAfter("init", initDelay)
	}
	e.journal.Info("session %s started for %s (%d projects, mode %s)", e.runID, e.ws.Definition.Name, len(e.projects), e.mode)
	e.runInstall(ctx, asyncInstall)
	e.persist()
	return errors.Join(errs...)
}

// Run starts the engine and builds queued projects until ctx ends, then
// closes every build.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	err := e.dispatch(ctx, false)
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if stopErr := e.Stop(stopCtx); stopErr != nil {
		e.logger.Printf("engine: stop: %v", stopErr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Build performs a one-shot pass: install, generate every project, then
// build everything in dependency order. It returns the joined failures.
func (e *Engine) Build(ctx context.Context) error {
	if err := e.start(ctx, 0, false); err != nil {
		return err
	}
	for _, id := range e.order {
		if err := e.projects[id].regen.Wait(ctx); err != nil {
			return err
		}
	}
	var err error
	if current, ok := e.install.Current(); ok && current.Phase == InstallFail {
		err = fmt.Errorf("engine: install failed: %s", current.Error)
	} else {
		err = e.dispatch(ctx, true)
	}
	if stopErr := e.Stop(ctx); stopErr != nil {
		e.logger.Printf("engine: stop: %v", stopErr)
	}
	if err != nil {
		return err
	}
	var failures []error
	for _, id := range e.order {
		p := e.projects[id]
		p.mu.Lock()
		msg := p.lastErr
		failed := p.stable == ProjectFailed || msg != ""
		p.mu.Unlock()
		if failed {
			failures = append(failures, fmt.Errorf("%s: %s", id, msg))
		}
	}
	return errors.Join(failures...)
}

// dispatch pulls projects from the queue and hands each to its own
// goroutine. Builds themselves are bounded by the slot semaphore. With drain
// set it returns once the queue is empty and every build has finished;
// otherwise it runs until ctx ends.
func (e *Engine) dispatch(ctx context.Context, drain bool) error {
	var g errgroup.Group
	for {
		var id string
		if drain {
			next, ok := e.queue.TryNext()
			if !ok {
				_ = g.Wait()
				if next, ok = e.queue.TryNext(); !ok {
					return ctx.Err()
				}
			}
			id = next
		} else {
			next, err := e.queue.Next(ctx)
			if err != nil {
				_ = g.Wait()
				return err
			}
			id = next
		}
		e.metrics.queueDepth.Set(float64(e.queue.Remaining()))
		p, ok := e.projects[id]
		if !ok || !p.claim() {
			// A worker is already waiting to build it with the newest inputs.
			continue
		}
		g.Go(func() error {
			e.build(ctx, p, drain)
			return nil
		})
	}
}

// build waits for the install and every dependency without holding a slot,
// then restarts the project's controller. In once mode the slot stays taken
// until the build is recorded.
func (e *Engine) build(ctx context.Context, p *project, strict bool) {
	claimed := true
	release := func() {
		if claimed {
			claimed = false
			p.unclaim()
		}
	}
	defer release()
	if err := e.waitInstalled(ctx); err != nil {
		return
	}
	if !e.cyclic {
		for _, dep := range p.deps {
			dp := e.projects[dep]
			select {
			case <-dp.buildIdle():
			case <-ctx.Done():
				return
			}
			if strict && dp.failed() {
				p.skip(fmt.Errorf("dependency %s failed", dep))
				return
			}
		}
	}
	if err := e.slots.Acquire(ctx, 1); err != nil {
		return
	}
	defer e.slots.Release(1)
	release()
	if strict {
		p.ctrl.RestartAfter("build", 0)
	} else {
		p.ctrl.Restart("build")
	}
	if err := p.ctrl.Wait(ctx); err != nil {
		return
	}
	if e.mode == builder.ModeWatch {
		return
	}
	select {
	case <-p.buildIdle():
	case <-ctx.Done():
	}
}

// enqueue marks id pending. In once mode its dependents are queued as well.
func (e *Engine) enqueue(id, reason string) {
	targets := []string{id}
	if e.mode == builder.ModeOnce {
		targets = e.graph.Affected(id)
	}
	for _, target := range targets {
		p, ok := e.projects[target]
		if !ok {
			continue
		}
		r := reason
		if target != id {
			r = "dependency " + id + " changed"
		}
		p.markQueued(r)
		e.queue.Add(target)
	}
	e.metrics.queueDepth.Set(float64(e.queue.Remaining()))
	e.persist()
}

// HandleFileEvent feeds one file-system notification into the owning
// project's pipeline. It reports whether the event was relevant.
func (e *Engine) HandleFileEvent(path string, kind workflow.EventKind) bool {
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.ws.Root, path)
	}
	wp, rel, ok := e.ws.ProjectForPath(path)
	if !ok || rel == "." {
		return false
	}
	p := e.projects[wp.Name()]
	if p == nil {
		return false
	}
	if rel == workflow.ProjectFile {
		e.metrics.fileEvents.WithLabelValues(string(kind)).Inc()
		p.reloadConfig()
		return true
	}
	if workflow.Ignored(rel, nil) {
		return false
	}
	switch kind {
	case workflow.EventAdd:
		fileKind := workflow.Classify(rel)
		if !trackable(fileKind) || !p.addFile(rel, fileKind) {
			return false
		}
	case workflow.EventUnlink:
		if !p.removeFile(rel) {
			return false
		}
	case workflow.EventChange:
		if e.mode != builder.ModeOnce || !p.knows(rel) {
			return false
		}
	default:
		return false
	}
	e.metrics.fileEvents.WithLabelValues(string(kind)).Inc()
	p.regen.Trigger(string(kind) + ":" + profile.NormalizePath(rel))
	return true
}

// Stop closes every build, stops the streams and persists the final state.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	e.mu.Unlock()

	for _, p := range e.projects {
		p.ctrl.CloseAfter("stop", 0)
	}
	var errs []error
	for _, id := range e.order {
		p := e.projects[id]
		if err := p.ctrl.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("engine: close %s: %w", id, err))
		}
		if h := p.currentHandle(); h != nil {
			if err := h.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	e.cancel()
	final := e.Snapshot()
	final.Status = EngineStatusStopped
	if err := e.repo.Save(final); err != nil {
		errs = append(errs, err)
	}
	e.updates.Push(final)
	for _, p := range e.projects {
		p.configs.Stop()
		p.bundles.Stop()
	}
	e.install.Stop()
	e.updates.Stop()
	e.journal.Info("session %s stopped", e.runID)
	return errors.Join(errs...)
}

// Snapshot assembles the current state.
func (e *Engine) Snapshot() State {
	state := State{
		RunID:     e.runID,
		Workspace: e.ws.Definition.Name,
		Root:      e.ws.Root,
		Mode:      string(e.mode),
		Profiles:  profile.NormalizeProfiles(e.profiles),
		Order:     e.Order(),
		Pending:   e.queue.Pending(),
		UpdatedAt: e.now(),
	}
	if current, ok := e.install.Current(); ok {
		state.Install = &current
	}
	for _, id := range e.order {
		state.Projects = append(state.Projects, e.projects[id].snapshot())
	}
	state.Status, state.StatusReason = deriveEngineStatus(state.Projects, state.Install)
	return state
}

// Done is closed once Stop has run.
func (e *Engine) Done() <-chan struct{} {
	return e.ctx.Done()
}

// View returns the last persisted snapshot.
func (e *Engine) View() (State, error) {
	return e.repo.Load()
}

// persist saves and publishes a snapshot. Saves are serialized so the file
// on disk never goes backwards.
func (e *Engine) persist() {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return
	}
	e.saveMu.Lock()
	defer e.saveMu.Unlock()
	state := e.Snapshot()
	if err := e.repo.Save(state); err != nil {
		e.logger.Printf("engine: persist state: %v", err)
	}
	e.updates.Push(state)
}

func (e *Engine) now() time.Time {
	if e.clock == nil {
		return time.Now()
	}
	return e.clock()
}
