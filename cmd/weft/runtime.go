package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kingrea/weft/internal/builder"
	"github.com/kingrea/weft/internal/config"
	"github.com/kingrea/weft/internal/logbook"
	"github.com/kingrea/weft/internal/logging"
	"github.com/kingrea/weft/internal/workflow"
	"github.com/kingrea/weft/internal/workflow/engine"
)

// runtime bundles everything a command needs to drive one workspace.
type runtime struct {
	ws      *workflow.Workspace
	cfg     *config.Config
	logger  *logging.Logger
	journal *logbook.Logbook
	metrics *engine.Metrics
}

func (f *globalFlags) workspaceRoot() (string, error) {
	dir := f.root
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determine working directory: %w", err)
		}
		dir = cwd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	return workflow.FindRoot(abs)
}

// open loads the workspace and its .weft config. When mirror is non-nil the
// runtime log is copied there.
func (f *globalFlags) open(mirror io.Writer) (*runtime, error) {
	root, err := f.workspaceRoot()
	if err != nil {
		return nil, err
	}
	if err := config.InitWeftDir(root); err != nil {
		return nil, fmt.Errorf("init %s: %w", config.WeftDir, err)
	}
	cfg, err := config.NewConfig(root)
	if err != nil {
		return nil, err
	}
	ws, err := workflow.LoadWorkspace(root)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(root)
	if err != nil {
		return nil, err
	}
	if mirror != nil && cfg.Workspace.Log.Level != "warn" && cfg.Workspace.Log.Level != "error" {
		logger.Tee(mirror)
	}
	journal, err := logbook.New(cfg.BuildLogPath())
	if err != nil {
		logger.Close()
		return nil, err
	}
	return &runtime{ws: ws, cfg: cfg, logger: logger, journal: journal, metrics: engine.NewMetrics()}, nil
}

func (r *runtime) close() {
	_ = r.logger.Close()
}

// profiles prefers --profile over the config file.
func (r *runtime) profiles(f *globalFlags) []string {
	if len(f.profiles) > 0 {
		return f.profiles
	}
	return r.cfg.Profiles()
}

func (r *runtime) newEngine(f *globalFlags, mode builder.Mode, maxParallel int) (*engine.Engine, error) {
	debounce := r.cfg.Workspace.Debounce
	if maxParallel <= 0 {
		maxParallel = r.cfg.Workspace.Build.MaxParallel
	}
	cmds := builder.NewCommandBuilder(
		builder.WithLogger(r.logger),
		builder.WithEnv("WEFT_CACHE_DIR="+r.cfg.CacheDir()),
	)
	return engine.New(r.ws,
		engine.WithLogger(r.logger),
		engine.WithJournal(r.journal),
		engine.WithMetrics(r.metrics),
		engine.WithBuilder(cmds),
		engine.WithInstaller(cmds),
		engine.WithProfiles(r.profiles(f)),
		engine.WithMode(mode),
		engine.WithMaxParallel(maxParallel),
		engine.WithDebounce(engine.Debounce{
			Files:      debounce.Files,
			Init:       debounce.Init,
			Controller: debounce.Controller,
		}),
	)
}
