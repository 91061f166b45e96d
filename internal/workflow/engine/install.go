package engine

import (
	"context"
	"time"
)

// InstallPhase tracks the workspace install step.
type InstallPhase string

const (
	InstallStart   InstallPhase = "start"
	InstallSuccess InstallPhase = "success"
	InstallFail    InstallPhase = "fail"
)

// InstallStatus is pushed into the engine's install stream.
type InstallStatus struct {
	Phase InstallPhase `json:"phase"`
	Error string       `json:"error,omitempty"`
	At    time.Time    `json:"at"`
}

// Installer runs the workspace package-manager install.
type Installer interface {
	Install(ctx context.Context, root string, argv []string) error
}

// InstallerFunc adapts a function into an Installer.
type InstallerFunc func(ctx context.Context, root string, argv []string) error

// Install executes f.
func (f InstallerFunc) Install(ctx context.Context, root string, argv []string) error {
	return f(ctx, root, argv)
}

// runInstall pushes start before returning, then success or fail once the
// installer exits. With async set the installer runs on its own goroutine.
// Controllers react through the stream observer registered in New.
func (e *Engine) runInstall(ctx context.Context, async bool) {
	argv := e.ws.Definition.Install
	if len(argv) == 0 || e.installer == nil {
		return
	}
	e.install.Push(InstallStatus{Phase: InstallStart, At: e.now()})
	if async {
		go e.finishInstall(ctx, argv)
		return
	}
	e.finishInstall(ctx, argv)
}

func (e *Engine) finishInstall(ctx context.Context, argv []string) {
	err := e.installer.Install(ctx, e.ws.Root, argv)
	if err != nil {
		e.logger.Printf("engine: install failed: %v", err)
		e.journal.Error("install failed: %v", err)
		e.install.Push(InstallStatus{Phase: InstallFail, Error: err.Error(), At: e.now()})
		return
	}
	e.journal.Info("install finished")
	e.install.Push(InstallStatus{Phase: InstallSuccess, At: e.now()})
}

func (e *Engine) onInstall(status InstallStatus) {
	switch status.Phase {
	case InstallStart, InstallFail:
		for _, p := range e.projects {
			p.ctrl.Close("install:" + string(status.Phase))
		}
	case InstallSuccess:
		for _, id := range e.Order() {
			e.enqueue(id, "install")
		}
	}
	e.persist()
}

// waitInstalled blocks while an install is running.
func (e *Engine) waitInstalled(ctx context.Context) error {
	consumer := e.install.Subscribe()
	defer consumer.Close()
	for {
		if current, ok := e.install.Current(); !ok || current.Phase != InstallStart {
			return nil
		}
		status, err := consumer.Next(ctx)
		if err != nil {
			return ctx.Err()
		}
		if status.Phase != InstallStart {
			return nil
		}
	}
}
