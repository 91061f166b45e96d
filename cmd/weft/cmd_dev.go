package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/weft/internal/builder"
	"github.com/kingrea/weft/internal/eventbridge"
	"github.com/kingrea/weft/internal/tui"
	"github.com/kingrea/weft/internal/watcher"
	"github.com/kingrea/weft/internal/workflow/engine"
)

func newDevCmd(flags *globalFlags) *cobra.Command {
	var (
		maxParallel int
		mode        string
		useTUI      bool
	)
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Watch the workspace, regenerate on change and keep builds running",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mirror := cmd.ErrOrStderr()
			if useTUI {
				mirror = nil
			}
			rt, err := flags.open(mirror)
			if err != nil {
				return err
			}
			defer rt.close()
			if mode == "" {
				mode = rt.cfg.Workspace.Build.Mode
			}
			buildMode := builder.Mode(mode)
			if buildMode != builder.ModeOnce && buildMode != builder.ModeWatch {
				return fmt.Errorf("unknown mode %q (want once or watch)", mode)
			}
			eng, err := rt.newEngine(flags, buildMode, maxParallel)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDev(ctx, stop, rt, eng, useTUI)
		},
	}
	cmd.Flags().IntVarP(&maxParallel, "max-parallel", "j", 0, "concurrent builds (defaults to config, then CPUs-1)")
	cmd.Flags().StringVar(&mode, "mode", "", "build mode: once or watch (defaults to config)")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "show the live status table")
	return cmd
}

func runDev(ctx context.Context, cancel context.CancelFunc, rt *runtime, eng *engine.Engine, useTUI bool) error {
	w, err := watcher.New(rt.ws.Root, func(evt watcher.Event) {
		eng.HandleFileEvent(evt.Path, evt.Kind)
	}, watcher.WithLogger(rt.logger))
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	bridge, err := startBridge(ctx, rt, eng)
	if err != nil {
		return err
	}
	if bridge != nil {
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			_ = bridge.Shutdown(shutdownCtx)
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})
	if useTUI {
		app := tui.NewApp(eng, tui.WithLogbook(rt.journal), tui.WithQuit(cancel))
		g.Go(func() error {
			_, err := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(gctx)).Run()
			cancel()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		})
	} else {
		rt.logger.Printf("weft: watching %s (%d projects); press Ctrl+C to stop", rt.ws.Root, len(rt.ws.Projects))
	}
	return g.Wait()
}

// startBridge serves the HTTP bridge when it is enabled in config.
func startBridge(ctx context.Context, rt *runtime, eng *engine.Engine) (*eventbridge.Server, error) {
	bridge := rt.cfg.Workspace.Bridge
	if !bridge.Enabled {
		return nil, nil
	}
	srv, err := eventbridge.NewServer(bridge, eng,
		eventbridge.WithLogger(rt.logger),
		eventbridge.WithGatherer(eng.Metrics().Registry()),
	)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(ctx); err != nil {
		return nil, err
	}
	return srv, nil
}
