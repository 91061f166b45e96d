package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kingrea/weft/internal/builder"
)

func newBuildCmd(flags *globalFlags) *cobra.Command {
	var maxParallel int
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Regenerate every project and build the workspace once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := flags.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.close()
			eng, err := rt.newEngine(flags, builder.ModeOnce, maxParallel)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			buildErr := eng.Build(ctx)
			printState(cmd.OutOrStdout(), eng.Snapshot())
			if buildErr != nil {
				if ctx.Err() != nil {
					return context.Canceled
				}
				return fmt.Errorf("build failed:\n%w", buildErr)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&maxParallel, "max-parallel", "j", 0, "concurrent builds (defaults to config, then CPUs-1)")
	return cmd
}
