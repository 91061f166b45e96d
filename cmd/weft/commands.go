package main

import (
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	root     string
	profiles []string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "weft",
		Short:         "Profile-aware build orchestrator for TypeScript workspaces",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `weft reads weft.yaml, resolves profile-tagged source variants
(src/api#web.ts), writes each project's tsconfig.json, package.json and
bundler input, and runs builds in dependency order.`,
	}
	root.PersistentFlags().StringVarP(&flags.root, "root", "C", "", "workspace directory (defaults to the nearest weft.yaml above the cwd)")
	root.PersistentFlags().StringSliceVarP(&flags.profiles, "profile", "p", nil, "active profile, highest priority first (repeatable)")

	root.AddCommand(
		newInitCmd(flags),
		newBuildCmd(flags),
		newDevCmd(flags),
		newStatusCmd(flags),
		newResolveCmd(flags),
		newProfilesCmd(flags),
	)
	return root
}
