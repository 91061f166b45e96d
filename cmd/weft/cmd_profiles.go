package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/weft/internal/config"
	"github.com/kingrea/weft/internal/profile"
)

func newProfilesCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Show the active profiles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(profile.NormalizeProfiles(cfg.Profiles()), " "))
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <profile>...",
		Short: "Persist the active profiles, highest priority first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if err := cfg.SetProfiles(args); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "profiles set to %s\n", strings.Join(profile.NormalizeProfiles(args), " "))
			return nil
		},
	})
	return cmd
}

func loadConfig(flags *globalFlags) (*config.Config, error) {
	root, err := flags.workspaceRoot()
	if err != nil {
		return nil, err
	}
	if err := config.InitWeftDir(root); err != nil {
		return nil, err
	}
	return config.NewConfig(root)
}
