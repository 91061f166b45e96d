package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/weft/internal/config"
	"github.com/kingrea/weft/internal/workflow"
)

func newInitCmd(flags *globalFlags) *cobra.Command {
	var (
		name     string
		projects []string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create weft.yaml and the .weft directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir := flags.root
			if dir == "" {
				cwd, err := os.Getwd()
				if err != nil {
					return err
				}
				dir = cwd
			}
			root, err := filepath.Abs(dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			path := filepath.Join(root, workflow.WorkspaceFile)
			switch _, err := os.Stat(path); {
			case err == nil:
				fmt.Fprintf(out, "%s already exists\n", path)
			case errors.Is(err, os.ErrNotExist):
				if err := writeWorkspace(path, root, name, projects); err != nil {
					return err
				}
				fmt.Fprintf(out, "wrote %s\n", path)
			default:
				return err
			}
			if err := config.InitWeftDir(root); err != nil {
				return err
			}
			fmt.Fprintf(out, "initialized %s\n", filepath.Join(root, config.WeftDir))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "workspace name (defaults to the directory name)")
	cmd.Flags().StringSliceVar(&projects, "project", nil, "project directory relative to the root (repeatable)")
	return cmd
}

func writeWorkspace(path, root, name string, projects []string) error {
	if strings.TrimSpace(name) == "" {
		name = filepath.Base(root)
	}
	def := workflow.WorkspaceDefinition{
		Name:    name,
		Install: []string{"npm", "install"},
		Build: workflow.BuildCommands{
			Typecheck: []string{"npx", "tsc", "--build"},
			Bundle:    []string{"npx", "rollup", "-c", "bundler.input.json"},
			Watch:     []string{"npx", "tsc", "--build", "--watch"},
		},
	}
	for _, p := range projects {
		def.Projects = append(def.Projects, workflow.ProjectRef{Path: p})
	}
	if len(def.Projects) > 0 {
		normalized, err := def.Normalized()
		if err != nil {
			return err
		}
		def = normalized
	}
	data, err := yaml.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode %s: %w", workflow.WorkspaceFile, err)
	}
	return os.WriteFile(path, data, 0o644)
}
