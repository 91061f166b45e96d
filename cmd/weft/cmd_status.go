package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kingrea/weft/internal/config"
	"github.com/kingrea/weft/internal/logbook"
	"github.com/kingrea/weft/internal/workflow/engine"
)

func newStatusCmd(flags *globalFlags) *cobra.Command {
	var (
		lines  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last recorded engine state and build journal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := flags.workspaceRoot()
			if err != nil {
				return err
			}
			state, err := engine.NewRepository(root).Load()
			if errors.Is(err, engine.ErrStateNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "No state recorded yet. Run `weft build` or `weft dev` first.")
				return nil
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(state)
			}
			printState(out, state)
			cfg, err := config.NewConfig(root)
			if err != nil {
				return err
			}
			journal, err := logbook.New(cfg.BuildLogPath())
			if err != nil {
				return err
			}
			tail, total := journal.Tail(lines)
			if len(tail) > 0 {
				fmt.Fprintf(out, "\nJournal (%d of %d entries):\n", len(tail), total)
				for _, line := range tail {
					fmt.Fprintln(out, "  "+line)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "journal entries to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw state as JSON")
	return cmd
}

func printState(w io.Writer, state engine.State) {
	fmt.Fprintf(w, "%s  %s  (%s mode, profiles %s)\n", state.Workspace, strings.ToUpper(string(state.Status)), state.Mode, strings.Join(state.Profiles, " "))
	if state.StatusReason != "" {
		fmt.Fprintf(w, "  %s\n", state.StatusReason)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tSTATUS\tFILES\tLAST BUILD\tERROR")
	for _, p := range state.Projects {
		build := "-"
		if p.LastBuild != nil {
			build = fmt.Sprintf("%s %s", p.LastBuild.Result, p.LastBuild.Duration().Round(10*time.Millisecond))
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", p.Name, p.Status, p.Files, build, firstLine(p.Error))
	}
	_ = tw.Flush()
	for _, p := range state.Projects {
		for _, diag := range p.Unresolved {
			fmt.Fprintf(w, "warning: %s: %s\n", p.Name, diag)
		}
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
