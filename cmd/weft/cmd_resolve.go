package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kingrea/weft/internal/builder"
)

func newResolveCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "resolve <project>",
		Short: "Show which variant of each tagged file the active profiles select",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := flags.open(nil)
			if err != nil {
				return err
			}
			defer rt.close()
			eng, err := rt.newEngine(flags, builder.ModeOnce, 0)
			if err != nil {
				return err
			}
			res, err := eng.Resolve(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintf(out, "profiles: %v\n", res.Profiles)
			logicals := make([]string, 0, len(res.Paths))
			for logical := range res.Paths {
				logicals = append(logicals, logical)
			}
			sort.Strings(logicals)
			for _, logical := range logicals {
				fmt.Fprintf(out, "  %s -> %s\n", logical, res.Paths[logical])
			}
			for _, unused := range res.Unused {
				fmt.Fprintf(out, "  unused %s\n", unused)
			}
			for _, diag := range res.Unresolved {
				fmt.Fprintf(out, "  unresolved: %s (candidates %v)\n", diag, diag.Candidates)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the resolution as JSON")
	return cmd
}
