package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"csvs/internal/engine"
)

func newSchemaCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "schema <path|url>",
		Short: "Compile a CSVS schema and print its canonical form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := engine.New().CompileSchema(cmd.Context(), engine.Job{Schema: args[0]})
			if err != nil {
				return &exitCodeError{code: exitError, err: fmt.Errorf("%s: %w", args[0], err)}
			}
			if check {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d columns)\n", args[0], len(s.Rules))
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), s.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "only report whether the schema compiles")
	return cmd
}
