package main

import (
	"fmt"

	"github.com/aretw0/intake/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [flow.yaml]",
	Short: "Check a flow definition for consistency",
	Long: `Loads the flow (the embedded one when no file is given), builds its transition
graph and checks that every state reaches a terminal state and only offers known tools.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := flowFlag(cmd)
		if len(args) > 0 {
			path = args[0]
		}
		def, g, err := cli.ValidateFlow(path)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Flow %q is valid! ✅ (%d states, initial %s)\n", def.Name, len(g.States()), g.Initial())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
