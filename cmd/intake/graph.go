package main

import (
	"fmt"

	"github.com/aretw0/intake/internal/cli"
	"github.com/aretw0/intake/internal/presentation/graph"
	"github.com/aretw0/intake/pkg/adapters/sqlite"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [flow.yaml]",
	Short: "Export the transition graph visualization",
	Long: `Outputs a Mermaid diagram (graph TD) of the conversation states and their allowed
transitions. With --call, the states visited by a logged call are highlighted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := flowFlag(cmd)
		if len(args) > 0 {
			path = args[0]
		}
		_, g, err := cli.ValidateFlow(path)
		if err != nil {
			return err
		}

		var overlay *graph.GraphOverlay
		if callID, _ := cmd.Flags().GetString("call"); callID != "" {
			flow, err := loadCallFlow(cmd, callID)
			if err != nil {
				return err
			}
			overlay = overlayFor(flow)
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(g, overlay))
		return nil
	},
}

func overlayFor(flow *sqlite.CallFlow) *graph.GraphOverlay {
	overlay := &graph.GraphOverlay{}
	for _, t := range flow.Transitions {
		if t.FromState != "" {
			overlay.VisitedStates = append(overlay.VisitedStates, t.FromState)
		}
		overlay.VisitedStates = append(overlay.VisitedStates, t.ToState)
		overlay.CurrentState = t.ToState
	}
	return overlay
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("call", "", "Highlight the states visited by this call ID")
}
