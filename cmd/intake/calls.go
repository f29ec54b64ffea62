package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/aretw0/intake/internal/presentation/graph"
	"github.com/aretw0/intake/pkg/adapters/sqlite"
	"github.com/spf13/cobra"
)

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "Browse the call log",
	Long:  `Reads the calls and state transitions recorded by the sqlite telemetry backend.`,
}

var callsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recent calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		db, err := openCallLog(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		calls, err := db.Telemetry().ListCalls(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(calls) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No calls recorded.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CALL\tSTARTED\tFINAL STATE\tSTATUS\tTURNS\tDURATION")
		for _, c := range calls {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				c.CallID,
				c.StartTime.Local().Format(time.DateTime),
				c.FinalState,
				c.CompletionStatus,
				c.Turns,
				time.Duration(c.DurationSeconds)*time.Second,
			)
		}
		return w.Flush()
	},
}

var callsFlowCmd = &cobra.Command{
	Use:   "flow [call-id]",
	Short: "Render the path of one call as a Mermaid diagram",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flow, err := loadCallFlow(cmd, args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateCallFlow(flow))
		return nil
	},
}

func openCallLog(cmd *cobra.Command) (*sqlite.DB, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return sqlite.Open(cfg.Storage.SQLite, sqlite.WithLogger(logger))
}

func loadCallFlow(cmd *cobra.Command, callID string) (*sqlite.CallFlow, error) {
	db, err := openCallLog(cmd)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return db.Telemetry().CallFlow(cmd.Context(), callID)
}

func init() {
	rootCmd.AddCommand(callsCmd)
	callsCmd.AddCommand(callsLsCmd)
	callsCmd.AddCommand(callsFlowCmd)

	callsLsCmd.Flags().IntP("limit", "n", 20, "Maximum number of calls to list")
}
