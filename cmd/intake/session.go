package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/intake/internal/cli"
	"github.com/aretw0/intake/pkg/ports"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage stored conversations",
	Long:  `List, inspect, and remove conversation snapshots held by the configured store (Redis or memory).`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all stored sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(store ports.ConversationStore) error {
			sessions, err := store.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing sessions: %w", err)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No active sessions found.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Active Sessions:")
			for _, s := range sessions {
				fmt.Fprintln(cmd.OutOrStdout(), "- "+s)
			}
			return nil
		})
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Inspect the snapshot of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := args[0]
		return withStore(cmd, func(store ports.ConversationStore) error {
			snap, err := store.Load(cmd.Context(), sessionID)
			if err != nil {
				return fmt.Errorf("loading session '%s': %w", sessionID, err)
			}
			data, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling snapshot: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		})
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <session-id>...",
	Short: "Remove one or more sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(store ports.ConversationStore) error {
			var errs []error
			for _, sessionID := range args {
				if err := store.Delete(cmd.Context(), sessionID); err != nil {
					errs = append(errs, fmt.Errorf("removing '%s': %w", sessionID, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed session '%s'\n", sessionID)
			}
			return errors.Join(errs...)
		})
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)
}

func withStore(cmd *cobra.Command, fn func(ports.ConversationStore) error) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, closeStore, err := cli.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(store)
}
