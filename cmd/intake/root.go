package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/intake/internal/cli"
	"github.com/aretw0/intake/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "intake",
	Short: "intake is an LLM-driven intake assistant for animal control phone lines",
	Long: `intake runs the animal control intake conversation: emergencies, found and lost
animals, general questions and appointments. It can be used from the terminal,
served over HTTP (JSON API and voice webhook) or exposed to AI agents over MCP.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", os.Getenv("INTAKE_CONFIG"), "Path to the YAML configuration file")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("flow", "", "Flow definition file replacing the embedded animal control flow")
}

func globalFlags(cmd *cobra.Command) (configPath string, debug bool) {
	configPath, _ = cmd.Flags().GetString("config")
	debug, _ = cmd.Flags().GetBool("debug")
	return configPath, debug
}

// loadConfig reads the configuration named by the global flags; --flow
// overrides conversation.flow.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	configPath, debug := globalFlags(cmd)
	cfg, logger, err := cli.LoadConfig(configPath, debug)
	if err != nil {
		return nil, nil, err
	}
	if path := flowFlag(cmd); path != "" {
		cfg.Conversation.Flow = path
	}
	return cfg, logger, nil
}

func flowFlag(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("flow")
	return path
}
