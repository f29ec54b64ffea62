package main

import (
	"github.com/aretw0/intake/internal/cli"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant in the terminal",
	Long:  `Starts one conversation on stdin/stdout, playing the caller. Type /reset to restart and /exit to leave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, debug := globalFlags(cmd)
		sessionID, _ := cmd.Flags().GetString("session")
		headless, _ := cmd.Flags().GetBool("headless")
		resume, _ := cmd.Flags().GetBool("resume")

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		return cli.RunChat(sigCtx, cli.ChatOptions{
			ConfigPath: configPath,
			SessionID:  sessionID,
			Headless:   headless,
			Debug:      debug,
			Resume:     resume,
			Flow:       flowFlag(cmd),
		})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringP("session", "s", "", "Session ID (generated when empty)")
	chatCmd.Flags().Bool("headless", false, "Run in headless mode (no banner, no prompts)")
	chatCmd.Flags().Bool("resume", false, "Continue a stored conversation instead of restarting it")
}
