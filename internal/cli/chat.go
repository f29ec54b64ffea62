package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aretw0/intake"
	"github.com/aretw0/intake/internal/presentation/tui"
	"github.com/google/uuid"
)

// ChatOptions contains all the configuration for the chat command.
type ChatOptions struct {
	ConfigPath string
	SessionID  string
	Headless   bool
	Debug      bool
	// Resume continues a stored conversation instead of restarting it.
	Resume bool
	// Flow overrides the configured flow file.
	Flow string

	Input  io.Reader
	Output io.Writer
}

// RunChat plays one conversation over the terminal.
func RunChat(ctx context.Context, opts ChatOptions, appOpts ...AppOption) error {
	cfg, logger, err := LoadConfig(opts.ConfigPath, opts.Debug)
	if err != nil {
		return err
	}
	if opts.Flow != "" {
		cfg.Conversation.Flow = opts.Flow
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.SessionID == "" {
		opts.SessionID = "chat-" + uuid.NewString()[:8]
	}
	if opts.Debug {
		appOpts = append(appOpts, WithDebugHooks())
	}

	app, err := NewApp(cfg, quietLogger(logger, opts.Debug), appOpts...)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			logger.Warn("Shutdown incomplete", "err", err)
		}
	}()

	r := &intake.Runner{
		Input:    opts.Input,
		Output:   opts.Output,
		Headless: opts.Headless,
		Prompt:   "caller> ",
		Resume:   opts.Resume,
	}
	if !opts.Headless {
		tui.PrintBanner(opts.Output, intake.Version)
		printSystemMessage(opts.Output, "Session '%s' active. Type %s to restart, %s to leave.", opts.SessionID, intake.CommandReset, intake.CommandExit)
		if f, ok := opts.Output.(*os.File); ok && tui.IsTerminal(f) {
			if render, err := tui.NewRenderer(tui.Width(f, 80)); err == nil {
				r.Renderer = render
			}
		}
	}

	runErr := r.Run(ctx, app.Engine, opts.SessionID)
	if !opts.Headless {
		if snap, err := app.Engine.Inspect(context.Background(), opts.SessionID); err == nil {
			fmt.Fprintln(opts.Output)
			printSystemMessage(opts.Output, "Finished at '%s' state.", snap.State)
		}
	}
	return handleExecutionError(runErr)
}
