package intake

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/orchestrator"
)

// Runner drives one conversation of an Engine over line-based IO.
// This allows for easy testing and integration with different frontends (CLI, TUI, etc).
type Runner struct {
	Input    io.Reader
	Output   io.Writer
	Headless bool
	Renderer ContentRenderer
	// Prompt is printed before each caller line. Defaults to "> ".
	Prompt string
	// Resume continues a stored, unfinished conversation instead of restarting it.
	Resume bool
}

// ContentRenderer is a function that transforms the content before outputting it.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// Commands recognized by the Runner instead of being sent to the conversation.
const (
	CommandExit  = "/exit"
	CommandReset = "/reset"
)

// Run starts the session and alternates caller lines and replies until the
// conversation ends, the input is exhausted or the caller exits.
func (r *Runner) Run(ctx context.Context, engine *Engine, sessionID string) error {
	if r.Input == nil {
		return fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return fmt.Errorf("output writer must be set (use os.Stdout)")
	}
	prompt := r.Prompt
	if prompt == "" {
		prompt = "> "
	}
	greeting, err := r.open(ctx, engine, sessionID)
	if err != nil {
		return fmt.Errorf("start error: %w", err)
	}
	r.print(greeting)

	done := make(chan struct{})
	defer close(done)
	lines := readLines(r.Input, done)

	for {
		if !r.Headless {
			fmt.Fprint(r.Output, prompt)
		}
		var in line
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in = <-lines:
		}
		if errors.Is(in.err, io.EOF) {
			return nil
		}
		if in.err != nil {
			return fmt.Errorf("input error: %w", in.err)
		}
		input := strings.TrimSpace(in.text)

		switch strings.ToLower(input) {
		case "":
			continue
		case CommandExit, "exit", "quit":
			if !r.Headless {
				fmt.Fprintln(r.Output, "Bye!")
			}
			return nil
		case CommandReset:
			greeting, err := engine.Reset(ctx, sessionID)
			if err != nil {
				return fmt.Errorf("reset error: %w", err)
			}
			r.print(greeting)
			continue
		}

		reply, err := engine.Turn(ctx, sessionID, input)
		if err != nil {
			return fmt.Errorf("turn error: %w", err)
		}
		r.print(reply)
		if reply == orchestrator.EndedMessage {
			return nil
		}
		if snap, err := engine.Inspect(ctx, sessionID); err == nil && snap.Ended {
			return nil
		}
	}
}

// open returns the first line shown to the caller: the last reply of a resumed
// conversation, or the greeting of a new one.
func (r *Runner) open(ctx context.Context, engine *Engine, sessionID string) (string, error) {
	if r.Resume {
		snap, err := engine.Inspect(ctx, sessionID)
		if err == nil && !snap.Ended {
			for i := len(snap.History) - 1; i >= 0; i-- {
				if snap.History[i].Speaker == domain.SpeakerSystem {
					return snap.History[i].Message, nil
				}
			}
		}
	}
	return engine.Start(ctx, sessionID)
}

func (r *Runner) print(msg string) {
	output := msg
	if r.Renderer != nil {
		if rendered, err := r.Renderer(msg); err == nil {
			output = rendered
		}
	}
	fmt.Fprintln(r.Output, strings.TrimSpace(output))
}

type line struct {
	text string
	err  error
}

// readLines reads src line by line until an error, so a blocked read never
// holds up cancellation of Run.
func readLines(src io.Reader, done <-chan struct{}) <-chan line {
	out := make(chan line)
	go func() {
		br := bufio.NewReader(src)
		for {
			text, err := br.ReadString('\n')
			if err != nil && text != "" {
				// the unterminated last line first, then the error alone
				select {
				case out <- line{text: text}:
				case <-done:
					return
				}
				text = ""
			}
			select {
			case out <- line{text: text, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}
