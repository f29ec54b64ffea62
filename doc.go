/*
Package intake is an LLM-driven intake conversation engine for animal control phone lines.

It implements a finite-state conversation in which each step ("state") owns its prompt,
its eligible tools and its completion rules, while an orchestrator owns everything
around them: the shared context, the transcript, retries, transition policing and the
audit trail of every turn.

# Concept

A caller talks to the engine one line at a time. For every line the current state asks
the LLM for tool calls (classify the request, record facts, answer and choose the next
step), the orchestrator validates the requested transition against a declared graph and,
when the conversation moves, lets the new state produce its opening line. Every turn is
emitted as an immutable TurnRecord with a per-conversation sequence number.

# Key Features

  - Untrusted transitions: a state the LLM invents is rewritten to a declared one, never followed.
  - Bounded retries: failed turns are absorbed by the state, then routed to error handling.
  - Single-flight turns: concurrent turns of one conversation are queued in arrival order.
  - Durable sessions: snapshots in memory or Redis, with a distributed lock across replicas.
  - Non-blocking telemetry: turn records are buffered and drained by a single writer.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"
		"os"

		"github.com/aretw0/intake"
		"github.com/aretw0/intake/pkg/llm"
	)

	func main() {
		client, err := llm.New(llm.Config{APIKey: os.Getenv("OPENROUTER_API_KEY")})
		if err != nil {
			log.Fatal(err)
		}

		eng, err := intake.New(client)
		if err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()
		greeting, err := eng.Start(ctx, "call-123")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(greeting)

		reply, err := eng.Turn(ctx, "call-123", "I found a stray dog near the park")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(reply)
	}

For an interactive loop over stdin and stdout, see Runner.
*/
package intake
