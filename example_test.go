package intake_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aretw0/intake"
	"github.com/aretw0/intake/internal/testutils"
)

// ExampleNew drives a conversation with a scripted LLM client. In production the
// client is an llm.Client talking to OpenRouter.
func ExampleNew() {
	client := testutils.NewScriptedLLM(
		testutils.Reply("Thank you for reporting a found animal. What kind of animal did you find?"),
	)

	engine, err := intake.New(client)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	greeting, err := engine.Start(ctx, "call-123")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(greeting)

	// "2" picks the found-animal option of the greeting menu.
	reply, err := engine.Turn(ctx, "call-123", "2")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(reply)

	// Output:
	// Hello! I'm the Animal Control Services assistant. How can I help you today?
	// Thank you for reporting a found animal. What kind of animal did you find?
}

// ExampleRunner replays caller lines from a reader.
func ExampleRunner() {
	client := testutils.NewScriptedLLM(
		testutils.Reply("I understand this is an emergency. Where is the animal right now?"),
	)
	engine, err := intake.New(client)
	if err != nil {
		log.Fatal(err)
	}

	r := &intake.Runner{
		Input:    strings.NewReader("1\n/exit\n"),
		Output:   os.Stdout,
		Headless: true,
	}
	if err := r.Run(context.Background(), engine, "call-456"); err != nil {
		log.Fatal(err)
	}

	// Output:
	// Hello! I'm the Animal Control Services assistant. How can I help you today?
	// I understand this is an emergency. Where is the animal right now?
}
