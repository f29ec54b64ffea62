package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/intake/internal/testutils"
	"github.com/aretw0/intake/pkg/adapters/memory"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/flow"
	"github.com/aretw0/intake/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2030, 1, 6, 15, 0, 0, 0, time.UTC)

func newTestRegistry(t *testing.T, llm ports.LLMClient, cases ports.CaseStore) *Registry {
	t.Helper()
	reg, err := NewRegistry(Deps{
		LLM:   llm,
		Cases: cases,
		Clock: func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return reg
}

func mustState(t *testing.T, reg *Registry, name string) State {
	t.Helper()
	s, ok := reg.Get(name)
	require.True(t, ok, name)
	return s
}

func turnWith(values map[string]any) Turn {
	def, _ := flow.Default()
	c := domain.NewContext(def.Rules...)
	for k, v := range values {
		c.Set(k, v)
	}
	return Turn{SessionID: "test", Context: c}
}

func TestMissing_SatisfiesMappings(t *testing.T) {
	satisfies := map[string][][]string{
		"owner_contact": {{"owner_name", "owner_phone"}, {"email"}},
	}
	required := []string{"owner_contact", "animal_contained"}

	c := domain.NewContext()
	c.Set("owner_name", "Ana")
	assert.Equal(t, required, Missing(required, c, satisfies), "half a group satisfies nothing")

	c.Set("owner_phone", "555-0101")
	c.Set("animal_contained", false)
	assert.Empty(t, Missing(required, c, satisfies))

	c.Set("animal_contained", "")
	assert.Equal(t, []string{"animal_contained"}, Missing(required, c, satisfies))
}

func TestRenderSystemPrompt(t *testing.T) {
	c := domain.NewContext()
	c.Set("animal_type", "dog")
	c.Set("location", "Elm St")
	c.Set(domain.KeyMessage, "hidden")

	prompt := RenderSystemPrompt(PromptInput{
		Persona:  "You are a bot.",
		Prompt:   "Collect things.",
		Required: []string{"animal_type", "animal_condition", "location", "animal_contained", "owner_contact"},
		Context:  c,
		Extra:    []string{"Extra section."},
	})

	assert.True(t, strings.HasPrefix(prompt, "You are a bot.\n\nCollect things."))
	assert.Contains(t, prompt, "[Progress: 40% - Step 3 of 5]")
	assert.Contains(t, prompt, "Known Information:\n- animal_type: dog\n- location: Elm St\n")
	assert.Contains(t, prompt, "Missing Information (collect in this order):\n1. animal condition\n2. animal contained\n3. owner contact")
	assert.NotContains(t, prompt, "hidden")
	assert.True(t, strings.HasSuffix(prompt, "Extra section."))

	c.Set("animal_condition", "limping")
	c.Set("animal_contained", false)
	c.Set("owner_contact", "555")
	prompt = RenderSystemPrompt(PromptInput{Prompt: "p", Required: []string{"animal_type"}, Context: c})
	assert.Contains(t, prompt, "[Progress: 100% - Step 1 of 1]")
	assert.Contains(t, prompt, "All required information has been collected.")
}

func TestHistoryMessages(t *testing.T) {
	var history []domain.HistoryEntry
	for i := 0; i < 7; i++ {
		speaker := domain.SpeakerUser
		if i%2 == 1 {
			speaker = domain.SpeakerSystem
		}
		history = append(history, domain.HistoryEntry{Speaker: speaker, Message: string(rune('a' + i))})
	}
	msgs := HistoryMessages(history, 5)
	require.Len(t, msgs, 5)
	assert.Equal(t, ports.Message{Role: ports.RoleUser, Content: "c"}, msgs[0])
	assert.Equal(t, ports.RoleAssistant, msgs[1].Role)
}

func TestGreeting(t *testing.T) {
	t.Run("Static Entry", func(t *testing.T) {
		reg := newTestRegistry(t, testutils.NewScriptedLLM(), nil)
		msg, ok := mustState(t, reg, domain.StateGreeting).Enter(domain.NewContext())
		assert.True(t, ok)
		assert.Equal(t, "Hello! I'm the Animal Control Services assistant. How can I help you today?", msg)
	})

	t.Run("Menu Selection Skips LLM", func(t *testing.T) {
		llm := testutils.NewScriptedLLM()
		reg := newTestRegistry(t, llm, nil)

		out, err := mustState(t, reg, domain.StateGreeting).ProcessInput(context.Background(), " 2 ", turnWith(nil))
		require.NoError(t, err)
		assert.Equal(t, domain.ActionTransition, out.Action)
		assert.Equal(t, domain.StateReportFound, out.Next)
		assert.Empty(t, llm.Calls())
	})

	t.Run("Found Stray Dog", func(t *testing.T) {
		llm := testutils.NewScriptedLLM(testutils.Tools(
			testutils.ToolCall("analyze_request", map[string]any{"intent": "found", "animal_type": "dog"}),
		))
		reg := newTestRegistry(t, llm, nil)

		out, err := mustState(t, reg, domain.StateGreeting).ProcessInput(context.Background(), "I found a stray dog", turnWith(nil))
		require.NoError(t, err)
		assert.Equal(t, domain.ActionTransition, out.Action)
		assert.Equal(t, domain.StateReportFound, out.Next)
		assert.Equal(t, "dog", out.Updates[domain.FieldAnimalType])
		assert.Empty(t, out.Response, "no message to carry: the next state opens itself")

		calls := llm.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, []string{"analyze_request", "update_context", "generate_response"}, calls[0].Tools)
		last := calls[0].Messages[len(calls[0].Messages)-1]
		assert.Equal(t, ports.Message{Role: ports.RoleUser, Content: "I found a stray dog"}, last)
	})

	t.Run("Low Confidence Stays", func(t *testing.T) {
		llm := testutils.NewScriptedLLM(testutils.Tools(
			testutils.ToolCall("analyze_request", map[string]any{"intent": "lost", "confidence": 0.3}),
		))
		reg := newTestRegistry(t, llm, nil)

		out, err := mustState(t, reg, domain.StateGreeting).ProcessInput(context.Background(), "hmm", turnWith(nil))
		require.NoError(t, err)
		assert.Equal(t, domain.ActionContinue, out.Action)
		assert.Equal(t, "I need more information to help you with your animal concern. Could you please provide more details?", out.Response)
	})
}

func TestIntake_RequiredFieldsTriggerTransition(t *testing.T) {
	llm := testutils.NewScriptedLLM(testutils.Tools(
		testutils.Update(map[string]any{"severity": "high", "contained": "no", "phone": "555-0101"}),
		testutils.Respond("Thanks, let me confirm the details.", "continue", ""),
	))
	reg := newTestRegistry(t, llm, nil)

	turn := turnWith(map[string]any{"animal_type": "dog", "location": "Elm St"})
	out, err := mustState(t, reg, domain.StateEmergencyCase).ProcessInput(context.Background(), "it is bleeding and loose, call me at 555-0101", turn)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionTransition, out.Action)
	assert.Equal(t, domain.StateCaseConfirmation, out.Next)
	assert.Equal(t, "Thanks, let me confirm the details.", out.Response)
	assert.Equal(t, "high", out.Updates["animal_condition"])
	assert.Equal(t, false, out.Updates["animal_contained"])

	details, ok := out.Updates[domain.FieldCaseDetails].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "emergency", details["type"])
	assert.Equal(t, "critical", details["animal_condition"], "derived rule applied on the working copy")
	assert.Equal(t, false, details["animal_contained"])

	v, _ := turn.Context.Get("animal_condition")
	assert.Nil(t, v, "live context untouched")
}

func TestIntake_ToolRequestedTransition(t *testing.T) {
	llm := testutils.NewScriptedLLM(testutils.Tools(
		testutils.Respond("Let me check what I have.", "transition", "NONEXISTENT"),
	))
	reg := newTestRegistry(t, llm, nil)

	out, err := mustState(t, reg, domain.StateReportLost).ProcessInput(context.Background(), "skip ahead", turnWith(nil))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionTransition, out.Action)
	assert.Equal(t, "NONEXISTENT", out.Next, "validated later by the graph")
	assert.Equal(t, "Let me check what I have.", out.Response)
	assert.NotContains(t, out.Updates, domain.FieldCaseDetails)

	llm.Push(testutils.Tools(testutils.Respond("Moving on.", "transition", "")))
	out, err = mustState(t, reg, domain.StateReportLost).ProcessInput(context.Background(), "next", turnWith(nil))
	require.NoError(t, err)
	assert.Equal(t, domain.StateCaseConfirmation, out.Next, "a transition without target goes to the completion target")
	assert.Contains(t, out.Updates, domain.FieldCaseDetails)
}

func TestIntake_SchemaViolation(t *testing.T) {
	llm := testutils.NewScriptedLLM(testutils.Tools(
		testutils.ToolCall("update_context", map[string]any{"context_updates": "dog"}),
	))
	reg := newTestRegistry(t, llm, nil)

	_, err := mustState(t, reg, domain.StateReportLost).ProcessInput(context.Background(), "a dog", turnWith(nil))
	require.Error(t, err)
	assert.True(t, domain.IsProtocol(err))
}

func TestIntake_ModelReportedError(t *testing.T) {
	llm := testutils.NewScriptedLLM(testutils.Tools(testutils.Respond("oops", "error", "")))
	reg := newTestRegistry(t, llm, nil)

	_, err := mustState(t, reg, domain.StateReportLost).ProcessInput(context.Background(), "hi", turnWith(nil))
	assert.True(t, domain.IsProtocol(err))
}

func TestHandleError(t *testing.T) {
	reg := newTestRegistry(t, testutils.NewScriptedLLM(), nil)
	state := mustState(t, reg, domain.StateReportFound)
	timeout := &domain.LLMTimeoutError{Model: "m", Timeout: time.Second}

	tests := []struct {
		name    string
		err     error
		retries int
		want    string
	}{
		{"Timeout", timeout, 1, MessageTimeout},
		{"Deadline", context.DeadlineExceeded, 1, MessageTimeout},
		{"Protocol", &domain.LLMProtocolError{Tool: "update_context"}, 2, MessageProtocol},
		{"Other", errors.New("boom"), 1, MessageGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turn := turnWith(nil)
			turn.Retries = tt.retries
			out := state.HandleError(tt.err, turn)
			assert.Equal(t, domain.ActionContinue, out.Action)
			assert.Equal(t, tt.want, out.Response)
			assert.Equal(t, tt.retries, out.Updates[domain.KeyRetryCount])
		})
	}

	t.Run("Exhausted", func(t *testing.T) {
		turn := turnWith(nil)
		turn.Retries = 3
		out := state.HandleError(timeout, turn)
		assert.Equal(t, domain.ActionTransition, out.Action)
		assert.Equal(t, domain.StateErrorHandling, out.Next)
		assert.True(t, out.System)
		assert.Equal(t, "Maximum retries exceeded in state REPORT_FOUND", out.Updates[domain.KeyErrorMessage])
	})

	t.Run("Exhausted In Error State", func(t *testing.T) {
		turn := turnWith(nil)
		turn.Retries = 3
		out := mustState(t, reg, domain.StateErrorHandling).HandleError(timeout, turn)
		assert.Equal(t, domain.ActionComplete, out.Action)
	})
}

func TestProcessStateEntry(t *testing.T) {
	t.Run("Uses Transition Prompt", func(t *testing.T) {
		llm := testutils.NewScriptedLLM(testutils.Reply("So sorry about your pet. What kind of animal is it?"))
		reg := newTestRegistry(t, llm, nil)

		turn := turnWith(map[string]any{"detected_intent": "lost"})
		turn.Previous = domain.StateGreeting
		turn.History = []domain.HistoryEntry{{Speaker: domain.SpeakerUser, Message: "I lost my cat"}}

		out, err := mustState(t, reg, domain.StateReportLost).ProcessStateEntry(context.Background(), turn)
		require.NoError(t, err)
		assert.Equal(t, "So sorry about your pet. What kind of animal is it?", out.Response)
		assert.Equal(t, domain.ActionContinue, out.Action)
		assert.Equal(t, 1, out.LLMCalls)

		calls := llm.Calls()
		require.Len(t, calls, 1)
		assert.Contains(t, calls[0].Messages[0].Content, "The caller lost a pet.")
		assert.Equal(t, "I lost my cat", calls[0].Messages[1].Content)
	})

	t.Run("Failure Falls Back To Entry Text", func(t *testing.T) {
		llm := testutils.NewScriptedLLM(testutils.Fail(errors.New("unavailable")))
		reg := newTestRegistry(t, llm, nil)

		out, err := mustState(t, reg, domain.StateReportLost).ProcessStateEntry(context.Background(), turnWith(nil))
		require.Error(t, err)
		assert.Equal(t, "I'm sorry your pet is missing. What kind of animal is it?", out.Response)
	})
}

func TestEnterExit_OnlyTransientKeysChange(t *testing.T) {
	reg := newTestRegistry(t, testutils.NewScriptedLLM(), nil)

	for _, name := range reg.Names() {
		t.Run(name, func(t *testing.T) {
			c := domain.NewContext()
			c.Set("animal_type", "dog")
			c.Set("animal_contained", false)
			c.Set(domain.FieldCaseType, "found")
			c.Set(domain.KeyMessage, "outbound")
			c.Set(domain.KeyErrorMessage, "failure")
			before := c.Snapshot()

			s := mustState(t, reg, name)
			s.Enter(c)
			s.Exit(c)

			after := c.Snapshot()
			for _, k := range reg.Flow().TransientKeys(name) {
				delete(before, k)
				assert.NotContains(t, after, k)
			}
			assert.Equal(t, before, after)
		})
	}
}

func TestSchedule(t *testing.T) {
	cases := memory.NewCaseStore()
	taken := time.Date(2030, 1, 7, 10, 0, 0, 0, time.UTC)
	_, err := cases.CreateRecord(context.Background(), domain.CaseRecord{Type: domain.CaseSurrender, Appointment: &taken})
	require.NoError(t, err)

	t.Run("Prompt Lists Availability", func(t *testing.T) {
		llm := testutils.NewScriptedLLM(testutils.Reply("Which time works?"))
		reg := newTestRegistry(t, llm, cases)

		_, err := mustState(t, reg, domain.StateScheduleSurrender).ProcessInput(context.Background(), "when can I come?", turnWith(nil))
		require.NoError(t, err)
		system := llm.Calls()[0].Messages[0].Content
		assert.Contains(t, system, "Available appointment times:\n- Monday, January 07 at 09:00 AM\n- Monday, January 07 at 11:00 AM")
	})

	t.Run("Taken Slot Rejected", func(t *testing.T) {
		llm := testutils.NewScriptedLLM(testutils.Tools(
			testutils.ToolCall("parse_datetime_request", map[string]any{"date": "2030-01-07", "time": "10:00", "confidence": 0.9}),
		))
		reg := newTestRegistry(t, llm, cases)

		out, err := mustState(t, reg, domain.StateScheduleSurrender).ProcessInput(context.Background(), "Monday at 10", turnWith(nil))
		require.NoError(t, err)
		assert.Equal(t, domain.ActionContinue, out.Action)
		assert.Equal(t, "I'm sorry, Monday, January 07 at 10:00 AM is not available. Could you choose another time?", out.Response)
		assert.Contains(t, out.Updates, domain.FieldSelectedDate)
		assert.Nil(t, out.Updates[domain.FieldSelectedDate])
	})

	t.Run("Free Slot Booked", func(t *testing.T) {
		llm := testutils.NewScriptedLLM(testutils.Tools(
			testutils.ToolCall("parse_datetime_request", map[string]any{"date": "2030-01-07", "time": "11:00", "confidence": 0.9}),
		))
		reg := newTestRegistry(t, llm, cases)

		out, err := mustState(t, reg, domain.StateScheduleSurrender).ProcessInput(context.Background(), "Monday at 11", turnWith(nil))
		require.NoError(t, err)
		assert.Equal(t, domain.ActionTransition, out.Action)
		assert.Equal(t, domain.StateCaseConfirmation, out.Next)
		assert.Equal(t, "2030-01-07T11:00:00", out.Updates[domain.FieldSelectedDate])
		details := out.Updates[domain.FieldCaseDetails].(map[string]any)
		assert.Equal(t, "surrender", details["type"])
	})
}

func TestConfirmation_CreatesCase(t *testing.T) {
	cases := memory.NewCaseStore(memory.WithSamples(), memory.WithClock(func() time.Time { return testNow }))
	llm := testutils.NewScriptedLLM(testutils.Tools(
		testutils.Respond("Your report is filed.", "transition", domain.StateCaseComplete),
	))
	reg := newTestRegistry(t, llm, cases)

	turn := turnWith(map[string]any{
		"animal_type":        "dog",
		"location_found":     "Central Park",
		"animal_description": "golden retriever",
		domain.FieldCaseDetails: map[string]any{
			"type": "found",
		},
	})
	out, err := mustState(t, reg, domain.StateCaseConfirmation).ProcessInput(context.Background(), "yes that's right", turn)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionTransition, out.Action)
	assert.Equal(t, domain.StateCaseComplete, out.Next)
	assert.Equal(t, "AC-20300106-0001", out.Updates[domain.FieldCaseID])
	assert.Equal(t, "found", out.Updates[domain.FieldCaseType])
	assert.Equal(t, []any{"AC-20240115-0001"}, out.Updates[domain.FieldMatchingReports])

	rec, err := cases.Get(context.Background(), "AC-20300106-0001")
	require.NoError(t, err)
	assert.Equal(t, "Central Park", rec.Location)

	system := llm.Calls()[0].Messages[0].Content
	assert.Contains(t, system, "Possible matching reports")
}

func TestCaseComplete_Enter(t *testing.T) {
	reg := newTestRegistry(t, testutils.NewScriptedLLM(), nil)
	state := mustState(t, reg, domain.StateCaseComplete)

	c := domain.NewContext()
	c.Set(domain.FieldCaseID, "AC-20300106-0001")
	c.Set(domain.FieldCaseType, "surrender")
	c.Set(domain.FieldSelectedDate, "2030-01-07T11:00:00")

	msg, ok := state.Enter(c)
	require.True(t, ok)
	assert.Contains(t, msg, "Case ID: AC-20300106-0001, Appointment: Monday, January 07 at 11:00 AM.")

	c.Set(domain.FieldCaseType, "other")
	msg, _ = state.Enter(c)
	assert.True(t, strings.HasPrefix(msg, "Your case has been submitted successfully! Case ID: AC-20300106-0001."))
}

func TestSummary_Keywords(t *testing.T) {
	llm := testutils.NewScriptedLLM()
	reg := newTestRegistry(t, llm, nil)
	state := mustState(t, reg, domain.StateFinalSummary)

	tests := []struct {
		input  string
		action domain.NextAction
		next   string
	}{
		{"No thanks, goodbye!", domain.ActionComplete, ""},
		{"That's all", domain.ActionComplete, ""},
		{"I have another dog to report", domain.ActionTransition, domain.StateGreeting},
		{"Can we start over?", domain.ActionTransition, domain.StateGreeting},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			out, err := state.ProcessInput(context.Background(), tt.input, turnWith(nil))
			require.NoError(t, err)
			assert.Equal(t, tt.action, out.Action)
			assert.Equal(t, tt.next, out.Next)
			if tt.action == domain.ActionComplete {
				assert.Equal(t, "Thank you for calling Animal Control Services. Goodbye.", out.Response)
			}
		})
	}
	assert.Empty(t, llm.Calls(), "keywords are handled without the LLM")

	out, err := state.ProcessInput(context.Background(), "Nobody is renewing anything", turnWith(nil))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionContinue, out.Action, "keywords match whole words only")
	assert.Len(t, llm.Calls(), 1)
}

func TestRegistry_AssignsTools(t *testing.T) {
	llm := testutils.NewScriptedLLM(testutils.Reply("ok"))
	reg := newTestRegistry(t, llm, nil)
	assert.Len(t, reg.Names(), 11)
	assert.Equal(t, DefaultMaxRetries, reg.MaxRetries())

	_, err := mustState(t, reg, domain.StateFinalSummary).ProcessInput(context.Background(), "what happens next?", turnWith(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"update_context", "generate_response"}, llm.Calls()[0].Tools)
}
