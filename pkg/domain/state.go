package domain

import "strings"

// Well-known state names of the animal control intake flow.
const (
	StateGreeting          = "GREETING"
	StateEmergencyCase     = "EMERGENCY_CASE"
	StateReportFound       = "REPORT_FOUND"
	StateReportLost        = "REPORT_LOST"
	StatePetSurrender      = "PET_SURRENDER"
	StateScheduleSurrender = "SCHEDULE_SURRENDER"
	StateGeneralInfo       = "GENERAL_INFO"
	StateCaseConfirmation  = "CASE_CONFIRMATION"
	StateCaseComplete      = "CASE_COMPLETE"
	StateErrorHandling     = "ERROR_HANDLING"
	StateFinalSummary      = "FINAL_SUMMARY"
)

// NextAction is the decision a state (or a tool) takes at the end of a turn.
type NextAction int

const (
	// ActionContinue stays in the current state and surfaces a response.
	ActionContinue NextAction = iota
	// ActionTransition moves to another state.
	ActionTransition
	// ActionComplete ends the conversation, routed through the summary state.
	ActionComplete
	// ActionError signals a failure the current state cannot recover from on its own.
	ActionError
)

func (a NextAction) String() string {
	switch a {
	case ActionTransition:
		return "transition"
	case ActionComplete:
		return "complete"
	case ActionError:
		return "error"
	default:
		return "continue"
	}
}

// ParseNextAction converts the wire form used by tool arguments into a NextAction.
func ParseNextAction(s string) (NextAction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "continue", "":
		return ActionContinue, true
	case "transition":
		return ActionTransition, true
	case "complete":
		return ActionComplete, true
	case "error":
		return ActionError, true
	}
	return ActionContinue, false
}
