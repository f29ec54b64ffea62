package tools

import (
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/intake/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// ConfidenceThreshold is the confidence above which a classified intent or a
// parsed date/time is trusted.
const ConfidenceThreshold = 0.7

// Appointment response formats.
const (
	appointmentLayout = "Monday, January 02 at 03:04 PM"
	dateLayout        = "2006-01-02"
	timeLayout        = "15:04"
	isoLayout         = "2006-01-02T15:04:05"
)

type analyzeArgs struct {
	Intent      string   `mapstructure:"intent"`
	AnimalType  string   `mapstructure:"animal_type"`
	ServiceType string   `mapstructure:"service_type"`
	Location    string   `mapstructure:"location"`
	Urgency     string   `mapstructure:"urgency"`
	Confidence  *float64 `mapstructure:"confidence"`
}

type datetimeArgs struct {
	Date              string   `mapstructure:"date"`
	Time              string   `mapstructure:"time"`
	RelativeReference string   `mapstructure:"relative_reference"`
	Flexibility       string   `mapstructure:"flexibility"`
	Confidence        *float64 `mapstructure:"confidence"`
}

type responseArgs struct {
	Response       string         `mapstructure:"response"`
	NextAction     string         `mapstructure:"next_action"`
	NextState      string         `mapstructure:"next_state"`
	ContextUpdates map[string]any `mapstructure:"context_updates"`
}

func decode(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(args)
}

// AnalyzeRequest classifies the caller's request. The intent is only recorded
// when the confidence is above ConfidenceThreshold; a call without confidence is
// treated as certain. Every update carries the reported confidence.
func AnalyzeRequest(args map[string]any, _ domain.View) (domain.ToolCallResult, error) {
	var a analyzeArgs
	if err := decode(args, &a); err != nil {
		return domain.ToolCallResult{}, fmt.Errorf("invalid analyze_request arguments: %w", err)
	}

	confidence := domain.DefaultConfidence
	if a.Confidence != nil {
		confidence = *a.Confidence
	}

	updates := make(map[string]any)
	if a.Intent != "" && confidence > ConfidenceThreshold {
		updates[domain.FieldDetectedIntent] = a.Intent
	}
	if a.AnimalType != "" {
		updates[domain.FieldAnimalType] = a.AnimalType
	}
	if a.ServiceType != "" {
		updates[domain.FieldServiceType] = a.ServiceType
	}
	if a.Location != "" {
		updates[domain.FieldLocation] = a.Location
	}
	if a.Urgency != "" {
		updates[domain.FieldUrgencyLevel] = a.Urgency
	}

	return domain.ToolCallResult{ContextUpdates: updates, Scores: scoreAll(updates, confidence)}, nil
}

// UpdateContext records facts the LLM extracted from the caller's input.
func UpdateContext(args map[string]any, _ domain.View) (domain.ToolCallResult, error) {
	raw, ok := args["context_updates"].(map[string]any)
	if !ok {
		return domain.ToolCallResult{}, fmt.Errorf("context_updates must be an object")
	}
	return domain.ToolCallResult{ContextUpdates: domain.CopyMap(raw)}, nil
}

// ParseDatetimeRequest records an appointment date and time. When both parse,
// selected_date is set to the ISO datetime and the caller is asked to confirm.
func ParseDatetimeRequest(args map[string]any, _ domain.View) (domain.ToolCallResult, error) {
	var a datetimeArgs
	if err := decode(args, &a); err != nil {
		return domain.ToolCallResult{}, fmt.Errorf("invalid parse_datetime_request arguments: %w", err)
	}

	confidence := 0.0
	if a.Confidence != nil {
		confidence = *a.Confidence
	}

	updates := make(map[string]any)
	var date, clock *time.Time
	if a.Date != "" && confidence > ConfidenceThreshold {
		updates[domain.FieldParsedDate] = a.Date
		if d, err := time.Parse(dateLayout, strings.TrimSpace(a.Date)); err == nil {
			date = &d
		}
	}
	if a.Time != "" && confidence > ConfidenceThreshold {
		updates[domain.FieldParsedTime] = a.Time
		if c, err := time.Parse(timeLayout, strings.TrimSpace(a.Time)); err == nil {
			clock = &c
		}
	}
	if a.RelativeReference != "" {
		updates[domain.FieldRelativeTimeRef] = a.RelativeReference
	}
	if a.Flexibility != "" {
		updates[domain.FieldTimeFlexibility] = a.Flexibility
	}

	var response string
	switch {
	case date != nil && clock != nil:
		at := time.Date(date.Year(), date.Month(), date.Day(), clock.Hour(), clock.Minute(), 0, 0, time.UTC)
		updates[domain.FieldSelectedDate] = at.Format(isoLayout)
		response = fmt.Sprintf("I've scheduled your appointment for %s. Does this time work for you?", at.Format(appointmentLayout))
	case hasKey(updates, domain.FieldParsedDate):
		response = fmt.Sprintf("I've noted the date %s. What time would work best for you?", a.Date)
	case hasKey(updates, domain.FieldParsedTime):
		response = fmt.Sprintf("I've noted the time %s. What date would you prefer?", a.Time)
	default:
		response = "I couldn't quite understand that date/time. Could you please provide a specific date and time for your appointment?"
	}

	return domain.ToolCallResult{
		ContextUpdates: updates,
		Response:       &response,
		NextAction:     domain.ActionContinue,
	}, nil
}

// GenerateResponse carries the LLM's chosen reply, next action and next state.
func GenerateResponse(args map[string]any, _ domain.View) (domain.ToolCallResult, error) {
	var a responseArgs
	if err := decode(args, &a); err != nil {
		return domain.ToolCallResult{}, fmt.Errorf("invalid generate_response arguments: %w", err)
	}

	action, ok := domain.ParseNextAction(a.NextAction)
	if !ok {
		return domain.ToolCallResult{}, fmt.Errorf("unknown next_action %q", a.NextAction)
	}

	res := domain.ToolCallResult{
		ContextUpdates: domain.CopyMap(a.ContextUpdates),
		NextAction:     action,
	}
	if r := strings.TrimSpace(a.Response); r != "" {
		res.Response = &r
	}
	if a.NextState != "" {
		res.NextState = domain.StringPtr(a.NextState)
	}
	return res, nil
}

func scoreAll(updates map[string]any, confidence float64) map[string]float64 {
	if len(updates) == 0 {
		return nil
	}
	scores := make(map[string]float64, len(updates))
	for k := range updates {
		scores[k] = confidence
	}
	return scores
}

func hasKey(m map[string]any, k string) bool {
	_, ok := m[k]
	return ok
}
