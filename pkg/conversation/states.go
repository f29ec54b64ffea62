package conversation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aretw0/intake/pkg/domain"
)

// Greeting opens the conversation with a static message and routes the caller
// to a service, either by menu number or by the classified intent.
type Greeting struct {
	*Base
}

func (g *Greeting) Enter(domain.View) (string, bool) {
	return g.def.Entry, g.def.Entry != ""
}

func (g *Greeting) ProcessInput(ctx context.Context, input string, turn Turn) (Outcome, error) {
	if target, ok := g.def.Menu[strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(input), "."))]; ok {
		return Outcome{Action: domain.ActionTransition, Next: target}, nil
	}

	out, work, err := g.Run(ctx, input, turn)
	if err != nil {
		return out, err
	}
	if out.Action == domain.ActionContinue {
		for _, key := range []string{domain.FieldDetectedIntent, domain.FieldServiceType} {
			if target, ok := g.def.Intents[strings.ToLower(work.GetString(key))]; ok {
				out.Action = domain.ActionTransition
				out.Next = target
				break
			}
		}
	}
	return g.Finish(out, work), nil
}

// Schedule books an appointment. The prompt lists the open slots of the case
// store and a selected date is only accepted when its slot is still free.
type Schedule struct {
	*Base
}

const (
	slotLayout        = "Monday, January 02 at 03:04 PM"
	selectedLayout    = "2006-01-02T15:04:05"
	availabilityDays  = 7
	availabilityShown = 8
)

func newSchedule(b *Base) *Schedule {
	s := &Schedule{Base: b}
	b.sections = s.availability
	return s
}

func (s *Schedule) ProcessInput(ctx context.Context, input string, turn Turn) (Outcome, error) {
	out, work, err := s.Run(ctx, input, turn)
	if err != nil {
		return out, err
	}

	selected := work.GetString(domain.FieldSelectedDate)
	if selected != "" && (out.Action == domain.ActionContinue || out.Next == s.def.OnComplete) {
		at, ok := ParseAppointment(selected)
		if !ok {
			return s.reject(out, "I couldn't quite understand that date/time. Could you please provide a specific date and time for your appointment?"), nil
		}
		free, err := s.bookable(ctx, at)
		if err != nil {
			return out, err
		}
		if !free {
			return s.reject(out, fmt.Sprintf("I'm sorry, %s is not available. Could you choose another time?", at.Format(slotLayout))), nil
		}
	}
	return s.Finish(out, work), nil
}

func (s *Schedule) reject(out Outcome, msg string) Outcome {
	out.Action = domain.ActionContinue
	out.Next = ""
	out.Response = msg
	out.set(domain.FieldSelectedDate, nil)
	return out
}

// bookable reports whether at can be booked. Times that fall outside the slot
// grid of the store are accepted.
func (s *Schedule) bookable(ctx context.Context, at time.Time) (bool, error) {
	if s.deps.Cases == nil {
		return true, nil
	}
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
	slots, err := s.deps.Cases.CheckAvailability(ctx, day, 1)
	if err != nil {
		return false, err
	}
	for _, slot := range slots {
		if slot.Start.Equal(at) {
			return slot.Available, nil
		}
	}
	return true, nil
}

func (s *Schedule) availability(ctx context.Context, _ domain.View) []string {
	if s.deps.Cases == nil {
		return nil
	}
	now := s.deps.Clock()
	from := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	slots, err := s.deps.Cases.CheckAvailability(ctx, from, availabilityDays)
	if err != nil {
		s.deps.Logger.Warn("Failed to load availability", "state", s.def.Name, "err", err)
		return nil
	}
	var sb strings.Builder
	shown := 0
	for _, slot := range slots {
		if !slot.Available {
			continue
		}
		if shown == 0 {
			sb.WriteString("Available appointment times:\n")
		}
		sb.WriteString("- " + slot.Start.Format(slotLayout) + "\n")
		if shown++; shown == availabilityShown {
			break
		}
	}
	if shown == 0 {
		return []string{"No appointment times are available this week. Offer to call back."}
	}
	return []string{sb.String()}
}

// ParseAppointment parses a selected_date value.
func ParseAppointment(s string) (time.Time, bool) {
	for _, layout := range []string{selectedLayout, time.RFC3339, "2006-01-02 15:04"} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Confirmation reads back the collected case and creates it once the caller confirms.
type Confirmation struct {
	*Base
}

func newConfirmation(b *Base) *Confirmation {
	c := &Confirmation{Base: b}
	b.sections = c.review
	return c
}

func (c *Confirmation) ProcessInput(ctx context.Context, input string, turn Turn) (Outcome, error) {
	out, work, err := c.Run(ctx, input, turn)
	if err != nil {
		return out, err
	}
	confirmed := out.Action == domain.ActionComplete ||
		(out.Action == domain.ActionTransition && (out.Next == c.def.OnComplete || out.Next == ""))
	if confirmed && c.deps.Cases != nil && work.GetString(domain.FieldCaseID) == "" {
		rec, err := c.deps.Cases.CreateRecord(ctx, BuildCase(work, c.deps.Clock()))
		if err != nil {
			return out, fmt.Errorf("failed to create case: %w", err)
		}
		out.set(domain.FieldCaseID, rec.ID)
		out.set(domain.FieldCaseType, string(rec.Type))
		out.set(domain.FieldCaseCreatedAt, rec.CreatedAt.UTC().Format(time.RFC3339))
		c.deps.Logger.Info("Case created", "session_id", turn.SessionID, "case_id", rec.ID, "case_type", rec.Type)

		if rec.Type == domain.CaseFound || rec.Type == domain.CaseLost {
			if matches, err := c.deps.Cases.FindMatches(ctx, *rec); err == nil && len(matches) > 0 {
				ids := make([]any, len(matches))
				for i, m := range matches {
					ids[i] = m.ID
				}
				out.set(domain.FieldMatchingReports, ids)
			}
		}
	}
	if out.Action == domain.ActionContinue && out.Response == "" {
		out.Response = c.def.Entry
	}
	return c.Finish(out, work), nil
}

func (c *Confirmation) review(ctx context.Context, view domain.View) []string {
	var sections []string
	if c.deps.Cases == nil {
		return nil
	}
	rec := BuildCase(view, c.deps.Clock())
	if rec.ReporterContact != "" {
		prior, err := c.deps.Cases.FindByContact(ctx, rec.ReporterContact)
		if err != nil {
			c.deps.Logger.Warn("Failed to look up previous cases", "state", c.def.Name, "err", err)
		} else if len(prior) > 0 {
			var sb strings.Builder
			sb.WriteString("Previous cases for this caller:\n")
			for _, p := range prior {
				sb.WriteString(fmt.Sprintf("- %s: %s %s (%s)\n", p.ID, p.Type, p.AnimalType, p.Status))
			}
			sections = append(sections, sb.String())
		}
	}
	if rec.Type == domain.CaseFound || rec.Type == domain.CaseLost {
		matches, err := c.deps.Cases.FindMatches(ctx, rec)
		if err != nil {
			c.deps.Logger.Warn("Failed to look up matching reports", "state", c.def.Name, "err", err)
		} else if len(matches) > 0 {
			var sb strings.Builder
			sb.WriteString("Possible matching reports (mention them to the caller):\n")
			for _, m := range matches {
				sb.WriteString(fmt.Sprintf("- %s: %s %s near %s\n", m.ID, m.Type, m.AnimalType, m.Location))
			}
			sections = append(sections, sb.String())
		}
	}
	return sections
}

// CaseComplete announces the created case with a static message per case type.
type CaseComplete struct {
	*Base
}

func (c *CaseComplete) Enter(view domain.View) (string, bool) {
	caseType := view.GetString(domain.FieldCaseType)
	msg, ok := c.def.Messages[caseType]
	if !ok {
		msg = c.def.Messages[string(domain.CaseGeneral)]
	}
	if msg == "" {
		return "", false
	}
	appointment := ""
	if at, ok := ParseAppointment(view.GetString(domain.FieldSelectedDate)); ok {
		appointment = at.Format(slotLayout)
	}
	caseID := view.GetString(domain.FieldCaseID)
	if caseID == "" {
		caseID = "pending"
	}
	return strings.TrimSpace(Interpolate(msg, map[string]string{
		"case_id":     caseID,
		"appointment": appointment,
	})), true
}

// Summary closes the conversation. Ending words complete it and new-request
// words restart at the initial state, both without an LLM call.
type Summary struct {
	*Base
	end     []*regexp.Regexp
	restart []*regexp.Regexp
}

func newSummary(b *Base) *Summary {
	return &Summary{Base: b, end: keywords(b.def.EndKeywords), restart: keywords(b.def.RestartKeywords)}
}

func (s *Summary) ProcessInput(ctx context.Context, input string, turn Turn) (Outcome, error) {
	text := strings.ToLower(input)
	if matchAny(s.end, text) {
		return Outcome{Action: domain.ActionComplete, Response: s.def.Closing}, nil
	}
	if matchAny(s.restart, text) {
		return Outcome{Action: domain.ActionTransition, Next: s.deps.Flow.Initial}, nil
	}

	out, work, err := s.Run(ctx, input, turn)
	if err != nil {
		return out, err
	}
	if out.Action == domain.ActionComplete && out.Response == "" {
		out.Response = s.def.Closing
	}
	return s.Finish(out, work), nil
}

func keywords(words []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(words))
	for _, w := range words {
		out = append(out, regexp.MustCompile(`\b`+regexp.QuoteMeta(strings.ToLower(w))+`\b`))
	}
	return out
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
