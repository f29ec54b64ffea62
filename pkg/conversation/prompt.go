package conversation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/ports"
)

// PromptInput is everything needed to render the system prompt of a turn.
type PromptInput struct {
	Persona   string
	Prompt    string
	Required  []string
	Satisfies map[string][][]string
	Context   domain.View
	// Extra sections appended after the progress annotation.
	Extra []string
}

// RenderSystemPrompt renders the state prompt enriched with a progress
// annotation: the known fields and the required fields still missing.
func RenderSystemPrompt(in PromptInput) string {
	var sb strings.Builder
	if p := strings.TrimSpace(in.Persona); p != "" {
		sb.WriteString(p)
		sb.WriteString("\n\n")
	}
	sb.WriteString(strings.TrimSpace(in.Prompt))
	sb.WriteString("\n\n")

	if n := len(in.Required); n > 0 {
		missing := Missing(in.Required, in.Context, in.Satisfies)
		collected := n - len(missing)
		step := collected + 1
		if step > n {
			step = n
		}
		sb.WriteString(fmt.Sprintf("[Progress: %d%% - Step %d of %d]\n\n", collected*100/n, step, n))
	}

	known := KnownInformation(in.Context)
	if len(known) > 0 {
		sb.WriteString("Known Information:\n")
		for _, line := range known {
			sb.WriteString("- ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if len(in.Required) > 0 {
		missing := Missing(in.Required, in.Context, in.Satisfies)
		if len(missing) == 0 {
			sb.WriteString("All required information has been collected.\n")
		} else {
			sb.WriteString("Missing Information (collect in this order):\n")
			for i, f := range missing {
				sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, humanize(f)))
			}
		}
	}

	for _, extra := range in.Extra {
		if extra = strings.TrimSpace(extra); extra != "" {
			sb.WriteString("\n")
			sb.WriteString(extra)
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// KnownInformation lists the collected scalar business fields as "key: value"
// lines, in context order.
func KnownInformation(view domain.View) []string {
	var out []string
	for _, k := range view.Keys() {
		if domain.InternalKeys[k] {
			continue
		}
		v, _ := view.Get(k)
		if !domain.IsPresent(v) {
			continue
		}
		switch v.(type) {
		case map[string]any, []any, []string, []map[string]any:
			continue
		}
		out = append(out, fmt.Sprintf("%s: %v", k, v))
	}
	return out
}

// HistoryMessages converts the last n history entries into chat messages.
func HistoryMessages(history []domain.HistoryEntry, n int) []ports.Message {
	if n >= 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	out := make([]ports.Message, 0, len(history))
	for _, h := range history {
		role := ports.RoleAssistant
		if h.Speaker == domain.SpeakerUser {
			role = ports.RoleUser
		}
		out = append(out, ports.Message{Role: role, Content: h.Message})
	}
	return out
}

// Interpolate replaces {key} placeholders. Unknown placeholders are kept.
func Interpolate(text string, values map[string]string) string {
	if !strings.Contains(text, "{") {
		return text
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", values[k])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

func humanize(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}
