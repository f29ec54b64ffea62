package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/intake/pkg/adapters/sqlite"
	transitions "github.com/aretw0/intake/pkg/graph"
)

// MaxLabelLength caps the edge labels of a call flow.
const MaxLabelLength = 30

// GraphOverlay contains dynamic state data to visualize on the graph.
type GraphOverlay struct {
	VisitedStates []string
	CurrentState  string
}

// GenerateMermaid produces a Mermaid flowchart of the transition graph.
// It applies semantic styling:
// - Initial: ((Circle))
// - Terminal: ([Stadium])
// - Default: [Rectangle]
// Edges into the fallback state are dotted.
// It also applies overlay styles (Visited/Current) if provided.
func GenerateMermaid(g *transitions.Graph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, state := range g.States() {
		safeID := sanitizeMermaidID(state)

		opener, closer := "[", "]"
		switch {
		case state == g.Initial():
			opener, closer = "((", "))"
		case g.IsTerminal(state):
			opener, closer = "([", "])"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, state, closer))

		for _, to := range g.Next(state) {
			arrow := "-->"
			if to == g.Fallback() && state != g.Fallback() {
				arrow = "-.->"
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeID, arrow, sanitizeMermaidID(to)))
		}
	}

	if overlay != nil {
		writeOverlay(&sb, overlay)
	}
	return sb.String()
}

// GenerateCallFlow produces a Mermaid flowchart of one recorded call. Each
// transition becomes an edge labelled with the context keys it changed, or with
// its transition kind when nothing changed.
func GenerateCallFlow(flow *sqlite.CallFlow) string {
	if flow == nil || len(flow.Transitions) == 0 {
		return "graph TD\n    Error[No data available]\n"
	}

	var sb strings.Builder
	sb.WriteString("graph TD\n")
	for _, t := range flow.Transitions {
		from := t.FromState
		if from == "" {
			from = "START"
		}
		sb.WriteString(fmt.Sprintf("    %s-->|%s|%s\n",
			sanitizeMermaidID(from), edgeLabel(t), sanitizeMermaidID(t.ToState)))
	}

	visited := make([]string, 0, len(flow.Transitions))
	for _, t := range flow.Transitions {
		visited = append(visited, t.ToState)
	}
	writeOverlay(&sb, &GraphOverlay{VisitedStates: visited, CurrentState: flow.Call.FinalState})
	return sb.String()
}

func edgeLabel(t sqlite.Transition) string {
	if len(t.Updates) == 0 {
		return string(t.Kind)
	}
	keys := make([]string, 0, len(t.Updates))
	for k := range t.Updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	label := strings.Join(keys, ", ")
	if len(label) > MaxLabelLength {
		label = label[:MaxLabelLength]
	}
	return strings.ReplaceAll(label, "|", "/")
}

func writeOverlay(sb *strings.Builder, overlay *GraphOverlay) {
	sb.WriteString("\n    %% Overlay Styles\n")
	// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
	sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

	seen := make(map[string]bool)
	for _, id := range overlay.VisitedStates {
		safeID := sanitizeMermaidID(id)
		if !seen[safeID] && safeID != "" {
			seen[safeID] = true
			sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
		}
	}

	if overlay.CurrentState != "" {
		sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.CurrentState)))
	}
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
