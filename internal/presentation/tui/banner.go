package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner writes the intake banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	// Warm gradient (Amber/Orange)
	lines := []struct{ text, color string }{
		{"  _       _        _        ", "#fbbf24"},
		{" (_)_ __ | |_ __ _| | _____ ", "#f59e0b"},
		{" | | '_ \\| __/ _` | |/ / _ \\", "#f97316"},
		{" | | | | | || (_| |   <  __/", "#ea580c"},
		{" |_|_| |_|\\__\\__,_|_|\\_\\___|", "#c2410c"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String(" Animal Control Services intake  v"+strings.TrimSpace(version)).Faint())
	fmt.Fprintln(w)
}
