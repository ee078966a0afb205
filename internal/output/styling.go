// Package output renders guard results for terminals.
package output

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/pyisolate/guard/pkg/domain"
)

// Icons used in terminal output.
var Icons = struct {
	Success string
	Error   string
	Warning string
}{
	Success: "✓",
	Error:   "✗",
	Warning: "⚠",
}

// Colors contains the color functions used in terminal output.
var Colors = struct {
	Success func(a ...interface{}) string
	Error   func(a ...interface{}) string
	Warning func(a ...interface{}) string
	Heading func(a ...interface{}) string
}{
	Success: color.New(color.FgGreen).SprintFunc(),
	Error:   color.New(color.FgRed).SprintFunc(),
	Warning: color.New(color.FgYellow).SprintFunc(),
	Heading: color.New(color.FgWhite, color.Bold).SprintFunc(),
}

// Verdict writes one decision line for path.
func Verdict(w io.Writer, path string, v domain.Verdict) {
	if v.Allowed {
		fmt.Fprintf(w, "%s %s %s\n", Colors.Success(Icons.Success), Colors.Success("ALLOW"), path)
		return
	}
	fmt.Fprintf(w, "%s %s %s (%s)\n", Colors.Error(Icons.Error), Colors.Error("DENY"), path, v.Reason)
}

// PolicyEntries writes a policy listing, one slot per line.
func PolicyEntries(w io.Writer, entries []domain.AllowedPathEntry) {
	if len(entries) == 0 {
		fmt.Fprintf(w, "%s %s\n", Colors.Warning(Icons.Warning), "policy is empty, every open is denied")
		return
	}
	fmt.Fprintln(w, Colors.Heading("INDEX  PATH"))
	for _, e := range entries {
		fmt.Fprintf(w, "%5d  %s\n", e.Index, e.Path.String())
	}
}

// Notice writes a warning line.
func Notice(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "%s %s\n", Colors.Warning(Icons.Warning), fmt.Sprintf(format, args...))
}
