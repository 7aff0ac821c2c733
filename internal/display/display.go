// Package display formats listbridge output for the terminal.
package display

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	Muted    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	Bold     = lipgloss.NewStyle().Bold(true)
	Success  = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	Warn     = lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
)

// ShortHash abbreviates a commit hash for display.
func ShortHash(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}

// SyncSummary renders the outcome of a sync run as a few lines of text.
func SyncSummary(advanced bool, from, to string, dispatched, skipped, failed int) string {
	var b strings.Builder
	if !advanced {
		fmt.Fprintf(&b, "%s Up to date at %s\n", Success.Render("✓"), Bold.Render(ShortHash(to)))
		return b.String()
	}

	fmt.Fprintf(&b, "%s Synced %s..%s\n", Success.Render("✓"), ShortHash(from), Bold.Render(ShortHash(to)))
	fmt.Fprintf(&b, "  %s %d\n", Muted.Render("posted: "), dispatched)
	fmt.Fprintf(&b, "  %s %d\n", Muted.Render("skipped:"), skipped)
	failedCount := fmt.Sprintf("%d", failed)
	if failed > 0 {
		failedCount = ErrStyle.Render(failedCount)
	}
	fmt.Fprintf(&b, "  %s %s\n", Muted.Render("failed: "), failedCount)
	return b.String()
}

// SuccessMsg prints a green checkmark + message.
func SuccessMsg(format string, args ...any) {
	fmt.Println(Success.Render("✓") + " " + fmt.Sprintf(format, args...))
}

// WarnMsg prints a yellow exclamation mark + message to stderr.
func WarnMsg(format string, args ...any) {
	fmt.Fprintln(os.Stderr, Warn.Render("!")+" "+fmt.Sprintf(format, args...))
}

// ErrorMsg prints a red X + message to stderr.
func ErrorMsg(format string, args ...any) {
	fmt.Fprintln(os.Stderr, ErrStyle.Render("✗")+" "+fmt.Sprintf(format, args...))
}
