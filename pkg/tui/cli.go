// Package tui renders pass summaries and archive reports to the terminal.
// Simple streaming output, no interactive widgets.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lorekeep/lorekeep/pkg/archive"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
	gold    = lipgloss.Color("#FFCC00")
)

// Styles
var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle    = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(muted)
	successStyle   = lipgloss.NewStyle().Foreground(success).Bold(true)
	highlightStyle = lipgloss.NewStyle().Foreground(gold)
)

const rule = "  ─────────────────────────────────────"

// PrintHeader prints the program banner.
func PrintHeader(version string) {
	fmt.Println()
	fmt.Println(titleStyle.Render("  LOREKEEP") + mutedStyle.Render(" v"+version))
	fmt.Println(mutedStyle.Render("  Session chat-log compression"))
	fmt.Println()
}

// PrintPassSummary prints the outcome of one compression pass.
func PrintPassSummary(a *archive.Archive, p *archive.Pass, elapsed time.Duration) {
	fmt.Println()
	fmt.Println(successStyle.Render("  ✓ Pass complete") +
		mutedStyle.Render("  "+formatDuration(elapsed)))
	fmt.Println(mutedStyle.Render(rule))
	printRow("Archive", a.ID)
	printRow("Messages", fmt.Sprintf("%d → %d entries", p.OriginalMessageCount, p.CompressedEntryCount))
	printRow("Ratio", fmt.Sprintf("%d%%", p.Ratio()))
	printRow("Encounters", fmt.Sprintf("%d", p.Statistics.Encounters))
	printRow("Key events", fmt.Sprintf("%d", p.Statistics.KeyEvents))
	fmt.Println(mutedStyle.Render(rule))
	fmt.Println()
}

// PrintStatistics prints an archive's statistics block.
func PrintStatistics(a *archive.Archive) {
	fmt.Println()
	fmt.Println(accentStyle.Render("▸ SESSION STATISTICS"))
	fmt.Println(mutedStyle.Render(rule))
	printRow("Session", a.SessionID)
	printRow("Started", formatMillis(a.SessionStart))
	printRow("Messages", fmt.Sprintf("%d", a.OriginalMessageCount))
	printRow("Entries", fmt.Sprintf("%d", a.CompressedEntryCount))
	printRow("Ratio", fmt.Sprintf("%d%%", a.CompressionRatio))
	printRow("Encounters", fmt.Sprintf("%d", a.Statistics.Encounters))
	printRow("Rolls", fmt.Sprintf("%d", a.Statistics.Rolls))
	printRow("Crit successes", fmt.Sprintf("%d", a.Statistics.CriticalSuccesses))
	printRow("Crit failures", fmt.Sprintf("%d", a.Statistics.CriticalFailures))
	printRow("Item transfers", fmt.Sprintf("%d", a.Statistics.ItemTransfers))
	printRow("XP events", fmt.Sprintf("%d", a.Statistics.XPEvents))
	fmt.Println(mutedStyle.Render(rule))
}

// PrintHighlights lists the archive's key-event entries.
func PrintHighlights(a *archive.Archive, limit int) {
	var highlights []archive.Entry
	for _, e := range a.Entries {
		if e.KeyEvent {
			highlights = append(highlights, e)
		}
	}

	fmt.Println()
	fmt.Println(accentStyle.Render("▸ HIGHLIGHTS") +
		mutedStyle.Render(fmt.Sprintf("  %d key events", len(highlights))))
	fmt.Println()

	if len(highlights) == 0 {
		fmt.Println(mutedStyle.Render("  (none)"))
		return
	}
	if limit > 0 && len(highlights) > limit {
		highlights = highlights[:limit]
	}
	for _, e := range highlights {
		fmt.Printf("  %s %s\n",
			mutedStyle.Render(formatMillis(e.Timestamp)),
			highlightStyle.Render(e.DisplayText))
	}
}

// PrintSearchResults prints index hits for a term.
func PrintSearchResults(term string, entries []archive.Entry) {
	fmt.Println()
	fmt.Println(accentStyle.Render("▸ SEARCH") + mutedStyle.Render("  "+term))
	fmt.Println()
	if len(entries) == 0 {
		fmt.Println(mutedStyle.Render("  No matches."))
		return
	}
	for _, e := range entries {
		marker := "•"
		if e.KeyEvent {
			marker = "★"
		}
		fmt.Printf("  %s %s %s\n",
			highlightStyle.Render(marker),
			mutedStyle.Render(formatMillis(e.Timestamp)),
			e.DisplayText)
	}
}

// PrintError prints a failure line.
func PrintError(err error) {
	fmt.Println(accentStyle.Render("  ✗ " + err.Error()))
}

func printRow(label, value string) {
	fmt.Printf("  %s %s\n",
		mutedStyle.Render(fmt.Sprintf("%-16s", label+":")),
		titleStyle.Render(value))
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return strings.Repeat(" ", 16)
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
