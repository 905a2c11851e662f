package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
	"github.com/wesm/minutes/internal/query"
)

// padRight pads a string with spaces to reach the specified visual width.
func padRight(s string, width int) string {
	sw := lipgloss.Width(s)
	if sw >= width {
		// Use ANSI-aware truncation
		return ansi.Truncate(s, width, "")
	}
	return s + strings.Repeat(" ", width-sw)
}

// truncateRunes truncates a string to fit within maxWidth terminal cells.
// Uses runewidth to correctly handle full-width characters (CJK, emoji, etc.)
// that occupy 2 terminal cells but count as 1 rune.
// Also sanitizes the string by removing newlines and other control characters
// that could break the display layout.
func truncateRunes(s string, maxWidth int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\t", " ")

	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// wrapText wraps text to fit within width terminal cells.
func wrapText(text string, width int) []string {
	if width <= 0 {
		width = 80
	}

	var result []string
	for _, line := range strings.Split(text, "\n") {
		if runewidth.StringWidth(line) <= width {
			result = append(result, line)
			continue
		}

		runes := []rune(line)
		for len(runes) > 0 {
			currentWidth, breakAt, lastSpace := 0, 0, -1
			for i, r := range runes {
				rw := runewidth.RuneWidth(r)
				if currentWidth+rw > width {
					break
				}
				currentWidth += rw
				breakAt = i + 1
				if r == ' ' {
					lastSpace = i
				}
			}

			// Prefer breaking at a space if we found one in the latter half
			if lastSpace > breakAt/2 && breakAt < len(runes) {
				breakAt = lastSpace
			}
			if breakAt == 0 {
				breakAt = 1
			}

			result = append(result, string(runes[:breakAt]))
			runes = runes[breakAt:]
			for len(runes) > 0 && runes[0] == ' ' {
				runes = runes[1:]
			}
		}
	}
	return result
}

// truncateToWidth returns the prefix of s that fits within maxWidth visual columns.
func truncateToWidth(s string, maxWidth int) string {
	return ansi.Truncate(s, maxWidth, "")
}

// skipToWidth returns the suffix of s starting after skipWidth visual columns.
func skipToWidth(s string, skipWidth int) string {
	return ansi.Cut(s, skipWidth, 10000)
}

// formatDate renders a calendar date, or "-" when unknown.
func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(query.DateLayout)
}

// orDash substitutes "-" for blank strings.
func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
