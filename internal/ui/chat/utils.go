// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/streamchat/internal/util"
)

// =============================================================================
// FORMATTING UTILITIES
// =============================================================================

// formatClock formats an epoch-millisecond timestamp as HH:MM.
func formatClock(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return time.UnixMilli(ms).Format("15:04")
}

// relativeTime formats an epoch-millisecond timestamp relative to now,
// e.g. "3 minutes ago".
func relativeTime(ms int64, now time.Time) string {
	if ms <= 0 {
		return "never"
	}
	then := time.UnixMilli(ms)
	if now.Sub(then) < time.Minute {
		return "just now"
	}
	return humanize.RelTime(then, now, "ago", "from now")
}

// =============================================================================
// WIDTH HELPERS
// =============================================================================

// displayWidth returns the terminal cell width of s, ignoring ANSI styling.
func displayWidth(s string) int {
	return lipgloss.Width(s)
}

// truncate cuts s to at most width cells, ending with an ellipsis when cut.
// Wide runes (CJK, emoji) count as two cells.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = util.SingleLine(s)
	if util.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// padRight pads s with spaces to width cells.
func padRight(s string, width int) string {
	return util.PadRight(s, width)
}

// wrap soft-wraps text to width cells.
func wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	return lipgloss.NewStyle().Width(width).Render(text)
}
