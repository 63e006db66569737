// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"testing"
	"time"

	"github.com/mattn/go-runewidth"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{"fits", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"cut", "hello world", 8, "hello w…"},
		{"zero width", "hello", 0, ""},
		{"newlines flattened", "a\nb", 10, "a b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.in, tt.width); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
			}
		})
	}
}

func TestTruncateWideRunes(t *testing.T) {
	got := truncate("新对话新对话新对话", 7)
	if w := runewidth.StringWidth(got); w > 7 {
		t.Errorf("truncate produced width %d (%q), want <= 7", w, got)
	}
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	tests := []struct {
		name string
		ms   int64
		want string
	}{
		{"unset", 0, "never"},
		{"seconds", now.Add(-10 * time.Second).UnixMilli(), "just now"},
		{"minutes", now.Add(-5 * time.Minute).UnixMilli(), "5 minutes ago"},
		{"hours", now.Add(-3 * time.Hour).UnixMilli(), "3 hours ago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := relativeTime(tt.ms, now); got != tt.want {
				t.Errorf("relativeTime() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatClock(t *testing.T) {
	if formatClock(0) != "" {
		t.Error("zero timestamp should format empty")
	}
	ts := time.Date(2025, 3, 14, 15, 9, 26, 0, time.Local).UnixMilli()
	if got := formatClock(ts); got != "15:09" {
		t.Errorf("formatClock() = %q, want 15:09", got)
	}
}
