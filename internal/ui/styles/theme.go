// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/jeranaias/streamchat/internal/config"
)

// Theme holds all the styled components for the application.
// Colors are resolved once for the chosen background, so a forced
// dark or light mode wins over terminal detection.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile
	Primary      lipgloss.Color

	// Layout
	Header    lipgloss.Style
	StatusBar lipgloss.Style
	Muted     lipgloss.Style
	ErrorText lipgloss.Style

	// Session list
	Sidebar       lipgloss.Style
	SessionItem   lipgloss.Style
	SessionActive lipgloss.Style
	SessionMeta   lipgloss.Style

	// Transcript
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemLabel    lipgloss.Style
	Timestamp      lipgloss.Style
	Body           lipgloss.Style
	Streaming      lipgloss.Style

	// Input
	InputBorder lipgloss.Style
	ShortcutKey lipgloss.Style
}

// NewTheme builds a theme from the [theme] config section, detecting the
// terminal background when DarkMode is "auto".
func NewTheme(cfg config.Theme) *Theme {
	return newTheme(cfg, termenv.ColorProfile(), termenv.HasDarkBackground)
}

func newTheme(cfg config.Theme, profile termenv.Profile, detectDark func() bool) *Theme {
	primary := strings.TrimSpace(cfg.PrimaryColor)
	if !IsHexColor(primary) {
		primary = DefaultPrimary
	}
	t := &Theme{
		IsDark:       ResolveDark(cfg.DarkMode, detectDark),
		ColorProfile: profile,
		Primary:      lipgloss.Color(primary),
	}
	t.initStyles()
	return t
}

// ResolveDark maps "dark", "light" and "auto" to a background choice.
func ResolveDark(mode string, detectDark func() bool) bool {
	switch strings.ToLower(mode) {
	case "dark":
		return true
	case "light":
		return false
	default:
		return detectDark != nil && detectDark()
	}
}

// GlamourStyle names the glamour style matching the background.
func (t *Theme) GlamourStyle() string {
	if t.IsDark {
		return "dark"
	}
	return "light"
}

func (t *Theme) pick(c lipgloss.AdaptiveColor) lipgloss.Color {
	if t.IsDark {
		return lipgloss.Color(c.Dark)
	}
	return lipgloss.Color(c.Light)
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(t.Primary).
		Background(t.pick(SurfaceDim)).
		Padding(0, 1)

	t.StatusBar = lipgloss.NewStyle().
		Foreground(t.pick(TextSecondary)).
		Background(t.pick(SurfaceDim)).
		Padding(0, 1)

	t.Muted = lipgloss.NewStyle().Foreground(t.pick(TextMuted))
	t.ErrorText = lipgloss.NewStyle().Foreground(t.pick(Rose)).Bold(true)

	t.Sidebar = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderRight(true).
		BorderForeground(t.pick(Border)).
		PaddingRight(1)
	t.SessionItem = lipgloss.NewStyle().Foreground(t.pick(TextPrimary))
	t.SessionActive = lipgloss.NewStyle().
		Bold(true).
		Foreground(t.Primary).
		Background(t.pick(SelectionBg))
	t.SessionMeta = lipgloss.NewStyle().Foreground(t.pick(TextMuted)).Italic(true)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(t.Primary)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(t.pick(Purple))
	t.SystemLabel = lipgloss.NewStyle().Bold(true).Foreground(t.pick(Amber))
	t.Timestamp = lipgloss.NewStyle().Foreground(t.pick(TextMuted))
	t.Body = lipgloss.NewStyle().Foreground(t.pick(TextPrimary))
	t.Streaming = lipgloss.NewStyle().Foreground(t.pick(Emerald)).Italic(true)

	t.InputBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(t.Primary)
	t.ShortcutKey = lipgloss.NewStyle().Bold(true).Foreground(t.Primary)
}
