// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/key"
)

// =============================================================================
// KEY MAP DEFINITION
// =============================================================================

// KeyMap defines all keyboard bindings for the chat interface.
type KeyMap struct {
	Submit      key.Binding
	Newline     key.Binding
	Cancel      key.Binding
	NewSession  key.Binding
	Delete      key.Binding
	PrevSession key.Binding
	NextSession key.Binding
	MoveUp      key.Binding
	MoveDown    key.Binding
	PageUp      key.Binding
	PageDown    key.Binding
	Export      key.Binding
	Quit        key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Newline: key.NewBinding(
			key.WithKeys("alt+enter", "ctrl+j"),
			key.WithHelp("alt+enter", "newline"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "stop reply"),
		),
		NewSession: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("C-n", "new chat"),
		),
		Delete: key.NewBinding(
			key.WithKeys("ctrl+d"),
			key.WithHelp("C-d", "delete chat"),
		),
		PrevSession: key.NewBinding(
			key.WithKeys("ctrl+up"),
			key.WithHelp("C-up", "previous chat"),
		),
		NextSession: key.NewBinding(
			key.WithKeys("ctrl+down"),
			key.WithHelp("C-down", "next chat"),
		),
		MoveUp: key.NewBinding(
			key.WithKeys("alt+up"),
			key.WithHelp("M-up", "move chat up"),
		),
		MoveDown: key.NewBinding(
			key.WithKeys("alt+down"),
			key.WithHelp("M-down", "move chat down"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("PgUp", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("PgDn", "scroll down"),
		),
		Export: key.NewBinding(
			key.WithKeys("ctrl+e"),
			key.WithHelp("C-e", "export markdown"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("C-c", "quit"),
		),
	}
}

// ShortHelp returns the bindings shown in the status bar.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.NewSession, k.Delete, k.PrevSession, k.NextSession, k.Cancel, k.Quit}
}

// FullHelp returns every binding, grouped.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.Newline, k.Cancel},
		{k.NewSession, k.Delete, k.PrevSession, k.NextSession, k.MoveUp, k.MoveDown},
		{k.PageUp, k.PageDown, k.Export, k.Quit},
	}
}
