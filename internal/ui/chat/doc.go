// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the Bubble Tea chat screen for streamchat.

The screen shows the session list on the left, the active transcript in a
viewport, and a multi-line input below it.

# Data Flow

The model never edits the transcript itself. Sends run the Orchestrator in
a tea.Cmd; the Orchestrator writes into the transcript store, and the
store's subscriber feeds an EventBuffer. A 30fps frame tick drains the
buffer into StoreEventsMsg, so a fast stream costs one re-render per frame.
Settings changes from the config watcher travel the same way.

# Auto-Scroll

Growth of the active transcript notifies a scroll.Controller, which a
separate tick evaluates. The view follows new output only while the user
is near the bottom.

# Keys

	enter       send
	alt+enter   newline
	esc         stop the streaming reply
	ctrl+n      new chat
	ctrl+d      delete chat
	ctrl+up     previous chat
	ctrl+down   next chat
	alt+up      move chat up
	alt+down    move chat down
	ctrl+e      export chat as markdown
	ctrl+c      quit

# Usage

	m := chat.New(chat.Deps{
		Store:        store,
		Manager:      mgr,
		Orchestrator: orch,
		Settings:     settings,
	})
	defer m.Close()
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
*/
package chat
