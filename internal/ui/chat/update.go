// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	core "github.com/jeranaias/streamchat/internal/chat"
	"github.com/jeranaias/streamchat/internal/export"
	"github.com/jeranaias/streamchat/internal/transcript"
	"github.com/jeranaias/streamchat/internal/ui/styles"
)

// =============================================================================
// COMMAND CREATORS
// =============================================================================

// sendCmd runs one send to completion off the UI loop. Progress reaches the
// view through store events; the result arrives as SendDoneMsg.
func sendCmd(o *core.Orchestrator, ctx context.Context, sessionID, text string) tea.Cmd {
	return func() tea.Msg {
		err := o.Send(ctx, sessionID, text)
		return SendDoneMsg{SessionID: sessionID, Err: err}
	}
}

func (m Model) exportCmd(sessionID string) tea.Cmd {
	mgr, dir := m.deps.Manager, m.deps.ExportDir
	return func() tea.Msg {
		path, err := mgr.ExportToFile(sessionID, export.FormatMarkdown, dir)
		return ExportDoneMsg{Path: path, Err: err}
	}
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles all Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.layout()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StoreEventsMsg:
		m.applyEvents(msg)
		return m, frameTickCmd(m.events)

	case FrameMsg:
		return m, frameTickCmd(m.events)

	case ScrollTickMsg:
		m.scroller.Tick()
		return m, scrollTickCmd(m.scroller.Interval())

	case SendDoneMsg:
		m.cancels.done(msg.SessionID)
		if batch, ok := m.events.ForceFlush(); ok {
			m.applyEvents(batch)
		}
		m.handleSendResult(msg)
		return m, nil

	case ExportDoneMsg:
		if msg.Err != nil {
			m.setError("Export failed: " + msg.Err.Error())
		} else {
			m.setStatus("Exported to " + msg.Path)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancels.cancelAll()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.Cancel):
		if m.cancels.cancel(m.deps.Manager.ActiveID()) {
			m.setStatus("Reply stopped")
		}
		return m, nil

	case key.Matches(msg, m.keys.NewSession):
		if _, err := m.deps.Manager.CreateSession(); err != nil {
			m.setError(err.Error())
		}
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		id := m.deps.Manager.ActiveID()
		m.cancels.cancel(id)
		if err := m.deps.Manager.DeleteSession(id); err != nil {
			m.setError(err.Error())
		} else {
			m.setStatus("Chat deleted")
		}
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.PrevSession):
		m.selectRelative(-1)
		return m, nil

	case key.Matches(msg, m.keys.NextSession):
		m.selectRelative(1)
		return m, nil

	case key.Matches(msg, m.keys.MoveUp):
		m.moveActive(-1)
		return m, nil

	case key.Matches(msg, m.keys.MoveDown):
		m.moveActive(1)
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.vp.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.vp.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Export):
		return m, m.exportCmd(m.deps.Manager.ActiveID())
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the input to the active session.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	id := m.deps.Manager.ActiveID()

	if m.deps.Orchestrator.InFlight(id) {
		m.setError("A reply is still streaming. Press esc to stop it.")
		return m, nil
	}
	// Checked here too so the typed text survives a missing key.
	if !m.deps.Settings.Snapshot().HasAPIKey() {
		m.setError(missingKeyText)
		return m, nil
	}

	m.input.Reset()
	m.setStatus("")
	m.vp.GotoBottom()
	ctx := m.cancels.start(id)
	return m, sendCmd(m.deps.Orchestrator, ctx, id, text)
}

const missingKeyText = "No API key configured. Set [api] key in the config file or STREAMCHAT_API_KEY."

func (m *Model) handleSendResult(msg SendDoneMsg) {
	var cfgErr *core.ConfigurationError
	switch {
	case msg.Err == nil:
	case errors.Is(msg.Err, core.ErrSendInFlight):
		m.setError("A reply is still streaming. Press esc to stop it.")
	case errors.As(msg.Err, &cfgErr):
		m.setError(missingKeyText)
	case errors.Is(msg.Err, core.ErrEmptyMessage):
	default:
		m.logger.Warn("send failed", "session", msg.SessionID, "err", msg.Err)
		m.setError(msg.Err.Error())
	}
}

// =============================================================================
// SESSION NAVIGATION
// =============================================================================

func (m *Model) activeIndex() int {
	active := m.deps.Manager.ActiveID()
	for i, s := range m.deps.Manager.Sessions() {
		if s.ID == active {
			return i
		}
	}
	return -1
}

func (m *Model) selectRelative(delta int) {
	sessions := m.deps.Manager.Sessions()
	i := m.activeIndex() + delta
	if i < 0 || i >= len(sessions) {
		return
	}
	if err := m.deps.Manager.SelectSession(sessions[i].ID); err != nil {
		m.setError(err.Error())
	}
	m.refresh()
}

func (m *Model) moveActive(delta int) {
	from := m.activeIndex()
	to := from + delta
	if from < 0 || to < 0 || to >= len(m.deps.Manager.Sessions()) {
		return
	}
	if err := m.deps.Manager.ReorderSessions(from, to); err != nil {
		m.setError(fmt.Sprintf("move chat: %v", err))
	}
	m.refresh()
}

// =============================================================================
// STORE EVENTS
// =============================================================================

// applyEvents re-renders when a batch touches what is on screen, and tells
// the scroll controller when the active transcript grew.
func (m *Model) applyEvents(batch StoreEventsMsg) {
	if batch.Settings != nil {
		m.settings = *batch.Settings
		m.theme = styles.NewTheme(m.settings.Theme)
		m.markdown.setStyle(m.theme.GlamourStyle())
	}

	active := m.deps.Manager.ActiveID()
	grew := false
	for _, ev := range batch.Events {
		switch ev.Kind {
		case transcript.EventAppended, transcript.EventUpdated, transcript.EventFinalized:
			if ev.SessionID == active {
				grew = true
			}
		}
	}

	m.refresh()
	if grew {
		m.scroller.Notify()
	}
}

// refresh re-renders the active transcript into the viewport. Switching to
// another session jumps to its bottom.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	active := m.deps.Manager.ActiveID()
	m.vp.SetContent(m.renderTranscript(active))
	if active != m.shownID {
		m.shownID = active
		m.vp.GotoBottom()
		m.scroller.Reset()
	}
}
