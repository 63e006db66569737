// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	core "github.com/jeranaias/streamchat/internal/chat"
	"github.com/jeranaias/streamchat/internal/model"
)

// =============================================================================
// MAIN VIEW
// =============================================================================

// View renders the chat screen.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	transcript := lipgloss.JoinVertical(lipgloss.Left,
		m.vp.View(),
		m.theme.InputBorder.Render(m.input.View()),
	)
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderSidebar(),
		transcript,
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderStatusBar(),
	)
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	title := model.DefaultTitle
	if sess, ok := m.deps.Manager.Active(); ok {
		title = sess.Title
	}

	left := fmt.Sprintf("streamchat · %s · %s", m.settings.Model, title)
	right := ""
	if m.deps.Orchestrator.InFlight(m.deps.Manager.ActiveID()) {
		right = "streaming..."
	}

	gap := m.width - displayWidth(left) - displayWidth(right) - 2
	line := left
	if gap > 0 {
		line = left + strings.Repeat(" ", gap) + right
	}
	return m.theme.Header.Render(truncate(line, max(1, m.width-2)))
}

// =============================================================================
// SESSION LIST
// =============================================================================

func (m Model) renderSidebar() string {
	width := m.sidebarWidth()
	active := m.deps.Manager.ActiveID()
	now := m.now()

	var b strings.Builder
	for _, sess := range m.deps.Manager.Sessions() {
		marker := "  "
		if m.deps.Orchestrator.InFlight(sess.ID) {
			marker = m.theme.Streaming.Render("● ")
		}
		title := truncate(sess.Title, width-3)
		meta := truncate(fmt.Sprintf("%d msgs · %s", sess.MessageCount(), relativeTime(sess.UpdatedAt, now)), width-3)

		if sess.ID == active {
			b.WriteString(marker + m.theme.SessionActive.Render(padRight(title, width-3)))
		} else {
			b.WriteString(marker + m.theme.SessionItem.Render(title))
		}
		b.WriteString("\n  " + m.theme.SessionMeta.Render(meta) + "\n")
	}

	return m.theme.Sidebar.
		Width(width).
		Height(max(1, m.height-headerLines-statusLines)).
		Render(strings.TrimRight(b.String(), "\n"))
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// renderTranscript renders every message of a session for the viewport.
func (m *Model) renderTranscript(sessionID string) string {
	sess, err := m.deps.Store.Session(sessionID)
	if err != nil {
		return ""
	}
	if sess.IsEmpty() {
		return m.theme.Muted.Render("Start the conversation below.")
	}

	width := max(10, m.vp.Width-2)
	parts := make([]string, 0, len(sess.Messages))
	for _, msg := range sess.Messages {
		parts = append(parts, m.renderMessage(msg, width))
	}
	return strings.Join(parts, "\n\n")
}

func (m *Model) renderMessage(msg model.Message, width int) string {
	label := m.roleLabel(msg.Role).Render(msg.Role.DisplayName())
	if m.settings.ShowTimestamp {
		label += " " + m.theme.Timestamp.Render(formatClock(msg.Timestamp))
	}
	return label + "\n" + m.renderBody(msg, width)
}

func (m *Model) renderBody(msg model.Message, width int) string {
	switch {
	case msg.Open && (msg.Content == "" || !m.settings.EnableStreaming):
		return m.theme.Streaming.Render("thinking...")
	case msg.Open:
		return wrap(msg.Content, width) + m.theme.Streaming.Render(" ▍")
	case msg.Role == model.RoleAssistant && strings.Contains(msg.Content, core.ErrorMarker):
		return m.theme.ErrorText.Render(wrap(msg.Content, width))
	case msg.Role == model.RoleAssistant && m.settings.EnableMarkdown:
		return m.markdown.render(msg.ID, msg.Content)
	default:
		return m.theme.Body.Render(wrap(msg.Content, width))
	}
}

func (m Model) roleLabel(role model.Role) lipgloss.Style {
	switch role {
	case model.RoleUser:
		return m.theme.UserLabel
	case model.RoleAssistant:
		return m.theme.AssistantLabel
	default:
		return m.theme.SystemLabel
	}
}

// =============================================================================
// STATUS BAR
// =============================================================================

func (m Model) renderStatusBar() string {
	width := max(1, m.width-2)
	if m.status != "" {
		text := truncate(m.status, width)
		if m.statusErr {
			return m.theme.StatusBar.Render(m.theme.ErrorText.Render(text))
		}
		return m.theme.StatusBar.Render(text)
	}

	hints := make([]string, 0, len(m.keys.ShortHelp()))
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		hints = append(hints, m.theme.ShortcutKey.Render(h.Key)+" "+h.Desc)
	}
	return m.theme.StatusBar.Render(truncate(strings.Join(hints, "  "), width))
}
