// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	core "github.com/jeranaias/streamchat/internal/chat"
	"github.com/jeranaias/streamchat/internal/config"
	"github.com/jeranaias/streamchat/internal/logging"
	"github.com/jeranaias/streamchat/internal/scroll"
	"github.com/jeranaias/streamchat/internal/session"
	"github.com/jeranaias/streamchat/internal/transcript"
	"github.com/jeranaias/streamchat/internal/ui/styles"
)

// =============================================================================
// LAYOUT
// =============================================================================

const (
	maxSidebarWidth = 30
	minSidebarWidth = 16
	inputLines      = 3
	headerLines     = 1
	statusLines     = 1
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Deps is everything the chat view drives. All fields except Logger and
// Context are required.
type Deps struct {
	Store        *transcript.Store
	Manager      *session.Manager
	Orchestrator *core.Orchestrator
	Settings     *config.SettingsStore
	Scroll       scroll.Options
	ExportDir    string
	Logger       *log.Logger

	// Context is the parent of every send; cancelling it aborts them all.
	Context context.Context
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat screen: a session list, the
// active transcript and an input area.
//
// Everything shared with other goroutines sits behind pointers, since
// Bubble Tea copies the Model on every Update.
type Model struct {
	deps   Deps
	logger *log.Logger
	keys   KeyMap

	settings config.Settings
	theme    *styles.Theme
	markdown *markdownRenderer

	vp       *viewport.Model
	input    textarea.Model
	scroller *scroll.Controller
	events   *EventBuffer
	cancels  *cancelManager
	unsubs   []func()

	// shownID is the session currently rendered in the viewport.
	shownID string

	width, height int
	ready         bool
	status        string
	statusErr     bool

	now func() time.Time
}

// New creates the chat model and subscribes it to the transcript store and
// the settings store. Call Close when the program exits.
func New(deps Deps) Model {
	settings := deps.Settings.Snapshot()
	keys := DefaultKeyMap()

	vp := viewport.New(0, 0)
	vpPtr := &vp

	input := textarea.New()
	input.Placeholder = "Type a message..."
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.SetHeight(inputLines)
	input.KeyMap.InsertNewline.SetKeys(keys.Newline.Keys()...)
	input.Focus()

	events := NewEventBuffer()
	m := Model{
		deps:     deps,
		logger:   logging.OrDiscard(deps.Logger),
		keys:     keys,
		settings: settings,
		theme:    styles.NewTheme(settings.Theme),
		vp:       vpPtr,
		input:    input,
		scroller: scroll.NewController(scroll.BubbleViewport{VP: vpPtr}, deps.Scroll),
		events:   events,
		cancels:  newCancelManager(deps.Context),
		now:      time.Now,
	}
	m.markdown = newMarkdownRenderer(m.theme.GlamourStyle())

	m.unsubs = append(m.unsubs,
		deps.Store.Subscribe(events.Write),
		deps.Settings.Subscribe(events.WriteSettings),
	)
	return m
}

// Init starts the cursor blink and the frame and scroll ticks.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		frameTickCmd(m.events),
		scrollTickCmd(m.scroller.Interval()),
	)
}

// Close cancels running sends and drops the store subscriptions.
func (m Model) Close() {
	m.cancels.cancelAll()
	for _, unsub := range m.unsubs {
		unsub()
	}
}

// Status returns the status line text and whether it is an error.
func (m Model) Status() (string, bool) {
	return m.status, m.statusErr
}

// Settings returns the settings the view renders with.
func (m Model) Settings() config.Settings {
	return m.settings
}

func (m *Model) setStatus(text string) {
	m.status = text
	m.statusErr = false
}

func (m *Model) setError(text string) {
	m.status = text
	m.statusErr = true
}

// layout sizes the viewport and input for the window.
func (m *Model) layout() {
	sidebar := m.sidebarWidth()
	contentWidth := max(10, m.width-sidebar-1)

	m.vp.Width = contentWidth
	m.vp.Height = max(1, m.height-headerLines-statusLines-inputLines-2)
	m.input.SetWidth(max(10, contentWidth-2))
	m.markdown.setWidth(contentWidth - 2)
}

func (m Model) sidebarWidth() int {
	return max(minSidebarWidth, min(maxSidebarWidth, m.width/4))
}
