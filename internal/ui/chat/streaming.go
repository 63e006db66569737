// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/streamchat/internal/config"
	"github.com/jeranaias/streamchat/internal/transcript"
)

// =============================================================================
// EVENT BUFFER
// =============================================================================

// EventBuffer collects transcript events from the store's subscriber and
// hands them to the Bubble Tea loop in batches.
//
// Consecutive EventUpdated events for the same session collapse into the
// newest one, so a fast stream costs one re-render per frame instead of one
// per delta.
//
// Write is called from whichever goroutine mutated the store; Flush runs on
// the Bubble Tea loop. All operations hold mu.
type EventBuffer struct {
	mu        sync.Mutex
	events    []transcript.Event
	settings  *config.Settings
	lastFlush time.Time

	batchSize  int           // events that force a flush
	minFlushMs time.Duration // 1000/maxFPS
}

const (
	defaultBatchSize = 15
	defaultMaxFPS    = 30
)

// NewEventBuffer creates a buffer flushing at 30 frames per second or every
// 15 events.
func NewEventBuffer() *EventBuffer {
	return NewEventBufferWithConfig(defaultBatchSize, defaultMaxFPS)
}

// NewEventBufferWithConfig creates a buffer with custom thresholds.
func NewEventBufferWithConfig(batchSize, maxFPS int) *EventBuffer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if maxFPS <= 0 || maxFPS > 60 {
		maxFPS = defaultMaxFPS
	}
	return &EventBuffer{
		batchSize:  batchSize,
		minFlushMs: time.Second / time.Duration(maxFPS),
		lastFlush:  time.Now(),
	}
}

// Write queues an event. It never blocks on the UI.
func (b *EventBuffer) Write(ev transcript.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ev.Kind == transcript.EventUpdated && len(b.events) > 0 {
		last := &b.events[len(b.events)-1]
		if last.Kind == transcript.EventUpdated && last.SessionID == ev.SessionID {
			*last = ev
			return
		}
	}
	b.events = append(b.events, ev)
}

// WriteSettings queues a settings change. Only the newest one is kept.
func (b *EventBuffer) WriteSettings(s config.Settings) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settings = &s
}

// Flush returns the queued batch once the batch size or frame interval is
// reached.
func (b *EventBuffer) Flush() (StoreEventsMsg, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == 0 && b.settings == nil {
		return StoreEventsMsg{}, false
	}
	if len(b.events) < b.batchSize && time.Since(b.lastFlush) < b.minFlushMs {
		return StoreEventsMsg{}, false
	}
	return b.drainLocked(), true
}

// ForceFlush returns everything queued regardless of thresholds.
func (b *EventBuffer) ForceFlush() (StoreEventsMsg, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == 0 && b.settings == nil {
		return StoreEventsMsg{}, false
	}
	return b.drainLocked(), true
}

// Pending returns the number of queued events.
func (b *EventBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Interval returns the frame interval.
func (b *EventBuffer) Interval() time.Duration {
	return b.minFlushMs
}

func (b *EventBuffer) drainLocked() StoreEventsMsg {
	msg := StoreEventsMsg{Events: b.events, Settings: b.settings}
	b.events = nil
	b.settings = nil
	b.lastFlush = time.Now()
	return msg
}

// =============================================================================
// TICK COMMANDS
// =============================================================================

// frameTickCmd delivers the buffered events as a StoreEventsMsg, or a bare
// FrameMsg when nothing is due.
func frameTickCmd(b *EventBuffer) tea.Cmd {
	return tea.Tick(b.Interval(), func(time.Time) tea.Msg {
		if msg, ok := b.Flush(); ok {
			return msg
		}
		return FrameMsg{}
	})
}

// scrollTickCmd drives the auto-scroll controller.
func scrollTickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return ScrollTickMsg{Time: t}
	})
}
