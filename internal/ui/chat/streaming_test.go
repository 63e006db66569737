// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"testing"
	"time"

	"github.com/jeranaias/streamchat/internal/config"
	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/transcript"
)

// =============================================================================
// EVENT BUFFER TESTS
// =============================================================================

func updated(session, content string) transcript.Event {
	return transcript.Event{
		Kind:      transcript.EventUpdated,
		SessionID: session,
		Message:   model.Message{Content: content},
	}
}

func TestNewEventBuffer(t *testing.T) {
	b := NewEventBuffer()
	if got, want := b.Interval(), time.Second/30; got != want {
		t.Errorf("Interval() = %v, want %v", got, want)
	}
	if b.Pending() != 0 {
		t.Errorf("new buffer has %d pending events", b.Pending())
	}
}

func TestEventBufferConfigClamp(t *testing.T) {
	b := NewEventBufferWithConfig(0, 500)
	if b.batchSize != defaultBatchSize {
		t.Errorf("batchSize = %d, want %d", b.batchSize, defaultBatchSize)
	}
	if b.Interval() != time.Second/defaultMaxFPS {
		t.Errorf("Interval() = %v", b.Interval())
	}
}

func TestEventBufferCoalescesUpdates(t *testing.T) {
	b := NewEventBuffer()
	b.Write(updated("a", "H"))
	b.Write(updated("a", "Hi"))
	b.Write(updated("a", "Hi there"))

	if b.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", b.Pending())
	}
	msg, ok := b.ForceFlush()
	if !ok {
		t.Fatal("ForceFlush() returned nothing")
	}
	if msg.Events[0].Message.Content != "Hi there" {
		t.Errorf("kept %q, want the newest update", msg.Events[0].Message.Content)
	}
}

func TestEventBufferKeepsOrderAcrossKinds(t *testing.T) {
	b := NewEventBuffer()
	b.Write(updated("a", "x"))
	b.Write(updated("b", "y"))
	b.Write(transcript.Event{Kind: transcript.EventFinalized, SessionID: "a"})
	b.Write(updated("a", "z"))

	msg, _ := b.ForceFlush()
	if len(msg.Events) != 4 {
		t.Fatalf("got %d events, want 4", len(msg.Events))
	}
	if msg.Events[2].Kind != transcript.EventFinalized {
		t.Errorf("events reordered: %v", msg.Events)
	}
}

func TestEventBufferFlushBySize(t *testing.T) {
	b := NewEventBufferWithConfig(3, 1) // 1fps so time never triggers

	b.Write(transcript.Event{Kind: transcript.EventAppended, SessionID: "a"})
	b.Write(transcript.Event{Kind: transcript.EventAppended, SessionID: "a"})
	if _, ok := b.Flush(); ok {
		t.Error("flushed before batch size")
	}

	b.Write(transcript.Event{Kind: transcript.EventAppended, SessionID: "a"})
	msg, ok := b.Flush()
	if !ok || len(msg.Events) != 3 {
		t.Errorf("Flush() = %d events, %v; want 3, true", len(msg.Events), ok)
	}
	if b.Pending() != 0 {
		t.Error("buffer not empty after flush")
	}
}

func TestEventBufferFlushByTime(t *testing.T) {
	b := NewEventBufferWithConfig(100, 60)
	b.Write(transcript.Event{Kind: transcript.EventAppended, SessionID: "a"})

	time.Sleep(2 * b.Interval())
	if _, ok := b.Flush(); !ok {
		t.Error("expected a time-based flush")
	}
}

func TestEventBufferSettings(t *testing.T) {
	b := NewEventBuffer()
	b.WriteSettings(config.Settings{Model: "a"})
	b.WriteSettings(config.Settings{Model: "b"})

	msg, ok := b.ForceFlush()
	if !ok || msg.Settings == nil {
		t.Fatal("settings change not flushed")
	}
	if msg.Settings.Model != "b" {
		t.Errorf("Settings.Model = %q, want newest", msg.Settings.Model)
	}
	if _, ok := b.ForceFlush(); ok {
		t.Error("second flush should be empty")
	}
}
