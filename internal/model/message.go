// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for sessions and messages.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

const (
	// ErrorMarker prefixes the content of a reply that failed.
	ErrorMarker = "❌ "

	// InterruptedNotice closes a reply that was still streaming when the
	// program stopped.
	InterruptedNotice = "Reply interrupted."
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a session.
//
// Content is mutable only while Open is true. Once the message is finalized
// it never changes again.
type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds

	// Open marks the assistant placeholder currently being streamed into.
	// It is saved so a reply cut off by a crash can be recognized on load.
	Open bool `json:"streaming,omitempty"`
}

// CloseInterrupted finalizes an open message left over from an earlier run,
// keeping any partial text above an error line. It reports whether msg was
// open.
func (m *Message) CloseInterrupted() bool {
	if !m.Open {
		return false
	}
	line := ErrorMarker + InterruptedNotice
	if strings.TrimSpace(m.Content) == "" {
		m.Content = line
	} else {
		m.Content += "\n\n" + line
	}
	m.Open = false
	return true
}

// NewMessage creates a finalized message with a generated ID.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		Timestamp: NowMillis(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewAssistantPlaceholder creates the empty, open assistant message that a
// stream writes into.
func NewAssistantPlaceholder() Message {
	msg := NewMessage(RoleAssistant, "")
	msg.Open = true
	return msg
}

// Time returns the message timestamp as a time.Time.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// IsEmpty returns true if the message has no content.
func (m Message) IsEmpty() bool {
	return m.Content == ""
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// NewID returns a new opaque identifier.
func NewID() string {
	return uuid.NewString()
}

// NowMillis returns the current time in epoch milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
