// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "strings"

// DefaultTitle is the title of a session that has no user message yet.
const DefaultTitle = "New chat"

// TitleMaxRunes is how many runes of the first user message make the title.
const TitleMaxRunes = 20

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session holds one conversation transcript with its metadata.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt int64     `json:"updatedAt"`
}

// NewSession creates an empty session with a generated ID.
func NewSession() Session {
	now := NowMillis()
	return Session{
		ID:        NewID(),
		Title:     DefaultTitle,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// LastMessage returns the most recent message.
func (s Session) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// OpenMessage returns the assistant message currently being streamed into.
func (s Session) OpenMessage() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Open {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

// MessageCount returns the number of messages.
func (s Session) MessageCount() int {
	return len(s.Messages)
}

// IsEmpty returns true if there are no messages.
func (s Session) IsEmpty() bool {
	return len(s.Messages) == 0
}

// Preview returns the first user message truncated for listings.
func (s Session) Preview(maxLen int) string {
	for _, msg := range s.Messages {
		if msg.Role == RoleUser && msg.Content != "" {
			return msg.Preview(maxLen)
		}
	}
	return ""
}

// Clone returns a deep copy. Messages are values, so copying the slice is
// enough.
func (s Session) Clone() Session {
	clone := s
	clone.Messages = make([]Message, len(s.Messages))
	copy(clone.Messages, s.Messages)
	return clone
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// TitleFromContent derives a session title from the first user message.
func TitleFromContent(content string) string {
	content = strings.TrimSpace(content)
	content = strings.ReplaceAll(content, "\r", "")
	content = strings.ReplaceAll(content, "\n", " ")
	if content == "" {
		return DefaultTitle
	}
	runes := []rune(content)
	if len(runes) > TitleMaxRunes {
		return string(runes[:TitleMaxRunes]) + "..."
	}
	return content
}

// =============================================================================
// STREAM STATE
// =============================================================================

// StreamState is the ephemeral state of one in-flight send. It is never
// persisted.
type StreamState struct {
	IsStreaming     bool
	AccumulatedText string
	LastError       string
}
