// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import "github.com/jeranaias/streamchat/internal/model"

// EventKind identifies the mutation an Event describes.
type EventKind int

const (
	EventAppended EventKind = iota + 1
	EventUpdated
	EventFinalized
	EventSessionAdded
	EventSessionRemoved
	EventSessionRenamed
	EventReordered
	EventReset
)

func (k EventKind) String() string {
	switch k {
	case EventAppended:
		return "appended"
	case EventUpdated:
		return "updated"
	case EventFinalized:
		return "finalized"
	case EventSessionAdded:
		return "session_added"
	case EventSessionRemoved:
		return "session_removed"
	case EventSessionRenamed:
		return "session_renamed"
	case EventReordered:
		return "reordered"
	case EventReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Event describes one committed mutation.
//
// Message is set for message events and holds the message as it was right
// after the mutation. SessionID is empty for EventReordered and EventReset.
type Event struct {
	Kind      EventKind
	SessionID string
	Message   model.Message
}
