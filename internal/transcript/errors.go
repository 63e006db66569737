// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import "fmt"

// NotFoundError is returned when a session id is unknown.
type NotFoundError struct {
	SessionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.SessionID)
}

// Is makes errors.Is(err, &NotFoundError{}) match any session. A non-empty
// target id must match exactly.
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return t.SessionID == "" || t.SessionID == e.SessionID
}

// InvalidStateError reports a mutation that would break the transcript
// rules, such as updating a user message or opening a second stream.
type InvalidStateError struct {
	SessionID string
	Reason    string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid transcript state for session %s: %s", e.SessionID, e.Reason)
}

// Is matches any InvalidStateError.
func (e *InvalidStateError) Is(target error) bool {
	_, ok := target.(*InvalidStateError)
	return ok
}
