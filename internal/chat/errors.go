// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyMessage is returned when the user text is blank.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrSendInFlight is returned when a send is already running for the
	// session. The second send is rejected, not queued.
	ErrSendInFlight = errors.New("a reply is already streaming for this session")
)

// ConfigurationError means the settings cannot produce a request. Send
// returns it before touching the transcript.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// Is matches any *ConfigurationError.
func (e *ConfigurationError) Is(target error) bool {
	_, ok := target.(*ConfigurationError)
	return ok
}
