// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/jeranaias/streamchat/internal/config"
	"github.com/jeranaias/streamchat/internal/transcript"
)

// =============================================================================
// STORE BRIDGE
// =============================================================================

// StoreEventsMsg carries a batch of transcript events into Update.
// Settings is set when the settings changed since the last batch, from the
// config watcher or a reset.
type StoreEventsMsg struct {
	Events   []transcript.Event
	Settings *config.Settings
}

// FrameMsg is a frame tick with nothing to render.
type FrameMsg struct{}

// ScrollTickMsg drives the auto-scroll controller.
type ScrollTickMsg struct {
	Time time.Time
}

// =============================================================================
// SEND LIFECYCLE
// =============================================================================

// SendDoneMsg reports that a send finished. Err is nil for replies that
// ended in the transcript, including failed requests that were recorded
// as an error message.
type SendDoneMsg struct {
	SessionID string
	Err       error
}

// ExportDoneMsg reports the result of an export.
type ExportDoneMsg struct {
	Path string
	Err  error
}
