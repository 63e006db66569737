// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
)

// =============================================================================
// CANCEL FUNCTION MANAGEMENT (THREAD-SAFE)
// =============================================================================

// cancelManager holds one cancel function per session with a send in
// flight. It is shared by pointer because Bubble Tea copies the Model on
// every Update.
type cancelManager struct {
	mu      sync.Mutex
	parent  context.Context
	cancels map[string]context.CancelFunc
}

func newCancelManager(parent context.Context) *cancelManager {
	if parent == nil {
		parent = context.Background()
	}
	return &cancelManager{
		parent:  parent,
		cancels: make(map[string]context.CancelFunc),
	}
}

// start derives the context for a send into sessionID.
func (cm *cancelManager) start(sessionID string) context.Context {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if prev, ok := cm.cancels[sessionID]; ok {
		prev()
	}
	ctx, cancel := context.WithCancel(cm.parent)
	cm.cancels[sessionID] = cancel
	return ctx
}

// cancel aborts the send into sessionID. Safe when none is running.
func (cm *cancelManager) cancel(sessionID string) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	fn, ok := cm.cancels[sessionID]
	if ok {
		fn()
		delete(cm.cancels, sessionID)
	}
	return ok
}

// done releases the context of a finished send.
func (cm *cancelManager) done(sessionID string) {
	cm.cancel(sessionID)
}

// cancelAll aborts every running send.
func (cm *cancelManager) cancelAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for id, fn := range cm.cancels {
		fn()
		delete(cm.cancels, id)
	}
}
