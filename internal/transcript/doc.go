// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transcript holds the in-memory session list and every message in
// it.
//
// The store is the only place message content changes. Messages are
// append-only; the one exception is the open assistant message, whose
// content is replaced wholesale while a response streams in and frozen when
// it is finalized.
//
// Every committed mutation produces an Event. Subscribers receive events in
// commit order, after the store lock is released, so a subscriber may read
// the store (or even mutate it) from its callback.
//
// # Usage
//
//	store := transcript.NewStore()
//	cancel := store.Subscribe(func(ev transcript.Event) {
//		if ev.Kind == transcript.EventUpdated {
//			redraw(ev.SessionID)
//		}
//	})
//	defer cancel()
package transcript
