// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session manages the list of chat sessions and which one is
// active.
//
// Every change is saved right away through a storage.Backend under the
// keys chatSessions and currentSessionId. The Manager is also the
// Orchestrator's Persister.
//
// # Usage
//
//	mgr := session.NewManager(store, backend, session.Options{Logger: logger})
//	if err := mgr.Load(); err != nil {
//	    return err
//	}
//	id, _ := mgr.CreateSession()
package session
