// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides key/value persistence for streamchat.
//
// The session manager and settings store write opaque JSON blobs under a
// handful of well-known keys. Any Backend can hold them.
//
// # Key Types
//
//   - Backend: Save, Load and Clear over string keys
//   - File: One file per key under a directory, written atomically
//   - SQLite: A single kv table in a pure-Go SQLite database
//   - Memory: In-process map, used by tests and --check runs
//
// # Usage
//
//	backend, err := storage.Open(storage.Options{Kind: "file", Path: dir})
//	if err != nil {
//		return err
//	}
//	defer storage.Close(backend)
//
//	data, err := backend.Load(storage.KeySessions)
//	if errors.Is(err, storage.ErrNotFound) {
//		// first run
//	}
//
// # Storage Location
//
// By default blobs live in ~/.streamchat/data/.
package storage
