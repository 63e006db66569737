// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for sessions and messages.
//
// These are plain values. Mutation rules (append-only transcripts, a single
// open assistant message) are enforced by the transcript package, not here.
//
// # Key Types
//
//   - Session: One conversation with ordered messages and metadata
//   - Message: Single message with role, content and epoch-ms timestamp
//   - Role: Message role enumeration (user, assistant, system)
//   - StreamState: Ephemeral state of an in-flight response
//
// # Usage
//
//	sess := model.NewSession()
//	msg := model.NewUserMessage("Hello!")
//	sess.Title = model.TitleFromContent(msg.Content)
package model
