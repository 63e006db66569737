// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across streamchat.
//
// # Key Functions
//
//   - AtomicWriteFile: Crash-safe file writing with fsync and rename
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth: Display-width truncation for terminal columns
//   - SingleLine: Collapse multi-line text for list rows
//
// # Usage
//
//	err := util.AtomicWriteFile(path, data, 0o600)
//	row := util.TruncateWidth(util.SingleLine(title), 24)
package util
