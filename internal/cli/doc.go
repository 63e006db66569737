// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli assembles the chat core and runs one of two hosts: the
// full-screen terminal UI or a line-oriented REPL for pipes and dumb
// terminals.
package cli
