// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling for the streamchat terminal UI.
//
// A Theme is built from the [theme] config section. The primary color
// accents headers, the active session and user labels. DarkMode "auto"
// asks termenv whether the terminal background is dark; "dark" and
// "light" force the choice.
package styles
