// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat runs a chat request from the user's text to a finalized
// assistant reply.
//
// An Orchestrator appends the user message, reserves an open assistant
// message, streams the completion into it and closes it. Request failures
// end up in the transcript as a reply starting with ErrorMarker, so the
// session stays usable for the next send.
//
//	orch := chat.New(chat.Deps{
//	    Store:     store,
//	    Settings:  settings,
//	    Completer: cloud.NewClient(),
//	    Persister: manager,
//	})
//	err := orch.Send(ctx, sessionID, "hello")
package chat
