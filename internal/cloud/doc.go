// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud talks to OpenAI-compatible chat completion APIs.
//
// # Key Types
//
//   - Client: Posts streaming completion requests and lists models
//   - Target: Endpoint and API key for one request
//   - Decoder: Turns a server-sent-events body into text deltas
//   - APIError: Non-2xx response with the server's message
//   - TransportError: The API could not be reached or read
//
// # Usage
//
//	client := cloud.NewClient(cloud.WithLogger(logger))
//	body, err := client.OpenStream(ctx, target, cloud.ChatRequest{
//		Model:    "gpt-4o-mini",
//		Messages: []cloud.ChatMessage{{Role: "user", Content: "Hello"}},
//		Stream:   true,
//	})
//	if err != nil {
//		return err
//	}
//	defer body.Close()
//
//	for delta, err := range cloud.NewDecoder(body).All() {
//		...
//	}
//
// # Logging
//
// Requests are logged as method, path, status and duration. Headers and
// bodies are never logged, and the API key only appears as a fingerprint.
package cloud
