// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/streamchat/internal/cloud"
)

// fakeServer answers /models and streams reply from /chat/completions.
func fakeServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/models"):
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"object":"list","data":[{"id":"test-model","object":"model","created":1,"owned_by":"x"},{"id":"other","object":"model","created":1,"owned_by":"x"}]}`)
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			w.Header().Set("Content-Type", "text/event-stream")
			for _, word := range strings.SplitAfter(reply, " ") {
				fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", word)
			}
			io.WriteString(w, "data: [DONE]\n\n")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// writeConfig writes a TOML config using in-memory storage and returns its
// path.
func writeConfig(t *testing.T, endpoint, key string) string {
	t.Helper()
	for _, env := range []string{"STREAMCHAT_API_KEY", "STREAMCHAT_API_ENDPOINT", "STREAMCHAT_MODEL", "STREAMCHAT_STORAGE_BACKEND", "STREAMCHAT_LOG_LEVEL"} {
		t.Setenv(env, "")
	}
	t.Setenv("HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "config.toml")
	body := fmt.Sprintf(`[api]
endpoint = %q
key = %q
model = "test-model"

[chat]
enable_streaming = true
enable_markdown = false
max_retries = 0

[storage]
backend = "memory"

[log]
level = "error"
`, endpoint, key)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newTestApp(t *testing.T, endpoint, key string) *App {
	t.Helper()
	app, err := NewApp(Options{
		ConfigPath:    writeConfig(t, endpoint, key),
		LogOutput:     io.Discard,
		ClientOptions: []cloud.Option{cloud.WithHTTPClient(http.DefaultClient)},
	})
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return app
}

func newTestREPL(t *testing.T, app *App) (*REPL, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	r := NewREPL(app, &out, &errOut, false)
	t.Cleanup(r.Close)
	return r, &out, &errOut
}
