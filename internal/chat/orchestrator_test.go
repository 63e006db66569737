// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/streamchat/internal/cloud"
	"github.com/jeranaias/streamchat/internal/config"
	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/transcript"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func sseFrame(content string) string {
	data, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"delta": map[string]any{"content": content}}},
	})
	return "data: " + string(data) + "\n\n"
}

const sseDone = "data: [DONE]\n\n"

func sseHandler(frames ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			_, _ = io.WriteString(w, f)
			if fl, ok := w.(http.Flusher); ok {
				fl.Flush()
			}
		}
	}
}

type harness struct {
	store    *transcript.Store
	settings *config.SettingsStore
	orch     *Orchestrator
	session  string
	persists atomic.Int32
}

func testSettings(endpoint string) config.Settings {
	return config.Settings{
		APIEndpoint:  endpoint,
		APIKey:       "sk-test",
		Model:        "test-model",
		SystemPrompt: "You are terse.",
	}
}

func newHarness(t *testing.T, endpoint string, completer Completer, tweak func(*Deps)) *harness {
	t.Helper()
	h := &harness{
		store:    transcript.NewStore(),
		settings: config.NewSettingsStore(testSettings(endpoint), nil),
	}
	sess := model.NewSession()
	require.NoError(t, h.store.AddSession(sess))
	h.session = sess.ID

	deps := Deps{
		Store:     h.store,
		Settings:  h.settings,
		Completer: completer,
		Persister: PersisterFunc(func(string) error {
			h.persists.Add(1)
			return nil
		}),
		RetryDelay: time.Millisecond,
	}
	if tweak != nil {
		tweak(&deps)
	}
	h.orch = New(deps)
	return h
}

func newServerHarness(t *testing.T, handler http.Handler, tweak func(*Deps)) *harness {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := cloud.NewClient(cloud.WithHTTPClient(srv.Client()))
	return newHarness(t, srv.URL+"/v1/", client, tweak)
}

func (h *harness) messages(t *testing.T) []model.Message {
	t.Helper()
	sess, err := h.store.Session(h.session)
	require.NoError(t, err)
	return sess.Messages
}

func (h *harness) lastMessage(t *testing.T) model.Message {
	t.Helper()
	msgs := h.messages(t)
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

// scriptedCompleter answers each call with the next scripted response.
type scriptedCompleter struct {
	mu        sync.Mutex
	responses []func(context.Context) (io.ReadCloser, error)
	requests  []cloud.ChatRequest
}

func (c *scriptedCompleter) OpenStream(ctx context.Context, _ cloud.Target, req cloud.ChatRequest) (io.ReadCloser, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	if len(c.responses) == 0 {
		c.mu.Unlock()
		return nil, errors.New("no scripted response")
	}
	next := c.responses[0]
	c.responses = c.responses[1:]
	c.mu.Unlock()
	return next(ctx)
}

func (c *scriptedCompleter) calls() []cloud.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]cloud.ChatRequest(nil), c.requests...)
}

func body(s string) func(context.Context) (io.ReadCloser, error) {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(s)), nil
	}
}

func fail(err error) func(context.Context) (io.ReadCloser, error) {
	return func(context.Context) (io.ReadCloser, error) {
		return nil, err
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestSend_RequestPayload(t *testing.T) {
	var (
		mu      sync.Mutex
		got     cloud.ChatRequest
		path    string
		headers http.Header
	)
	h := newServerHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		path = r.URL.Path
		headers = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&got)
		mu.Unlock()
		sseHandler(sseFrame("ok"), sseDone)(w, r)
	}), nil)

	require.NoError(t, h.orch.Send(context.Background(), h.session, "hello"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/v1/chat/completions", path)
	assert.Equal(t, "Bearer sk-test", headers.Get("Authorization"))
	assert.Equal(t, "text/event-stream", headers.Get("Accept"))
	assert.Equal(t, "test-model", got.Model)
	assert.True(t, got.Stream)
	assert.Nil(t, got.Temperature)
	assert.Equal(t, []cloud.ChatMessage{
		{Role: "system", Content: "You are terse."},
		{Role: "user", Content: "hello"},
	}, got.Messages)
}

func TestSend_StreamsDeltasIntoPlaceholder(t *testing.T) {
	h := newServerHarness(t, sseHandler(sseFrame("Hi"), sseFrame(" there"), sseDone), nil)

	var updates []string
	cancel := h.store.Subscribe(func(ev transcript.Event) {
		if ev.Kind == transcript.EventUpdated {
			updates = append(updates, ev.Message.Content)
		}
	})
	defer cancel()

	require.NoError(t, h.orch.Send(context.Background(), h.session, "hello"))

	msgs := h.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hi there", msgs[1].Content)
	assert.False(t, msgs[1].Open)

	assert.Equal(t, []string{"Hi", "Hi there"}, updates, "each update carries the full text so far")
	assert.False(t, h.orch.InFlight(h.session))
}

func TestSend_EmptyReplyUsesFallback(t *testing.T) {
	h := newServerHarness(t, sseHandler(sseDone), nil)

	require.NoError(t, h.orch.Send(context.Background(), h.session, "hello"))
	assert.Equal(t, FallbackReply, h.lastMessage(t).Content)
}

func TestSend_NetworkErrorThenRecovery(t *testing.T) {
	completer := &scriptedCompleter{responses: []func(context.Context) (io.ReadCloser, error){
		fail(&cloud.TransportError{Op: "request", Err: errors.New("connection refused")}),
		body(sseFrame("back online") + sseDone),
	}}
	h := newHarness(t, "https://api.example.com/v1", completer, nil)

	require.NoError(t, h.orch.Send(context.Background(), h.session, "first"))
	failed := h.lastMessage(t)
	assert.True(t, strings.HasPrefix(failed.Content, ErrorMarker), "got %q", failed.Content)
	assert.Contains(t, failed.Content, "connection refused")
	assert.False(t, failed.Open)

	require.NoError(t, h.orch.Send(context.Background(), h.session, "second"))
	assert.Equal(t, "back online", h.lastMessage(t).Content)

	// The second request carries the whole transcript, including the failure.
	reqs := completer.calls()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[1].Messages, 4)
	assert.Equal(t, "assistant", reqs[1].Messages[2].Role)
	assert.Equal(t, failed.Content, reqs[1].Messages[2].Content)
	assert.Equal(t, "second", reqs[1].Messages[3].Content)
}

func TestSend_RateLimitedIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	h := newServerHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"rate limited"}}`)
	}), func(d *Deps) { d.MaxRetries = 2 })

	require.NoError(t, h.orch.Send(context.Background(), h.session, "hello"))

	content := h.lastMessage(t).Content
	assert.Contains(t, content, "rate limited")
	assert.Equal(t, ErrorMarker+"API error (429): rate limited", content)
	assert.Equal(t, int32(1), hits.Load())
}

// =============================================================================
// RETRY TESTS
// =============================================================================

func TestSend_RetriesServerErrors(t *testing.T) {
	tests := []struct {
		name       string
		failures   int32
		maxRetries int
		wantHits   int32
		wantReply  string
	}{
		{name: "recovers within budget", failures: 2, maxRetries: 2, wantHits: 3, wantReply: "ok"},
		{name: "gives up after budget", failures: 5, maxRetries: 1, wantHits: 2, wantReply: ErrorMarker + "API error (503): overloaded"},
		{name: "retries disabled", failures: 1, maxRetries: 0, wantHits: 1, wantReply: ErrorMarker + "API error (503): overloaded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			h := newServerHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if hits.Add(1) <= tt.failures {
					w.WriteHeader(http.StatusServiceUnavailable)
					_, _ = io.WriteString(w, `{"error":{"message":"overloaded"}}`)
					return
				}
				sseHandler(sseFrame("ok"), sseDone)(w, r)
			}), func(d *Deps) { d.MaxRetries = tt.maxRetries })

			require.NoError(t, h.orch.Send(context.Background(), h.session, "hello"))
			assert.Equal(t, tt.wantReply, h.lastMessage(t).Content)
			assert.Equal(t, tt.wantHits, hits.Load())
		})
	}
}

func TestSend_AuthErrorIsNotRetried(t *testing.T) {
	completer := &scriptedCompleter{responses: []func(context.Context) (io.ReadCloser, error){
		fail(&cloud.APIError{Status: http.StatusUnauthorized, Message: "bad key"}),
		body(sseFrame("unreachable") + sseDone),
	}}
	h := newHarness(t, "https://api.example.com/v1", completer, func(d *Deps) { d.MaxRetries = 3 })

	require.NoError(t, h.orch.Send(context.Background(), h.session, "hello"))
	assert.Equal(t, ErrorMarker+"API error (401): bad key", h.lastMessage(t).Content)
	assert.Len(t, completer.calls(), 1)
}

// =============================================================================
// PRECONDITION TESTS
// =============================================================================

func TestSend_MissingAPIKeyLeavesTranscriptUntouched(t *testing.T) {
	completer := &scriptedCompleter{}
	h := newHarness(t, "https://api.example.com/v1", completer, nil)
	require.NoError(t, h.settings.Update(func(s *config.Settings) { s.APIKey = "   " }))

	err := h.orch.Send(context.Background(), h.session, "hello")

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %v", err)
	assert.Equal(t, "apiKey", cfgErr.Field)
	assert.Empty(t, h.messages(t))
	assert.Empty(t, completer.calls())
	assert.Equal(t, int32(0), h.persists.Load())
	assert.False(t, h.orch.InFlight(h.session))
}

func TestSend_Preconditions(t *testing.T) {
	h := newHarness(t, "https://api.example.com/v1", &scriptedCompleter{}, nil)

	assert.ErrorIs(t, h.orch.Send(context.Background(), h.session, "  \n\t"), ErrEmptyMessage)
	assert.Empty(t, h.messages(t))

	err := h.orch.Send(context.Background(), "no-such-session", "hello")
	var nf *transcript.NotFoundError
	assert.True(t, errors.As(err, &nf), "expected NotFoundError, got %v", err)
}

func TestSend_RejectsSecondSendWhileStreaming(t *testing.T) {
	pr, pw := io.Pipe()
	completer := &scriptedCompleter{responses: []func(context.Context) (io.ReadCloser, error){
		func(context.Context) (io.ReadCloser, error) { return pr, nil },
	}}
	h := newHarness(t, "https://api.example.com/v1", completer, nil)

	done := make(chan error, 1)
	go func() { done <- h.orch.Send(context.Background(), h.session, "first") }()

	_, err := io.WriteString(pw, sseFrame("partial"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		st, ok := h.orch.State(h.session)
		return ok && st.IsStreaming && st.AccumulatedText == "partial"
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, h.orch.InFlight(h.session))
	assert.ErrorIs(t, h.orch.Send(context.Background(), h.session, "second"), ErrSendInFlight)

	_, _ = io.WriteString(pw, sseFrame(" reply")+sseDone)
	require.NoError(t, pw.Close())
	require.NoError(t, <-done)

	msgs := h.messages(t)
	require.Len(t, msgs, 2, "the rejected send must not touch the transcript")
	assert.Equal(t, "partial reply", msgs[1].Content)

	_, ok := h.orch.State(h.session)
	assert.False(t, ok, "stream state ends with the send")
}

// =============================================================================
// LIFECYCLE TESTS
// =============================================================================

func TestSend_SessionDeletedMidStream(t *testing.T) {
	pr, pw := io.Pipe()
	completer := &scriptedCompleter{responses: []func(context.Context) (io.ReadCloser, error){
		func(context.Context) (io.ReadCloser, error) { return pr, nil },
	}}
	h := newHarness(t, "https://api.example.com/v1", completer, nil)

	done := make(chan error, 1)
	go func() { done <- h.orch.Send(context.Background(), h.session, "hello") }()

	_, err := io.WriteString(pw, sseFrame("Hi"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		st, ok := h.orch.State(h.session)
		return ok && st.AccumulatedText == "Hi"
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.store.RemoveSession(h.session))
	go func() {
		_, _ = io.WriteString(pw, sseFrame(" there")+sseDone)
		_ = pw.Close()
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("send did not stop after the session was removed")
	}
	assert.False(t, h.store.Has(h.session))
	assert.False(t, h.orch.InFlight(h.session))
}

func TestSend_CancelKeepsPartialAndMarksError(t *testing.T) {
	h := newServerHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sseFrame("Hi"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	unsubscribe := h.store.Subscribe(func(ev transcript.Event) {
		if ev.Kind == transcript.EventUpdated {
			cancel()
		}
	})
	defer unsubscribe()

	require.NoError(t, h.orch.Send(ctx, h.session, "hello"))

	last := h.lastMessage(t)
	assert.False(t, last.Open, "the placeholder is never left open")
	assert.True(t, strings.HasPrefix(last.Content, "Hi"), "got %q", last.Content)
	assert.Contains(t, last.Content, ErrorMarker+"Request cancelled.")
}

func TestSend_ThrottledPersistence(t *testing.T) {
	frames := make([]string, 0, 51)
	for i := 0; i < 50; i++ {
		frames = append(frames, sseFrame(fmt.Sprintf("%d ", i)))
	}
	frames = append(frames, sseDone)
	h := newServerHarness(t, sseHandler(frames...), func(d *Deps) { d.PersistInterval = time.Hour })

	require.NoError(t, h.orch.Send(context.Background(), h.session, "count"))

	// After the user message, once while streaming, and after finalizing.
	assert.Equal(t, int32(3), h.persists.Load())
	assert.True(t, strings.HasPrefix(h.lastMessage(t).Content, "0 1 2 "))
}

func TestSend_UsesSettingsSnapshot(t *testing.T) {
	h := (*harness)(nil)
	completer := &scriptedCompleter{}
	completer.responses = append(completer.responses, func(context.Context) (io.ReadCloser, error) {
		// Settings edited while the request is in flight.
		_ = h.settings.Update(func(s *config.Settings) { s.Model = "edited-model" })
		return io.NopCloser(strings.NewReader(sseFrame("ok") + sseDone)), nil
	}, body(sseFrame("ok")+sseDone))
	h = newHarness(t, "https://api.example.com/v1", completer, nil)

	require.NoError(t, h.orch.Send(context.Background(), h.session, "one"))
	require.NoError(t, h.orch.Send(context.Background(), h.session, "two"))

	reqs := completer.calls()
	require.Len(t, reqs, 2)
	assert.Equal(t, "test-model", reqs[0].Model)
	assert.Equal(t, "edited-model", reqs[1].Model)
}

func TestSend_ConcurrentSessions(t *testing.T) {
	h := newServerHarness(t, sseHandler(sseFrame("Hi"), sseFrame(" there"), sseDone), nil)

	ids := []string{h.session}
	for i := 0; i < 9; i++ {
		s := model.NewSession()
		require.NoError(t, h.store.AddSession(s))
		ids = append(ids, s.ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			errs <- h.orch.Send(context.Background(), id, "hello "+id)
		}(id)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	for _, id := range ids {
		sess, err := h.store.Session(id)
		require.NoError(t, err)
		require.Len(t, sess.Messages, 2)
		assert.Equal(t, "hello "+id, sess.Messages[0].Content)
		assert.Equal(t, "Hi there", sess.Messages[1].Content)
	}
}

// =============================================================================
// REQUEST BUILDING
// =============================================================================

func TestBuildRequest(t *testing.T) {
	temp := 0.7
	history := []model.Message{
		model.NewUserMessage("q1"),
		model.NewMessage(model.RoleAssistant, "a1"),
		model.NewSystemMessage("note"),
		model.NewUserMessage("q2"),
		model.NewAssistantPlaceholder(),
	}

	t.Run("with system prompt", func(t *testing.T) {
		s := testSettings("https://api.example.com")
		s.Temperature = &temp
		req := BuildRequest(s, history)

		roles := make([]string, 0, len(req.Messages))
		for _, m := range req.Messages {
			roles = append(roles, m.Role)
		}
		assert.Equal(t, []string{"system", "user", "assistant", "system", "user"}, roles)
		require.NotNil(t, req.Temperature)
		assert.InDelta(t, 0.7, *req.Temperature, 1e-9)
		assert.NotSame(t, s.Temperature, req.Temperature)
	})

	t.Run("empty system prompt is still sent first", func(t *testing.T) {
		s := testSettings("https://api.example.com")
		s.SystemPrompt = ""
		req := BuildRequest(s, []model.Message{model.NewUserMessage("hello")})
		assert.Equal(t, []cloud.ChatMessage{
			{Role: "system", Content: ""},
			{Role: "user", Content: "hello"},
		}, req.Messages)
	})
}

func TestFailureContent(t *testing.T) {
	apiErr := &cloud.APIError{Status: 500, Message: "boom"}
	assert.Equal(t, ErrorMarker+"API error (500): boom", failureContent("", apiErr))
	assert.Equal(t, "partial\n\n"+ErrorMarker+"Request timed out.",
		failureContent("partial", &cloud.StreamError{Partial: "partial", Err: context.DeadlineExceeded}))
}
