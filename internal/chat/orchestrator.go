// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/jeranaias/streamchat/internal/cloud"
	"github.com/jeranaias/streamchat/internal/config"
	"github.com/jeranaias/streamchat/internal/logging"
	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/transcript"
)

const (
	// ErrorMarker prefixes the content of a reply that failed.
	ErrorMarker = model.ErrorMarker

	// FallbackReply replaces a reply that finished without any text.
	FallbackReply = "Sorry, I could not understand your question."

	// DefaultPersistInterval throttles saves while a reply streams in.
	DefaultPersistInterval = 500 * time.Millisecond

	// DefaultRetryDelay is the first backoff step between attempts.
	DefaultRetryDelay = 500 * time.Millisecond
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// SettingsProvider hands out settings snapshots.
type SettingsProvider interface {
	Snapshot() config.Settings
}

// Completer opens a streaming completion. *cloud.Client implements it.
type Completer interface {
	OpenStream(ctx context.Context, target cloud.Target, req cloud.ChatRequest) (io.ReadCloser, error)
}

// Persister saves a session after it changed. *session.Manager implements it.
type Persister interface {
	Persist(sessionID string) error
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(sessionID string) error

// Persist calls f.
func (f PersisterFunc) Persist(sessionID string) error { return f(sessionID) }

// Deps are the Orchestrator's collaborators.
type Deps struct {
	Store     *transcript.Store
	Settings  SettingsProvider
	Completer Completer
	Persister Persister   // optional
	Logger    *log.Logger // optional

	// MaxRetries is how many extra attempts a request gets before the
	// first response byte. Zero disables retries.
	MaxRetries int
	// PersistInterval defaults to DefaultPersistInterval.
	PersistInterval time.Duration
	// RetryDelay defaults to DefaultRetryDelay.
	RetryDelay time.Duration
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator runs the request lifecycle: it records the user's message,
// reserves an assistant placeholder, streams the reply into it and
// finalizes it, persisting along the way.
type Orchestrator struct {
	store           *transcript.Store
	settings        SettingsProvider
	completer       Completer
	persister       Persister
	logger          *log.Logger
	maxRetries      int
	persistInterval time.Duration
	retryDelay      time.Duration

	mu     sync.Mutex
	states map[string]*model.StreamState
}

// New creates an Orchestrator. Store, Settings and Completer are required.
func New(deps Deps) *Orchestrator {
	o := &Orchestrator{
		store:           deps.Store,
		settings:        deps.Settings,
		completer:       deps.Completer,
		persister:       deps.Persister,
		logger:          logging.OrDiscard(deps.Logger),
		maxRetries:      deps.MaxRetries,
		persistInterval: deps.PersistInterval,
		retryDelay:      deps.RetryDelay,
		states:          make(map[string]*model.StreamState),
	}
	if o.maxRetries < 0 {
		o.maxRetries = 0
	}
	if o.persistInterval <= 0 {
		o.persistInterval = DefaultPersistInterval
	}
	if o.retryDelay <= 0 {
		o.retryDelay = DefaultRetryDelay
	}
	if o.persister == nil {
		o.persister = PersisterFunc(func(string) error { return nil })
	}
	return o
}

// Send appends userText to the session and streams the assistant's reply
// into the transcript. It blocks until the reply is finalized.
//
// Errors returned before anything was written: ErrEmptyMessage,
// ErrSendInFlight, *ConfigurationError and *transcript.NotFoundError.
// Failures of the request itself are recorded in the reply, which starts
// with ErrorMarker, and Send returns nil.
func (o *Orchestrator) Send(ctx context.Context, sessionID, userText string) error {
	text := strings.TrimSpace(userText)
	if text == "" {
		return ErrEmptyMessage
	}
	if !o.begin(sessionID) {
		return ErrSendInFlight
	}
	defer o.end(sessionID)

	settings := o.settings.Snapshot()
	if !settings.HasAPIKey() {
		return &ConfigurationError{Field: "apiKey", Message: "no API key is configured"}
	}
	if !o.store.Has(sessionID) {
		return &transcript.NotFoundError{SessionID: sessionID}
	}

	snap, err := o.store.AppendMessage(sessionID, model.NewUserMessage(text))
	if err != nil {
		return fmt.Errorf("append user message: %w", err)
	}
	o.persist(sessionID)

	if _, err := o.store.AppendMessage(sessionID, model.NewAssistantPlaceholder()); err != nil {
		if o.gone(err) {
			o.logger.Info("session removed before the reply started", "session", sessionID)
			return nil
		}
		o.logger.Error("could not open assistant reply", "session", sessionID, "err", err)
		return fmt.Errorf("append assistant placeholder: %w", err)
	}

	o.setState(sessionID, &model.StreamState{IsStreaming: true})
	req := BuildRequest(settings, snap.Messages)
	target := cloud.Target{Endpoint: settings.APIEndpoint, APIKey: settings.APIKey}

	content, aborted, streamErr := o.stream(ctx, sessionID, target, req)
	if aborted {
		return nil
	}

	o.finishState(sessionID, streamErr)
	if streamErr != nil {
		o.logger.Warn("reply failed", "session", sessionID, "err", streamErr)
		content = failureContent(content, streamErr)
	} else if content == "" {
		content = FallbackReply
	}

	if err := o.store.FinalizeLastMessage(sessionID, content); err != nil {
		if o.gone(err) {
			o.logger.Info("session removed while streaming", "session", sessionID)
			return nil
		}
		o.logger.Error("could not finalize reply", "session", sessionID, "err", err)
		return fmt.Errorf("finalize reply: %w", err)
	}
	o.persist(sessionID)
	return nil
}

// stream opens the request and writes each accumulated delta into the
// placeholder. aborted is true when the session disappeared and nothing
// more should be written.
func (o *Orchestrator) stream(ctx context.Context, sessionID string, target cloud.Target, req cloud.ChatRequest) (content string, aborted bool, streamErr error) {
	body, err := o.open(ctx, target, req)
	if err != nil {
		return "", false, err
	}
	defer body.Close()

	throttle := &rate.Sometimes{Interval: o.persistInterval}
	dec := cloud.NewDecoder(body, cloud.WithDecoderLogger(o.logger))

	var acc strings.Builder
	for delta, err := range dec.All() {
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return acc.String(), false, &cloud.StreamError{Partial: acc.String(), Err: err}
		}

		acc.WriteString(delta)
		text := acc.String()
		o.updateState(sessionID, text)

		if err := o.store.UpdateLastMessageContent(sessionID, text); err != nil {
			if o.gone(err) {
				o.logger.Info("session removed while streaming, dropping reply", "session", sessionID)
				return text, true, nil
			}
			o.logger.Error("could not apply delta", "session", sessionID, "err", err)
			return text, false, err
		}
		throttle.Do(func() { o.persist(sessionID) })
	}

	// Some transports end the body quietly on cancel.
	if err := ctx.Err(); err != nil {
		return acc.String(), false, err
	}
	return acc.String(), false, nil
}

// open issues the request, retrying transport failures and 5xx responses
// with exponential backoff. Nothing is retried once a body is returned.
func (o *Orchestrator) open(ctx context.Context, target cloud.Target, req cloud.ChatRequest) (io.ReadCloser, error) {
	attempt := 0
	op := func() (io.ReadCloser, error) {
		attempt++
		body, err := o.completer.OpenStream(ctx, target, req)
		if err == nil {
			return body, nil
		}
		if !cloud.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		o.logger.Warn("request failed", "attempt", attempt, "max_attempts", o.maxRetries+1, "err", err)
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.retryDelay
	b.MaxInterval = 10 * o.retryDelay

	body, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(o.maxRetries+1)),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		return nil, err
	}
	return body, nil
}

// BuildRequest assembles the payload: the system prompt, even when blank,
// then the transcript with roles kept. Open messages are never sent.
func BuildRequest(s config.Settings, history []model.Message) cloud.ChatRequest {
	messages := make([]cloud.ChatMessage, 0, len(history)+1)
	messages = append(messages, cloud.ChatMessage{Role: string(model.RoleSystem), Content: s.SystemPrompt})
	for _, m := range history {
		if m.Open {
			continue
		}
		messages = append(messages, cloud.ChatMessage{Role: string(m.Role), Content: m.Content})
	}

	req := cloud.ChatRequest{
		Model:    s.Model,
		Messages: messages,
		Stream:   true,
	}
	if s.Temperature != nil {
		t := *s.Temperature
		req.Temperature = &t
	}
	return req
}

// failureContent is the text a failed reply is finalized with. Text that
// already arrived is kept above the error line.
func failureContent(partial string, err error) string {
	line := ErrorMarker + describe(err)
	if strings.TrimSpace(partial) == "" {
		return line
	}
	return partial + "\n\n" + line
}

func describe(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "Request cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out."
	}
	var streamErr *cloud.StreamError
	if errors.As(err, &streamErr) {
		return streamErr.Err.Error()
	}
	return err.Error()
}

func (o *Orchestrator) gone(err error) bool {
	var nf *transcript.NotFoundError
	return errors.As(err, &nf)
}

func (o *Orchestrator) persist(sessionID string) {
	if err := o.persister.Persist(sessionID); err != nil {
		o.logger.Warn("could not save session", "session", sessionID, "err", err)
	}
}

// =============================================================================
// STREAM STATE
// =============================================================================

// State returns the stream state of a running send.
func (o *Orchestrator) State(sessionID string) (model.StreamState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.states[sessionID]
	if !ok || st == nil {
		return model.StreamState{}, false
	}
	return *st, true
}

// InFlight reports whether a send is running for the session.
func (o *Orchestrator) InFlight(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.states[sessionID]
	return ok
}

// begin claims the session. The nil entry marks a send whose reply has not
// started yet.
func (o *Orchestrator) begin(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.states[sessionID]; busy {
		return false
	}
	o.states[sessionID] = nil
	return true
}

func (o *Orchestrator) end(sessionID string) {
	o.mu.Lock()
	delete(o.states, sessionID)
	o.mu.Unlock()
}

func (o *Orchestrator) setState(sessionID string, st *model.StreamState) {
	o.mu.Lock()
	o.states[sessionID] = st
	o.mu.Unlock()
}

func (o *Orchestrator) updateState(sessionID, text string) {
	o.mu.Lock()
	if st := o.states[sessionID]; st != nil {
		st.AccumulatedText = text
	}
	o.mu.Unlock()
}

func (o *Orchestrator) finishState(sessionID string, err error) {
	o.mu.Lock()
	if st := o.states[sessionID]; st != nil {
		st.IsStreaming = false
		if err != nil {
			st.LastError = err.Error()
		}
	}
	o.mu.Unlock()
}
