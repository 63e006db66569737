// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/streamchat/internal/model"
)

func newStoreWithSession(t *testing.T) (*Store, string) {
	t.Helper()
	store := NewStore()
	sess := model.NewSession()
	require.NoError(t, store.AddSession(sess))
	return store, sess.ID
}

// =============================================================================
// APPEND TESTS
// =============================================================================

func TestAppendMessage_UnknownSession(t *testing.T) {
	store := NewStore()
	_, err := store.AppendMessage("missing", model.NewUserMessage("hi"))

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf), "expected NotFoundError, got %v", err)
	assert.Equal(t, "missing", nf.SessionID)
	assert.ErrorIs(t, err, &NotFoundError{})
}

func TestAppendMessage_ReturnsSnapshotAndDerivesTitle(t *testing.T) {
	store, id := newStoreWithSession(t)

	sess, err := store.AppendMessage(id, model.NewUserMessage("What is the capital of France?"))
	require.NoError(t, err)
	assert.Len(t, sess.Messages, 1)
	assert.Equal(t, "What is the capital ...", sess.Title)

	// The second user message must not rename the session.
	sess, err = store.AppendMessage(id, model.NewUserMessage("And Spain?"))
	require.NoError(t, err)
	assert.Equal(t, "What is the capital ...", sess.Title)

	// Mutating the snapshot does not touch the store.
	sess.Messages[0].Content = "tampered"
	stored, err := store.Session(id)
	require.NoError(t, err)
	assert.Equal(t, "What is the capital of France?", stored.Messages[0].Content)
}

func TestAppendMessage_SingleOpenMessage(t *testing.T) {
	store, id := newStoreWithSession(t)

	_, err := store.AppendMessage(id, model.NewAssistantPlaceholder())
	require.NoError(t, err)

	_, err = store.AppendMessage(id, model.NewAssistantPlaceholder())
	assert.ErrorIs(t, err, &InvalidStateError{})

	_, err = store.AppendMessage(id, model.NewUserMessage("interleaved"))
	assert.ErrorIs(t, err, &InvalidStateError{})
}

func TestAppendMessage_OnlyAssistantMayBeOpen(t *testing.T) {
	store, id := newStoreWithSession(t)

	msg := model.NewUserMessage("hi")
	msg.Open = true
	_, err := store.AppendMessage(id, msg)
	assert.ErrorIs(t, err, &InvalidStateError{})
}

// =============================================================================
// UPDATE / FINALIZE TESTS
// =============================================================================

func TestUpdateLastMessageContent(t *testing.T) {
	store, id := newStoreWithSession(t)
	_, err := store.AppendMessage(id, model.NewUserMessage("hi"))
	require.NoError(t, err)
	placeholder := model.NewAssistantPlaceholder()
	_, err = store.AppendMessage(id, placeholder)
	require.NoError(t, err)

	require.NoError(t, store.UpdateLastMessageContent(id, "Hi"))
	require.NoError(t, store.UpdateLastMessageContent(id, "Hi there"))

	sess, err := store.Session(id)
	require.NoError(t, err)
	last, _ := sess.LastMessage()
	assert.Equal(t, "Hi there", last.Content)
	assert.Equal(t, placeholder.ID, last.ID, "placeholder identity must be preserved")
	assert.True(t, last.Open)
}

func TestUpdateLastMessageContent_RejectsUserMessage(t *testing.T) {
	store, id := newStoreWithSession(t)
	_, err := store.AppendMessage(id, model.NewUserMessage("hi"))
	require.NoError(t, err)

	err = store.UpdateLastMessageContent(id, "overwrite")
	var invalid *InvalidStateError
	assert.True(t, errors.As(err, &invalid), "expected InvalidStateError, got %v", err)
}

func TestUpdateLastMessageContent_EmptySession(t *testing.T) {
	store, id := newStoreWithSession(t)
	assert.ErrorIs(t, store.UpdateLastMessageContent(id, "x"), &InvalidStateError{})
}

func TestUpdateAfterFinalize_IsNoop(t *testing.T) {
	store, id := newStoreWithSession(t)
	_, err := store.AppendMessage(id, model.NewAssistantPlaceholder())
	require.NoError(t, err)

	require.NoError(t, store.FinalizeLastMessage(id, "final"))
	require.NoError(t, store.UpdateLastMessageContent(id, "late delta"))

	sess, err := store.Session(id)
	require.NoError(t, err)
	last, _ := sess.LastMessage()
	assert.Equal(t, "final", last.Content)
	assert.False(t, last.Open)
}

func TestFinalizeLastMessage_Idempotent(t *testing.T) {
	store, id := newStoreWithSession(t)
	_, err := store.AppendMessage(id, model.NewAssistantPlaceholder())
	require.NoError(t, err)

	var finalized int
	cancel := store.Subscribe(func(ev Event) {
		if ev.Kind == EventFinalized {
			finalized++
		}
	})
	defer cancel()

	require.NoError(t, store.FinalizeLastMessage(id, "done"))
	require.NoError(t, store.FinalizeLastMessage(id, "done"))
	require.NoError(t, store.FinalizeLastMessage(id, "different"))

	sess, err := store.Session(id)
	require.NoError(t, err)
	last, _ := sess.LastMessage()
	assert.Equal(t, "done", last.Content)
	assert.Equal(t, 1, finalized, "only the first finalize should publish")

	// With the stream closed, new messages may be appended again.
	_, err = store.AppendMessage(id, model.NewUserMessage("next"))
	assert.NoError(t, err)
}

// =============================================================================
// SESSION TESTS
// =============================================================================

func TestAddSession_PrependsAndRejectsDuplicates(t *testing.T) {
	store := NewStore()
	a, b := model.NewSession(), model.NewSession()
	require.NoError(t, store.AddSession(a))
	require.NoError(t, store.AddSession(b))

	sessions := store.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, b.ID, sessions[0].ID)
	assert.Equal(t, a.ID, sessions[1].ID)

	assert.ErrorIs(t, store.AddSession(a), &InvalidStateError{})
}

func TestRemoveSession(t *testing.T) {
	store, id := newStoreWithSession(t)
	require.NoError(t, store.RemoveSession(id))
	assert.False(t, store.Has(id))
	assert.ErrorIs(t, store.RemoveSession(id), &NotFoundError{SessionID: id})

	// Deltas for a removed session surface as NotFoundError.
	assert.ErrorIs(t, store.UpdateLastMessageContent(id, "x"), &NotFoundError{})
}

func TestMoveSession(t *testing.T) {
	store := NewStore()
	var ids []string
	for i := 0; i < 4; i++ {
		s := model.NewSession()
		require.NoError(t, store.AddSession(s))
		ids = append([]string{s.ID}, ids...)
	}

	require.NoError(t, store.MoveSession(0, 2))
	want := []string{ids[1], ids[2], ids[0], ids[3]}
	var got []string
	for _, s := range store.Sessions() {
		got = append(got, s.ID)
	}
	assert.Equal(t, want, got)

	assert.Error(t, store.MoveSession(0, 4))
	assert.Error(t, store.MoveSession(-1, 0))
}

func TestReset_ClosesOpenMessages(t *testing.T) {
	store := NewStore()
	sess := model.NewSession()
	sess.Messages = append(sess.Messages, model.NewAssistantPlaceholder())

	store.Reset([]model.Session{sess, sess})

	require.Equal(t, 1, store.Len(), "duplicate ids are dropped")
	got, err := store.Session(sess.ID)
	require.NoError(t, err)
	_, open := got.OpenMessage()
	assert.False(t, open)
}

// =============================================================================
// EVENT TESTS
// =============================================================================

func TestSubscribe_EventsInOrder(t *testing.T) {
	store, id := newStoreWithSession(t)

	var kinds []EventKind
	cancel := store.Subscribe(func(ev Event) {
		kinds = append(kinds, ev.Kind)
	})

	_, _ = store.AppendMessage(id, model.NewUserMessage("hi"))
	_, _ = store.AppendMessage(id, model.NewAssistantPlaceholder())
	_ = store.UpdateLastMessageContent(id, "a")
	_ = store.FinalizeLastMessage(id, "ab")
	cancel()
	cancel()
	_ = store.RenameSession(id, "after cancel")

	assert.Equal(t, []EventKind{EventAppended, EventAppended, EventUpdated, EventFinalized}, kinds)
}

func TestSubscribe_FanOutInRegistrationOrder(t *testing.T) {
	store, id := newStoreWithSession(t)

	var got []int
	var cancels []func()
	for i := 0; i < 8; i++ {
		cancels = append(cancels, store.Subscribe(func(Event) { got = append(got, i) }))
	}
	cancels[3]()

	_, err := store.AppendMessage(id, model.NewUserMessage("hi"))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 4, 5, 6, 7}, got)

	// Cancelling twice is harmless and keeps the order.
	cancels[3]()
	cancels[0]()
	got = nil
	require.NoError(t, store.RenameSession(id, "renamed"))
	assert.Equal(t, []int{1, 2, 4, 5, 6, 7}, got)
}

func TestSubscribe_CallbackMayReadAndMutate(t *testing.T) {
	store, id := newStoreWithSession(t)

	var seen []string
	store.Subscribe(func(ev Event) {
		// Reading from inside a callback must not deadlock.
		sess, err := store.Session(ev.SessionID)
		if err == nil {
			seen = append(seen, ev.Kind.String()+":"+sess.Title)
		}
		if ev.Kind == EventAppended && ev.Message.Role == model.RoleUser {
			_ = store.RenameSession(id, "renamed")
		}
	})

	_, err := store.AppendMessage(id, model.NewUserMessage("hello"))
	require.NoError(t, err)

	// The rename made inside the first callback is delivered after it, not
	// nested within it.
	assert.Equal(t, []string{"appended:hello", "session_renamed:renamed"}, seen)
}

func TestStore_ConcurrentReadsDuringStreaming(t *testing.T) {
	store, id := newStoreWithSession(t)
	_, err := store.AppendMessage(id, model.NewAssistantPlaceholder())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_, _ = store.Session(id)
				_ = store.Sessions()
			}
		}()
	}

	text := ""
	for i := 0; i < 200; i++ {
		text += "x"
		require.NoError(t, store.UpdateLastMessageContent(id, text))
	}
	wg.Wait()

	sess, err := store.Session(id)
	require.NoError(t, err)
	last, _ := sess.LastMessage()
	assert.Len(t, last.Content, 200)
}
