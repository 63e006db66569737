// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"sync"

	"github.com/jeranaias/streamchat/internal/model"
)

// Store is the ordered set of sessions and their messages.
// It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	order    []string

	// subs is kept in registration order, so every event reaches
	// subscribers in the order they subscribed.
	subs    []subscriber
	nextSub int

	// Events committed but not yet delivered, and whether some goroutine is
	// already delivering them.
	pending  []Event
	flushing bool
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*model.Session),
	}
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Subscribe registers fn for every future event and returns a function that
// removes it. Calling the cancel function more than once is harmless.
func (s *Store) Subscribe(fn func(Event)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.subs = removeSubscriber(s.subs, id)
			s.mu.Unlock()
		})
	}
}

type subscriber struct {
	id int
	fn func(Event)
}

// removeSubscriber returns a copy of subs without id, in the same order.
func removeSubscriber(subs []subscriber, id int) []subscriber {
	out := make([]subscriber, 0, len(subs))
	for _, sub := range subs {
		if sub.id != id {
			out = append(out, sub)
		}
	}
	return out
}

// emit queues an event. Caller holds s.mu.
func (s *Store) emit(ev Event) {
	s.pending = append(s.pending, ev)
}

// flush delivers queued events outside the lock. If another goroutine is
// already flushing, it picks up our events, which keeps delivery in commit
// order.
func (s *Store) flush() {
	s.mu.Lock()
	if s.flushing {
		s.mu.Unlock()
		return
	}
	s.flushing = true
	for len(s.pending) > 0 {
		events := s.pending
		s.pending = nil
		subs := make([]func(Event), 0, len(s.subs))
		for _, sub := range s.subs {
			subs = append(subs, sub.fn)
		}
		s.mu.Unlock()

		for _, ev := range events {
			for _, fn := range subs {
				fn(ev)
			}
		}

		s.mu.Lock()
	}
	s.flushing = false
	s.mu.Unlock()
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// AppendMessage appends msg to the session and returns a snapshot of the
// updated session.
//
// An empty ID or zero timestamp is filled in. Only assistant messages may be
// open, and nothing may be appended while a message is open. The first user
// message names a session that still has the default title.
func (s *Store) AppendMessage(sessionID string, msg model.Message) (model.Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return model.Session{}, &NotFoundError{SessionID: sessionID}
	}
	if msg.Open && msg.Role != model.RoleAssistant {
		s.mu.Unlock()
		return model.Session{}, &InvalidStateError{SessionID: sessionID, Reason: "only assistant messages can stream"}
	}
	if _, open := sess.OpenMessage(); open {
		s.mu.Unlock()
		return model.Session{}, &InvalidStateError{SessionID: sessionID, Reason: "a message is already streaming"}
	}

	if msg.ID == "" {
		msg.ID = model.NewID()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = model.NowMillis()
	}
	if msg.Role == model.RoleUser && sess.Title == model.DefaultTitle && !hasUserMessage(sess) {
		sess.Title = model.TitleFromContent(msg.Content)
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = model.NowMillis()

	snapshot := sess.Clone()
	s.emit(Event{Kind: EventAppended, SessionID: sessionID, Message: msg})
	s.mu.Unlock()

	s.flush()
	return snapshot, nil
}

// UpdateLastMessageContent replaces the content of the session's last
// message, which must be an assistant message.
//
// Once that message is finalized its content is frozen and the call is a
// no-op, so a late delta can never corrupt a finished reply.
func (s *Store) UpdateLastMessageContent(sessionID, content string) error {
	s.mu.Lock()
	last, err := s.lastAssistant(sessionID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !last.Open || last.Content == content {
		s.mu.Unlock()
		return nil
	}

	last.Content = content
	s.sessions[sessionID].UpdatedAt = model.NowMillis()
	s.emit(Event{Kind: EventUpdated, SessionID: sessionID, Message: *last})
	s.mu.Unlock()

	s.flush()
	return nil
}

// FinalizeLastMessage sets the final content of the open assistant message
// and closes it. Finalizing an already closed message is a no-op and keeps
// the content it was first finalized with.
func (s *Store) FinalizeLastMessage(sessionID, content string) error {
	s.mu.Lock()
	last, err := s.lastAssistant(sessionID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !last.Open {
		s.mu.Unlock()
		return nil
	}

	last.Content = content
	last.Open = false
	s.sessions[sessionID].UpdatedAt = model.NowMillis()
	s.emit(Event{Kind: EventFinalized, SessionID: sessionID, Message: *last})
	s.mu.Unlock()

	s.flush()
	return nil
}

// lastAssistant returns a pointer to the last message. Caller holds s.mu.
func (s *Store) lastAssistant(sessionID string) (*model.Message, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, &NotFoundError{SessionID: sessionID}
	}
	if len(sess.Messages) == 0 {
		return nil, &InvalidStateError{SessionID: sessionID, Reason: "session has no messages"}
	}
	last := &sess.Messages[len(sess.Messages)-1]
	if last.Role != model.RoleAssistant {
		return nil, &InvalidStateError{SessionID: sessionID, Reason: "last message is not from the assistant"}
	}
	return last, nil
}

func hasUserMessage(sess *model.Session) bool {
	for _, m := range sess.Messages {
		if m.Role == model.RoleUser {
			return true
		}
	}
	return false
}

// =============================================================================
// SESSION OPERATIONS
// =============================================================================

// AddSession inserts sess at the front of the list.
func (s *Store) AddSession(sess model.Session) error {
	if sess.ID == "" {
		return &InvalidStateError{Reason: "session id is empty"}
	}

	s.mu.Lock()
	if _, exists := s.sessions[sess.ID]; exists {
		s.mu.Unlock()
		return &InvalidStateError{SessionID: sess.ID, Reason: "session already exists"}
	}
	c := sess.Clone()
	if c.Title == "" {
		c.Title = model.DefaultTitle
	}
	s.sessions[c.ID] = &c
	s.order = append([]string{c.ID}, s.order...)
	s.emit(Event{Kind: EventSessionAdded, SessionID: c.ID})
	s.mu.Unlock()

	s.flush()
	return nil
}

// RemoveSession deletes a session and all of its messages.
func (s *Store) RemoveSession(sessionID string) error {
	s.mu.Lock()
	if _, ok := s.sessions[sessionID]; !ok {
		s.mu.Unlock()
		return &NotFoundError{SessionID: sessionID}
	}
	delete(s.sessions, sessionID)
	for i, id := range s.order {
		if id == sessionID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.emit(Event{Kind: EventSessionRemoved, SessionID: sessionID})
	s.mu.Unlock()

	s.flush()
	return nil
}

// RenameSession sets a session title.
func (s *Store) RenameSession(sessionID, title string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return &NotFoundError{SessionID: sessionID}
	}
	if title == "" {
		title = model.DefaultTitle
	}
	sess.Title = title
	sess.UpdatedAt = model.NowMillis()
	s.emit(Event{Kind: EventSessionRenamed, SessionID: sessionID})
	s.mu.Unlock()

	s.flush()
	return nil
}

// MoveSession moves the session at index from to index to. Other sessions
// keep their relative order.
func (s *Store) MoveSession(from, to int) error {
	s.mu.Lock()
	n := len(s.order)
	if from < 0 || from >= n || to < 0 || to >= n {
		s.mu.Unlock()
		return &InvalidStateError{Reason: "session index out of range"}
	}
	if from == to {
		s.mu.Unlock()
		return nil
	}
	id := s.order[from]
	s.order = append(s.order[:from], s.order[from+1:]...)
	s.order = append(s.order[:to], append([]string{id}, s.order[to:]...)...)
	s.emit(Event{Kind: EventReordered})
	s.mu.Unlock()

	s.flush()
	return nil
}

// Reset replaces the whole session list. Loaded sessions never carry an open
// message.
func (s *Store) Reset(sessions []model.Session) {
	s.mu.Lock()
	s.sessions = make(map[string]*model.Session, len(sessions))
	s.order = make([]string, 0, len(sessions))
	for _, sess := range sessions {
		if sess.ID == "" {
			continue
		}
		if _, dup := s.sessions[sess.ID]; dup {
			continue
		}
		c := sess.Clone()
		for i := range c.Messages {
			c.Messages[i].Open = false
		}
		s.sessions[c.ID] = &c
		s.order = append(s.order, c.ID)
	}
	s.emit(Event{Kind: EventReset})
	s.mu.Unlock()

	s.flush()
}

// =============================================================================
// QUERIES
// =============================================================================

// Session returns a snapshot of one session.
func (s *Store) Session(sessionID string) (model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return model.Session{}, &NotFoundError{SessionID: sessionID}
	}
	return sess.Clone(), nil
}

// Sessions returns snapshots of every session in list order.
func (s *Store) Sessions() []model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Session, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sessions[id].Clone())
	}
	return out
}

// Has reports whether a session exists.
func (s *Store) Has(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[sessionID]
	return ok
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
