// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/streamchat/internal/export"
	"github.com/jeranaias/streamchat/internal/logging"
	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/storage"
	"github.com/jeranaias/streamchat/internal/transcript"
)

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Manager keeps the list of chat sessions and the active one, and saves
// them after every change. It never edits messages; that is the
// Orchestrator's job.
type Manager struct {
	// mu serializes saves and guards activeID.
	mu sync.Mutex

	store    *transcript.Store
	backend  storage.Backend
	logger   *log.Logger
	activeID string
}

// Options configures a Manager.
type Options struct {
	Logger *log.Logger
}

// NewManager creates a manager over store, saving through backend.
// Call Load before use.
func NewManager(store *transcript.Store, backend storage.Backend, opts Options) *Manager {
	return &Manager{
		store:   store,
		backend: backend,
		logger:  logging.OrDiscard(opts.Logger),
	}
}

// Load reads the saved sessions and the active id. Unreadable data is
// logged and treated as absent. When no session survives, a new empty one
// is created.
func (m *Manager) Load() error {
	var sessions []model.Session
	data, err := m.backend.Load(storage.KeySessions)
	switch {
	case err == nil:
		if jerr := json.Unmarshal(data, &sessions); jerr != nil {
			m.logger.Warn("saved sessions are corrupt, starting fresh", "err", jerr)
			sessions = nil
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		m.logger.Warn("could not read saved sessions", "err", err)
	}
	repaired := 0
	for i := range sessions {
		for j := range sessions[i].Messages {
			if sessions[i].Messages[j].CloseInterrupted() {
				repaired++
			}
		}
	}
	m.store.Reset(sessions)

	activeID := ""
	if data, err := m.backend.Load(storage.KeyCurrentSession); err == nil {
		activeID = string(data)
	} else if !errors.Is(err, storage.ErrNotFound) {
		m.logger.Warn("could not read active session", "err", err)
	}

	if m.store.Len() == 0 {
		_, err := m.CreateSession()
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.store.Has(activeID) {
		activeID = m.store.Sessions()[0].ID
	}
	m.activeID = activeID
	m.logger.Debug("sessions loaded", "count", m.store.Len(), "active", activeID)
	if repaired > 0 {
		m.logger.Warn("closed replies interrupted by an earlier exit", "count", repaired)
		return m.saveAllLocked()
	}
	return m.saveActiveLocked()
}

// CreateSession prepends a new empty session, makes it active and returns
// its id.
func (m *Manager) CreateSession() (string, error) {
	sess := model.NewSession()
	// Outside mu: subscribers run synchronously and may call back in.
	if err := m.store.AddSession(sess); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeID = sess.ID
	if err := m.saveAllLocked(); err != nil {
		return sess.ID, err
	}
	return sess.ID, nil
}

// SelectSession makes id the active session.
func (m *Manager) SelectSession(id string) error {
	if !m.store.Has(id) {
		return &transcript.NotFoundError{SessionID: id}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeID = id
	return m.saveActiveLocked()
}

// DeleteSession removes a session. Deleting the active session activates
// the first remaining one, or a new empty session when none remain.
// A reply still streaming into the session is dropped.
func (m *Manager) DeleteSession(id string) error {
	if err := m.store.RemoveSession(id); err != nil {
		return err
	}

	m.mu.Lock()
	wasActive := m.activeID == id
	if wasActive {
		m.activeID = ""
		if rest := m.store.Sessions(); len(rest) > 0 {
			m.activeID = rest[0].ID
		}
	}
	empty := m.activeID == ""
	err := m.saveAllLocked()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if empty {
		_, err := m.CreateSession()
		return err
	}
	return nil
}

// ReorderSessions moves the session at index from to index to.
func (m *Manager) ReorderSessions(from, to int) error {
	if err := m.store.MoveSession(from, to); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveSessionsLocked()
}

// RenameSession sets a session's title. An empty title restores the default.
func (m *Manager) RenameSession(id, title string) error {
	if err := m.store.RenameSession(id, title); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveSessionsLocked()
}

// ClearAll wipes every stored key and starts over with one empty session.
func (m *Manager) ClearAll() error {
	if err := m.backend.Clear(); err != nil {
		return fmt.Errorf("clear storage: %w", err)
	}
	m.store.Reset(nil)
	m.logger.Info("all sessions cleared")

	_, err := m.CreateSession()
	return err
}

// =============================================================================
// QUERIES
// =============================================================================

// Sessions returns every session, newest first unless reordered.
func (m *Manager) Sessions() []model.Session {
	return m.store.Sessions()
}

// ActiveID returns the active session's id.
func (m *Manager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// Active returns a snapshot of the active session.
func (m *Manager) Active() (model.Session, bool) {
	sess, err := m.store.Session(m.ActiveID())
	if err != nil {
		return model.Session{}, false
	}
	return sess, true
}

// Export renders a session as "md" or "json".
func (m *Manager) Export(id, format string) ([]byte, error) {
	exp, err := export.New(format, nil)
	if err != nil {
		return nil, err
	}
	sess, err := m.store.Session(id)
	if err != nil {
		return nil, err
	}
	return exp.Export(&sess)
}

// ExportToFile writes a session export into dir and returns the file path.
func (m *Manager) ExportToFile(id, format, dir string) (string, error) {
	opts := export.DefaultOptions()
	if dir != "" {
		opts.OutputDir = dir
	}
	exp, err := export.New(format, opts)
	if err != nil {
		return "", err
	}
	sess, err := m.store.Session(id)
	if err != nil {
		return "", err
	}
	return export.ExportToFile(&sess, exp, opts)
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// Persist saves the full session list. The session id is accepted for the
// Orchestrator's sake; one blob holds every session.
func (m *Manager) Persist(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveSessionsLocked()
}

func (m *Manager) saveAllLocked() error {
	if err := m.saveSessionsLocked(); err != nil {
		return err
	}
	return m.saveActiveLocked()
}

// saveSessionsLocked snapshots the store while holding mu, so the last
// save always carries the newest state.
func (m *Manager) saveSessionsLocked() error {
	sessions := m.store.Sessions()
	if sessions == nil {
		sessions = []model.Session{}
	}
	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	if err := m.backend.Save(storage.KeySessions, data); err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}
	return nil
}

func (m *Manager) saveActiveLocked() error {
	if m.activeID == "" {
		return nil
	}
	if err := m.backend.Save(storage.KeyCurrentSession, []byte(m.activeID)); err != nil {
		return fmt.Errorf("save active session: %w", err)
	}
	return nil
}
