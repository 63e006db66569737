// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import "sync"

// Memory is a Backend that lives only as long as the process.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
	saves int
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{items: make(map[string][]byte)}
}

// Save stores a copy of data.
func (m *Memory) Save(key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	m.items[key] = buf
	m.saves++
	m.mu.Unlock()
	return nil
}

// Load returns a copy of the stored value.
func (m *Memory) Load(key string) ([]byte, error) {
	m.mu.RLock()
	data, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, notFound(key)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

// Clear drops every key.
func (m *Memory) Clear() error {
	m.mu.Lock()
	clear(m.items)
	m.mu.Unlock()
	return nil
}

// Saves reports how many Save calls succeeded.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}
