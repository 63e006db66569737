// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jeranaias/streamchat/internal/storage"
)

// Theme is the display part of Settings.
type Theme struct {
	PrimaryColor string `json:"primaryColor"`
	DarkMode     string `json:"darkMode"`
}

// Settings is the runtime view of the configuration. Values are copied
// into each request when it is built, so editing settings never changes a
// request that is already running.
type Settings struct {
	APIEndpoint     string   `json:"apiEndpoint"`
	APIKey          string   `json:"apiKey"`
	Model           string   `json:"model"`
	SystemPrompt    string   `json:"systemPrompt"`
	Temperature     *float64 `json:"temperature,omitempty"`
	Theme           Theme    `json:"theme"`
	EnableMarkdown  bool     `json:"enableMarkdown"`
	EnableStreaming bool     `json:"enableStreaming"`
	ShowTimestamp   bool     `json:"showTimestamp"`
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	if s.Temperature != nil {
		t := *s.Temperature
		s.Temperature = &t
	}
	return s
}

// HasAPIKey reports whether a non-blank key is configured.
func (s Settings) HasAPIKey() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

// fillMissing copies string and pointer fields from src into the fields of
// s that are unset. Booleans cannot be told apart from "unset" and are
// left alone.
func (s *Settings) fillMissing(src Settings) {
	fill := func(dst *string, v string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = v
		}
	}
	fill(&s.APIEndpoint, src.APIEndpoint)
	fill(&s.APIKey, src.APIKey)
	fill(&s.Model, src.Model)
	fill(&s.SystemPrompt, src.SystemPrompt)
	fill(&s.Theme.PrimaryColor, src.Theme.PrimaryColor)
	fill(&s.Theme.DarkMode, src.Theme.DarkMode)
	if s.Temperature == nil && src.Temperature != nil {
		t := *src.Temperature
		s.Temperature = &t
	}
}

// =============================================================================
// SETTINGS STORE
// =============================================================================

// SettingsStore holds the current Settings and persists them under
// storage.KeySettings.
//
// The config file and environment are authoritative: a persisted blob only
// fills fields they leave empty, which is how an API key entered at runtime
// survives a restart without being written into the config file.
type SettingsStore struct {
	mu      sync.RWMutex
	base    Settings
	current Settings
	backend storage.Backend

	subMu  sync.Mutex
	subs   []settingsSub // registration order
	nextID int
}

// NewSettingsStore starts from base. backend may be nil, in which case
// nothing is persisted.
func NewSettingsStore(base Settings, backend storage.Backend) *SettingsStore {
	base = normalize(base)
	return &SettingsStore{
		base:    base.Clone(),
		current: base.Clone(),
		backend: backend,
	}
}

// Snapshot returns a copy of the current settings.
func (s *SettingsStore) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Load merges the persisted blob into the current settings. A missing blob
// is not an error. A corrupt one is reported and ignored.
func (s *SettingsStore) Load() error {
	if s.backend == nil {
		return nil
	}
	data, err := s.backend.Load(storage.KeySettings)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	var persisted Settings
	if err := json.Unmarshal(data, &persisted); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}

	s.mu.Lock()
	s.current.fillMissing(normalize(persisted))
	snap := s.current.Clone()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// Set replaces the settings and persists them.
func (s *SettingsStore) Set(next Settings) error {
	next = normalize(next.Clone())

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	err := s.save(next)
	s.notify(next.Clone())
	return err
}

// Update applies fn to a copy of the current settings and stores the result.
func (s *SettingsStore) Update(fn func(*Settings)) error {
	next := s.Snapshot()
	fn(&next)
	return s.Set(next)
}

// Reset restores the settings the store was created with, or last given
// through ApplyConfig, and persists them.
func (s *SettingsStore) Reset() error {
	s.mu.RLock()
	base := s.base.Clone()
	s.mu.RUnlock()
	return s.Set(base)
}

// ApplyConfig installs settings from a reloaded config file. Fields the
// file leaves empty keep their current value.
func (s *SettingsStore) ApplyConfig(next Settings) {
	next = normalize(next.Clone())

	s.mu.Lock()
	s.base = next.Clone()
	next.fillMissing(s.current)
	s.current = next
	snap := s.current.Clone()
	s.mu.Unlock()

	s.notify(snap)
}

// Subscribe registers fn to be called with each new settings value.
// The returned function removes the subscription.
func (s *SettingsStore) Subscribe(fn func(Settings)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, settingsSub{id: id, fn: fn})
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			kept := make([]settingsSub, 0, len(s.subs))
			for _, sub := range s.subs {
				if sub.id != id {
					kept = append(kept, sub)
				}
			}
			s.subs = kept
			s.subMu.Unlock()
		})
	}
}

type settingsSub struct {
	id int
	fn func(Settings)
}

func (s *SettingsStore) notify(snap Settings) {
	s.subMu.Lock()
	fns := make([]func(Settings), 0, len(s.subs))
	for _, sub := range s.subs {
		fns = append(fns, sub.fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snap.Clone())
	}
}

func (s *SettingsStore) save(v Settings) error {
	if s.backend == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.backend.Save(storage.KeySettings, data); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func normalize(s Settings) Settings {
	s.APIEndpoint = strings.TrimRight(strings.TrimSpace(s.APIEndpoint), "/")
	s.APIKey = strings.TrimSpace(s.APIKey)
	return s
}
