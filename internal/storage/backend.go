// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Well-known keys.
const (
	KeySessions       = "chatSessions"
	KeyCurrentSession = "currentSessionId"
	KeySettings       = "appSettings"
)

// Backend kinds accepted by Open.
const (
	KindFile   = "file"
	KindSQLite = "sqlite"
	KindMemory = "memory"
)

// Backend persists opaque blobs under string keys.
type Backend interface {
	// Save stores data under key, replacing any previous value.
	Save(key string, data []byte) error

	// Load returns the value stored under key, or ErrNotFound.
	Load(key string) ([]byte, error)

	// Clear removes every key.
	Clear() error
}

// Options selects and configures a backend.
type Options struct {
	Kind string // file, sqlite or memory
	Path string // directory for file, database path for sqlite
}

// Open returns the backend described by opts.
func Open(opts Options) (Backend, error) {
	switch strings.ToLower(opts.Kind) {
	case "", KindFile:
		dir := opts.Path
		if dir == "" {
			var err error
			dir, err = DefaultDir()
			if err != nil {
				return nil, err
			}
		}
		return NewFile(dir)
	case KindSQLite:
		path := opts.Path
		if path == "" {
			dir, err := DefaultDir()
			if err != nil {
				return nil, err
			}
			path = filepath.Join(dir, "streamchat.db")
		}
		return NewSQLite(path)
	case KindMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Kind)
	}
}

// Close releases backend resources if it holds any.
func Close(b Backend) error {
	if c, ok := b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// DefaultDir returns ~/.streamchat/data.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".streamchat", "data"), nil
}

// validateKey rejects keys that would escape the storage directory.
func validateKey(key string) error {
	if key == "" {
		return &StorageError{Message: "empty key"}
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return &StorageError{Message: "invalid key", Key: key}
	}
	return nil
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrNotFound is returned by Load when a key has never been saved.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &StorageError{Message: "key not found"}

// StorageError represents a storage-related error.
type StorageError struct {
	Message string
	Key     string
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return e.Message + ": " + e.Key
	}
	return e.Message
}

// Is matches on Message so a keyed ErrNotFound still satisfies
// errors.Is(err, ErrNotFound).
func (e *StorageError) Is(target error) bool {
	t, ok := target.(*StorageError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

func notFound(key string) error {
	return &StorageError{Message: ErrNotFound.Message, Key: key}
}
