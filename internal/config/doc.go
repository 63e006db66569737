// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and runtime settings for
// streamchat.
//
// Supports TOML, JSON and YAML configuration files, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: the configuration file structure
//   - Settings: the value copied into each chat request
//   - SettingsStore: current settings, persisted through a storage backend
//   - Watcher: reloads the config file when it changes
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (STREAMCHAT_*)
//   - ~/.streamchat/config.toml
//   - ~/.streamchat/config.json
//   - ~/.streamchat/config.yaml
//   - Built-in defaults
//
// Persisted settings fill in only what the above leave empty.
//
// # Usage
//
//	cfg, path, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	settings := config.NewSettingsStore(cfg.Settings(), backend)
package config
