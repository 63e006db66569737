// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"

	core "github.com/jeranaias/streamchat/internal/chat"
	"github.com/jeranaias/streamchat/internal/cloud"
	"github.com/jeranaias/streamchat/internal/config"
	"github.com/jeranaias/streamchat/internal/logging"
	"github.com/jeranaias/streamchat/internal/session"
	"github.com/jeranaias/streamchat/internal/storage"
	"github.com/jeranaias/streamchat/internal/transcript"
)

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// Options controls how an App is assembled.
type Options struct {
	// ConfigPath loads a specific file instead of searching ~/.streamchat.
	ConfigPath string
	// LogLevel overrides [log] level.
	LogLevel string
	// LogOutput receives logs when [log] file is unset. Defaults to stderr.
	LogOutput io.Writer
	// LogFile is used when [log] file is unset, e.g. so the full-screen UI
	// keeps stderr clean.
	LogFile string
	// ClientOptions are passed to the API client.
	ClientOptions []cloud.Option
}

// App is the assembled core shared by both hosts.
type App struct {
	Config     *config.Config
	ConfigPath string
	Logger     *log.Logger

	Backend      storage.Backend
	Store        *transcript.Store
	Settings     *config.SettingsStore
	Sessions     *session.Manager
	Client       *cloud.Client
	Orchestrator *core.Orchestrator

	logFile io.Closer
}

// NewApp loads the config, opens storage, restores sessions and settings,
// and builds the orchestrator.
func NewApp(opts Options) (*App, error) {
	cfg, path, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	a := &App{Config: cfg, ConfigPath: path}
	if err := a.openLogger(opts); err != nil {
		return nil, err
	}

	backend, err := storage.Open(storage.Options{Kind: cfg.Storage.Backend, Path: cfg.Storage.Path})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.Backend = backend

	a.Store = transcript.NewStore()
	a.Settings = config.NewSettingsStore(cfg.Settings(), backend)
	if err := a.Settings.Load(); err != nil {
		a.Logger.Warn("saved settings are unreadable, using config", "err", err)
	}

	a.Sessions = session.NewManager(a.Store, backend, session.Options{Logger: a.Logger})
	if err := a.Sessions.Load(); err != nil {
		a.Close()
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	clientOpts := append([]cloud.Option{cloud.WithLogger(a.Logger)}, opts.ClientOptions...)
	a.Client = cloud.NewClient(clientOpts...)

	a.Orchestrator = core.New(core.Deps{
		Store:           a.Store,
		Settings:        a.Settings,
		Completer:       a.Client,
		Persister:       a.Sessions,
		Logger:          a.Logger,
		MaxRetries:      cfg.Chat.MaxRetries,
		PersistInterval: time.Duration(cfg.Chat.PersistIntervalMS) * time.Millisecond,
	})

	a.Logger.Debug("app ready",
		"config", path,
		"backend", cfg.Storage.Backend,
		"sessions", a.Store.Len(),
		"model", a.Settings.Snapshot().Model)
	return a, nil
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.LoadFromPath(path)
		return cfg, path, err
	}
	return config.Load()
}

func (a *App) openLogger(opts Options) error {
	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}

	file := a.Config.Log.File
	if file == "" {
		file = opts.LogFile
	}
	if file != "" {
		f, err := logging.OpenFile(file)
		if err != nil {
			return err
		}
		a.logFile = f
		out = f
	}

	logger, err := logging.New(logging.Options{
		Level:  a.Config.Log.Level,
		Output: out,
		Prefix: "streamchat",
	})
	if err != nil {
		a.Close()
		return err
	}
	a.Logger = logger
	return nil
}

// Watch reloads the config file on change until ctx ends. New settings
// reach the next send; sends already running keep their snapshot.
// It returns at once when running on defaults.
func (a *App) Watch(ctx context.Context) error {
	if a.ConfigPath == "" {
		return nil
	}
	return config.Watch(ctx, a.ConfigPath, func(cfg *config.Config) {
		if lvl, err := log.ParseLevel(cfg.Log.Level); err == nil {
			a.Logger.SetLevel(lvl)
		}
		a.Settings.ApplyConfig(cfg.Settings())
	}, config.WithWatchLogger(a.Logger))
}

// ClearAll wipes every stored session and setting and starts over.
func (a *App) ClearAll() error {
	if err := a.Sessions.ClearAll(); err != nil {
		return err
	}
	return a.Settings.Reset()
}

// CheckConnection lists the models served at the configured endpoint.
func (a *App) CheckConnection(ctx context.Context) ([]string, error) {
	s := a.Settings.Snapshot()
	if !s.HasAPIKey() {
		return nil, &core.ConfigurationError{Field: "apiKey", Message: "no API key is configured"}
	}
	return a.Client.ListModels(ctx, cloud.Target{Endpoint: s.APIEndpoint, APIKey: s.APIKey})
}

// Close releases storage and the log file.
func (a *App) Close() error {
	var errs []error
	if a.Backend != nil {
		errs = append(errs, storage.Close(a.Backend))
	}
	if a.logFile != nil {
		errs = append(errs, a.logFile.Close())
		a.logFile = nil
	}
	return errors.Join(errs...)
}
