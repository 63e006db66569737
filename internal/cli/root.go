// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/streamchat/internal/cloud"
	"github.com/jeranaias/streamchat/internal/config"
)

// Version information (set at build time)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

type rootFlags struct {
	configPath string
	logLevel   string
	plain      bool
	check      bool

	// clientOptions is set by tests to point the client at a fake server.
	clientOptions []cloud.Option
}

// NewRootCommand builds the streamchat command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&rootFlags{})
}

func newRootCommand(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "streamchat",
		Short: "Chat with an OpenAI-compatible model from the terminal",
		Long: `streamchat streams replies from any OpenAI-compatible chat completions
endpoint into a terminal chat with multiple saved sessions.

On a terminal it opens a full-screen UI. With --plain, or when input or
output is redirected, it runs a line-oriented prompt instead.

Configuration is read from ~/.streamchat/config.toml (or .yaml/.json) and
STREAMCHAT_* environment variables. Edits to the file apply to the next
message without restarting.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, f)
		},
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "Config file path (default ~/.streamchat/config.toml)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	cmd.Flags().BoolVar(&f.plain, "plain", false, "Use the line-oriented prompt even on a terminal")
	cmd.Flags().BoolVar(&f.check, "check", false, "Check the endpoint and API key, then exit")
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	return cmd
}

func run(cmd *cobra.Command, f *rootFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
	defer stop()

	tui := !f.check && !f.plain && Interactive()

	opts := Options{
		ConfigPath:    f.configPath,
		LogLevel:      f.logLevel,
		LogOutput:     cmd.ErrOrStderr(),
		ClientOptions: f.clientOptions,
	}
	if tui {
		// The full-screen UI owns the terminal; logs go to a file.
		if dir, err := config.ConfigDir(); err == nil {
			opts.LogFile = filepath.Join(dir, "streamchat.log")
		}
	}

	app, err := NewApp(opts)
	if err != nil {
		return err
	}
	defer app.Close()

	if f.check {
		return runCheck(ctx, app, cmd.OutOrStdout())
	}

	go func() {
		if err := app.Watch(ctx); err != nil {
			app.Logger.Warn("config watcher stopped", "err", err)
		}
	}()

	if tui {
		return runTUI(ctx, app)
	}

	repl := NewREPL(app, cmd.OutOrStdout(), cmd.ErrOrStderr(), IsStdoutTTY())
	defer repl.Close()
	return repl.Run(ctx)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("Error:"), err)
		return 1
	}
	return 0
}
