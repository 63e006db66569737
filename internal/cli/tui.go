// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/streamchat/internal/scroll"
	"github.com/jeranaias/streamchat/internal/ui/chat"
)

// runTUI runs the full-screen UI until the user quits. Replies still
// streaming are cancelled on exit.
func runTUI(ctx context.Context, app *App) error {
	m := chat.New(chat.Deps{
		Store:        app.Store,
		Manager:      app.Sessions,
		Orchestrator: app.Orchestrator,
		Settings:     app.Settings,
		Scroll: scroll.Options{
			Threshold: app.Config.Scroll.Threshold,
			Interval:  time.Duration(app.Config.Scroll.IntervalMS) * time.Millisecond,
		},
		Logger:  app.Logger,
		Context: ctx,
	})
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
