// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"time"
)

// checkTimeout bounds the --check request.
const checkTimeout = 15 * time.Second

// runCheck verifies the endpoint and key by listing models.
func runCheck(ctx context.Context, app *App, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	s := app.Settings.Snapshot()
	fmt.Fprintf(out, "Endpoint: %s\n", s.APIEndpoint)
	fmt.Fprintf(out, "Model:    %s\n", s.Model)

	models, err := app.CheckConnection(ctx)
	if err != nil {
		fmt.Fprintf(out, "%s %v\n", errorStyle.Render("✗"), err)
		return err
	}

	fmt.Fprintf(out, "%s connected, %d models available\n", successStyle.Render("✓"), len(models))
	found := false
	for _, m := range models {
		marker := "  "
		if m == s.Model {
			marker = activeStyle.Render("* ")
			found = true
		}
		fmt.Fprintln(out, marker+m)
	}
	if !found && len(models) > 0 {
		fmt.Fprintln(out, mutedStyle.Render("Configured model was not listed by the server."))
	}
	return nil
}
