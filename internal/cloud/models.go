// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// ListModels returns the model ids served at target. It doubles as the
// connection check: a bad key or endpoint surfaces as *APIError or
// *TransportError, the same types OpenStream returns.
func (c *Client) ListModels(ctx context.Context, target Target) ([]string, error) {
	oc := openai.NewClient(
		option.WithBaseURL(NormalizeEndpoint(target.Endpoint)+"/"),
		option.WithAPIKey(target.APIKey),
		option.WithHTTPClient(c.httpClient),
		option.WithHeader("User-Agent", c.userAgent),
		option.WithMaxRetries(0),
	)

	c.logger.Debug("api request", "method", "GET", "path", modelsPath, "key", KeyFingerprint(target.APIKey))
	start := time.Now()
	page, err := oc.Models.List(ctx)
	if err != nil {
		var oaErr *openai.Error
		if errors.As(err, &oaErr) {
			c.logger.Info("api response", "method", "GET", "path", modelsPath, "status", oaErr.StatusCode, "duration", time.Since(start).Round(time.Millisecond))
			msg := oaErr.Message
			if msg == "" {
				msg = oaErr.Error()
			}
			return nil, &APIError{Status: oaErr.StatusCode, Code: oaErr.Code, Message: msg}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransportError{Op: "list models", Err: err}
	}
	c.logger.Info("api response", "method", "GET", "path", modelsPath, "status", 200, "duration", time.Since(start).Round(time.Millisecond))

	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids, nil
}
