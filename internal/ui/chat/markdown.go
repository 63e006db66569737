// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// markdownRenderer renders finalized assistant replies with glamour.
// Finalized messages never change, so output is cached by message ID until
// the width or style changes.
type markdownRenderer struct {
	style    string
	width    int
	renderer *glamour.TermRenderer
	cache    map[string]string
}

func newMarkdownRenderer(style string) *markdownRenderer {
	return &markdownRenderer{style: style, cache: make(map[string]string)}
}

func (r *markdownRenderer) setWidth(width int) {
	if width == r.width {
		return
	}
	r.width = width
	r.reset()
}

func (r *markdownRenderer) setStyle(style string) {
	if style == r.style {
		return
	}
	r.style = style
	r.reset()
}

func (r *markdownRenderer) reset() {
	r.renderer = nil
	clear(r.cache)
}

// render returns content as styled terminal text, or content unchanged
// when glamour fails.
func (r *markdownRenderer) render(id, content string) string {
	if out, ok := r.cache[id]; ok {
		return out
	}
	if r.renderer == nil {
		opts := []glamour.TermRendererOption{glamour.WithStandardStyle(r.style)}
		if r.width > 0 {
			opts = append(opts, glamour.WithWordWrap(r.width))
		}
		tr, err := glamour.NewTermRenderer(opts...)
		if err != nil {
			return content
		}
		r.renderer = tr
	}

	out, err := r.renderer.Render(content)
	if err != nil {
		return content
	}
	out = strings.Trim(out, "\n")
	r.cache[id] = out
	return out
}
