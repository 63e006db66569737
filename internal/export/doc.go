// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes chat sessions out as Markdown or JSON.
//
// # Usage
//
//	exporter, err := export.New("md", export.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	path, err := export.ExportToFile(&sess, exporter, opts)
package export
