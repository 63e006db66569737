// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/text/encoding/unicode"
)

// =============================================================================
// STREAMING CONSTANTS
// =============================================================================

const (
	// MaxLineSize is the longest event line the decoder will parse. Longer
	// lines are dropped as malformed.
	MaxLineSize = 1024 * 1024

	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// =============================================================================
// STREAMING TYPES
// =============================================================================

// StreamChunk is one streamed completion frame. Only the fields the client
// reads are declared; everything else in the frame is ignored.
type StreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Content returns choices[0].delta.content, or "".
func (c *StreamChunk) Content() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// ProtocolError describes a data line that could not be parsed. The decoder
// logs and skips these.
type ProtocolError struct {
	Line string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed stream frame %q: %v", truncateForLog(e.Line, 80), e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// StreamError is a terminal read failure after part of a reply arrived.
type StreamError struct {
	Partial string // content received before the error
	Err     error
}

func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len([]rune(e.Partial)), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder turns a server-sent-events body into text deltas.
//
// Input is decoded as UTF-8 on the fly, so a character split across reads
// is reassembled and invalid bytes become U+FFFD. Lines are trimmed; only
// "data: " lines count. "[DONE]" or the end of input finishes the stream.
//
// A Decoder is single use. Once Next returns an error, every later call
// returns that same error.
type Decoder struct {
	r      *bufio.Reader
	logger *log.Logger
	line   []byte
	err    error
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithDecoderLogger sets where skipped frames are reported (debug level).
func WithDecoderLogger(l *log.Logger) DecoderOption {
	return func(d *Decoder) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDecoder wraps r. The decoder does not close r.
func NewDecoder(r io.Reader, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		r:      bufio.NewReader(unicode.UTF8BOM.NewDecoder().Reader(r)),
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Next returns the next non-empty delta. It returns io.EOF when the stream
// is complete and a wrapped error if reading fails.
func (d *Decoder) Next() (string, error) {
	if d.err != nil {
		return "", d.err
	}

	for {
		line, oversized, readErr := d.readLine()

		// A trailing fragment without a newline still counts at EOF.
		if readErr == nil || errors.Is(readErr, io.EOF) {
			if oversized {
				d.logger.Debug("skipping oversized stream frame", "limit", MaxLineSize)
			} else {
				delta, done, perr := parseLine(line)
				switch {
				case done:
					d.err = io.EOF
					return "", d.err
				case perr != nil:
					d.logger.Debug("skipping malformed stream frame", "err", perr)
				case delta != "":
					if readErr != nil {
						d.err = io.EOF
					}
					return delta, nil
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				d.err = io.EOF
			} else {
				d.err = fmt.Errorf("read stream: %w", readErr)
			}
			return "", d.err
		}
	}
}

// All ranges over the remaining deltas. A read error is yielded once as the
// final pair; normal completion simply ends the sequence.
func (d *Decoder) All() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			delta, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if !yield(delta, nil) {
				return
			}
		}
	}
}

// readLine reads up to and including the next newline. Lines longer than
// MaxLineSize are consumed but reported as oversized.
func (d *Decoder) readLine() (string, bool, error) {
	d.line = d.line[:0]
	oversized := false
	for {
		frag, err := d.r.ReadSlice('\n')
		if !oversized {
			if len(d.line)+len(frag) > MaxLineSize {
				oversized = true
				d.line = d.line[:0]
			} else {
				d.line = append(d.line, frag...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return string(d.line), oversized, err
	}
}

// parseLine interprets one line. done is true for the [DONE] sentinel.
// Lines that are blank or are not data lines yield nothing.
//
// The line is trimmed first, so surrounding whitespace and a trailing \r
// are tolerated. Only "data: " with the space counts as a data line; "data:"
// without it, including a bare "data:" with no payload, is ignored.
func parseLine(line string) (delta string, done bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, dataPrefix) {
		return "", false, nil
	}
	payload := strings.TrimPrefix(line, dataPrefix)
	if strings.TrimSpace(payload) == doneSentinel {
		return "", true, nil
	}

	var chunk StreamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return "", false, &ProtocolError{Line: line, Err: err}
	}
	return chunk.Content(), false, nil
}

func truncateForLog(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
