// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestTitleFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"short", "hello", "hello"},
		{"exactly twenty", "abcdefghijklmnopqrst", "abcdefghijklmnopqrst"},
		{"long", "abcdefghijklmnopqrstuvwxyz", "abcdefghijklmnopqrst..."},
		{"newlines collapsed", "line one\nline two", "line one line two"},
		{"blank", "   ", DefaultTitle},
		{"unicode counted by rune", "你好你好你好你好你好你好你好", "你好你好你好你好你好你好你好"},
		{"unicode truncated", "一二三四五六七八九十一二三四五六七八九十多", "一二三四五六七八九十一二三四五六七八九十..."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := TitleFromContent(tc.content); got != tc.want {
				t.Errorf("TitleFromContent(%q) = %q, want %q", tc.content, got, tc.want)
			}
		})
	}
}

func TestNewAssistantPlaceholder(t *testing.T) {
	msg := NewAssistantPlaceholder()
	if !msg.Open {
		t.Error("placeholder should be open")
	}
	if msg.Role != RoleAssistant {
		t.Errorf("Role = %q, want assistant", msg.Role)
	}
	if msg.Content != "" {
		t.Errorf("Content = %q, want empty", msg.Content)
	}
	if msg.ID == "" {
		t.Error("placeholder should have an ID")
	}
}

func TestMessage_OpenSurvivesSerialization(t *testing.T) {
	msg := NewAssistantPlaceholder()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !decoded.Open {
		t.Error("an open message should be saved as streaming")
	}
	if decoded.ID != msg.ID {
		t.Errorf("ID = %q, want %q", decoded.ID, msg.ID)
	}

	done, err := json.Marshal(NewUserMessage("hi"))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if strings.Contains(string(done), "streaming") {
		t.Errorf("finalized message should omit the streaming flag: %s", done)
	}
}

func TestMessage_CloseInterrupted(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		want    string
		changed bool
	}{
		{"partial text kept", Message{Content: "half an ans", Open: true}, "half an ans\n\n" + ErrorMarker + InterruptedNotice, true},
		{"empty reply", Message{Open: true}, ErrorMarker + InterruptedNotice, true},
		{"already closed", Message{Content: "done"}, "done", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			if got := msg.CloseInterrupted(); got != tt.changed {
				t.Errorf("CloseInterrupted() = %v, want %v", got, tt.changed)
			}
			if msg.Content != tt.want {
				t.Errorf("Content = %q, want %q", msg.Content, tt.want)
			}
			if msg.Open {
				t.Error("message should be closed")
			}
		})
	}
}

func TestSession_CloneIsIndependent(t *testing.T) {
	sess := NewSession()
	sess.Messages = append(sess.Messages, NewUserMessage("hi"))

	clone := sess.Clone()
	clone.Messages[0].Content = "changed"

	if sess.Messages[0].Content != "hi" {
		t.Errorf("original mutated through clone: %q", sess.Messages[0].Content)
	}
}

func TestSession_OpenMessage(t *testing.T) {
	sess := NewSession()
	if _, ok := sess.OpenMessage(); ok {
		t.Error("empty session should have no open message")
	}

	sess.Messages = append(sess.Messages, NewUserMessage("hi"), NewAssistantPlaceholder())
	open, ok := sess.OpenMessage()
	if !ok {
		t.Fatal("expected an open message")
	}
	if open.Role != RoleAssistant {
		t.Errorf("open message role = %q", open.Role)
	}
}

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RoleUser, RoleAssistant, RoleSystem} {
		if !r.Valid() {
			t.Errorf("%q should be valid", r)
		}
	}
	if Role("tool").Valid() {
		t.Error("tool should not be a valid role")
	}
}
