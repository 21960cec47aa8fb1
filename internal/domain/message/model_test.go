package message_test

import (
	"testing"

	"messageboard/internal/domain/message"
)

// TestDraft_Validate tests validation of Draft.
func TestDraft_Validate(t *testing.T) {
	tests := []struct {
		name    string
		draft   message.Draft
		wantErr error
	}{
		{
			name:  "valid draft",
			draft: message.Draft{Content: "hello", UserName: "alice", UserID: "u1"},
		},
		{
			name:    "empty content",
			draft:   message.Draft{UserName: "alice", UserID: "u1"},
			wantErr: message.ErrEmptyContent,
		},
		{
			name:    "whitespace content",
			draft:   message.Draft{Content: "  \n\t", UserID: "u1"},
			wantErr: message.ErrEmptyContent,
		},
		{
			name:    "empty user id",
			draft:   message.Draft{Content: "hello", UserName: "alice"},
			wantErr: message.ErrEmptyUserID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.draft.Validate()
			if err != tt.wantErr {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestMessage_IsOwnedBy tests ownership checks.
func TestMessage_IsOwnedBy(t *testing.T) {
	m := message.Message{ID: 1, Content: "hi", UserID: "u1"}

	if !m.IsOwnedBy("u1") {
		t.Error("author should own message")
	}
	if m.IsOwnedBy("u2") {
		t.Error("other user should not own message")
	}
	if m.IsOwnedBy("") {
		t.Error("anonymous viewer should not own message")
	}
	if (message.Message{ID: 2, Content: "orphan"}).IsOwnedBy("") {
		t.Error("empty user ID must not match empty author")
	}
}

// TestSummary_Preview tests truncation for the editor selector.
func TestSummary_Preview(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"short", "short…"},
		{"abcdefghijklmnopqrstuvwxyz0123456789", "abcdefghijklmnopqrstuvwxyz0123…"},
		{"ééééééééééééééééééééééééééééééééé", "éééééééééééééééééééééééééééééé…"},
	}
	for _, tt := range tests {
		got := message.Summary{ID: 1, Content: tt.content}.Preview()
		if got != tt.want {
			t.Errorf("Preview(%q) = %q, want %q", tt.content, got, tt.want)
		}
	}
}
