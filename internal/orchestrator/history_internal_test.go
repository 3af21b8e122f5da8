package orchestrator

import (
	"testing"

	"github.com/MrWong99/glyphoxa/pkg/types"
)

func TestLooksLikeIdentityMatchesHeuristicMarkers(t *testing.T) {
	tests := []struct {
		content string
		want    bool
	}{
		{"Caller's name is Jane Smith", true},
		{"Phone number is 555-0100", true},
		{"Reach me at jane@example.com", true},
		{"captured the caller's details", true},
		{"Sure, see you Tuesday at 3pm", false},
	}
	for _, tt := range tests {
		got := looksLikeIdentity(types.Message{Content: tt.content})
		if got != tt.want {
			t.Errorf("looksLikeIdentity(%q) = %v, want %v", tt.content, got, tt.want)
		}
	}
}

func TestPruneHistoryUnderLimitLeavesHistoryUntouched(t *testing.T) {
	history := []types.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}
	got := pruneHistory(history, 10, 2)
	if len(got) != len(history) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(history))
	}
}

func TestPruneHistoryRetainsSystemIdentityAndTail(t *testing.T) {
	history := []types.Message{
		{Role: "system", Content: "be brief"},                 // always kept
		{Role: "user", Content: "my name is Jane"},             // identity, kept
		{Role: "assistant", Content: "got it"},                 // should be dropped
		{Role: "user", Content: "what's the weather"},          // should be dropped
		{Role: "assistant", Content: "unrelated"},              // should be dropped
		{Role: "user", Content: "book me for Tuesday"},         // tail, kept
		{Role: "assistant", Content: "booking Tuesday for you"}, // tail, kept
	}

	got := pruneHistory(history, 3, 2)

	if len(got) != 4 {
		t.Fatalf("len(got) = %d, want 4; got = %+v", len(got), got)
	}
	if got[0].Content != "be brief" {
		t.Errorf("got[0] = %+v, want system message retained first", got[0])
	}
	if got[1].Content != "my name is Jane" {
		t.Errorf("got[1] = %+v, want identity message retained", got[1])
	}
	if got[2].Content != "book me for Tuesday" || got[3].Content != "booking Tuesday for you" {
		t.Errorf("tail not retained correctly: got = %+v", got)
	}
	for _, msg := range got {
		if msg.Content == "got it" || msg.Content == "what's the weather" || msg.Content == "unrelated" {
			t.Errorf("pruneHistory retained a message it should have dropped: %+v", msg)
		}
	}
}

func TestPruneHistoryKeepRecentGreaterThanLengthKeepsEverything(t *testing.T) {
	history := []types.Message{
		{Role: "user", Content: "a"},
		{Role: "assistant", Content: "b"},
		{Role: "user", Content: "c"},
	}
	got := pruneHistory(history, 1, 10)
	if len(got) != len(history) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(history))
	}
}
