package usecases

import (
	"testing"

	"reqforge/internal/infrastructure"
)

func msgs(contents ...string) []infrastructure.ChatMessage {
	out := make([]infrastructure.ChatMessage, 0, len(contents))
	for _, c := range contents {
		out = append(out, infrastructure.ChatMessage{Role: "user", Content: c})
	}
	return out
}

func TestSelectMessagesForContextKeepsSuffixWithinBudget(t *testing.T) {
	selected := SelectMessagesForContext(msgs("abcd", "efgh", "ijkl"), 8)
	if len(selected) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(selected))
	}
	if selected[0].Content != "efgh" || selected[1].Content != "ijkl" {
		t.Errorf("expected the two most recent messages, got %v", selected)
	}
}

func TestSelectMessagesForContextEmptyBudget(t *testing.T) {
	if got := SelectMessagesForContext(msgs("hello"), 0); len(got) != 0 {
		t.Errorf("maxChars=0 should select nothing, got %v", got)
	}
	if got := SelectMessagesForContext(msgs("hello"), -5); len(got) != 0 {
		t.Errorf("negative budget should select nothing, got %v", got)
	}
}

func TestSelectMessagesForContextTruncatesOversizedLast(t *testing.T) {
	selected := SelectMessagesForContext(msgs("0123456789"), 4)
	if len(selected) != 1 {
		t.Fatalf("expected 1 truncated message, got %d", len(selected))
	}
	if selected[0].Content != "6789" {
		t.Errorf("expected last 4 chars %q, got %q", "6789", selected[0].Content)
	}
}

func TestSelectMessagesForContextOversizedLastStopsScan(t *testing.T) {
	// An oversized non-last message ends the scan without truncation; only
	// what already fit stays.
	selected := SelectMessagesForContext(msgs("0123456789", "ab"), 4)
	if len(selected) != 1 || selected[0].Content != "ab" {
		t.Errorf("expected only the fitting suffix, got %v", selected)
	}
}

func TestSelectMessagesForContextNeverExceedsBudget(t *testing.T) {
	inputs := msgs("aaaa", "bbbbbb", "cc", "ddddd", "e")
	for budget := 1; budget <= 20; budget++ {
		selected := SelectMessagesForContext(inputs, budget)
		total := 0
		for _, m := range selected {
			total += len(m.Content)
		}
		if total > budget {
			t.Errorf("budget %d exceeded: selected %d chars", budget, total)
		}
	}
}

func TestSelectMessagesForContextPreservesOrder(t *testing.T) {
	selected := SelectMessagesForContext(msgs("a", "b", "c"), 100)
	if len(selected) != 3 {
		t.Fatalf("expected all messages, got %d", len(selected))
	}
	for i, want := range []string{"a", "b", "c"} {
		if selected[i].Content != want {
			t.Errorf("position %d: expected %q, got %q", i, want, selected[i].Content)
		}
	}
}
