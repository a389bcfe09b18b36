package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

func streamBody(chunks ...string) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString("data: ")
		b.WriteString(c)
		b.WriteString("\n\n")
	}
	return b.String()
}

func deltaChunk(content string) string {
	return fmt.Sprintf(`{"choices":[{"delta":{"content":%q}}]}`, content)
}

func TestScanStreamDeltasAccumulates(t *testing.T) {
	body := streamBody(deltaChunk("Hello"), deltaChunk(" world"), "[DONE]")

	var deltas []string
	text, err := ScanStreamDeltas(strings.NewReader(body), 0, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if text != "Hello world" {
		t.Errorf("expected accumulated text, got %q", text)
	}
	if len(deltas) != 2 {
		t.Errorf("expected 2 deltas, got %v", deltas)
	}
}

func TestScanStreamDeltasSkipsMalformedChunks(t *testing.T) {
	body := streamBody(deltaChunk("ok"), "{not json", `{"choices":[]}`, deltaChunk("!"), "[DONE]")

	text, err := ScanStreamDeltas(strings.NewReader(body), 0, func(string) error { return nil })
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if text != "ok!" {
		t.Errorf("malformed chunks should be skipped, got %q", text)
	}
}

func TestScanStreamDeltasStopsAtCap(t *testing.T) {
	body := streamBody(deltaChunk("abcdef"), deltaChunk("ghijkl"), "[DONE]")

	text, err := ScanStreamDeltas(strings.NewReader(body), 8, func(string) error { return nil })
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if text != "abcdefgh" {
		t.Errorf("expected reply capped at 8 chars, got %q", text)
	}
}

func TestScanStreamDeltasCapKeepsValidUTF8(t *testing.T) {
	// "é" is two bytes; a cap of 5 after "abcd" would split it.
	body := streamBody(deltaChunk("abcd"), deltaChunk("é!"), "[DONE]")

	text, err := ScanStreamDeltas(strings.NewReader(body), 5, func(d string) error {
		if !utf8.ValidString(d) {
			t.Errorf("streamed delta is not valid UTF-8: %q", d)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if text != "abcd" {
		t.Errorf("expected truncation at the rune boundary, got %q", text)
	}
	if !utf8.ValidString(text) {
		t.Errorf("accumulated text is not valid UTF-8: %q", text)
	}

	// A cap landing exactly on a rune boundary keeps the whole rune.
	body = streamBody(deltaChunk("abcd"), deltaChunk("é!"), "[DONE]")
	text, err = ScanStreamDeltas(strings.NewReader(body), 6, func(string) error { return nil })
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if text != "abcdé" {
		t.Errorf("expected the full rune at the cap, got %q", text)
	}
}

func TestScanStreamDeltasReturnsPartialOnSinkError(t *testing.T) {
	body := streamBody(deltaChunk("keep"), deltaChunk("drop"), "[DONE]")

	calls := 0
	text, err := ScanStreamDeltas(strings.NewReader(body), 0, func(string) error {
		calls++
		if calls == 2 {
			return fmt.Errorf("client went away")
		}
		return nil
	})
	if err == nil {
		t.Fatal("sink error should propagate")
	}
	if text != "keepdrop" {
		t.Errorf("accumulated text should include everything read, got %q", text)
	}
}

func TestGenerateCompletionParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"  generated text  "}}]}`)
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key", "gpt-4o-mini")
	client.baseURL = server.URL

	content, err := client.GenerateCompletion(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, 0.2)
	if err != nil {
		t.Fatalf("completion failed: %v", err)
	}
	if content != "generated text" {
		t.Errorf("expected trimmed content, got %q", content)
	}
}

func TestGenerateCompletionEmptyContentIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"   "}}]}`)
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key", "gpt-4o-mini")
	client.baseURL = server.URL

	if _, err := client.GenerateCompletion(context.Background(), nil, 0.2); err == nil {
		t.Fatal("empty model output should be an error")
	}
}

func TestGenerateCompletionUpstreamErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key", "gpt-4o-mini")
	client.baseURL = server.URL

	if _, err := client.GenerateCompletion(context.Background(), nil, 0.2); err == nil {
		t.Fatal("non-200 upstream status should be an error")
	}
}
