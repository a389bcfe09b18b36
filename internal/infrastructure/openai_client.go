package infrastructure

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

const (
	openaiBaseURL          = "https://api.openai.com/v1/chat/completions"
	openaiGenerateTimeout  = 45 * time.Second
	openaiOutboundRate     = 8 // requests per second across the process
	openaiOutboundBurst    = 16
	streamDataPrefix       = "data:"
	streamDoneMarker       = "[DONE]"
	maxStreamLineBytes     = 1 << 20
)

type ChatMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// OpenAIClient talks to an OpenAI-compatible chat-completions endpoint. A
// process-wide token bucket throttles outbound calls.
type OpenAIClient struct {
	apiKey   string
	model    string
	baseURL  string
	client   *http.Client
	throttle *rate.Limiter
}

func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:   apiKey,
		model:    model,
		baseURL:  openaiBaseURL,
		client:   &http.Client{},
		throttle: rate.NewLimiter(rate.Limit(openaiOutboundRate), openaiOutboundBurst),
	}
}

func (c *OpenAIClient) post(ctx context.Context, body chatCompletionRequest) (*http.Response, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("openai api key not configured")
	}
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	return c.client.Do(req)
}

// GenerateCompletion runs a non-streaming completion and returns the trimmed
// assistant content. It aborts after a fixed timeout.
func (c *OpenAIClient) GenerateCompletion(ctx context.Context, messages []ChatMessage, temperature float64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, openaiGenerateTimeout)
	defer cancel()

	resp, err := c.post(ctx, chatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		Stream:      false,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("chat completion status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode chat completion: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("model returned an empty response")
	}
	return content, nil
}

// StreamCompletion starts a streaming completion and returns the raw response
// body for relaying. The caller owns closing it.
func (c *OpenAIClient) StreamCompletion(ctx context.Context, messages []ChatMessage, temperature float64) (io.ReadCloser, error) {
	resp, err := c.post(ctx, chatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("chat stream request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("chat stream status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return resp.Body, nil
}

// ScanStreamDeltas reads newline-delimited "data:" chunks from a streaming
// completion body, invoking onDelta for each content fragment. It stops at
// the [DONE] marker, at end of stream, or once the accumulated reply reaches
// maxChars. Malformed chunks are skipped. The accumulated text is returned
// even when the scan ends with an error, so partial output can be persisted.
func ScanStreamDeltas(r io.Reader, maxChars int, onDelta func(delta string) error) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLineBytes)

	var full strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, streamDataPrefix) {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, streamDataPrefix))
		if data == streamDoneMarker {
			break
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}

		if maxChars > 0 && full.Len()+len(delta) > maxChars {
			// Trim back to a rune boundary so the capped fragment stays
			// valid UTF-8.
			cut := maxChars - full.Len()
			for cut > 0 && !utf8.RuneStart(delta[cut]) {
				cut--
			}
			delta = delta[:cut]
			if delta == "" {
				break
			}
		}
		full.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return full.String(), err
		}
		if maxChars > 0 && full.Len() >= maxChars {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), err
	}
	return full.String(), nil
}
