// Package llm wraps an OpenAI-compatible chat-completion API. It
// supports single-shot completions and an incremental streaming mode.
package llm

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
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModel     = "gpt-4"
	defaultTimeout   = 60 * time.Second
	streamingTimeout = 300 * time.Second

	defaultTemperature = 0.7
	defaultMaxTokens   = 1000
)

// Message is a role-tagged chat message in the completion API format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionError is returned for any failed completion call: network
// or timeout errors, and upstream error responses. Status is the
// upstream HTTP status, or 0 for transport-level failures.
type CompletionError struct {
	Status int
	Detail string
}

func (e *CompletionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("completion failed (HTTP %d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("completion failed: %s", e.Detail)
}

// Client communicates with an OpenAI-compatible chat-completion API.
// It does not retry failed calls and keeps no cache of prior
// completions; retry policy belongs to the caller.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient creates a Client with the given API key and model. An empty
// model selects the default.
func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = defaultModel
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      model,
		httpClient: &http.Client{},
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL
// (for testing).
func NewClientWithBaseURL(apiKey, model, baseURL string) *Client {
	c := NewClient(apiKey, model)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Complete sends the messages and returns the assistant's full
// response text.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	body, err := c.do(ctx, messages, false, defaultTimeout)
	if err != nil {
		return "", err
	}
	defer body.Close()

	var resp chatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", &CompletionError{Detail: fmt.Sprintf("decoding response: %v", err)}
	}
	if len(resp.Choices) == 0 {
		return "", &CompletionError{Detail: "response contained no choices"}
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteStream sends the messages in streaming mode. onDelta is
// invoked after each upstream chunk with the cumulative text observed
// so far (full-so-far replacement, not an incremental delta); the
// final cumulative text is also returned. An error from onDelta aborts
// the stream and cancels the upstream request.
func (c *Client) CompleteStream(ctx context.Context, messages []Message, onDelta func(cumulative string) error) (string, error) {
	body, err := c.do(ctx, messages, true, streamingTimeout)
	if err != nil {
		return "", err
	}
	defer body.Close()

	var sb strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return sb.String(), &CompletionError{Detail: fmt.Sprintf("decoding stream chunk: %v", err)}
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}

		sb.WriteString(chunk.Choices[0].Delta.Content)
		if onDelta != nil {
			if err := onDelta(sb.String()); err != nil {
				return sb.String(), err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return sb.String(), &CompletionError{Detail: fmt.Sprintf("reading stream: %v", err)}
	}
	return sb.String(), nil
}

// do executes the completion request and returns the response body on
// HTTP 200. The returned body carries the timeout context's cancel so
// it is released when the caller closes it.
func (c *Client) do(ctx context.Context, messages []Message, stream bool, timeout time.Duration) (io.ReadCloser, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
		Stream:      stream,
	})
	if err != nil {
		return nil, &CompletionError{Detail: fmt.Sprintf("marshaling request: %v", err)}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, &CompletionError{Detail: fmt.Sprintf("creating request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, &CompletionError{Detail: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, &CompletionError{Status: resp.StatusCode, Detail: upstreamDetail(respBody)}
	}

	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

// upstreamDetail pulls the error message out of an OpenAI-style error
// body, falling back to the raw body.
func upstreamDetail(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// cancelOnClose wraps a ReadCloser and cancels a context on Close.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
