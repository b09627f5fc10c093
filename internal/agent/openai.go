package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nextlevelbuilder/crosstalk/internal/a2a"
)

const (
	openAIChatPath    = "/chat/completions"
	openAIMaxAttempts = 3
)

// OpenAIGenerator writes replies through an OpenAI-compatible chat completions API
// (OpenAI, Groq, OpenRouter, DeepSeek, vLLM, etc.).
type OpenAIGenerator struct {
	apiKey      string
	apiBase     string
	model       string
	persona     string
	maxTokens   int
	temperature float64
	client      *http.Client
	backoff     time.Duration
}

// OpenAIOptions configures an OpenAIGenerator.
type OpenAIOptions struct {
	APIKey      string
	APIBase     string
	Model       string
	Persona     string
	MaxTokens   int
	Temperature float64
}

// NewOpenAIGenerator creates a chat completions generator.
func NewOpenAIGenerator(opts OpenAIOptions) *OpenAIGenerator {
	apiBase := opts.APIBase
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	return &OpenAIGenerator{
		apiKey:      opts.APIKey,
		apiBase:     strings.TrimRight(apiBase, "/"),
		model:       opts.Model,
		persona:     opts.Persona,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		client:      &http.Client{Timeout: 120 * time.Second},
		backoff:     time.Second,
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	body := openAIRequest{
		Model:       g.model,
		Messages:    g.buildMessages(req),
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < openAIMaxAttempts; attempt++ {
		if attempt > 0 {
			wait := g.backoff << (attempt - 1)
			var httpErr *HTTPError
			if errors.As(lastErr, &httpErr) && httpErr.RetryAfter > 0 {
				wait = httpErr.RetryAfter
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}

		text, err := g.doRequest(ctx, data)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return "", lastErr
}

func (g *OpenAIGenerator) doRequest(ctx context.Context, data []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", g.apiBase+openAIChatPath, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &HTTPError{
			Status:     resp.StatusCode,
			Body:       "openai: " + string(respBody),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var out openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return out.Choices[0].Message.Content, nil
}

// buildMessages renders the room transcript as one user turn under a system prompt
// carrying persona, turn-taking guidance and the silence convention.
func (g *OpenAIGenerator) buildMessages(req GenerateRequest) []openAIMessage {
	var sys strings.Builder
	if g.persona != "" {
		sys.WriteString(g.persona)
	} else {
		fmt.Fprintf(&sys, "You are %s, an agent in a group chat with humans and other agents.", req.AgentName)
	}
	sys.WriteString("\nReply with the message text only, without a name prefix.")
	if req.NeedsRelevance {
		sys.WriteString("\nIf the latest message does not need a reply from you, answer exactly NO_REPLY.")
	}
	if req.Guidance != "" {
		sys.WriteString("\n\n")
		sys.WriteString(req.Guidance)
	}

	var user strings.Builder
	if len(req.History) > 0 {
		user.WriteString("Recent conversation:\n")
		for _, m := range req.History {
			if m.ID == req.Message.ID {
				continue
			}
			writeLine(&user, m)
		}
		user.WriteString("\n")
	}
	user.WriteString("Latest message:\n")
	writeLine(&user, req.Message)

	return []openAIMessage{
		{Role: "system", Content: sys.String()},
		{Role: "user", Content: user.String()},
	}
}

func writeLine(b *strings.Builder, m a2a.Message) {
	name := m.Content.SenderDisplayName
	if name == "" {
		name = m.SenderEntityID
	}
	fmt.Fprintf(b, "%s: %s\n", name, m.Content.Text)
}

// retryable reports whether err is worth another attempt: rate limits and server errors.
func retryable(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	return httpErr.Status == http.StatusTooManyRequests || httpErr.Status >= 500
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
