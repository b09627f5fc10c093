package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/crosstalk/internal/a2a"
)

// GenerateRequest is everything a generator needs to write one reply.
type GenerateRequest struct {
	AgentID        string        `json:"agent_id"`
	AgentName      string        `json:"agent_name"`
	Message        a2a.Message   `json:"message"`
	History        []a2a.Message `json:"history,omitempty"`
	Guidance       string        `json:"guidance,omitempty"`
	NeedsRelevance bool          `json:"needs_relevance"` // generator may still decide to stay silent
	Reason         string        `json:"reason,omitempty"`
}

// Generator produces reply text. Returning "" or a NO_REPLY token means stay silent.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// NoopGenerator never replies. Used for agents without a generator endpoint,
// which still take part in the shared log and turn-taking.
type NoopGenerator struct{}

func (NoopGenerator) Generate(context.Context, GenerateRequest) (string, error) {
	return "", nil
}

// WebhookGenerator posts the request as JSON and reads {"text": "..."} back.
type WebhookGenerator struct {
	url    string
	client *http.Client
}

// NewWebhookGenerator creates a generator calling url.
func NewWebhookGenerator(url string) *WebhookGenerator {
	return &WebhookGenerator{
		url:    url,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

type webhookResponse struct {
	Text string `json:"text"`
}

// HTTPError is a non-200 response from a generator endpoint.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration // from the Retry-After header, 0 if absent
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("generator returned HTTP %d: %s", e.Status, e.Body)
}

func (g *WebhookGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("webhook: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", g.url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("webhook: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("webhook: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &HTTPError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var out webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("webhook: decode response: %w", err)
	}
	return out.Text, nil
}
