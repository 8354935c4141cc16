package tasks

import (
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
	defaultAdvisorURL     = "http://localhost:11434"
	defaultAdvisorModel   = "llama3"
	defaultAdvisorTimeout = 120 * time.Second
)

const advisorSystemPrompt = "You are a productivity coach. Given task " +
	"completion statistics, reply with three short, concrete suggestions, " +
	"one per line, no numbering."

// OllamaAdvisorConfig holds configuration for the Ollama-backed advisor.
type OllamaAdvisorConfig struct {
	BaseURL     string        `json:"base_url"`
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
}

// OllamaAdvisor implements Advisor against Ollama's HTTP chat API.
type OllamaAdvisor struct {
	cfg    OllamaAdvisorConfig
	client *http.Client
}

// NewOllamaAdvisor creates an advisor that asks a local text generation
// service for suggestions.
func NewOllamaAdvisor(cfg OllamaAdvisorConfig) *OllamaAdvisor {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAdvisorURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultAdvisorModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultAdvisorTimeout
	}
	return &OllamaAdvisor{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// IsAvailable checks if the generation server is reachable.
func (p *OllamaAdvisor) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/api/tags", http.NoBody)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Suggest implements Advisor. The stats are serialized into the prompt and
// the response is split into one suggestion per non-empty line.
func (p *OllamaAdvisor) Suggest(ctx context.Context, stats TodoStats) ([]string, error) {
	prompt := fmt.Sprintf(
		"Stats: %d total todos, %d completed, %d pending, %d overdue, completion rate %.0f%%.",
		stats.Total, stats.Completed, stats.Pending, stats.Overdue, stats.CompletionRate()*100,
	)

	resp, err := p.doRequest(ctx, ollamaChatRequest{
		Model: p.cfg.Model,
		Messages: []ollamaChatMessage{
			{Role: "system", Content: advisorSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Stream:      false,
		Temperature: p.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama suggest: %w", err)
	}

	suggestions := []string{}
	for _, line := range strings.Split(resp.Message.Content, "\n") {
		if trimmed := strings.TrimSpace(strings.TrimLeft(line, "-*• ")); trimmed != "" {
			suggestions = append(suggestions, trimmed)
		}
	}

	return suggestions, nil
}

// --- internal Ollama API types ---

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model       string              `json:"model"`
	Messages    []ollamaChatMessage `json:"messages"`
	Stream      bool                `json:"stream"`
	Temperature float64             `json:"temperature,omitempty"`
}

type ollamaChatResponse struct {
	Model   string            `json:"model"`
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
}

// doRequest marshals the request, sends it to the chat API, and decodes the response.
func (p *OllamaAdvisor) doRequest(ctx context.Context, req ollamaChatRequest) (*ollamaChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var resp ollamaChatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &resp, nil
}

var _ Advisor = (*OllamaAdvisor)(nil)
