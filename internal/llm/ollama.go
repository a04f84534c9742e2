package llm

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
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "llama3.1"
	ollamaReadTimeout  = 120 * time.Second
	ollamaProbeTimeout = 5 * time.Second
)

type OllamaConfig struct {
	BaseURL        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	HTTPClient     *http.Client
}

// OllamaBackend drives a local Ollama server through /api/generate.
type OllamaBackend struct {
	baseURL string
	http    *http.Client
}

func NewOllamaBackend(cfg OllamaConfig) (*OllamaBackend, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errNoBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = newTimeoutClient(cfg.ConnectTimeout, cfg.ReadTimeout, defaultConnectTimeout, ollamaReadTimeout)
	}
	return &OllamaBackend{baseURL: base, http: client}, nil
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

func (b *OllamaBackend) Complete(ctx context.Context, req Request) (Response, error) {
	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	// Local models are always asked for JSON; the replies are parsed as objects.
	payload := ollamaGenerateRequest{
		Model:   req.Model,
		Prompt:  flattenPrompt(req.Messages),
		Format:  "json",
		Options: options,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("llm: encode ollama request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return Response{}, fmt.Errorf("llm: build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("llm: ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("llm: read ollama response: %w", err)
	}

	var decoded ollamaGenerateResponse
	decodeErr := json.Unmarshal(body, &decoded)
	if resp.StatusCode != http.StatusOK {
		msg := decoded.Error
		if msg == "" {
			msg = preview(body)
		}
		return Response{}, &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return Response{}, fmt.Errorf("llm: decode ollama response: %w", decodeErr)
	}
	if decoded.Error != "" {
		return Response{}, &StatusError{StatusCode: resp.StatusCode, Message: decoded.Error, Embedded: true}
	}

	return Response{
		Text:         strings.TrimSpace(decoded.Response),
		Model:        decoded.Model,
		FinishReason: decoded.DoneReason,
		Usage: Usage{
			InputTokens:  decoded.PromptEvalCount,
			OutputTokens: decoded.EvalCount,
			TotalTokens:  decoded.PromptEvalCount + decoded.EvalCount,
		},
	}, nil
}

// Ping reports whether the server answers /api/tags.
func (b *OllamaBackend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ollamaProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("llm: build ollama probe: %w", err)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("llm: cannot reach ollama at %s: %w", b.baseURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Message: "ollama probe failed"}
	}
	return nil
}

// flattenPrompt renders chat turns as one prompt: system text first, then
// the labelled dialogue, ending with an open assistant turn.
func flattenPrompt(messages []Message) string {
	system, dialogue := splitSystem(messages)
	var b strings.Builder
	for _, s := range system {
		if strings.TrimSpace(s) == "" {
			continue
		}
		b.WriteString(strings.TrimSpace(s))
		b.WriteString("\n\n")
	}
	for _, msg := range dialogue {
		label := "User"
		if msg.Role == RoleAssistant {
			label = "Assistant"
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(msg.Content))
		b.WriteString("\n")
	}
	b.WriteString("Assistant:")
	return b.String()
}
