package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultOpenRouterURL   = "https://openrouter.ai/api/v1/chat/completions"
	DefaultReferer         = "https://synquot.local"
	DefaultAppTitle        = "SynQuot AI Quotation Maker"
	defaultConnectTimeout  = 10 * time.Second
	defaultReadTimeout     = 30 * time.Second
	maxErrorBodyPreviewLen = 512
)

// OpenRouterConfig describes how to reach an OpenAI-compatible chat endpoint.
type OpenRouterConfig struct {
	APIKey         string
	URL            string
	Referer        string
	Title          string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	HTTPClient     *http.Client
}

// OpenRouterBackend posts chat completions with bearer auth.
type OpenRouterBackend struct {
	apiKey  string
	url     string
	referer string
	title   string
	http    *http.Client
}

func NewOpenRouterBackend(cfg OpenRouterConfig) *OpenRouterBackend {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		url = DefaultOpenRouterURL
	}
	referer := cfg.Referer
	if referer == "" {
		referer = DefaultReferer
	}
	title := cfg.Title
	if title == "" {
		title = DefaultAppTitle
	}
	client := cfg.HTTPClient
	if client == nil {
		client = newTimeoutClient(cfg.ConnectTimeout, cfg.ReadTimeout, defaultConnectTimeout, defaultReadTimeout)
	}
	return &OpenRouterBackend{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		url:     url,
		referer: referer,
		title:   title,
		http:    client,
	}
}

// newTimeoutClient separates the dial timeout from the time allowed for the
// model to produce its answer.
func newTimeoutClient(connect, read, defConnect, defRead time.Duration) *http.Client {
	if connect <= 0 {
		connect = defConnect
	}
	if read <= 0 {
		read = defRead
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = connect
	transport.ResponseHeaderTimeout = read
	return &http.Client{Transport: transport, Timeout: connect + read}
}

type openRouterError struct {
	Message  string         `json:"message"`
	Code     any            `json:"code,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type openRouterResponse struct {
	openai.ChatCompletionResponse
	Error *openRouterError `json:"error,omitempty"`
}

func (b *OpenRouterBackend) Complete(ctx context.Context, req Request) (Response, error) {
	if b.apiKey == "" {
		return Response{}, &StatusError{StatusCode: http.StatusUnauthorized, Message: "api key not configured"}
	}

	payload := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		payload.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("llm: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(data))
	if err != nil {
		return Response{}, fmt.Errorf("llm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	httpReq.Header.Set("HTTP-Referer", b.referer)
	httpReq.Header.Set("X-Title", b.title)

	resp, err := b.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("llm: read response: %w", err)
	}

	var decoded openRouterResponse
	decodeErr := json.Unmarshal(body, &decoded)

	if resp.StatusCode != http.StatusOK {
		return Response{}, statusErrorFrom(resp.StatusCode, body, decoded.Error, false)
	}
	if decodeErr != nil {
		return Response{}, fmt.Errorf("llm: decode response: %w", decodeErr)
	}
	if decoded.Error != nil {
		return Response{}, statusErrorFrom(resp.StatusCode, body, decoded.Error, true)
	}

	out := Response{
		Model: decoded.Model,
		Usage: Usage{
			InputTokens:  decoded.Usage.PromptTokens,
			OutputTokens: decoded.Usage.CompletionTokens,
			TotalTokens:  decoded.Usage.TotalTokens,
		},
	}
	if len(decoded.Choices) > 0 {
		out.Text = strings.TrimSpace(decoded.Choices[0].Message.Content)
		out.FinishReason = string(decoded.Choices[0].FinishReason)
	}
	return out, nil
}

func statusErrorFrom(status int, body []byte, apiErr *openRouterError, embedded bool) *StatusError {
	se := &StatusError{StatusCode: status, Embedded: embedded}
	if apiErr != nil {
		se.Message = apiErr.Message
		if raw, ok := apiErr.Metadata["raw"]; ok {
			se.Raw = fmt.Sprint(raw)
		}
	}
	if se.Message == "" {
		se.Message = preview(body)
	}
	return se
}

func preview(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBodyPreviewLen {
		text = text[:maxErrorBodyPreviewLen]
	}
	return text
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		out = append(out, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}
	return out
}

var errNoBaseURL = errors.New("llm: base url required")
