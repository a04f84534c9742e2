// Package llm talks to chat-completion backends. The Gateway walks an ordered
// model list and decides per failure whether to advance, retry or abort.
package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Request is what a Backend receives for a single attempt.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int
	// JSONMode asks the backend for structured output when it supports it.
	JSONMode bool
}

type Response struct {
	Text         string
	Model        string
	Usage        Usage
	FinishReason string
}

// Backend performs one completion against one model. Implementations report
// HTTP-level failures as *StatusError so the gateway can classify them.
type Backend interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, req Request) (Response, error)

func (f BackendFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// splitSystem separates system turns from the dialogue, preserving order.
func splitSystem(messages []Message) (system []string, dialogue []Message) {
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		dialogue = append(dialogue, msg)
	}
	return system, dialogue
}
