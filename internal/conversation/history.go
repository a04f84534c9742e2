package conversation

import (
	"fmt"
	"strings"

	"github.com/wolfman30/synquot/internal/llm"
)

const (
	defaultMaxMessages      = 20
	defaultSummaryThreshold = 15
	defaultRecentWindow     = 10

	summaryTurns      = 4
	summaryTurnLength = 100
)

// HistoryOptimizer bounds how much chat history is sent to the model. Long
// histories keep their opening message and most recent turns; anything older
// than the recent window is folded into a short summary.
type HistoryOptimizer struct {
	MaxMessages      int
	SummaryThreshold int
	RecentWindow     int
}

// DefaultHistoryOptimizer keeps 20 messages, summarizing past 15 down to the
// last 10.
func DefaultHistoryOptimizer() HistoryOptimizer {
	return HistoryOptimizer{
		MaxMessages:      defaultMaxMessages,
		SummaryThreshold: defaultSummaryThreshold,
		RecentWindow:     defaultRecentWindow,
	}
}

func (o HistoryOptimizer) withDefaults() HistoryOptimizer {
	def := DefaultHistoryOptimizer()
	if o.MaxMessages <= 0 {
		o.MaxMessages = def.MaxMessages
	}
	if o.SummaryThreshold <= 0 {
		o.SummaryThreshold = def.SummaryThreshold
	}
	if o.RecentWindow <= 0 {
		o.RecentWindow = def.RecentWindow
	}
	return o
}

// Optimize returns the window of history to send and, when the window was
// trimmed further, a summary of what was dropped.
func (o HistoryOptimizer) Optimize(history []llm.Message) ([]llm.Message, string) {
	o = o.withDefaults()
	if len(history) == 0 {
		return nil, ""
	}

	var window []llm.Message
	if len(history) <= o.MaxMessages {
		window = append(window, history...)
	} else {
		window = make([]llm.Message, 0, o.MaxMessages)
		window = append(window, history[0])
		window = append(window, history[len(history)-o.MaxMessages+1:]...)
	}

	if len(window) <= o.SummaryThreshold || o.RecentWindow >= len(window) {
		return window, ""
	}
	cut := len(window) - o.RecentWindow
	return window[cut:], Summarize(window[:cut])
}

// Summarize condenses older turns. Two or fewer messages produce nothing.
func Summarize(history []llm.Message) string {
	if len(history) <= 2 {
		return ""
	}

	var parts []string
	count := 0
	for _, msg := range history {
		if msg.Role != llm.RoleUser {
			continue
		}
		lower := strings.ToLower(msg.Content)
		if strings.Contains(lower, "add") || strings.Contains(lower, "service") {
			count++
		}
	}
	if count > 0 {
		parts = append(parts, fmt.Sprintf("User has added/modified %d service(s) in this conversation.", count))
	}

	if len(history) > summaryTurns {
		parts = append(parts, "Recent conversation context:")
		for _, msg := range history[len(history)-summaryTurns:] {
			role := msg.Role
			if role == "" {
				role = "unknown"
			}
			parts = append(parts, role+": "+truncateRunes(msg.Content, summaryTurnLength))
		}
	}
	return strings.Join(parts, "\n")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
