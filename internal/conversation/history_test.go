package conversation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/wolfman30/synquot/internal/llm"
)

func turns(n int) []llm.Message {
	out := make([]llm.Message, n)
	for i := range out {
		role := llm.RoleUser
		if i%2 == 1 {
			role = llm.RoleAssistant
		}
		out[i] = llm.Message{Role: role, Content: fmt.Sprintf("msg %d", i)}
	}
	return out
}

func TestOptimizeShortHistoryUnchanged(t *testing.T) {
	history := turns(12)
	window, summary := DefaultHistoryOptimizer().Optimize(history)
	if len(window) != 12 || summary != "" {
		t.Fatalf("window=%d summary=%q", len(window), summary)
	}
	if _, summary := DefaultHistoryOptimizer().Optimize(nil); summary != "" {
		t.Fatal("empty history should not summarize")
	}
}

func TestOptimizeLongHistory(t *testing.T) {
	history := turns(25)
	window, summary := DefaultHistoryOptimizer().Optimize(history)

	// First message plus the last 19 makes 20; past the threshold the last 10 remain.
	if len(window) != 10 {
		t.Fatalf("window length = %d, want 10", len(window))
	}
	if window[len(window)-1].Content != "msg 24" || window[0].Content != "msg 15" {
		t.Fatalf("unexpected window bounds %q..%q", window[0].Content, window[len(window)-1].Content)
	}
	if !strings.Contains(summary, "Recent conversation context:") {
		t.Fatalf("summary missing recent context: %q", summary)
	}
	if !strings.Contains(summary, "user: msg 14") {
		t.Fatalf("summary should cover dropped turns: %q", summary)
	}
}

func TestOptimizeBetweenThresholdAndMax(t *testing.T) {
	window, summary := DefaultHistoryOptimizer().Optimize(turns(16))
	if len(window) != 10 || summary == "" {
		t.Fatalf("window=%d summary=%q", len(window), summary)
	}
	if window[0].Content != "msg 6" {
		t.Fatalf("window starts at %q", window[0].Content)
	}
}

func TestSummarize(t *testing.T) {
	if got := Summarize(turns(2)); got != "" {
		t.Fatalf("two messages should not summarize, got %q", got)
	}

	history := []llm.Message{
		{Role: llm.RoleUser, Content: "add Website quantity 1 price 45000"},
		{Role: llm.RoleAssistant, Content: "added"},
		{Role: llm.RoleUser, Content: "show total"},
	}
	if got := Summarize(history); got != "User has added/modified 1 service(s) in this conversation." {
		t.Fatalf("unexpected summary %q", got)
	}

	long := strings.Repeat("x", 150)
	history = append(history,
		llm.Message{Role: llm.RoleUser, Content: "remove service Hosting"},
		llm.Message{Role: llm.RoleAssistant, Content: long},
	)
	got := Summarize(history)
	lines := strings.Split(got, "\n")
	if lines[0] != "User has added/modified 2 service(s) in this conversation." {
		t.Fatalf("unexpected count line %q", lines[0])
	}
	if lines[1] != "Recent conversation context:" || len(lines) != 6 {
		t.Fatalf("unexpected summary layout %q", got)
	}
	if lines[5] != "assistant: "+strings.Repeat("x", 100) {
		t.Fatalf("long turn not truncated: %q", lines[5])
	}
}
