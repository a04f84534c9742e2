package conversation

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Parsed is a structured model reply.
type Parsed struct {
	Message   string
	Quotation map[string]any
}

var (
	nestedObjectPattern = regexp.MustCompile(`\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)
	fencedBlockPattern  = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
)

// ParseResponse recovers the {"message", "quotation"} object from model
// output. Models wrap JSON in code fences or surround it with prose, so the
// strategies are tried in order until one yields an object with a message and
// a quotation holding services.
func ParseResponse(text string) (Parsed, bool) {
	cleaned := stripFences(text)
	if cleaned == "" {
		return Parsed{}, false
	}

	if p, ok := decodeReply(cleaned); ok {
		return p, true
	}

	if m := fencedBlockPattern.FindStringSubmatch(text); m != nil {
		if p, ok := decodeReply(strings.TrimSpace(m[1])); ok {
			return p, true
		}
	}

	first := strings.Index(cleaned, "{")
	last := strings.LastIndex(cleaned, "}")
	if first != -1 && last > first {
		if p, ok := decodeReply(cleaned[first : last+1]); ok {
			return p, true
		}
	}

	for _, candidate := range nestedObjectPattern.FindAllString(cleaned, -1) {
		if p, ok := decodeReply(candidate); ok {
			return p, true
		}
	}

	return scanLines(cleaned)
}

func stripFences(text string) string {
	cleaned := strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(cleaned, "```json"):
		cleaned = cleaned[len("```json"):]
	case strings.HasPrefix(cleaned, "```"):
		cleaned = cleaned[len("```"):]
	}
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

// scanLines collects lines from one starting with "{" until the braces
// balance, then tries to decode the block.
func scanLines(text string) (Parsed, bool) {
	var block []string
	depth := 0
	collecting := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !collecting {
			if !strings.HasPrefix(trimmed, "{") {
				continue
			}
			collecting = true
			block = block[:0]
			depth = 0
		}
		block = append(block, line)
		depth += strings.Count(trimmed, "{") - strings.Count(trimmed, "}")
		if depth > 0 {
			continue
		}
		if p, ok := decodeReply(strings.Join(block, "\n")); ok {
			return p, true
		}
		collecting = false
	}
	return Parsed{}, false
}

func decodeReply(candidate string) (Parsed, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return Parsed{}, false
	}
	rawMessage, hasMessage := obj["message"]
	quotation, isObject := obj["quotation"].(map[string]any)
	if !hasMessage || !isObject {
		return Parsed{}, false
	}
	if _, hasServices := quotation["services"]; !hasServices {
		return Parsed{}, false
	}
	msg, _ := rawMessage.(string)
	return Parsed{Message: msg, Quotation: quotation}, true
}
