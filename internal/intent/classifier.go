// Package intent classifies quotation-editing chat messages and pulls the
// service name, quantity, price and old/new values out of them.
package intent

import (
	"regexp"
	"strings"
)

// Intent is the classified purpose of a user message.
type Intent string

const (
	Add       Intent = "add"
	Remove    Intent = "remove"
	Change    Intent = "change"
	View      Intent = "view"
	Reset     Intent = "reset"
	Calculate Intent = "calculate"
	Unknown   Intent = "unknown"
)

// IsReadOnly reports whether the intent never changes the quotation.
func (i Intent) IsReadOnly() bool {
	return i == View || i == Calculate
}

// Rule binds an intent to its patterns, tried in order.
type Rule struct {
	Intent   Intent
	Patterns []*regexp.Regexp
}

// DefaultRules returns the canonical table. Order matters: the first rule
// with a matching pattern wins, so add is checked before remove and so on.
func DefaultRules() []Rule {
	return []Rule{
		{Add, []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(add|include|insert|create)\b`),
			regexp.MustCompile(`(?i)\b(add|include|insert|create)\s+service\b`),
		}},
		{Remove, []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(remove|delete|drop|exclude)\b`),
			regexp.MustCompile(`(?i)\b(remove|delete|drop|exclude)\s+service\b`),
		}},
		{Change, []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(change|update|modify|edit|alter)\b`),
			regexp.MustCompile(`(?i)\b(change|update|modify|edit|alter)\s+(price|quantity|name|gst)\b`),
		}},
		{View, []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(show|display|view|see|list|get)\b`),
			regexp.MustCompile(`(?i)\b(show|display|view|see|list|get)\s+(quotation|services|total)\b`),
		}},
		{Reset, []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(reset|clear|start\s+over|new\s+quotation|empty)\b`),
		}},
		{Calculate, []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(calculate|compute|total|sum)\b`),
		}},
	}
}

// Classifier is stateless and safe for concurrent use.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier over rules, or DefaultRules when none are given.
func NewClassifier(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// Classify returns the intent of the first matching rule, or Unknown.
func (c *Classifier) Classify(message string) Intent {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return Unknown
	}
	for _, rule := range c.rules {
		for _, pattern := range rule.Patterns {
			if pattern.MatchString(msg) {
				return rule.Intent
			}
		}
	}
	return Unknown
}

var defaultClassifier = NewClassifier()

// Classify uses the default rule table.
func Classify(message string) Intent {
	return defaultClassifier.Classify(message)
}
