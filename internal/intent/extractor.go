package intent

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Entities holds what could be pulled from a message. A nil field means the
// value was not mentioned and has to be asked for.
type Entities struct {
	ServiceName string   `json:"service_name,omitempty"`
	Quantity    *int     `json:"quantity,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	OldValue    *float64 `json:"old_value,omitempty"`
	NewValue    *float64 `json:"new_value,omitempty"`
}

// Empty reports whether nothing was extracted.
func (e Entities) Empty() bool {
	return e.ServiceName == "" && e.Quantity == nil && e.Price == nil && e.OldValue == nil && e.NewValue == nil
}

const (
	number     = `(\d[\d,]*(?:\.\d+)?)`
	terminator = `\s+(?:(?:quantity|qty|price|rate|rupees?|rs|cost)\b|₹)`
	currency   = `(?:₹|rs\.?|rupees?)`

	// maxNumber bounds extracted quantities and prices.
	maxNumber = 1e15
)

// commandVerbs never name a service on their own.
var commandVerbs = map[string]struct{}{
	"add": {}, "create": {}, "insert": {}, "include": {}, "make": {}, "new": {},
	"remove": {}, "delete": {}, "drop": {}, "exclude": {},
	"change": {}, "update": {}, "modify": {}, "edit": {}, "alter": {},
}

func defaultServicePatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:create|add|make|new)\s+(?:a\s+)?(?:quotation\s+for|service\s+for|for)\s+(.+?)` + terminator),
		regexp.MustCompile(`(?i)\b(?:add|create|insert|include)\s+(?:a\s+)?(?:service\s+)?(.+?)` + terminator),
		regexp.MustCompile(`(?i)^\s*(.+?)` + terminator),
		regexp.MustCompile(`(?i)(.+?)\s+(?:quantity|qty)\s+\d+`),
		regexp.MustCompile(`(?i)\b(?:remove|delete|drop|exclude)\s+(?:the\s+)?(?:service\s+)?(.+?)(?:\s+from\s+(?:the\s+)?quotation)?\s*$`),
	}
}

func defaultQuantityPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:quantity|qty)\s*(?:of\s+|is\s+|[:=]\s*)?(\d+)`),
		regexp.MustCompile(`(?i)\b(\d+)\s+(?:quantity|qty|units?|items?)\b`),
	}
}

func defaultPricePatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:price|rate|cost)(?:\s+is)?\s*[:=]?\s*` + currency + `?\s*` + number),
		regexp.MustCompile(`(?i)` + currency + `?\s*` + number + `\s+(?:price|rate|cost)\b`),
		regexp.MustCompile(`(?i)(?:₹|\brs\.?|\brupees?)\s*` + number),
		regexp.MustCompile(`(?i)` + number + `\s*(?:rupees?\b|₹|rs\b)`),
	}
}

// changePatterns yield (old, new) pairs; the last one captures only the new value.
func defaultChangePatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:change|update|modify)\s+(?:from\s+)?` + number + `\s+to\s+` + number),
		regexp.MustCompile(`(?i)` + number + `\s+to\s+` + number),
		regexp.MustCompile(`(?i)\bto\s+` + number),
	}
}

var (
	prefixPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:create\s+(?:a\s+)?)?quotation\s+for\s+`),
		regexp.MustCompile(`(?i)^(?:add\s+(?:a\s+)?)?service\s+for\s+`),
		regexp.MustCompile(`(?i)^(?:create\s+(?:a\s+)?)?service\s+for\s+`),
		regexp.MustCompile(`(?i)^(?:add\s+(?:a\s+)?)?quotation\s+for\s+`),
		regexp.MustCompile(`(?i)^create\s+(?:a\s+)?`),
		regexp.MustCompile(`(?i)^add\s+(?:a\s+)?`),
		regexp.MustCompile(`(?i)^(?:remove|delete|drop|exclude)\s+(?:the\s+)?`),
		regexp.MustCompile(`(?i)^(?:change|update|modify|edit|alter)\b\s*`),
		regexp.MustCompile(`(?i)^quotation\s+for\s+`),
		regexp.MustCompile(`(?i)^service\s+for\s+`),
		regexp.MustCompile(`(?i)^for\s+`),
	}
	fillerSuffix    = regexp.MustCompile(`(?i)\s+(?:services?|works?|quotations?)\s*$`)
	trailingNumber  = regexp.MustCompile(`\s+\d+\s*$`)
	embeddedForPart = regexp.MustCompile(`(?i)(?:quotation|service)\s+for\s+`)
)

// Extractor applies ordered candidate patterns per entity; the first
// successful match of each kind wins.
type Extractor struct {
	service  []*regexp.Regexp
	quantity []*regexp.Regexp
	price    []*regexp.Regexp
	change   []*regexp.Regexp
}

// ExtractorOption customizes an Extractor.
type ExtractorOption func(*Extractor)

// WithServicePatterns appends service-name patterns. Group 1 must capture the name.
func WithServicePatterns(patterns ...*regexp.Regexp) ExtractorOption {
	return func(e *Extractor) { e.service = append(e.service, patterns...) }
}

// WithQuantityPatterns appends quantity patterns. Group 1 must capture digits.
func WithQuantityPatterns(patterns ...*regexp.Regexp) ExtractorOption {
	return func(e *Extractor) { e.quantity = append(e.quantity, patterns...) }
}

// WithPricePatterns appends price patterns. Group 1 must capture the amount.
func WithPricePatterns(patterns ...*regexp.Regexp) ExtractorOption {
	return func(e *Extractor) { e.price = append(e.price, patterns...) }
}

// NewExtractor returns an extractor with the default pattern lists plus any options.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		service:  defaultServicePatterns(),
		quantity: defaultQuantityPatterns(),
		price:    defaultPricePatterns(),
		change:   defaultChangePatterns(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract pulls entities out of message. Numbers that fail to parse are skipped.
func (e *Extractor) Extract(message string) Entities {
	var out Entities
	msg := strings.TrimSpace(message)
	if msg == "" {
		return out
	}

	out.ServiceName = e.serviceName(msg)

	for _, p := range e.quantity {
		m := p.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		if q, err := strconv.Atoi(m[1]); err == nil && float64(q) <= maxNumber {
			out.Quantity = &q
			break
		}
	}

	for _, p := range e.price {
		m := p.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		if v, ok := parseNumber(m[1]); ok {
			out.Price = &v
			break
		}
	}

	for _, p := range e.change {
		m := p.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		if len(m) == 2 {
			if v, ok := parseNumber(m[1]); ok {
				out.NewValue = &v
				break
			}
			continue
		}
		oldV, okOld := parseNumber(m[1])
		newV, okNew := parseNumber(m[2])
		if okOld && okNew {
			out.OldValue, out.NewValue = &oldV, &newV
			break
		}
	}

	return out
}

func (e *Extractor) serviceName(msg string) string {
	for _, p := range e.service {
		m := p.FindStringSubmatch(msg)
		if m == nil || len(m) < 2 {
			continue
		}
		name := CleanServiceName(m[1])
		if !usableName(name) {
			continue
		}
		if embeddedForPart.MatchString(name) {
			parts := embeddedForPart.Split(name, -1)
			name = strings.TrimSpace(parts[len(parts)-1])
		}
		return name
	}
	return ""
}

// CleanServiceName strips filler prefixes ("create a", "quotation for", a
// leading verb), then filler suffixes ("services", "works", "quotation") and
// a trailing bare number. A suffix is only dropped when at least two words
// precede it, so short names such as "Tiles Work" survive intact.
func CleanServiceName(name string) string {
	name = strings.TrimSpace(name)
	for _, p := range prefixPatterns {
		for {
			next := strings.TrimSpace(p.ReplaceAllString(name, ""))
			if next == name {
				break
			}
			name = next
		}
	}
	for {
		loc := fillerSuffix.FindStringIndex(name)
		if loc == nil {
			break
		}
		head := strings.TrimSpace(name[:loc[0]])
		if len(strings.Fields(head)) < 2 {
			break
		}
		name = head
	}
	name = trailingNumber.ReplaceAllString(name, "")
	return strings.TrimSpace(name)
}

func usableName(name string) bool {
	if len([]rune(name)) <= 2 {
		return false
	}
	if _, verb := commandVerbs[strings.ToLower(name)]; verb {
		return false
	}
	for _, r := range name {
		if !unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimRight(strings.ReplaceAll(s, ",", ""), ".")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) || math.Abs(v) > maxNumber {
		return 0, false
	}
	return v, true
}

var defaultExtractor = NewExtractor()

// Extract uses the default pattern lists.
func Extract(message string) Entities {
	return defaultExtractor.Extract(message)
}
