package intent

import (
	"regexp"
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		message string
		want    Intent
	}{
		{"add service Tiles Work quantity 5 price 5450", Add},
		{"create a Quotation For Website quantity 1 price 45000", Add},
		{"remove Tiles Work", Remove},
		{"delete the painting service", Remove},
		{"change GST to 10", Change},
		{"update quantity of tiles to 3", Change},
		{"show quotation", View},
		{"list services", View},
		{"start over", Reset},
		{"new quotation please", Reset},
		{"what is the total", Calculate},
		{"xyzzy", Unknown},
		{"   ", Unknown},
		// add outranks remove by table order
		{"add roofing and remove painting", Add},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			if got := Classify(tt.message); got != tt.want {
				t.Fatalf("Classify(%q) = %q, want %q", tt.message, got, tt.want)
			}
		})
	}
}

func TestClassifierCustomRules(t *testing.T) {
	c := NewClassifier(Rule{Intent: View, Patterns: []*regexp.Regexp{regexp.MustCompile(`(?i)\bpeek\b`)}})
	if got := c.Classify("peek at it"); got != View {
		t.Fatalf("expected view, got %q", got)
	}
	if got := c.Classify("add x"); got != Unknown {
		t.Fatalf("custom table should replace defaults, got %q", got)
	}
}

func TestIntentIsReadOnly(t *testing.T) {
	if !View.IsReadOnly() || !Calculate.IsReadOnly() {
		t.Fatal("view and calculate should be read-only")
	}
	if Add.IsReadOnly() || Unknown.IsReadOnly() {
		t.Fatal("add and unknown should not be read-only")
	}
}

func TestExtractAddMessage(t *testing.T) {
	e := Extract("add service Tiles Work Quantity 5 price 5450")
	if e.ServiceName != "Tiles Work" {
		t.Fatalf("service name = %q", e.ServiceName)
	}
	if e.Quantity == nil || *e.Quantity != 5 {
		t.Fatalf("quantity = %v", e.Quantity)
	}
	if e.Price == nil || *e.Price != 5450 {
		t.Fatalf("price = %v", e.Price)
	}
	if e.OldValue != nil || e.NewValue != nil {
		t.Fatalf("unexpected change values %v %v", e.OldValue, e.NewValue)
	}
}

func TestExtractServiceName(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"create a Quotation For Website quantity 1 price 45000", "Website"},
		{"add Web Development quantity 2 price 25000", "Web Development"},
		{"add apples qty 3 rate 20", "apples"},
		{"Mobile App Development Service quantity 1 price 90000", "Mobile App Development"},
		{"Logo Design qty 2", "Logo Design"},
		{"remove pipeline work", "pipeline work"},
		{"remove the service Tiles Work from the quotation", "Tiles Work"},
		{"add a service for Hosting price 500", "Hosting"},
		{"add 12 quantity 3", ""},
		{"add ab price 4", ""},
		{"add Rs quantity 2 price 100", ""},
		{"Make qty 2", ""},
		{"show quotation", ""},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			if got := Extract(tt.message).ServiceName; got != tt.want {
				t.Fatalf("Extract(%q).ServiceName = %q, want %q", tt.message, got, tt.want)
			}
		})
	}
}

func TestExtractPrices(t *testing.T) {
	tests := []struct {
		message string
		want    float64
	}{
		{"add Website price is ₹45,000", 45000},
		{"add Website qty 1 cost: 1200.50", 1200.5},
		{"add Website 300 rupees", 300},
		{"add Website 700 rate", 700},
		{"add Website qty 2 rs. 99", 99},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			e := Extract(tt.message)
			if e.Price == nil || *e.Price != tt.want {
				t.Fatalf("price = %v, want %v", e.Price, tt.want)
			}
		})
	}
}

func TestExtractQuantityForms(t *testing.T) {
	e := Extract("add Tiles 4 units price 10")
	if e.Quantity == nil || *e.Quantity != 4 {
		t.Fatalf("quantity = %v", e.Quantity)
	}
	e = Extract("add Tiles qty: 7")
	if e.Quantity == nil || *e.Quantity != 7 {
		t.Fatalf("quantity = %v", e.Quantity)
	}
	e = Extract("add Tiles")
	if e.Quantity != nil || e.Price != nil {
		t.Fatalf("expected nothing numeric, got %+v", e)
	}
}

func TestExtractRejectsOversizedNumbers(t *testing.T) {
	e := Extract("add Foo quantity 99999999999999999 price 1" + strings.Repeat("0", 307))
	if e.Price != nil {
		t.Fatalf("price = %v, want nil", *e.Price)
	}
	if e.Quantity != nil {
		t.Fatalf("quantity = %v, want nil", *e.Quantity)
	}
	if e.ServiceName != "Foo" {
		t.Fatalf("service = %q", e.ServiceName)
	}
}

func TestExtractChangeValues(t *testing.T) {
	e := Extract("change GST to 10")
	if e.OldValue != nil {
		t.Fatalf("old value = %v, want nil", *e.OldValue)
	}
	if e.NewValue == nil || *e.NewValue != 10 {
		t.Fatalf("new value = %v, want 10", e.NewValue)
	}

	e = Extract("update from 5450 to 6000")
	if e.OldValue == nil || *e.OldValue != 5450 || e.NewValue == nil || *e.NewValue != 6000 {
		t.Fatalf("got old=%v new=%v", e.OldValue, e.NewValue)
	}
}

// "change quantity 1 to 5" matches both the quantity pattern and the
// old/new pair; both are reported.
func TestExtractChangeQuantityPrecedence(t *testing.T) {
	e := Extract("change quantity 1 to 5")
	if e.Quantity == nil || *e.Quantity != 1 {
		t.Fatalf("quantity = %v, want 1", e.Quantity)
	}
	if e.OldValue == nil || *e.OldValue != 1 {
		t.Fatalf("old value = %v, want 1", e.OldValue)
	}
	if e.NewValue == nil || *e.NewValue != 5 {
		t.Fatalf("new value = %v, want 5", e.NewValue)
	}
}

func TestExtractorOptions(t *testing.T) {
	x := NewExtractor(WithServicePatterns(regexp.MustCompile(`(?i)^item:\s*(.+)$`)))
	if got := x.Extract("item: Plumbing Repairs").ServiceName; got != "Plumbing Repairs" {
		t.Fatalf("custom pattern not applied, got %q", got)
	}
	if !x.Extract("").Empty() {
		t.Fatal("empty message should extract nothing")
	}
}

func TestCleanServiceName(t *testing.T) {
	tests := map[string]string{
		"Quotation For Website":    "Website",
		"create a service for CMS": "CMS",
		"Tiles Work":               "Tiles Work",
		"Pipeline Works":           "Pipeline Works",
		"Interior Painting Works":  "Interior Painting",
		"Website 2":                "Website",
		"for Audit":                "Audit",
	}
	for in, want := range tests {
		if got := CleanServiceName(in); got != want {
			t.Errorf("CleanServiceName(%q) = %q, want %q", in, got, want)
		}
	}
}
