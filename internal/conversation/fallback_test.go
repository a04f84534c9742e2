package conversation

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/synquot/internal/quotation"
)

func sampleDocument() quotation.Document {
	doc := quotation.Initialize()
	doc = doc.WithService(quotation.NewServiceLine("Pipeline Works", 10, 1200))
	doc = doc.WithService(quotation.NewServiceLine("Tiles Work", 5, 5450))
	return quotation.Normalize(doc)
}

func TestFallbackRemoveFuzzyMatch(t *testing.T) {
	f := NewRuleBasedFallback(nil, nil, 0)
	doc := sampleDocument()

	reply, updated := f.Apply("remove pipeline work", doc)

	assert.Equal(t, "I've removed 'Pipeline Works' from the quotation.", reply)
	require.Len(t, updated.Services, 1)
	assert.Equal(t, "Tiles Work", updated.Services[0].ServiceName)
	assert.Equal(t, 27250.0, updated.Subtotal)
	assert.Equal(t, 27250.0, updated.GrandTotal)
	assert.Len(t, doc.Services, 2, "input document must not change")
}

func TestFallbackRemoveUnknownService(t *testing.T) {
	f := NewRuleBasedFallback(nil, nil, 0)
	doc := sampleDocument()

	reply, updated := f.Apply("remove Hosting", doc)

	assert.Equal(t, "I couldn't find a service matching 'Hosting'. Please check the service name and try again.", reply)
	assert.Equal(t, doc, updated)
}

func TestFallbackRemovesOnlyOneDuplicate(t *testing.T) {
	doc := quotation.Initialize().
		WithService(quotation.NewServiceLine("Hosting", 1, 100)).
		WithService(quotation.NewServiceLine("Hosting", 2, 100))

	_, updated := NewRuleBasedFallback(nil, nil, 0).Apply("delete Hosting", doc)

	require.Len(t, updated.Services, 1)
	assert.Equal(t, 2, updated.Services[0].Quantity)
	assert.Equal(t, 200.0, updated.GrandTotal)
}

func TestFallbackAdd(t *testing.T) {
	f := NewRuleBasedFallback(nil, nil, 0)

	reply, updated := f.Apply("add service Tiles Work quantity 5 price 5450", quotation.Initialize())

	assert.Equal(t, "I've added 'Tiles Work' with quantity 5 and price ₹5,450.00.", reply)
	require.Len(t, updated.Services, 1)
	line := updated.Services[0]
	assert.Equal(t, "Tiles Work", line.ServiceName)
	assert.Equal(t, 5, line.Quantity)
	assert.Equal(t, 27250.0, line.Amount)
	assert.Equal(t, 27250.0, updated.GrandTotal)
	assert.True(t, quotation.Validate(updated))
}

func TestFallbackAddAsksForMissingFields(t *testing.T) {
	f := NewRuleBasedFallback(nil, nil, 0)
	doc := sampleDocument()

	reply, updated := f.Apply("add Hosting quantity 2", doc)
	assert.Equal(t, "What price should I use for 'Hosting'?", reply)
	assert.Equal(t, doc, updated)

	reply, updated = f.Apply("add something", doc)
	assert.Equal(t, "Which service should I add? Please tell me the service name, quantity and price.", reply)
	assert.Equal(t, doc, updated)
}

func TestFallbackAddIgnoresOversizedNumbers(t *testing.T) {
	f := NewRuleBasedFallback(nil, nil, 0)
	doc := sampleDocument()

	reply, updated := f.Apply("add Foo quantity 1 price 1"+strings.Repeat("0", 307), doc)
	assert.Equal(t, "What price should I use for 'Foo'?", reply)
	assert.Equal(t, doc, updated)
	_, err := json.Marshal(updated)
	require.NoError(t, err)

	reply, updated = f.Apply("add Rs quantity 2 price 100", doc)
	assert.Equal(t, "Which service should I add? Please tell me the service name.", reply)
	assert.Equal(t, doc, updated)
}

func TestFallbackViewResetAndUnknown(t *testing.T) {
	f := NewRuleBasedFallback(nil, nil, 0)
	doc := sampleDocument()

	reply, updated := f.Apply("show quotation", doc)
	assert.Equal(t, "Current quotation has 2 service(s) with a grand total of ₹39,250.00.", reply)
	assert.Equal(t, doc, updated)

	reply, updated = f.Apply("start over", doc)
	assert.Equal(t, replyReset, reply)
	assert.Empty(t, updated.Services)
	assert.NotNil(t, updated.Services)

	reply, updated = f.Apply("hello there", doc)
	assert.Equal(t, replyRephrase, reply)
	assert.Equal(t, doc, updated)
}

func TestJoinFields(t *testing.T) {
	tests := map[string][]string{
		"":                   nil,
		"price":              {"price"},
		"quantity and price": {"quantity", "price"},
		"a, b and c":         {"a", "b", "c"},
	}
	for want, in := range tests {
		if got := joinFields(in); got != want {
			t.Errorf("joinFields(%v) = %q, want %q", in, got, want)
		}
	}
}
