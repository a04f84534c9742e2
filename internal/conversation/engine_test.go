package conversation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/synquot/internal/cache"
	"github.com/wolfman30/synquot/internal/intent"
	"github.com/wolfman30/synquot/internal/llm"
	"github.com/wolfman30/synquot/internal/observability/metrics"
	"github.com/wolfman30/synquot/internal/quotation"
	"github.com/wolfman30/synquot/pkg/logging"
)

type stubGateway struct {
	mu       sync.Mutex
	calls    int
	messages [][]llm.Message
	text     string
	err      error
}

func (s *stubGateway) Complete(_ context.Context, messages []llm.Message) (llm.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.messages = append(s.messages, messages)
	if s.err != nil {
		return llm.Result{}, s.err
	}
	return llm.Result{Text: s.text, Model: "stub/model", Attempts: 1}, nil
}

func newTestEngine(opts ...EngineOption) *Engine {
	base := []EngineOption{WithLogger(logging.Discard())}
	return NewEngine(DefaultEngineConfig(), append(base, opts...)...)
}

func TestEngineStandaloneCreatesQuotation(t *testing.T) {
	engine := newTestEngine()

	res := engine.Process(context.Background(), Request{Message: "create a Quotation For Website quantity 1 price 45000"})

	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, intent.Add, res.Intent)
	require.Len(t, res.Document.Services, 1)
	line := res.Document.Services[0]
	assert.Equal(t, "Website", line.ServiceName)
	assert.Equal(t, 1, line.Quantity)
	assert.Equal(t, 45000.0, line.Amount)
	assert.Equal(t, 45000.0, res.Document.Subtotal)
	assert.Equal(t, 45000.0, res.Document.GrandTotal)
	assert.Equal(t, "I've added 'Website' with quantity 1 and price ₹45,000.00.", res.Reply)
}

func TestEngineUsesModelReply(t *testing.T) {
	gw := &stubGateway{text: "```json\n" + validReply + "\n```"}
	engine := newTestEngine(WithGateway(gw))

	res := engine.Process(context.Background(), Request{Message: "create a Quotation For Website quantity 1 price 45000"})

	assert.Equal(t, SourceLLM, res.Source)
	assert.Equal(t, "stub/model", res.Model)
	assert.Equal(t, "Added Website", res.Reply)
	require.Len(t, res.Document.Services, 1)
	assert.Equal(t, 45000.0, res.Document.GrandTotal)
	assert.Equal(t, 45000.0, res.Document.Services[0].Price, "aliases are synced")

	msgs := gw.messages[0]
	require.Len(t, msgs, 3)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "CURRENT INTENT: User wants to ADD a service.")
	assert.Contains(t, msgs[0].Content, "EXTRACTED ENTITIES: Service name mentioned: Website, Quantity mentioned: 1, Price mentioned: ₹45000")
	assert.True(t, strings.HasPrefix(msgs[1].Content, "Current quotation state:"))
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "create a Quotation For Website quantity 1 price 45000"}, msgs[2])
}

func TestEngineRecomputesModelArithmetic(t *testing.T) {
	gw := &stubGateway{text: `{"message": "done", "quotation": {"services": [{"service_name": "Hosting", "quantity": "3", "price": "1,000"}], "gst_percentage": 18, "grand_total": 1}}`}
	engine := newTestEngine(WithGateway(gw))

	res := engine.Process(context.Background(), Request{Message: "add Hosting quantity 3 price 1000"})

	require.Len(t, res.Document.Services, 1)
	assert.Equal(t, 3000.0, res.Document.Subtotal)
	assert.Equal(t, 540.0, res.Document.GSTAmount)
	assert.Equal(t, 3540.0, res.Document.GrandTotal)
}

func TestEngineIncludesSummaryForLongHistory(t *testing.T) {
	gw := &stubGateway{text: validReply}
	engine := newTestEngine(WithGateway(gw))

	history := make([]llm.Message, 0, 18)
	for i := 0; i < 9; i++ {
		history = append(history,
			llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("add service %d", i)},
			llm.Message{Role: llm.RoleAssistant, Content: "ok"},
		)
	}
	engine.Process(context.Background(), Request{Message: "what now", History: history})

	msgs := gw.messages[0]
	// system prompt, summary, 10 history turns, quotation state, user message
	require.Len(t, msgs, 14)
	assert.True(t, strings.HasPrefix(msgs[1].Content, "Conversation summary: User has added/modified 4 service(s)"), msgs[1].Content)
}

func TestEngineKeepsDocumentWhenModelQuotationMalformed(t *testing.T) {
	gw := &stubGateway{text: `{"message": "Removed it", "quotation": {"services": ["Tiles Work"]}}`}
	reg := prometheus.NewRegistry()
	engine := newTestEngine(WithGateway(gw), WithMetrics(metrics.NewEngineMetrics(reg)))
	doc := sampleDocument()

	res := engine.Process(context.Background(), Request{Message: "remove tiles", Document: &doc})

	assert.Equal(t, SourceLLM, res.Source)
	assert.Equal(t, ErrorKindValidation, res.ErrorKind)
	assert.Equal(t, doc, res.Document)
	assert.Equal(t, "Removed it\n\n"+ErrorReply(ErrorKindValidation), res.Reply)
	assert.Equal(t, int64(1), metrics.Snapshot(reg).RequestsBySource["llm"])
}

func TestEngineFallsBackWhenReplyUnstructured(t *testing.T) {
	gw := &stubGateway{text: "Sorry, I removed it for you."}
	engine := newTestEngine(WithGateway(gw))
	doc := sampleDocument()

	res := engine.Process(context.Background(), Request{Message: "remove pipeline work", Document: &doc})

	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, ErrorKindParse, res.ErrorKind)
	require.Len(t, res.Document.Services, 1)
	assert.Equal(t, "Tiles Work", res.Document.Services[0].ServiceName)
}

func TestEngineErrorReplies(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"unauthorized", fmt.Errorf("%w: bad key", llm.ErrUnauthorized), ErrorKindAPIKey},
		{"timeout", fmt.Errorf("%w: %w", llm.ErrAllModelsFailed, context.DeadlineExceeded), ErrorKindTimeout},
		{"rate limited", fmt.Errorf("%w: %w", llm.ErrAllModelsFailed, &llm.StatusError{StatusCode: http.StatusTooManyRequests}), ErrorKindRateLimit},
		{"all failed", fmt.Errorf("%w: %w", llm.ErrAllModelsFailed, errors.New("connection refused")), ErrorKindConnection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(WithGateway(&stubGateway{err: tt.err}))
			doc := sampleDocument()

			res := engine.Process(context.Background(), Request{Message: "add Hosting quantity 1 price 10", Document: &doc})

			assert.Equal(t, SourceError, res.Source)
			assert.Equal(t, tt.kind, res.ErrorKind)
			assert.Equal(t, ErrorReply(tt.kind), res.Reply)
			assert.Equal(t, doc, res.Document)
		})
	}
}

func TestEngineCachesReadOnlyAnswers(t *testing.T) {
	reg := prometheus.NewRegistry()
	gw := &stubGateway{text: validReply}
	store := cache.NewMemoryStore(0)
	engine := newTestEngine(WithGateway(gw), WithCache(store), WithMetrics(metrics.NewEngineMetrics(reg)))
	doc := sampleDocument()

	first := engine.Process(context.Background(), Request{Message: "Show quotation", Document: &doc})
	second := engine.Process(context.Background(), Request{Message: "  show QUOTATION ", Document: &doc})

	assert.Equal(t, SourceLLM, first.Source)
	assert.Equal(t, SourceCache, second.Source)
	assert.Equal(t, first.Reply, second.Reply)
	assert.Equal(t, first.Document, second.Document)
	assert.Equal(t, 1, gw.calls)
	assert.Equal(t, 1, store.Len())

	stats := metrics.Snapshot(reg)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(1), stats.CacheMisses)

	// Mutating intents never read or write the cache.
	engine.Process(context.Background(), Request{Message: "add Hosting quantity 1 price 10", Document: &doc})
	assert.Equal(t, 2, gw.calls)
	assert.Equal(t, 1, store.Len())
}

func TestEngineCacheKeyDependsOnDocument(t *testing.T) {
	doc := sampleDocument()
	other := doc.WithService(quotation.NewServiceLine("Hosting", 1, 10))

	key := func(message string, d quotation.Document) string {
		t.Helper()
		k, ok := CacheKey(message, d)
		require.True(t, ok)
		return k
	}
	assert.Equal(t, key("Show total", doc), key(" show total", doc))
	assert.NotEqual(t, key("show total", doc), key("show total", other))
	assert.True(t, strings.HasPrefix(key("x", doc), CacheKeyPrefix))
}

func TestEngineCacheKeyRejectsUnencodableDocument(t *testing.T) {
	doc := quotation.Document{Services: []quotation.ServiceLine{{ServiceName: "Foo", Quantity: 1, UnitPrice: math.NaN()}}}

	k, ok := CacheKey("show total", doc)
	assert.False(t, ok)
	assert.Empty(t, k)
}

func TestEngineNilDocumentBehavesLikeEmpty(t *testing.T) {
	engine := newTestEngine()
	empty := quotation.Initialize()

	a := engine.Process(context.Background(), Request{Message: "show quotation"})
	b := engine.Process(context.Background(), Request{Message: "show quotation", Document: &empty})

	assert.Equal(t, a.Reply, b.Reply)
	assert.Equal(t, a.Document, b.Document)
	assert.Equal(t, "Current quotation has 0 service(s) with a grand total of ₹0.00.", a.Reply)
}

type panickingGateway struct{}

func (panickingGateway) Complete(context.Context, []llm.Message) (llm.Result, error) {
	panic("boom")
}

func TestEngineRecoversFromPanics(t *testing.T) {
	engine := newTestEngine(WithGateway(panickingGateway{}))
	doc := sampleDocument()

	res := engine.Process(context.Background(), Request{Message: "show quotation", Document: &doc})

	assert.Equal(t, SourceError, res.Source)
	assert.Equal(t, ErrorKindUnexpected, res.ErrorKind)
	assert.Equal(t, intent.View, res.Intent)
	assert.Equal(t, doc, res.Document)
}
