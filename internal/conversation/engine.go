// Package conversation turns a chat message and the current quotation into a
// reply and an updated quotation, using a model when one is configured and
// deterministic rules otherwise.
package conversation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/synquot/internal/cache"
	"github.com/wolfman30/synquot/internal/intent"
	"github.com/wolfman30/synquot/internal/llm"
	"github.com/wolfman30/synquot/internal/observability/metrics"
	"github.com/wolfman30/synquot/internal/quotation"
	"github.com/wolfman30/synquot/pkg/logging"
)

// Source records which path produced a Result.
type Source string

const (
	SourceLLM      Source = "llm"
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback"
	SourceError    Source = "error"
)

// ErrorKind classifies why the model path could not be used.
type ErrorKind string

const (
	ErrorKindNone       ErrorKind = ""
	ErrorKindConnection ErrorKind = "api_connection"
	ErrorKindAPIKey     ErrorKind = "api_key"
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindRateLimit  ErrorKind = "rate_limit"
	ErrorKindParse      ErrorKind = "parse_error"
	ErrorKindValidation ErrorKind = "validation_error"
	ErrorKindUnexpected ErrorKind = "unexpected"
)

var errorReplies = map[ErrorKind]string{
	ErrorKindConnection: "I'm having trouble connecting to the AI service. Please check your internet connection and try again.",
	ErrorKindAPIKey:     "API configuration error. Please contact support.",
	ErrorKindTimeout:    "The request took too long. Please try again with a simpler request.",
	ErrorKindRateLimit:  "Too many requests. Please wait a moment and try again.",
	ErrorKindValidation: "There was an issue with the quotation format. I've kept your current quotation safe.",
	ErrorKindUnexpected: "An unexpected error occurred. Please try again.",
}

const (
	// CacheKeyPrefix namespaces response cache keys.
	CacheKeyPrefix = "chat_response:"

	defaultCacheTTL = 5 * time.Minute
	defaultUpdated  = "I've updated the quotation."
)

// Completer is the model gateway the engine calls. *llm.Gateway satisfies it.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (llm.Result, error)
}

// EngineConfig tunes the engine. Zero values fall back to the defaults.
type EngineConfig struct {
	SystemPrompt   string
	History        HistoryOptimizer
	CacheEnabled   bool
	CacheTTL       time.Duration
	FuzzyThreshold float64
}

// DefaultEngineConfig caches read-only answers for five minutes.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		SystemPrompt:   SystemPrompt,
		History:        DefaultHistoryOptimizer(),
		CacheEnabled:   true,
		CacheTTL:       defaultCacheTTL,
		FuzzyThreshold: 0.6,
	}
}

// Request is one user turn.
type Request struct {
	Message  string
	Document *quotation.Document
	History  []llm.Message
}

// Result is the engine's answer. Document is always valid.
type Result struct {
	Reply     string
	Document  quotation.Document
	Intent    intent.Intent
	Entities  intent.Entities
	Source    Source
	Model     string
	ErrorKind ErrorKind
}

// Engine orchestrates classification, caching, the model call and the
// rule-based fallback. It holds no per-conversation state.
type Engine struct {
	cfg        EngineConfig
	gateway    Completer
	cache      cache.Store
	classifier *intent.Classifier
	extractor  *intent.Extractor
	fallback   *RuleBasedFallback
	logger     *logging.Logger
	metrics    *metrics.EngineMetrics
	tracer     trace.Tracer
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithGateway enables the model path. Without it every message goes through
// the rule-based fallback.
func WithGateway(g Completer) EngineOption {
	return func(e *Engine) { e.gateway = g }
}

// WithCache enables response caching for read-only intents.
func WithCache(store cache.Store) EngineOption {
	return func(e *Engine) { e.cache = store }
}

func WithClassifier(c *intent.Classifier) EngineOption {
	return func(e *Engine) { e.classifier = c }
}

func WithExtractor(x *intent.Extractor) EngineOption {
	return func(e *Engine) { e.extractor = x }
}

func WithLogger(logger *logging.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *metrics.EngineMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *Engine) { e.tracer = tracer }
}

// NewEngine builds an engine from cfg and options.
func NewEngine(cfg EngineConfig, opts ...EngineOption) *Engine {
	def := DefaultEngineConfig()
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = def.SystemPrompt
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = def.FuzzyThreshold
	}
	cfg.History = cfg.History.withDefaults()

	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.classifier == nil {
		e.classifier = intent.NewClassifier()
	}
	if e.extractor == nil {
		e.extractor = intent.NewExtractor()
	}
	if e.logger == nil {
		e.logger = logging.Default()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("synquot.internal.conversation.engine")
	}
	e.fallback = NewRuleBasedFallback(e.classifier, e.extractor, cfg.FuzzyThreshold)
	return e
}

// Process handles one user message. It never fails: model and cache problems
// degrade to an explanatory reply or the rule-based fallback, and the
// returned document is always normalized and valid.
func (e *Engine) Process(ctx context.Context, req Request) (res Result) {
	ctx, span := e.tracer.Start(ctx, "conversation.process")
	defer span.End()

	current := quotation.Initialize()
	if req.Document != nil {
		current = quotation.Normalize(*req.Document)
	}
	in := e.classifier.Classify(req.Message)
	ent := e.extractor.Extract(req.Message)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("conversation: panic: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			e.logger.Error("conversation engine panic", "error", err, "intent", in)
			res = Result{Reply: errorReplies[ErrorKindUnexpected], Document: current, Source: SourceError, ErrorKind: ErrorKindUnexpected}
		}
		res.Intent, res.Entities = in, ent
		span.SetAttributes(
			attribute.String("conversation.intent", string(in)),
			attribute.String("conversation.source", string(res.Source)),
		)
		e.metrics.ObserveRequest(string(in), string(res.Source))
	}()

	return e.process(ctx, span, req, current, in, ent)
}

func (e *Engine) process(ctx context.Context, span trace.Span, req Request, current quotation.Document, in intent.Intent, ent intent.Entities) Result {
	cacheKey := ""
	if e.cacheable(in) {
		if key, ok := CacheKey(req.Message, current); ok {
			cacheKey = key
		} else {
			e.logger.Warn("quotation state unencodable; skipping cache", "intent", in)
		}
	}
	if cacheKey != "" {
		if hit, ok := e.lookup(ctx, cacheKey); ok {
			e.logger.Debug("cache hit", "intent", in)
			return Result{Reply: hit.Message, Document: hit.Quotation, Source: SourceCache}
		}
	}

	if e.gateway == nil {
		return e.applyFallback(in, ent, current, ErrorKindNone)
	}

	window, summary := e.cfg.History.Optimize(req.History)
	messages := buildMessages(EnhancedSystemPrompt(e.cfg.SystemPrompt, in, ent), summary, window, current, req.Message)

	out, err := e.gateway.Complete(ctx, messages)
	if err != nil {
		kind := errorKindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		e.logger.Warn("model call failed", "error", err, "kind", kind, "intent", in)
		return Result{Reply: errorReplies[kind], Document: current, Source: SourceError, ErrorKind: kind}
	}

	parsed, ok := ParseResponse(out.Text)
	if !ok {
		e.logger.Warn("model reply was not structured", "model", out.Model, "intent", in)
		res := e.applyFallback(in, ent, current, ErrorKindParse)
		res.Model = out.Model
		return res
	}

	reply := strings.TrimSpace(parsed.Message)
	if reply == "" {
		reply = defaultUpdated
	}

	updated, err := quotation.FromMap(parsed.Quotation)
	if err == nil {
		updated = quotation.Normalize(updated)
		if !quotation.Validate(updated) {
			err = errors.New("conversation: normalized quotation failed validation")
		}
	}
	if err != nil {
		e.metrics.ObserveValidationFailure()
		e.logger.Warn("quotation validation failed", "error", err, "model", out.Model)
		return Result{
			Reply:     reply + "\n\n" + errorReplies[ErrorKindValidation],
			Document:  current,
			Source:    SourceLLM,
			Model:     out.Model,
			ErrorKind: ErrorKindValidation,
		}
	}

	if cacheKey != "" {
		e.store(ctx, cacheKey, cachedReply{Message: reply, Quotation: updated})
	}
	return Result{Reply: reply, Document: updated, Source: SourceLLM, Model: out.Model}
}

func (e *Engine) applyFallback(in intent.Intent, ent intent.Entities, current quotation.Document, kind ErrorKind) Result {
	reply, doc := e.fallback.apply(in, ent, current)
	e.metrics.ObserveFallback(string(in))
	e.logger.Info("rule-based fallback applied", "intent", in, "reason", string(kind))
	return Result{Reply: reply, Document: doc, Source: SourceFallback, ErrorKind: kind}
}

type cachedReply struct {
	Message   string             `json:"message"`
	Quotation quotation.Document `json:"quotation"`
}

func (e *Engine) cacheable(in intent.Intent) bool {
	return e.cache != nil && e.cfg.CacheEnabled && in.IsReadOnly()
}

func (e *Engine) lookup(ctx context.Context, key string) (cachedReply, bool) {
	data, err := e.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			e.logger.Warn("cache read failed", "error", err)
		}
		e.metrics.ObserveCache(false)
		return cachedReply{}, false
	}
	var hit cachedReply
	if err := json.Unmarshal(data, &hit); err != nil {
		e.logger.Warn("cache entry undecodable", "error", err)
		e.metrics.ObserveCache(false)
		return cachedReply{}, false
	}
	e.metrics.ObserveCache(true)
	return hit, true
}

func (e *Engine) store(ctx context.Context, key string, entry cachedReply) {
	data, err := json.Marshal(entry)
	if err != nil {
		e.logger.Warn("cache entry unencodable", "error", err)
		return
	}
	if err := e.cache.Set(ctx, key, data, e.cfg.CacheTTL); err != nil {
		e.logger.Warn("cache write failed", "error", err)
	}
}

// CacheKey hashes the lower-cased trimmed message together with the
// quotation state. It reports false when the state cannot be encoded, in
// which case the request must bypass the cache.
func CacheKey(message string, doc quotation.Document) (string, bool) {
	payload, err := json.Marshal(map[string]any{
		"message":   strings.ToLower(strings.TrimSpace(message)),
		"quotation": doc,
	})
	if err != nil {
		return "", false
	}
	sum := sha256.Sum256(payload)
	return CacheKeyPrefix + hex.EncodeToString(sum[:]), true
}

func errorKindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case llm.IsUnauthorized(err):
		return ErrorKindAPIKey
	case llm.IsTimeout(err):
		return ErrorKindTimeout
	case llm.IsRateLimited(err):
		return ErrorKindRateLimit
	default:
		return ErrorKindConnection
	}
}

// ErrorReply returns the user-facing text for kind.
func ErrorReply(kind ErrorKind) string {
	if reply, ok := errorReplies[kind]; ok {
		return reply
	}
	return errorReplies[ErrorKindUnexpected]
}
