package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/synquot/internal/observability/metrics"
	"github.com/wolfman30/synquot/pkg/logging"
)

const (
	DefaultModel       = "google/gemini-flash-1.5:free"
	DefaultTemperature = 0.3
)

// DefaultFallbackModels is tried in order after the primary model.
var DefaultFallbackModels = []string{
	"google/gemini-flash-1.5:free",
	"meta-llama/llama-3.1-8b-instruct:free",
	"microsoft/phi-3-mini-128k-instruct:free",
	"qwen/qwen-2-7b-instruct:free",
	"mistralai/mistral-7b-instruct:free",
	"anthropic/claude-3-haiku",
	"anthropic/claude-3.5-sonnet",
}

// DefaultJSONModeFamilies are model id prefixes known to honor a JSON response format.
var DefaultJSONModeFamilies = []string{
	"anthropic/claude",
	"openai/gpt",
	"google/gemini",
	"meta-llama/llama-3",
	"mistralai/mistral",
}

// GatewayConfig is injected once at construction.
type GatewayConfig struct {
	PrimaryModel     string
	FallbackModels   []string
	Temperature      float32
	FreeMaxTokens    int
	PremiumMaxTokens int
	DefaultMaxTokens int
	JSONModeFamilies []string
	// AffordFactor scales the "can only afford N" hint for the single 402 retry.
	AffordFactor float64
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		PrimaryModel:     DefaultModel,
		FallbackModels:   append([]string(nil), DefaultFallbackModels...),
		Temperature:      DefaultTemperature,
		FreeMaxTokens:    1000,
		PremiumMaxTokens: 1200,
		DefaultMaxTokens: 1500,
		JSONModeFamilies: append([]string(nil), DefaultJSONModeFamilies...),
		AffordFactor:     0.8,
	}
}

// Result is the first successful completion.
type Result struct {
	Text     string
	Model    string
	Attempts int
	Usage    Usage
}

// Gateway tries the primary model and then each fallback model until one answers.
type Gateway struct {
	backend Backend
	cfg     GatewayConfig
	logger  *logging.Logger
	metrics *metrics.EngineMetrics
	tracer  trace.Tracer
}

func NewGateway(backend Backend, cfg GatewayConfig, logger *logging.Logger, m *metrics.EngineMetrics) *Gateway {
	if backend == nil {
		panic("llm: backend cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	defaults := DefaultGatewayConfig()
	if cfg.FreeMaxTokens <= 0 {
		cfg.FreeMaxTokens = defaults.FreeMaxTokens
	}
	if cfg.PremiumMaxTokens <= 0 {
		cfg.PremiumMaxTokens = defaults.PremiumMaxTokens
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = defaults.DefaultMaxTokens
	}
	if cfg.JSONModeFamilies == nil {
		cfg.JSONModeFamilies = defaults.JSONModeFamilies
	}
	if cfg.AffordFactor <= 0 || cfg.AffordFactor > 1 {
		cfg.AffordFactor = defaults.AffordFactor
	}
	return &Gateway{
		backend: backend,
		cfg:     cfg,
		logger:  logger.Component("llm_gateway"),
		metrics: m,
		tracer:  otel.Tracer("synquot.internal.llm.gateway"),
	}
}

// Models returns the primary model followed by the fallback list, without
// blanks or duplicates.
func (g *Gateway) Models() []string {
	seen := make(map[string]struct{}, len(g.cfg.FallbackModels)+1)
	out := make([]string, 0, len(g.cfg.FallbackModels)+1)
	for _, m := range append([]string{g.cfg.PrimaryModel}, g.cfg.FallbackModels...) {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// MaxTokensFor picks a smaller budget for free-tier and premium models to
// reduce credit exhaustion.
func (g *Gateway) MaxTokensFor(model string) int {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, ":free"):
		return g.cfg.FreeMaxTokens
	case strings.Contains(lower, "claude"), strings.Contains(lower, "gpt"):
		return g.cfg.PremiumMaxTokens
	default:
		return g.cfg.DefaultMaxTokens
	}
}

// SupportsJSONMode reports whether model belongs to a JSON-capable family.
func (g *Gateway) SupportsJSONMode(model string) bool {
	lower := strings.ToLower(model)
	for _, family := range g.cfg.JSONModeFamilies {
		if family != "" && strings.HasPrefix(lower, strings.ToLower(family)) {
			return true
		}
	}
	return false
}

// Complete walks the model list. A 401 aborts immediately; a 402 with an
// affordability hint retries the same model once with a reduced budget;
// everything else advances to the next model.
func (g *Gateway) Complete(ctx context.Context, messages []Message) (Result, error) {
	ctx, span := g.tracer.Start(ctx, "llm.gateway.complete")
	defer span.End()

	models := g.Models()
	if len(models) == 0 {
		span.SetStatus(codes.Error, ErrNoModels.Error())
		return Result{}, ErrNoModels
	}

	var lastErr error
	attempts := 0
	for i, model := range models {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		req := Request{
			Model:       model,
			Messages:    messages,
			Temperature: g.cfg.Temperature,
			MaxTokens:   g.MaxTokensFor(model),
			JSONMode:    g.SupportsJSONMode(model),
		}

		attempts++
		resp, err := g.attempt(ctx, req)
		if err == nil {
			return g.succeed(span, resp, model, i, attempts), nil
		}
		lastErr = err

		if IsUnauthorized(err) {
			g.logger.Error("llm credentials rejected", "model", model, "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "unauthorized")
			return Result{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}

		if affordable, ok := AffordableTokens(err); ok {
			budget := int(float64(affordable) * g.cfg.AffordFactor)
			if budget > 0 {
				g.logger.Warn("llm credit limited, retrying with reduced budget",
					"model", model, "affordable", affordable, "max_tokens", budget)
				req.MaxTokens = budget
				attempts++
				resp, err = g.attempt(ctx, req)
				if err == nil {
					return g.succeed(span, resp, model, i, attempts), nil
				}
				lastErr = err
				if IsUnauthorized(err) {
					span.RecordError(err)
					span.SetStatus(codes.Error, "unauthorized")
					return Result{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
				}
			}
		}

		g.logger.Warn("llm attempt failed",
			"model", model,
			"outcome", outcome(err),
			"model_unavailable", IsModelUnavailable(err),
			"error", err,
		)
	}

	if lastErr == nil {
		lastErr = errors.New("no attempt made")
	}
	span.SetAttributes(attribute.Int("llm.attempts", attempts))
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "all models failed")
	return Result{}, fmt.Errorf("%w: %w", ErrAllModelsFailed, lastErr)
}

// Probe sends messages to a single model without fallback.
func (g *Gateway) Probe(ctx context.Context, model string, messages []Message) (Result, error) {
	req := Request{
		Model:       model,
		Messages:    messages,
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.MaxTokensFor(model),
		JSONMode:    g.SupportsJSONMode(model),
	}
	resp, err := g.attempt(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: resp.Text, Model: model, Attempts: 1, Usage: resp.Usage}, nil
}

func (g *Gateway) attempt(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	resp, err := g.backend.Complete(ctx, req)
	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = ErrEmptyResponse
	}
	g.metrics.ObserveAttempt(req.Model, outcome(err), time.Since(start).Seconds())
	if err != nil {
		return Response{}, err
	}
	g.metrics.AddTokens(req.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return resp, nil
}

func (g *Gateway) succeed(span trace.Span, resp Response, model string, index, attempts int) Result {
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.attempts", attempts),
	)
	if index > 0 {
		g.logger.Info("llm fallback model succeeded", "model", model, "attempts", attempts)
	}
	return Result{
		Text:     resp.Text,
		Model:    model,
		Attempts: attempts,
		Usage:    resp.Usage,
	}
}
