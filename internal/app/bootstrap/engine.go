package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/synquot/cmd/mainconfig"
	"github.com/wolfman30/synquot/internal/cache"
	appconfig "github.com/wolfman30/synquot/internal/config"
	"github.com/wolfman30/synquot/internal/conversation"
	"github.com/wolfman30/synquot/internal/llm"
	"github.com/wolfman30/synquot/internal/observability/metrics"
	"github.com/wolfman30/synquot/pkg/logging"
)

// cachePrefix namespaces engine cache keys inside a shared redis.
const cachePrefix = "synquot:"

// Backend is a configured LLM binding plus the models to try on it.
type Backend struct {
	llm.Backend
	Provider       string
	PrimaryModel   string
	FallbackModels []string
	close          func() error
}

// Close releases provider resources.
func (b *Backend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

// BuildBackend returns the binding selected by LLM_PROVIDER, or nil for
// the "none" provider.
func BuildBackend(ctx context.Context, cfg *appconfig.Config) (*Backend, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	fallbacks := append([]string{}, cfg.LLMFallbackModels...)

	switch cfg.LLMProvider {
	case appconfig.ProviderNone:
		return nil, nil

	case appconfig.ProviderOpenRouter:
		if len(fallbacks) == 0 {
			fallbacks = append(fallbacks, llm.DefaultFallbackModels...)
		}
		return &Backend{
			Backend: llm.NewOpenRouterBackend(llm.OpenRouterConfig{
				APIKey:         cfg.OpenRouterAPIKey,
				URL:            cfg.OpenRouterAPIURL,
				Referer:        cfg.HTTPReferer,
				Title:          cfg.AppTitle,
				ConnectTimeout: cfg.LLMConnectTimeout,
				ReadTimeout:    cfg.LLMReadTimeout,
			}),
			Provider:       cfg.LLMProvider,
			PrimaryModel:   cfg.OpenRouterModel,
			FallbackModels: fallbacks,
		}, nil

	case appconfig.ProviderOllama:
		backend, err := llm.NewOllamaBackend(llm.OllamaConfig{
			BaseURL:        cfg.OllamaBaseURL,
			ConnectTimeout: cfg.LLMConnectTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("bootstrap: ollama: %w", err)
		}
		return &Backend{Backend: backend, Provider: cfg.LLMProvider, PrimaryModel: cfg.OllamaModel, FallbackModels: fallbacks}, nil

	case appconfig.ProviderBedrock:
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		return &Backend{
			Backend:        llm.NewBedrockBackend(bedrockruntime.NewFromConfig(awsCfg)),
			Provider:       cfg.LLMProvider,
			PrimaryModel:   cfg.BedrockModelID,
			FallbackModels: fallbacks,
		}, nil

	case appconfig.ProviderGemini:
		backend, err := llm.NewGeminiBackend(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini: %w", err)
		}
		return &Backend{
			Backend:        backend,
			Provider:       cfg.LLMProvider,
			PrimaryModel:   cfg.GeminiModel,
			FallbackModels: fallbacks,
			close:          backend.Close,
		}, nil
	}
	return nil, fmt.Errorf("bootstrap: unknown llm provider %q", cfg.LLMProvider)
}

// GatewayConfig maps application config onto the gateway.
func GatewayConfig(cfg *appconfig.Config, backend *Backend) llm.GatewayConfig {
	gw := llm.DefaultGatewayConfig()
	gw.Temperature = float32(cfg.LLMTemperature)
	gw.FreeMaxTokens = cfg.LLMFreeMaxTokens
	gw.PremiumMaxTokens = cfg.LLMPremiumMaxTokens
	gw.DefaultMaxTokens = cfg.LLMDefaultMaxTokens
	if backend != nil {
		gw.PrimaryModel = backend.PrimaryModel
		gw.FallbackModels = backend.FallbackModels
	}
	return gw
}

// EngineConfig maps application config onto the conversation engine.
func EngineConfig(cfg *appconfig.Config) conversation.EngineConfig {
	ec := conversation.DefaultEngineConfig()
	ec.CacheEnabled = cfg.CacheEnabled
	ec.CacheTTL = cfg.CacheTTL
	ec.FuzzyThreshold = cfg.FuzzyThreshold
	ec.History = conversation.HistoryOptimizer{
		MaxMessages:      cfg.HistoryMaxMessages,
		SummaryThreshold: cfg.HistorySummaryThreshold,
		RecentWindow:     cfg.HistoryRecentWindow,
	}
	return ec
}

// Engine bundles the wired engine with the pieces hosts need to shut down.
type Engine struct {
	*conversation.Engine
	Gateway *llm.Gateway
	Backend *Backend
}

// Close releases the backend.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	return e.Backend.Close()
}

// BuildEngine wires the engine from config. A nil redis client falls back
// to an in-process response cache; offline skips the model entirely.
func BuildEngine(ctx context.Context, cfg *appconfig.Config, redisClient *redis.Client, m *metrics.EngineMetrics, logger *logging.Logger, offline bool) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	opts := []conversation.EngineOption{
		conversation.WithLogger(logger.Component("conversation")),
		conversation.WithMetrics(m),
	}
	if cfg.CacheEnabled {
		var store cache.Store
		if redisClient != nil {
			store = cache.NewRedisStore(redisClient, cachePrefix)
		} else {
			store = cache.NewMemoryStore(0)
		}
		opts = append(opts, conversation.WithCache(store))
	}

	out := &Engine{}
	if !offline {
		backend, err := BuildBackend(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if backend != nil {
			out.Backend = backend
			out.Gateway = llm.NewGateway(backend, GatewayConfig(cfg, backend), logger, m)
			opts = append(opts, conversation.WithGateway(out.Gateway))
			logger.Info("llm gateway configured",
				"provider", backend.Provider,
				"models", strings.Join(out.Gateway.Models(), ","),
			)
		}
	}
	if out.Gateway == nil {
		logger.Warn("no llm configured; every message uses the rule-based engine")
	}

	out.Engine = conversation.NewEngine(EngineConfig(cfg), opts...)
	return out, nil
}
