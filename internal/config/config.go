package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// FileEnvVar names an optional config file (yaml, json, toml or .env) whose
// keys use the same lower-case names as the environment variables.
const FileEnvVar = "SYNQUOT_CONFIG_FILE"

// LLM providers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderBedrock    = "bedrock"
	ProviderGemini     = "gemini"
	ProviderNone       = "none"
)

// Config holds application configuration
type Config struct {
	Port     string `mapstructure:"port"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`

	LLMProvider         string        `mapstructure:"llm_provider"`
	OpenRouterAPIKey    string        `mapstructure:"openrouter_api_key"`
	OpenRouterAPIURL    string        `mapstructure:"openrouter_api_url"`
	OpenRouterModel     string        `mapstructure:"openrouter_model"`
	LLMFallbackModels   []string      `mapstructure:"llm_fallback_models"`
	LLMTemperature      float64       `mapstructure:"llm_temperature"`
	LLMConnectTimeout   time.Duration `mapstructure:"llm_connect_timeout"`
	LLMReadTimeout      time.Duration `mapstructure:"llm_read_timeout"`
	LLMFreeMaxTokens    int           `mapstructure:"llm_free_max_tokens"`
	LLMPremiumMaxTokens int           `mapstructure:"llm_premium_max_tokens"`
	LLMDefaultMaxTokens int           `mapstructure:"llm_default_max_tokens"`
	HTTPReferer         string        `mapstructure:"http_referer"`
	AppTitle            string        `mapstructure:"app_title"`

	OllamaBaseURL string `mapstructure:"ollama_base_url"`
	OllamaModel   string `mapstructure:"ollama_model"`

	AWSRegion           string `mapstructure:"aws_region"`
	AWSAccessKeyID      string `mapstructure:"aws_access_key_id"`
	AWSSecretAccessKey  string `mapstructure:"aws_secret_access_key"`
	AWSEndpointOverride string `mapstructure:"aws_endpoint_override"`
	BedrockModelID      string `mapstructure:"bedrock_model_id"`

	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	GeminiModel  string `mapstructure:"gemini_model"`

	CacheEnabled  bool          `mapstructure:"cache_enabled"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisTLS      bool          `mapstructure:"redis_tls"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`

	HistoryMaxMessages      int     `mapstructure:"history_max_messages"`
	HistorySummaryThreshold int     `mapstructure:"history_summary_threshold"`
	HistoryRecentWindow     int     `mapstructure:"history_recent_window"`
	FuzzyThreshold          float64 `mapstructure:"fuzzy_threshold"`

	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
	RateLimitRPS       float64  `mapstructure:"rate_limit_rps"`
	RateLimitBurst     int      `mapstructure:"rate_limit_burst"`
	// TrustProxyHeaders honours X-Forwarded-For and X-Real-Ip. Enable only
	// behind a proxy that overwrites them.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers"`
}

var defaults = map[string]any{
	"port":      "8080",
	"env":       "development",
	"log_level": "info",

	"llm_provider":           ProviderOpenRouter,
	"openrouter_api_key":     "",
	"openrouter_api_url":     "https://openrouter.ai/api/v1/chat/completions",
	"openrouter_model":       "google/gemini-flash-1.5:free",
	"llm_fallback_models":    []string{},
	"llm_temperature":        0.3,
	"llm_connect_timeout":    10 * time.Second,
	"llm_read_timeout":       30 * time.Second,
	"llm_free_max_tokens":    1000,
	"llm_premium_max_tokens": 1200,
	"llm_default_max_tokens": 1500,
	"http_referer":           "https://synquot.local",
	"app_title":              "SynQuot AI Quotation Maker",

	"ollama_base_url": "http://localhost:11434",
	"ollama_model":    "llama3.1",

	"aws_region":            "us-east-1",
	"aws_access_key_id":     "",
	"aws_secret_access_key": "",
	"aws_endpoint_override": "",
	"bedrock_model_id":      "",

	"gemini_api_key": "",
	"gemini_model":   "gemini-2.5-flash",

	"cache_enabled":  true,
	"cache_ttl":      5 * time.Minute,
	"redis_addr":     "localhost:6379",
	"redis_password": "",
	"redis_tls":      false,
	"session_ttl":    24 * time.Hour,

	"history_max_messages":      20,
	"history_summary_threshold": 15,
	"history_recent_window":     10,
	"fuzzy_threshold":           0.6,

	"cors_allowed_origins": []string{},
	"rate_limit_rps":       0.0,
	"rate_limit_burst":     20,
	"trust_proxy_headers":  false,
}

// Load reads configuration from defaults, the optional file named by
// SYNQUOT_CONFIG_FILE and the environment, in increasing precedence.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path := strings.TrimSpace(os.Getenv(FileEnvVar)); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.LLMFallbackModels = trimList(cfg.LLMFallbackModels)
	cfg.CORSAllowedOrigins = trimList(cfg.CORSAllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderOpenRouter, ProviderOllama, ProviderBedrock, ProviderGemini, ProviderNone:
	default:
		return fmt.Errorf("config: unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("config: LLM_TEMPERATURE must be within [0, 2], got %v", c.LLMTemperature)
	}
	if c.FuzzyThreshold <= 0 || c.FuzzyThreshold > 1 {
		return fmt.Errorf("config: FUZZY_THRESHOLD must be within (0, 1], got %v", c.FuzzyThreshold)
	}
	if c.HistoryRecentWindow > c.HistoryMaxMessages {
		return fmt.Errorf("config: HISTORY_RECENT_WINDOW (%d) exceeds HISTORY_MAX_MESSAGES (%d)", c.HistoryRecentWindow, c.HistoryMaxMessages)
	}
	if c.LLMProvider == ProviderBedrock && strings.TrimSpace(c.BedrockModelID) == "" {
		return fmt.Errorf("config: BEDROCK_MODEL_ID is required for the bedrock provider")
	}
	return nil
}

// Production reports whether the service runs in production.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

func trimList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
