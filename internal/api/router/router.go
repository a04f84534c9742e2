package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/synquot/internal/conversation"
	httpmiddleware "github.com/wolfman30/synquot/internal/http/middleware"
	"github.com/wolfman30/synquot/internal/observability/metrics"
	"github.com/wolfman30/synquot/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	MetricsHandler      http.Handler
	// StatsGatherer backs /v1/stats; nil disables the route.
	StatsGatherer      prometheus.Gatherer
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
	// TrustProxyHeaders rewrites RemoteAddr from proxy headers before rate
	// limiting and logging.
	TrustProxyHeaders bool
	// LLMMode is reported by /health ("openrouter", "ollama", "rule-based", ...).
	LLMMode string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", health(cfg.LLMMode))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

		if cfg.StatsGatherer != nil {
			v1.Get("/stats", stats(cfg.StatsGatherer))
		}
		if h := cfg.ConversationHandler; h != nil {
			v1.Route("/quotations/{sessionID}", func(q chi.Router) {
				q.Get("/", h.Get)
				q.Delete("/", h.Clear)
				q.Post("/messages", h.Message)
			})
		}
	})

	return r
}

func health(mode string) http.HandlerFunc {
	if mode == "" {
		mode = "rule-based"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"llm":    mode,
		})
	}
}

func stats(gatherer prometheus.Gatherer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot(gatherer))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
