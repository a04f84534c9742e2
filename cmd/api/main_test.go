package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	appconfig "github.com/wolfman30/synquot/internal/config"
	"github.com/wolfman30/synquot/internal/conversation"
	"github.com/wolfman30/synquot/pkg/logging"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		Port:           "0",
		LLMProvider:    appconfig.ProviderNone,
		CacheEnabled:   true,
		CacheTTL:       5 * time.Minute,
		FuzzyThreshold: 0.6,
		RateLimitBurst: 20,
	}
}

func TestSetupMetricsExposesEngineCounters(t *testing.T) {
	_, handler, m := setupMetrics()
	if handler == nil || m == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	m.ObserveRequest("add", "fallback")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "synquot_requests_total") || !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected engine and runtime metrics to be exported")
	}
}

func TestSessionRepositoryFallsBackToMemory(t *testing.T) {
	cfg := testConfig()
	repo, closeFn := sessionRepository(context.Background(), cfg, logging.Discard())
	defer closeFn()
	if _, ok := repo.(*conversation.MemorySessionStore); !ok {
		t.Fatalf("expected memory store, got %T", repo)
	}

	mr := miniredis.RunT(t)
	cfg.RedisAddr = mr.Addr()
	repo, closeRedis := sessionRepository(context.Background(), cfg, logging.Discard())
	defer closeRedis()
	if _, ok := repo.(*conversation.SessionStore); !ok {
		t.Fatalf("expected redis store, got %T", repo)
	}
}

func TestNewServerServesQuotations(t *testing.T) {
	srv, cleanup, err := newServer(context.Background(), testConfig(), logging.Discard())
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/v1/quotations/demo/messages",
		strings.NewReader(`{"message": "add service Logo Design quantity 2 price 1500"}`))
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var resp conversation.MessageResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Quotation.GrandTotal != 3000 {
		t.Fatalf("grand total = %v", resp.Quotation.GrandTotal)
	}

	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if !strings.Contains(rr.Body.String(), `"rule-based"`) {
		t.Fatalf("health = %s", rr.Body.String())
	}
}
