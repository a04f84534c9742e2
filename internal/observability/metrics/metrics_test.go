package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestEngineMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(reg)
	m.ObserveRequest("add", "llm")
	m.ObserveRequest("view", "cache")
	m.ObserveRequest("remove", "fallback")
	m.ObserveAttempt("google/gemini-flash-1.5:free", "not_found", 0.2)
	m.ObserveAttempt("meta-llama/llama-3.1-8b-instruct:free", "ok", 1.5)
	m.AddTokens("meta-llama/llama-3.1-8b-instruct:free", 120, 80)
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveCache(false)
	m.ObserveFallback("remove")
	m.ObserveValidationFailure()

	stats := Snapshot(reg)
	if stats.RequestsBySource["llm"] != 1 || stats.RequestsBySource["cache"] != 1 || stats.RequestsBySource["fallback"] != 1 {
		t.Fatalf("unexpected request counts: %#v", stats.RequestsBySource)
	}
	if stats.AttemptsByResult["ok"] != 1 || stats.AttemptsByResult["not_found"] != 1 {
		t.Fatalf("unexpected attempt counts: %#v", stats.AttemptsByResult)
	}
	if stats.CacheHits != 1 || stats.CacheMisses != 2 {
		t.Fatalf("cache hits=%d misses=%d", stats.CacheHits, stats.CacheMisses)
	}
	if stats.Fallbacks != 1 {
		t.Fatalf("fallbacks = %d", stats.Fallbacks)
	}
	if stats.LLMLatency.Total != 1 {
		t.Fatalf("expected one ok latency sample, got %d", stats.LLMLatency.Total)
	}
	if stats.LLMLatency.P95Ms <= 1000 || stats.LLMLatency.P95Ms > 2000 {
		t.Fatalf("p95 out of bucket range: %v", stats.LLMLatency.P95Ms)
	}
}

func TestEngineMetricsTokenCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(reg)
	m.AddTokens("m1", 10, 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var family *dto.MetricFamily
	for _, mf := range mfs {
		if mf.GetName() == "synquot_llm_tokens_total" {
			family = mf
		}
	}
	if family == nil {
		t.Fatal("tokens family not registered")
	}
	if len(family.Metric) != 1 {
		t.Fatalf("expected only the input series, got %d", len(family.Metric))
	}
	if got := family.Metric[0].GetCounter().GetValue(); got != 10 {
		t.Fatalf("input tokens = %v", got)
	}
}

func TestEngineMetricsNilSafe(t *testing.T) {
	var m *EngineMetrics
	m.ObserveRequest("add", "llm")
	m.ObserveAttempt("m", "ok", 0.1)
	m.AddTokens("m", 1, 1)
	m.ObserveCache(true)
	m.ObserveFallback("add")
	m.ObserveValidationFailure()
}

func TestSnapshotEmptyRegistry(t *testing.T) {
	stats := Snapshot(prometheus.NewRegistry())
	if stats.LLMLatency.Total != 0 || stats.CacheHits != 0 || len(stats.RequestsBySource) != 0 {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}

func TestHistogramQuantile(t *testing.T) {
	uppers := []float64{1, 2, 4}
	cum := map[float64]uint64{1: 0, 2: 10, 4: 10}
	if got := histogramQuantile(0.5, 10, uppers, cum); got != 1.5 {
		t.Fatalf("median = %v, want 1.5", got)
	}
	if got := histogramQuantile(0, 10, uppers, cum); got != 0 {
		t.Fatalf("q=0 should be 0, got %v", got)
	}
}
