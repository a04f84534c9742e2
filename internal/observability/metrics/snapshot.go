package metrics

import (
	"math"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// LatencySnapshot summarizes successful LLM call latency.
type LatencySnapshot struct {
	Total int64   `json:"total"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
}

// Stats is the JSON body served by the stats endpoint.
type Stats struct {
	RequestsBySource map[string]int64 `json:"requests_by_source"`
	AttemptsByResult map[string]int64 `json:"attempts_by_outcome"`
	CacheHits        int64            `json:"cache_hits"`
	CacheMisses      int64            `json:"cache_misses"`
	Fallbacks        int64            `json:"fallbacks"`
	LLMLatency       LatencySnapshot  `json:"llm_latency"`
}

// Snapshot reads the engine families out of gatherer. Missing families read as zero.
func Snapshot(gatherer prometheus.Gatherer) Stats {
	stats := Stats{
		RequestsBySource: map[string]int64{},
		AttemptsByResult: map[string]int64{},
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mfs, err := gatherer.Gather()
	if err != nil {
		return stats
	}

	for _, mf := range mfs {
		if mf == nil {
			continue
		}
		switch mf.GetName() {
		case namespace + "_engine_requests_total":
			sumCounterBy(mf, "source", stats.RequestsBySource)
		case namespace + "_llm_attempts_total":
			sumCounterBy(mf, "outcome", stats.AttemptsByResult)
		case namespace + "_cache_lookups_total":
			byResult := map[string]int64{}
			sumCounterBy(mf, "result", byResult)
			stats.CacheHits = byResult["hit"]
			stats.CacheMisses = byResult["miss"]
		case namespace + "_engine_fallback_total":
			for _, metric := range mf.Metric {
				stats.Fallbacks += int64(metric.GetCounter().GetValue())
			}
		case namespace + "_llm_latency_seconds":
			stats.LLMLatency = latencyFrom(mf)
		}
	}
	return stats
}

func sumCounterBy(mf *dto.MetricFamily, label string, out map[string]int64) {
	for _, metric := range mf.Metric {
		if metric == nil {
			continue
		}
		key := labelValue(metric, label)
		out[key] += int64(metric.GetCounter().GetValue())
	}
}

func labelValue(metric *dto.Metric, name string) string {
	for _, lp := range metric.Label {
		if lp != nil && lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// latencyFrom aggregates the histogram across models, keeping status="ok".
func latencyFrom(mf *dto.MetricFamily) LatencySnapshot {
	cumulativeByUpper := map[float64]uint64{}
	var sampleCount uint64
	for _, metric := range mf.Metric {
		if metric == nil || labelValue(metric, "status") != "ok" {
			continue
		}
		h := metric.GetHistogram()
		if h == nil {
			continue
		}
		sampleCount += h.GetSampleCount()
		for _, b := range h.Bucket {
			if b == nil {
				continue
			}
			cumulativeByUpper[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}
	if sampleCount == 0 || len(cumulativeByUpper) == 0 {
		return LatencySnapshot{}
	}

	uppers := make([]float64, 0, len(cumulativeByUpper))
	for upper := range cumulativeByUpper {
		uppers = append(uppers, upper)
	}
	sort.Float64s(uppers)

	return LatencySnapshot{
		Total: int64(sampleCount),
		P50Ms: histogramQuantile(0.50, sampleCount, uppers, cumulativeByUpper) * 1000,
		P95Ms: histogramQuantile(0.95, sampleCount, uppers, cumulativeByUpper) * 1000,
	}
}

// histogramQuantile linearly interpolates inside the bucket holding the q-th sample.
func histogramQuantile(q float64, total uint64, uppers []float64, cumulativeByUpper map[float64]uint64) float64 {
	if total == 0 || q <= 0 || len(uppers) == 0 {
		return 0
	}
	target := q * float64(total)
	var prevUpper, prevCum float64
	for _, upper := range uppers {
		cum := float64(cumulativeByUpper[upper])
		if cum < target {
			prevUpper = upper
			prevCum = cum
			continue
		}
		bucketCount := cum - prevCum
		if bucketCount <= 0 || upper == prevUpper {
			return upper
		}
		if math.IsInf(upper, 1) {
			return prevUpper
		}
		fraction := math.Min(math.Max((target-prevCum)/bucketCount, 0), 1)
		return prevUpper + fraction*(upper-prevUpper)
	}
	last := uppers[len(uppers)-1]
	if math.IsInf(last, 1) {
		return prevUpper
	}
	return last
}
