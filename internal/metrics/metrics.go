// Package metrics exposes Prometheus collectors for record operations.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "dailyaed_"

	resultSuccess    = "success"
	resultError      = "error"
	resultValidation = "validation"

	cacheHit  = "hit"
	cacheMiss = "miss"
)

// Exported constants for callers.
const (
	ResultSuccess    = resultSuccess
	ResultError      = resultError
	ResultValidation = resultValidation

	CacheHit  = cacheHit
	CacheMiss = cacheMiss
)

var (
	registerOnce sync.Once

	recordOpsTotal     *prometheus.CounterVec
	recordOpLatency    *prometheus.HistogramVec
	validationFailures *prometheus.CounterVec
	monthCacheTotal    *prometheus.CounterVec
	syncTotal          *prometheus.CounterVec

	sourcesMu sync.Mutex
	sources   = map[string]func() int{}
)

const (
	sourceRateLimitClients = "rate_limit_clients"
	sourceCacheEvictions   = "month_cache_evictions"
)

// sampled reads the current source registered under name; zero when none.
func sampled(name string) func() float64 {
	return func() float64 {
		sourcesMu.Lock()
		fn := sources[name]
		sourcesMu.Unlock()
		if fn == nil {
			return 0
		}
		return float64(fn())
	}
}

func setSource(name string, fn func() int) {
	sourcesMu.Lock()
	sources[name] = fn
	sourcesMu.Unlock()
}

// SetRateLimitClients makes fn the source of the tracked-clients gauge.
// A later call replaces the previous source.
func SetRateLimitClients(fn func() int) { setSource(sourceRateLimitClients, fn) }

// SetMonthCacheEvictions makes fn the source of the month cache eviction
// counter.
func SetMonthCacheEvictions(fn func() int) { setSource(sourceCacheEvictions, fn) }

// Init registers all collectors with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		recordOpsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "record_ops_total",
				Help: "Total record operations by operation and result",
			},
			[]string{"op", "result"},
		)
		recordOpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "record_op_latency_seconds",
				Help:    "Record operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op", "result"},
		)
		validationFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "validation_failures_total",
				Help: "Rejected inputs by field",
			},
			[]string{"field"},
		)
		monthCacheTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "month_cache_total",
				Help: "Monthly aggregate cache lookups by result",
			},
			[]string{"result"},
		)
		syncTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sync_total",
				Help: "Spreadsheet mirror attempts by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			recordOpsTotal,
			recordOpLatency,
			validationFailures,
			monthCacheTotal,
			syncTotal,
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: metricPrefix + "rate_limit_clients",
				Help: "Clients currently tracked by the write rate limiter",
			}, sampled(sourceRateLimitClients)),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: metricPrefix + "month_cache_evictions_total",
				Help: "Monthly aggregates evicted by the cache size bound",
			}, sampled(sourceCacheEvictions)),
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRecordOp records operation duration and result.
func ObserveRecordOp(op, result string, duration time.Duration) {
	if op == "" {
		op = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if recordOpsTotal != nil {
		recordOpsTotal.WithLabelValues(op, result).Inc()
	}
	if recordOpLatency != nil {
		recordOpLatency.WithLabelValues(op, result).Observe(duration.Seconds())
	}
}

// IncValidationFailure counts a rejected input.
func IncValidationFailure(field string) {
	if field == "" {
		field = "unknown"
	}
	if validationFailures != nil {
		validationFailures.WithLabelValues(field).Inc()
	}
}

// ObserveMonthCache counts a month cache hit or miss.
func ObserveMonthCache(hit bool) {
	if monthCacheTotal == nil {
		return
	}
	if hit {
		monthCacheTotal.WithLabelValues(cacheHit).Inc()
		return
	}
	monthCacheTotal.WithLabelValues(cacheMiss).Inc()
}

// IncSync counts a mirror attempt.
func IncSync(result string) {
	if result == "" {
		result = resultSuccess
	}
	if syncTotal != nil {
		syncTotal.WithLabelValues(result).Inc()
	}
}
