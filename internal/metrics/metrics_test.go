package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	assert.NotPanics(t, Init)
}

func TestObserveRecordOp(t *testing.T) {
	Init()

	before := testutil.ToFloat64(recordOpsTotal.WithLabelValues("income", ResultSuccess))
	ObserveRecordOp("income", "", 5*time.Millisecond)
	after := testutil.ToFloat64(recordOpsTotal.WithLabelValues("income", ResultSuccess))

	assert.Equal(t, before+1, after)
}

func TestIncValidationFailureDefaultsField(t *testing.T) {
	Init()

	before := testutil.ToFloat64(validationFailures.WithLabelValues("unknown"))
	IncValidationFailure("")
	assert.Equal(t, before+1, testutil.ToFloat64(validationFailures.WithLabelValues("unknown")))
}

func TestObserveMonthCache(t *testing.T) {
	Init()

	hits := testutil.ToFloat64(monthCacheTotal.WithLabelValues(CacheHit))
	misses := testutil.ToFloat64(monthCacheTotal.WithLabelValues(CacheMiss))

	ObserveMonthCache(true)
	ObserveMonthCache(false)
	ObserveMonthCache(false)

	assert.Equal(t, hits+1, testutil.ToFloat64(monthCacheTotal.WithLabelValues(CacheHit)))
	assert.Equal(t, misses+2, testutil.ToFloat64(monthCacheTotal.WithLabelValues(CacheMiss)))
}

func TestHandlerExposesMetrics(t *testing.T) {
	Init()
	IncSync(ResultError)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "dailyaed_sync_total"))
}

func TestSampledSources(t *testing.T) {
	Init()
	t.Cleanup(func() {
		SetRateLimitClients(nil)
		SetMonthCacheEvictions(nil)
	})

	assert.Equal(t, 0.0, sampled(sourceRateLimitClients)())

	SetRateLimitClients(func() int { return 3 })
	SetMonthCacheEvictions(func() int { return 7 })
	assert.Equal(t, 3.0, sampled(sourceRateLimitClients)())
	assert.Equal(t, 7.0, sampled(sourceCacheEvictions)())

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, "dailyaed_rate_limit_clients 3")
	assert.Contains(t, body, "dailyaed_month_cache_evictions_total 7")
}
