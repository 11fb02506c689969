package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"dailyaed/internal/auth"
	"dailyaed/internal/core"
	applog "dailyaed/internal/log"
	"dailyaed/internal/records"
	"dailyaed/internal/services"
	"dailyaed/internal/storage"
	"dailyaed/internal/storage/memory"
)

var (
	fixedNow = time.Date(2024, time.March, 5, 22, 30, 0, 0, time.UTC)
	secret   = []byte("0123456789abcdef0123")
)

type failingProvider struct{ *memory.Store }

func (p failingProvider) ForAccount(accountID string) records.RecordStore {
	return failingStore{RecordStore: p.Store.ForAccount(accountID)}
}

type failingStore struct{ records.RecordStore }

var errDown = errors.New("connection refused")

func (failingStore) FindByDate(context.Context, core.Date) (core.DailyRecord, bool, error) {
	return core.DailyRecord{}, false, errDown
}

func (failingStore) ListRange(context.Context, core.Date, core.Date) ([]core.DailyRecord, error) {
	return nil, errDown
}

func discardLogger() *applog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Output = io.Discard
	return applog.New(cfg)
}

func newTestServer(t *testing.T, provider storage.Provider, jwtSecret []byte) *Server {
	t.Helper()
	svc := services.NewRecordService(provider,
		services.WithLocation(time.UTC),
		services.WithClock(func() time.Time { return fixedNow }),
		services.WithLogger(discardLogger()))
	srv := NewServer(Options{
		Addr:      ":0",
		Records:   svc,
		JWTSecret: jwtSecret,
		Logger:    discardLogger(),
	})
	t.Cleanup(srv.limiter.Stop)
	return srv
}

func do(t *testing.T, srv *Server, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, memory.New(), nil)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/readyz", "").Code)

	srv.ready = func(context.Context) error { return errDown }
	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodGet, "/readyz", "").Code)

	metrics := do(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, metrics.Code)
}

func TestGetRecord_MissingDayIsZero(t *testing.T) {
	srv := newTestServer(t, memory.New(), nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/records/2024-02-29", "")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[core.DailyRecord](t, rec)
	assert.Equal(t, "2024-02-29", got.Date.String())
	assert.Empty(t, got.ID)
	assert.True(t, got.Income.IsZero())
	assert.True(t, got.Profit.IsZero())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestGetRecord_BadDate(t *testing.T) {
	srv := newTestServer(t, memory.New(), nil)
	rec := do(t, srv, http.MethodGet, "/api/v1/records/2024-13-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveIncomeThenExpenses(t *testing.T) {
	srv := newTestServer(t, memory.New(), nil)

	rec := do(t, srv, http.MethodPut, "/api/v1/records/2024-03-01/income", `{"amount":"100.50","notes":"  opening day\u0007 "}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[saveResponse](t, rec)
	require.NotEmpty(t, first.ID)
	assert.Equal(t, first.ID, first.Record.ID)
	assert.Equal(t, int64(10050), first.Record.Income.Fils)
	assert.Equal(t, "opening day", first.Record.Notes)

	rec = do(t, srv, http.MethodPut, "/api/v1/records/2024-03-01/expenses", `{"amount":40.25}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decode[saveResponse](t, rec)
	assert.Equal(t, first.ID, second.ID, "same day keeps one record")
	assert.Equal(t, int64(6025), second.Record.Profit.Fils)

	got := decode[core.DailyRecord](t, do(t, srv, http.MethodGet, "/api/v1/records/2024-03-01", ""))
	assert.Equal(t, int64(10050), got.Income.Fils)
	assert.Equal(t, int64(4025), got.Expenses.Fils)
	assert.Equal(t, "opening day", got.Notes)
}

func TestSaveAmount_Validation(t *testing.T) {
	srv := newTestServer(t, memory.New(), nil)

	cases := map[string]struct {
		body  string
		field string
	}{
		"zero":      {`{"amount":"0"}`, core.FieldIncome},
		"negative":  {`{"amount":"-3"}`, core.FieldIncome},
		"garbage":   {`{"amount":"abc"}`, core.FieldIncome},
		"missing":   {`{}`, core.FieldIncome},
		"long note": {`{"amount":"1","notes":"` + strings.Repeat("n", core.MaxNotesLength+1) + `"}`, core.FieldNotes},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPut, "/api/v1/records/2024-03-01/income", tc.body)
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
			body := decode[errorBody](t, rec)
			assert.Equal(t, tc.field, body.Field)
			assert.NotEmpty(t, body.Error)
		})
	}

	got := decode[core.DailyRecord](t, do(t, srv, http.MethodGet, "/api/v1/records/2024-03-01", ""))
	assert.Empty(t, got.ID, "rejected input never reaches the store")
}

func TestSaveAmount_MalformedBody(t *testing.T) {
	srv := newTestServer(t, memory.New(), nil)

	for _, body := range []string{"", "{", `{"amount":"1","extra":true}`} {
		rec := do(t, srv, http.MethodPut, "/api/v1/records/2024-03-01/expenses", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
}

func TestSaveAmount_StoreDown(t *testing.T) {
	srv := newTestServer(t, failingProvider{memory.New()}, nil)

	rec := do(t, srv, http.MethodPut, "/api/v1/records/2024-03-01/income", `{"amount":"12.50","notes":"keep me"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Error     string `json:"error"`
		Field     string `json:"field"`
		Stage     string `json:"stage"`
		Retryable bool   `json:"retryable"`
		Pending   struct {
			Date   string     `json:"date"`
			Amount core.Money `json:"amount"`
			Notes  string     `json:"notes"`
		} `json:"pending"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Retryable)
	assert.Equal(t, string(records.StageLoad), body.Stage)
	assert.Equal(t, core.FieldIncome, body.Field)
	assert.Equal(t, "2024-03-01", body.Pending.Date)
	assert.Equal(t, int64(1250), body.Pending.Amount.Fils)
	assert.Equal(t, "keep me", body.Pending.Notes)

	month := do(t, srv, http.MethodGet, "/api/v1/months/2024-03", "")
	assert.Equal(t, http.StatusServiceUnavailable, month.Code)
	assert.True(t, decode[errorBody](t, month).Retryable)
}

func TestToday_UsesTimezone(t *testing.T) {
	srv := newTestServer(t, memory.New(), nil)

	// 22:30 UTC on March 5 is already March 6 in Dubai.
	rec := do(t, srv, http.MethodPut, "/api/v1/records/today/income?tz=Asia/Dubai", `{"amount":"5"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2024-03-06", decode[saveResponse](t, rec).Record.Date.String())

	today := decode[core.DailyRecord](t, do(t, srv, http.MethodGet, "/api/v1/records/today", ""))
	assert.Equal(t, "2024-03-05", today.Date.String())
	assert.Empty(t, today.ID)

	dubai := decode[core.DailyRecord](t, do(t, srv, http.MethodGet, "/api/v1/records/today?tz=Asia/Dubai", ""))
	assert.Equal(t, int64(500), dubai.Income.Fils)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/v1/records/today?tz=Mars/Olympus", "").Code)
}

func TestSaveNotes(t *testing.T) {
	srv := newTestServer(t, memory.New(), nil)

	rec := do(t, srv, http.MethodPut, "/api/v1/records/2024-03-02/notes", `{"notes":"nothing yet"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPut, "/api/v1/records/2024-03-02/income", `{"amount":"1"}`).Code)

	rec = do(t, srv, http.MethodPut, "/api/v1/records/2024-03-02/notes", `{"notes":"rainy"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[notesResponse](t, rec).Updated)

	got := decode[core.DailyRecord](t, do(t, srv, http.MethodGet, "/api/v1/records/2024-03-02", ""))
	assert.Equal(t, "rainy", got.Notes)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPut, "/api/v1/records/2024-03-02/notes", `{}`).Code)
}

func TestMonth(t *testing.T) {
	srv := newTestServer(t, memory.New(), nil)

	for _, day := range []string{"2024-03-01", "2024-03-31", "2024-04-01"} {
		require.Equal(t, http.StatusOK, do(t, srv, http.MethodPut, "/api/v1/records/"+day+"/income", `{"amount":"10"}`).Code)
	}
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPut, "/api/v1/records/2024-03-31/expenses", `{"amount":"2.50"}`).Code)

	for _, month := range []string{"2024-03", "2024-03-17"} {
		rec := do(t, srv, http.MethodGet, "/api/v1/months/"+month, "")
		require.Equal(t, http.StatusOK, rec.Code)
		agg := decode[core.MonthlyAggregate](t, rec)
		assert.Equal(t, 2, agg.Days)
		assert.Equal(t, int64(2000), agg.Income.Fils)
		assert.Equal(t, int64(1750), agg.Profit.Fils)
		assert.Equal(t, "2024-04-01", agg.To.String())
	}

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/v1/months/March", "").Code)
}

func TestExport(t *testing.T) {
	srv := newTestServer(t, memory.New(), nil)
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPut, "/api/v1/records/2024-03-04/income", `{"amount":"99.99"}`).Code)

	rec := do(t, srv, http.MethodGet, "/api/v1/months/2024-03/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "dailyaed-2024-03.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "days")

	rec = do(t, srv, http.MethodGet, "/api/v1/months/2024-03/export?format=pdf", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/v1/months/2024-03/export?format=csv", "").Code)
}

func TestAuth_ScopesAccounts(t *testing.T) {
	srv := newTestServer(t, memory.New(), secret)

	assert.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodGet, "/api/v1/records/today", "").Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", "").Code)

	tokenA, err := auth.IssueJWT("acct-a", "alice", time.Hour, secret, time.Now())
	require.NoError(t, err)
	tokenB, err := auth.IssueJWT("acct-b", "bob", time.Hour, secret, time.Now())
	require.NoError(t, err)

	rec := do(t, srv, http.MethodPut, "/api/v1/records/2024-03-01/income", `{"amount":"7"}`, "Authorization", "Bearer "+tokenA)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	a := decode[core.DailyRecord](t, do(t, srv, http.MethodGet, "/api/v1/records/2024-03-01", "", "Authorization", "Bearer "+tokenA))
	b := decode[core.DailyRecord](t, do(t, srv, http.MethodGet, "/api/v1/records/2024-03-01", "", "Authorization", "Bearer "+tokenB))
	assert.Equal(t, int64(700), a.Income.Fils)
	assert.Empty(t, b.ID)
}

func TestWritesAreRateLimited(t *testing.T) {
	svc := services.NewRecordService(memory.New(), services.WithLogger(discardLogger()))
	srv := NewServer(Options{Records: svc, RateLimitPerMinute: 2, Logger: discardLogger()})
	t.Cleanup(srv.limiter.Stop)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, srv, http.MethodPut, "/api/v1/records/2024-03-01/income", `{"amount":"1"}`).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/v1/records/2024-03-01", "").Code, "reads are not limited")
}

func TestTrustedProxiesKeyRateLimitByForwardedClient(t *testing.T) {
	put := func(srv *Server, client string) int {
		return do(t, srv, http.MethodPut, "/api/v1/records/2024-03-01/income", `{"amount":"1"}`,
			"X-Forwarded-For", client).Code
	}

	// httptest requests arrive from 192.0.2.1, outside the default trusted ranges.
	svc := services.NewRecordService(memory.New(), services.WithLogger(discardLogger()))
	direct := NewServer(Options{Records: svc, RateLimitPerMinute: 1, Logger: discardLogger()})
	t.Cleanup(direct.limiter.Stop)
	assert.Equal(t, http.StatusOK, put(direct, "198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, put(direct, "198.51.100.2"), "untrusted peer shares one bucket")

	proxied := NewServer(Options{
		Records:            svc,
		RateLimitPerMinute: 1,
		TrustedProxies:     []string{"192.0.2.1", "not-a-network"},
		Logger:             discardLogger(),
	})
	t.Cleanup(proxied.limiter.Stop)
	assert.Equal(t, http.StatusOK, put(proxied, "198.51.100.1"))
	assert.Equal(t, http.StatusOK, put(proxied, "198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, put(proxied, "198.51.100.1"))
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t, memory.New(), nil)
	rec := do(t, srv, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", decode[errorBody](t, rec).Error)
}

func TestShutdown_Idempotent(t *testing.T) {
	srv := newTestServer(t, memory.New(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, srv.Shutdown(ctx))
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "a\tb\nc", sanitizeInput("  a\tb\x00\nc\x1b "))
}
