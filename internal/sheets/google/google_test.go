package google

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"dailyaed/internal/core"
)

// fakeValues is an in-memory sheet addressed with the A1 ranges the client
// uses.
type fakeValues struct {
	mu      sync.Mutex
	rows    [][]any
	gets    int
	failPut error
}

var rowRange = regexp.MustCompile(`!A(\d+):G(\d+)$`)

func (f *fakeValues) get(_ context.Context, _ string) ([][]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	out := make([][]any, len(f.rows))
	for i, r := range f.rows {
		if len(r) > 2 {
			r = r[:2]
		}
		out[i] = r
	}
	return out, nil
}

func (f *fakeValues) update(_ context.Context, rng string, values [][]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut != nil {
		return f.failPut
	}
	m := rowRange.FindStringSubmatch(rng)
	if m == nil {
		return fmt.Errorf("unexpected range %q", rng)
	}
	row, _ := strconv.Atoi(m[1])
	for len(f.rows) < row {
		f.rows = append(f.rows, nil)
	}
	f.rows[row-1] = values[0]
	return nil
}

func record(date core.Date, income, expenses int64) core.DailyRecord {
	return core.DailyRecord{
		ID:       "id",
		Date:     date,
		Income:   core.Fils(income),
		Expenses: core.Fils(expenses),
		Profit:   core.Fils(income - expenses),
	}
}

func TestUpsert_WritesHeaderThenRows(t *testing.T) {
	fake := &fakeValues{}
	c := newClient(fake, "Records")
	ctx := context.Background()
	d := core.NewDate(2024, time.March, 5)

	ref, err := c.Upsert(ctx, "acct-1", record(d, 10000, 2500))
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if ref != "Records!A2:G2" {
		t.Errorf("Upsert() ref = %q, want Records!A2:G2", ref)
	}
	if len(fake.rows) != 2 {
		t.Fatalf("sheet has %d rows, want header + 1", len(fake.rows))
	}
	if fake.rows[0][0] != "Account" {
		t.Errorf("header = %v", fake.rows[0])
	}
	if got := fake.rows[1][4]; got != 75.0 {
		t.Errorf("profit cell = %v, want 75", got)
	}
}

func TestUpsert_ReplacesSameDay(t *testing.T) {
	fake := &fakeValues{}
	c := newClient(fake, "Records")
	ctx := context.Background()
	d := core.NewDate(2024, time.March, 5)

	if _, err := c.Upsert(ctx, "acct-1", record(d, 100, 0)); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if _, err := c.Upsert(ctx, "acct-2", record(d, 300, 0)); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	ref, err := c.Upsert(ctx, "acct-1", record(d, 100, 50))
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if ref != "Records!A2:G2" {
		t.Errorf("second upsert of acct-1 ref = %q, want row 2", ref)
	}
	if len(fake.rows) != 3 {
		t.Errorf("sheet has %d rows, want 3", len(fake.rows))
	}
	if fake.gets != 1 {
		t.Errorf("sheet read %d times, want 1 while the row cache is valid", fake.gets)
	}
}

func TestUpsert_ReloadsAfterInvalidation(t *testing.T) {
	fake := &fakeValues{rows: [][]any{
		headerRow(),
		{"acct-1", "2024-03-04", 1.0, 0.0, 1.0, "", ""},
	}}
	c := newClient(fake, "Records")
	ctx := context.Background()

	// Another writer adds a row behind the cache's back.
	if _, err := c.Upsert(ctx, "acct-1", record(core.NewDate(2024, time.March, 5), 100, 0)); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	fake.rows = append(fake.rows, []any{"acct-9", "2024-03-06"})
	c.InvalidateRowCache()

	ref, err := c.Upsert(ctx, "acct-1", record(core.NewDate(2024, time.March, 7), 100, 0))
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if ref != "Records!A5:G5" {
		t.Errorf("Upsert() ref = %q, want row 5", ref)
	}
	if fake.gets != 2 {
		t.Errorf("sheet read %d times, want 2", fake.gets)
	}
}

func TestUpsert_CacheExpires(t *testing.T) {
	fake := &fakeValues{}
	c := newClient(fake, "Records")
	now := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := c.Upsert(ctx, "a", record(core.NewDate(2024, time.March, 1), 1, 0)); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	now = now.Add(defaultRowCacheTTL + time.Second)
	if _, err := c.Upsert(ctx, "a", record(core.NewDate(2024, time.March, 2), 1, 0)); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if fake.gets != 2 {
		t.Errorf("sheet read %d times, want 2 after expiry", fake.gets)
	}
}

func TestUpsert_FailureInvalidatesCache(t *testing.T) {
	fake := &fakeValues{}
	c := newClient(fake, "Records")
	ctx := context.Background()
	d := core.NewDate(2024, time.March, 5)

	if _, err := c.Upsert(ctx, "a", record(d, 1, 0)); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	fake.failPut = errors.New("quota exceeded")
	if _, err := c.Upsert(ctx, "a", record(d.AddDays(1), 1, 0)); err == nil {
		t.Fatal("Upsert() should fail when the sheet rejects the write")
	}

	c.mu.Lock()
	valid := c.now().Before(c.cacheExpiresAt)
	c.mu.Unlock()
	if valid {
		t.Error("row cache should be invalid after a failed write")
	}
}

func TestUpsert_RejectsMissingKey(t *testing.T) {
	c := newClient(&fakeValues{}, "Records")
	if _, err := c.Upsert(context.Background(), "", record(core.NewDate(2024, 1, 1), 1, 0)); err == nil {
		t.Error("Upsert() without account should fail")
	}
	if _, err := c.Upsert(context.Background(), "a", core.DailyRecord{}); err == nil {
		t.Error("Upsert() without date should fail")
	}
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil || err.Error() != "missing spreadsheet id" {
		t.Errorf("New() error = %v, want missing spreadsheet id", err)
	}
}

func TestNew_InvalidCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "x", ServiceAccountJSON: "not-json"})
	if err == nil {
		t.Fatal("New() should fail with invalid credentials JSON")
	}
}

func TestIndexRows(t *testing.T) {
	values := [][]any{
		headerRow(),
		{"a", "2024-03-01"},
		{},
		{"b", "2024-03-01"},
		{"a", "2024-03-01"},
		{"c", "not a date"},
	}

	index := indexRows(values)

	if len(index) != 2 {
		t.Fatalf("indexRows() = %v, want 2 keys", index)
	}
	if index[rowKey("a", "2024-03-01")] != 2 {
		t.Errorf("row of a = %d, want 2 (first occurrence)", index[rowKey("a", "2024-03-01")])
	}
	if index[rowKey("b", "2024-03-01")] != 4 {
		t.Errorf("row of b = %d, want 4", index[rowKey("b", "2024-03-01")])
	}
}
