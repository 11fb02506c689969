package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dailyaed/internal/auth"
	"dailyaed/internal/config"
	"dailyaed/internal/core"
	"dailyaed/internal/export"
	applog "dailyaed/internal/log"
	"dailyaed/internal/records"
	"dailyaed/internal/services"
	"dailyaed/internal/storage/memory"
)

var fixedNow = time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)

func testAccount(t *testing.T) *services.AccountRecords {
	t.Helper()
	svc := services.NewRecordService(memory.New(),
		services.WithLocation(time.UTC),
		services.WithClock(func() time.Time { return fixedNow }),
		services.WithLogger(cliLogger(io.Discard, "error")))
	t.Cleanup(func() { _ = svc.Close() })
	return svc.For(auth.LocalAccount, nil)
}

func entry(t *testing.T, date, amount string) records.Entry {
	t.Helper()
	d, err := dateArg([]string{date}, 0)
	require.NoError(t, err)
	m, err := core.ParseAmount(amount)
	require.NoError(t, err)
	return records.Entry{Date: d, Amount: m}
}

func memoryDeps(mutate func(*config.Config)) deps {
	return deps{
		loadConfig: func() (*config.Config, error) {
			cfg := config.Default()
			cfg.DataBackend = config.BackendMemory
			cfg.Timezone = "UTC"
			if mutate != nil {
				mutate(cfg)
			}
			return cfg, nil
		},
		now: func() time.Time { return fixedNow },
	}
}

func execute(t *testing.T, d deps, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(d)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestDateArg(t *testing.T) {
	d, err := dateArg(nil, 0)
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	d, err = dateArg([]string{"today"}, 0)
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	d, err = dateArg([]string{"2024-02-29"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d.String())

	_, err = dateArg([]string{"29/02/2024"}, 0)
	assert.ErrorContains(t, err, "expected YYYY-MM-DD")
}

func TestRunSaveAndDay(t *testing.T) {
	ctx := context.Background()
	acc := testAccount(t)
	var buf bytes.Buffer

	require.NoError(t, runSave(ctx, &buf, acc, core.FieldIncome, entry(t, "2024-03-01", "100")))
	assert.Contains(t, buf.String(), "Saved income 100.00 AED for 2024-03-01")

	buf.Reset()
	e := entry(t, "2024-03-01", "30.5")
	notes := "market day"
	e.Notes = &notes
	require.NoError(t, runSave(ctx, &buf, acc, core.FieldExpenses, e))

	buf.Reset()
	require.NoError(t, runDay(ctx, &buf, acc, core.NewDate(2024, time.March, 1)))
	out := buf.String()
	assert.Contains(t, out, "100.00 AED")
	assert.Contains(t, out, "30.50 AED")
	assert.Contains(t, out, "69.50 AED")
	assert.Contains(t, out, "market day")
	assert.NotContains(t, out, "nothing recorded")

	buf.Reset()
	require.NoError(t, runDay(ctx, &buf, acc, core.Date{}))
	assert.Contains(t, buf.String(), "2024-03-05")
	assert.Contains(t, buf.String(), "nothing recorded")
}

func TestRunSave_RejectsUnknownFieldAndInvalidAmount(t *testing.T) {
	acc := testAccount(t)
	err := runSave(context.Background(), io.Discard, acc, "tips", entry(t, "2024-03-01", "1"))
	assert.Error(t, err)

	err = runSave(context.Background(), io.Discard, acc, core.FieldIncome, records.Entry{Amount: core.Fils(-5)})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestRunNotes(t *testing.T) {
	ctx := context.Background()
	acc := testAccount(t)

	err := runNotes(ctx, io.Discard, acc, core.Date{}, "hello")
	assert.ErrorContains(t, err, "no record for 2024-03-05")

	require.NoError(t, runSave(ctx, io.Discard, acc, core.FieldIncome, entry(t, "today", "10")))

	var buf bytes.Buffer
	require.NoError(t, runNotes(ctx, &buf, acc, core.Date{}, "hello"))
	assert.Equal(t, "Notes updated for 2024-03-05\n", buf.String())

	rec, err := acc.GetDailyRecord(ctx, core.Date{})
	require.NoError(t, err)
	assert.Equal(t, "hello", rec.Notes)
}

func TestRunMonthAndSummary(t *testing.T) {
	ctx := context.Background()
	acc := testAccount(t)
	require.NoError(t, runSave(ctx, io.Discard, acc, core.FieldIncome, entry(t, "2024-03-01", "10")))
	require.NoError(t, runSave(ctx, io.Discard, acc, core.FieldIncome, entry(t, "2024-03-05", "15")))
	require.NoError(t, runSave(ctx, io.Discard, acc, core.FieldExpenses, entry(t, "2024-03-05", "4")))

	var buf bytes.Buffer
	require.NoError(t, runMonth(ctx, &buf, acc, core.NewDate(2024, time.March, 1)))
	assert.Contains(t, buf.String(), "March 2024 (2 days recorded)")
	assert.Contains(t, buf.String(), "21.00 AED")

	buf.Reset()
	require.NoError(t, runSummary(ctx, &buf, records.NewViewer(acc), acc, core.Date{}))
	out := buf.String()
	assert.Contains(t, out, "2024-03-05")
	assert.Contains(t, out, "11.00 AED")
	assert.Contains(t, out, "25.00 AED")
}

func TestRunExport(t *testing.T) {
	ctx := context.Background()
	acc := testAccount(t)
	require.NoError(t, runSave(ctx, io.Discard, acc, core.FieldIncome, entry(t, "2024-03-02", "42")))

	out := filepath.Join(t.TempDir(), "march.pdf")
	var buf bytes.Buffer
	require.NoError(t, runExport(ctx, &buf, acc, core.NewDate(2024, time.March, 1), export.FormatPDF, out, fixedNow))
	assert.Contains(t, buf.String(), "(1 days)")

	body, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF")))
}

func TestRootCommand_ExportUsesConfiguredFont(t *testing.T) {
	dir := t.TempDir()
	d := memoryDeps(func(c *config.Config) { c.PDFFontPath = filepath.Join(dir, "missing.ttf") })

	_, err := execute(t, d, "export", "2024-03", "--format", "pdf", "--out", filepath.Join(dir, "m.pdf"))
	assert.ErrorContains(t, err, "load statement font")

	out, err := execute(t, d, "export", "2024-03", "--out", filepath.Join(dir, "m.xlsx"))
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote xlsx statement for 2024-03")
}

func TestRunToken(t *testing.T) {
	secret := []byte("0123456789abcdef-secret")
	var buf bytes.Buffer
	require.NoError(t, runToken(&buf, secret, "acct-7", "", time.Hour, time.Now()))

	claims, err := auth.ParseJWT(strings.TrimSpace(buf.String()), secret)
	require.NoError(t, err)
	assert.Equal(t, "acct-7", claims.AccountID)
	assert.Equal(t, "acct-7", claims.Subject)

	assert.ErrorContains(t, runToken(io.Discard, nil, "acct-7", "", time.Hour, time.Now()), "JWT_SECRET")
}

func TestRunMigrate(t *testing.T) {
	var got []string
	fake := func(backend, dsn string) error {
		got = append(got, backend, dsn)
		return nil
	}

	cfg := config.Default()
	cfg.DataBackend = config.BackendMemory
	var buf bytes.Buffer
	require.NoError(t, runMigrate(&buf, cfg, fake))
	assert.Empty(t, got)
	assert.Contains(t, buf.String(), "no schema")

	cfg.DataBackend = config.BackendSQLite
	cfg.SQLiteDBPath = "/tmp/x.db"
	require.NoError(t, runMigrate(io.Discard, cfg, fake))
	assert.Equal(t, []string{"sqlite", "/tmp/x.db"}, got)
}

func TestRootCommand_SaveThroughConfiguredBackend(t *testing.T) {
	out, err := execute(t, memoryDeps(nil), "income", "12,5", "--date", "2024-03-01", "--notes", "first")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved income 12.50 AED for 2024-03-01")
	assert.Contains(t, out, "first")

	_, err = execute(t, memoryDeps(nil), "expenses", "0")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = execute(t, memoryDeps(nil), "day", "2024-13-40")
	assert.Error(t, err)

	_, err = execute(t, memoryDeps(nil), "day", "--tz", "Nowhere/City")
	assert.ErrorContains(t, err, "invalid --tz")
}

func TestRootCommand_Token(t *testing.T) {
	d := memoryDeps(func(c *config.Config) { c.JWTSecret = "0123456789abcdef-secret" })
	out, err := execute(t, d, "token", "--account", "shop-2", "--ttl", "1h")
	require.NoError(t, err)

	claims, err := auth.ParseJWTAt(strings.TrimSpace(out), []byte("0123456789abcdef-secret"), fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "shop-2", claims.AccountID)
	assert.True(t, claims.ExpiresAt.Time.Equal(fixedNow.Add(time.Hour)), "expires at %s", claims.ExpiresAt.Time)

	_, err = execute(t, d, "token", "--ttl", "soon")
	assert.ErrorContains(t, err, "invalid --ttl")
}

func TestRootCommand_SyncNeedsSpreadsheet(t *testing.T) {
	_, err := execute(t, memoryDeps(nil), "sync")
	assert.ErrorContains(t, err, "GOOGLE_SPREADSHEET_ID")
}

func TestOpenApp_Memory(t *testing.T) {
	cfg, err := memoryDeps(nil).loadConfig()
	require.NoError(t, err)

	app, err := OpenApp(context.Background(), cfg, cliLogger(io.Discard, "error"))
	require.NoError(t, err)
	assert.Nil(t, app.Backend.Publisher)
	assert.NotNil(t, app.caches)
	require.NoError(t, app.Backend.Store.Ping(context.Background()))
	require.NoError(t, app.Close())
}

func TestSetupLogger(t *testing.T) {
	prev := applog.New(applog.DefaultConfig())
	t.Cleanup(func() { applog.SetDefault(prev) })

	logger := SetupLogger("debug", applog.ComponentCLI)
	assert.Equal(t, applog.ComponentCLI, logger.Component())
	assert.True(t, logger.Enabled(context.Background(), -4))
}
