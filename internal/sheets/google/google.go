// Package google mirrors daily records into a Google Sheets spreadsheet
// using service account credentials.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"dailyaed/internal/core"
	ports "dailyaed/internal/sheets"
)

const defaultRowCacheTTL = 2 * time.Minute

// Config selects the spreadsheet and credentials.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountFile string
	ServiceAccountJSON string
}

// valuesAPI is the subset of the Sheets values API the client needs.
type valuesAPI interface {
	get(ctx context.Context, rng string) ([][]any, error)
	update(ctx context.Context, rng string, values [][]any) error
}

type Client struct {
	values    valuesAPI
	sheetName string
	now       func() time.Time

	// Row index cache: key -> 1-based row, plus the number of used rows.
	mu                 sync.Mutex
	rowIndex           map[string]int
	cachedRowCount     int
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

var _ ports.RecordMirror = (*Client)(nil)

// New creates a Sheets client from service account credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetName := strings.TrimSpace(cfg.SheetName)
	if sheetName == "" {
		sheetName = "Records"
	}

	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return newClient(&sheetsValues{svc: svc, spreadsheetID: cfg.SpreadsheetID}, sheetName), nil
}

func newClient(values valuesAPI, sheetName string) *Client {
	return &Client{
		values:             values,
		sheetName:          sheetName,
		now:                time.Now,
		cacheValidDuration: defaultRowCacheTTL,
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Falls back to GOOGLE_APPLICATION_CREDENTIALS when cfg names none.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(cfg.ServiceAccountJSON)
	serviceAccountFile := strings.TrimSpace(cfg.ServiceAccountFile)
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

type sheetsValues struct {
	svc           *gsheet.Service
	spreadsheetID string
}

func (s *sheetsValues) get(ctx context.Context, rng string) ([][]any, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s *sheetsValues) update(ctx context.Context, rng string, values [][]any) error {
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return err
}

// Upsert implements ports.RecordMirror.
func (c *Client) Upsert(ctx context.Context, accountID string, rec core.DailyRecord) (string, error) {
	if c.values == nil {
		return "", errors.New("sheets service not initialized")
	}
	if accountID == "" || rec.Date.IsZero() {
		return "", errors.New("upsert requires account and date")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := rowKey(accountID, rec.Date.String())
	row, err := c.locateRow(ctx, key)
	if err != nil {
		return "", err
	}

	rng := fmt.Sprintf("%s!A%d:%s%d", c.sheetName, row, lastColumn, row)
	if err := c.values.update(ctx, rng, [][]any{recordRow(accountID, rec, c.now())}); err != nil {
		c.invalidateLocked()
		return "", fmt.Errorf("failed to update %s: %w", rng, err)
	}

	if _, known := c.rowIndex[key]; !known {
		c.rowIndex[key] = row
		c.cachedRowCount = row
	}
	return rng, nil
}

// locateRow returns the row holding key, or the next free row. Callers hold
// c.mu.
func (c *Client) locateRow(ctx context.Context, key string) (int, error) {
	if c.now().After(c.cacheExpiresAt) || c.rowIndex == nil {
		if err := c.reloadLocked(ctx); err != nil {
			return 0, err
		}
	}
	if row, ok := c.rowIndex[key]; ok {
		return row, nil
	}
	return c.cachedRowCount + 1, nil
}

func (c *Client) reloadLocked(ctx context.Context) error {
	rng := fmt.Sprintf("%s!A:B", c.sheetName)
	values, err := c.values.get(ctx, rng)
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}

	if len(values) == 0 {
		header := fmt.Sprintf("%s!A1:%s1", c.sheetName, lastColumn)
		if err := c.values.update(ctx, header, [][]any{headerRow()}); err != nil {
			return fmt.Errorf("write header %s: %w", header, err)
		}
		values = [][]any{{headerRow()[0], headerRow()[1]}}
	}

	c.rowIndex = indexRows(values)
	c.cachedRowCount = len(values)
	c.cacheExpiresAt = c.now().Add(c.cacheValidDuration)
	return nil
}

// InvalidateRowCache forces the next upsert to re-read the sheet.
func (c *Client) InvalidateRowCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked()
}

func (c *Client) invalidateLocked() {
	c.cacheExpiresAt = time.Time{}
}
