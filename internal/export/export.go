// Package export renders monthly statements of daily records as XLSX or PDF.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"dailyaed/internal/core"
)

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat accepts "xlsx" or "pdf"; empty means xlsx.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatXLSX:
		return FormatXLSX, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Statement is one account's month: its totals and the stored days.
type Statement struct {
	AccountID   string
	Month       core.Date
	Summary     core.MonthlyAggregate
	Days        []core.DailyRecord
	GeneratedAt time.Time
}

// Filename returns e.g. "dailyaed-2024-03.xlsx".
func (s Statement) Filename(f Format) string {
	return fmt.Sprintf("dailyaed-%s.%s", s.Month.Format(core.MonthLayout), f)
}

// Option adjusts how a statement is rendered.
type Option func(*options)

type options struct {
	font     string
	boldFont string
}

// WithUTF8Font renders PDF text with TrueType fonts so notes outside
// Windows-1252 (Arabic, Cyrillic, ...) keep their glyphs. An empty bold
// path reuses regular. Glyphs are laid out left to right without shaping.
func WithUTF8Font(regular, bold string) Option {
	return func(o *options) {
		o.font = regular
		o.boldFont = bold
		if o.boldFont == "" {
			o.boldFont = regular
		}
	}
}

// Build renders the statement in format f.
func Build(s Statement, f Format, opts ...Option) ([]byte, error) {
	switch f {
	case FormatXLSX:
		return BuildStatementXLSX(s)
	case FormatPDF:
		return BuildStatementPDF(s, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// BuildStatementPDF renders a one-page PDF for a month. Without
// WithUTF8Font it uses the core Arial font, which covers Windows-1252 only;
// other characters print as ".".
func BuildStatementPDF(s Statement, opts ...Option) ([]byte, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	family := "Arial"
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if o.font != "" {
		family = "statement"
		pdf.AddUTF8Font(family, "", o.font)
		pdf.AddUTF8Font(family, "B", o.boldFont)
		tr = func(s string) string { return s }
	}
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("load statement font: %w", err)
	}
	pdf.SetFont(family, "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Monthly Statement")
	pdf.Ln(10)
	pdf.SetFont(family, "", 10)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Account: %s", s.AccountID)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Month: %s", s.Month.Format(core.MonthLayout)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", s.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(9)

	pdf.Cell(0, 6, fmt.Sprintf("Income (AED): %s", s.Summary.Income))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Expenses (AED): %s", s.Summary.Expenses))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Profit (AED): %s", s.Summary.Profit))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Days recorded: %d", s.Summary.Days))
	pdf.Ln(8)

	pdf.SetFont(family, "B", 10)
	pdf.CellFormat(28, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Income", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Expenses", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Profit", "1", 0, "C", false, 0, "")
	pdf.CellFormat(72, 6, "Notes", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont(family, "", 9)
	for _, d := range s.Days {
		pdf.CellFormat(28, 6, d.Date.String(), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, d.Income.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, d.Expenses.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, d.Profit.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(72, 6, tr(truncate(d.Notes, 45)), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildStatementXLSX renders a workbook with a summary sheet and a days
// sheet.
func BuildStatementXLSX(s Statement) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "summary"
	daysSheet := "days"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(daysSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Monthly Statement")
	_ = f.SetCellValue(summarySheet, "A3", "Account")
	_ = f.SetCellValue(summarySheet, "B3", s.AccountID)
	_ = f.SetCellValue(summarySheet, "A4", "Month")
	_ = f.SetCellValue(summarySheet, "B4", s.Month.Format(core.MonthLayout))
	_ = f.SetCellValue(summarySheet, "A5", "Income")
	_ = f.SetCellValue(summarySheet, "B5", s.Summary.Income.Float())
	_ = f.SetCellValue(summarySheet, "A6", "Expenses")
	_ = f.SetCellValue(summarySheet, "B6", s.Summary.Expenses.Float())
	_ = f.SetCellValue(summarySheet, "A7", "Profit")
	_ = f.SetCellValue(summarySheet, "B7", s.Summary.Profit.Float())
	_ = f.SetCellValue(summarySheet, "A8", "Days")
	_ = f.SetCellValue(summarySheet, "B8", s.Summary.Days)
	_ = f.SetCellValue(summarySheet, "A9", "Currency")
	_ = f.SetCellValue(summarySheet, "B9", "AED")

	_ = f.SetCellValue(daysSheet, "A1", "Date")
	_ = f.SetCellValue(daysSheet, "B1", "Income")
	_ = f.SetCellValue(daysSheet, "C1", "Expenses")
	_ = f.SetCellValue(daysSheet, "D1", "Profit")
	_ = f.SetCellValue(daysSheet, "E1", "Notes")
	for i, d := range s.Days {
		row := i + 2
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("A%d", row), d.Date.String())
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("B%d", row), d.Income.Float())
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("C%d", row), d.Expenses.Float())
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("D%d", row), d.Profit.Float())
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("E%d", row), d.Notes)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
