package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"dailyaed/internal/auth"
	"dailyaed/internal/core"
	"dailyaed/internal/export"
	applog "dailyaed/internal/log"
	"dailyaed/internal/records"
	"dailyaed/internal/services"
)

const (
	fieldIncome   = core.FieldIncome
	fieldExpenses = core.FieldExpenses
)

var (
	errBadTimezone = errors.New("unknown timezone")
	errBadBody     = errors.New("malformed request body")
)

type amountRequest struct {
	Amount json.RawMessage `json:"amount"`
	Notes  *string         `json:"notes"`
}

type notesRequest struct {
	Notes *string `json:"notes"`
}

type saveResponse struct {
	ID     string           `json:"id"`
	Record core.DailyRecord `json:"record"`
}

type notesResponse struct {
	Date    core.Date `json:"date"`
	Notes   string    `json:"notes"`
	Updated bool      `json:"updated"`
}

// accountFor returns the record handle of the caller. The optional tz query
// parameter selects the location that resolves "today".
func (s *Server) accountFor(r *http.Request) (*services.AccountRecords, error) {
	var loc *time.Location
	if tz := strings.TrimSpace(r.URL.Query().Get("tz")); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", errBadTimezone, tz)
		}
		loc = l
	}
	account := auth.AccountIDFromContext(r.Context())
	if account == "" {
		account = auth.LocalAccount
	}
	return s.records.For(account, loc), nil
}

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	acc, err := s.accountFor(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	rec, err := acc.GetDailyRecord(r.Context(), acc.Today())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	acc, err := s.accountFor(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	date, err := core.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	rec, err := acc.GetDailyRecord(r.Context(), date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSaveAmount(field string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, err := s.accountFor(r)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		date, err := pathDate(r, acc)
		if err != nil {
			writeBadRequest(w, err)
			return
		}

		var req amountRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeBadRequest(w, err)
			return
		}
		amount, err := core.ParseAmount(rawAmount(req.Amount))
		if err != nil {
			s.writeError(w, r, core.Invalid(field, err))
			return
		}
		if req.Notes != nil {
			notes := sanitizeInput(*req.Notes)
			req.Notes = &notes
		}

		entry := records.Entry{Date: date, Amount: amount, Notes: req.Notes}
		var rec core.DailyRecord
		if field == fieldIncome {
			rec, err = acc.SaveIncome(r.Context(), entry)
		} else {
			rec, err = acc.SaveExpenses(r.Context(), entry)
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, saveResponse{ID: rec.ID, Record: rec})
	}
}

func (s *Server) handleSaveNotes(w http.ResponseWriter, r *http.Request) {
	acc, err := s.accountFor(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	date, err := pathDate(r, acc)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	var req notesRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.Notes == nil {
		writeBadRequest(w, fmt.Errorf("%w: notes is required", errBadBody))
		return
	}
	notes := sanitizeInput(*req.Notes)

	updated, err := acc.SaveNotes(r.Context(), date, notes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !updated {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no record for " + date.String()})
		return
	}
	writeJSON(w, http.StatusOK, notesResponse{Date: date, Notes: notes, Updated: true})
}

func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	acc, err := s.accountFor(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	month, err := core.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	agg, err := acc.GetMonthlyAggregate(r.Context(), month)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	acc, err := s.accountFor(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	month, err := core.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	days, summary, err := acc.MonthRecords(r.Context(), month)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	stmt := export.Statement{
		AccountID:   acc.AccountID(),
		Month:       month,
		Summary:     summary,
		Days:        days,
		GeneratedAt: time.Now(),
	}
	body, err := export.Build(stmt, format, s.export...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Statement exported",
		applog.FieldAccountID, acc.AccountID(),
		applog.FieldMonth, month.Format(core.MonthLayout),
		"format", string(format),
		"bytes", len(body))

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, stmt.Filename(format)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// pathDate reads {date}, accepting "today" as an alias.
func pathDate(r *http.Request, acc *services.AccountRecords) (core.Date, error) {
	raw := chi.URLParam(r, "date")
	if strings.EqualFold(raw, "today") {
		return acc.Today(), nil
	}
	return core.ParseDate(raw)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadBody)
		}
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

// rawAmount accepts both "12.50" and 12.50.
func rawAmount(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// sanitizeInput trims s and drops control characters other than tab and
// line breaks.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
