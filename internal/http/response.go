package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"dailyaed/internal/core"
	applog "dailyaed/internal/log"
	"dailyaed/internal/records"
)

type errorBody struct {
	Error     string         `json:"error"`
	Field     string         `json:"field,omitempty"`
	Stage     records.Stage  `json:"stage,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
	Pending   *records.Entry `json:"pending,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
}

// writeError maps service errors to statuses:
//
//	*core.ValidationError     -> 422 with the offending field
//	*records.SaveError        -> 503, retryable, echoing the pending input
//	core.ErrStoreUnavailable  -> 503, retryable
//	anything else             -> 500
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *core.ValidationError
		serr *records.SaveError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: verr.Err.Error(), Field: verr.Field})

	case errors.As(err, &serr):
		pending := serr.Pending
		writeJSON(w, http.StatusServiceUnavailable, errorBody{
			Error:     serr.Error(),
			Field:     serr.Field,
			Stage:     serr.Stage,
			Retryable: true,
			Pending:   &pending,
		})

	case errors.Is(err, core.ErrStoreUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "record store unavailable", Retryable: true})

	default:
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Unhandled request error",
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err,
			applog.FieldErrorType, applog.ErrorTypeInternal)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
