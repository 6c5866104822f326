package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"itn-reports/internal/indexer"
	"itn-reports/internal/render"
	"itn-reports/internal/report"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// badRequest marks query parameter failures.
type badRequest struct {
	err error
}

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
	}
}

func writeBody(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeHTML(w http.ResponseWriter, body string) {
	writeBody(w, "text/html; charset=utf-8", []byte(body))
}

func writeCSV(w http.ResponseWriter, buf *bytes.Buffer) {
	writeBody(w, "text/csv; charset=utf-8", buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: err.Error(),
		Code:    status,
	})
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var (
		dateErr *report.DateError
		sortErr *render.UnknownSortError
		reqErr  badRequest
	)
	switch {
	case errors.As(err, &dateErr), errors.Is(err, report.ErrInvalidDateFormat):
		return http.StatusBadRequest
	case errors.As(err, &sortErr), errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.Is(err, indexer.ErrSourceUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
