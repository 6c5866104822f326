package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"itn-reports/internal/render"
)

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, err)
}

func (s *Server) dateParams(r *http.Request) (string, string) {
	q := r.URL.Query()
	start := q.Get("date_start")
	if start == "" {
		start = s.opts.DefaultStart
	}
	end := q.Get("date_end")
	if end == "" {
		end = s.opts.DefaultEnd
	}
	return start, end
}

func (s *Server) minStakeParam(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("min_stake"))
	if raw == "" {
		return s.opts.DefaultMinStake, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, badRequest{fmt.Errorf("min_stake must be an integer, got %q", raw)}
	}
	return v, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleActiveParticipants(w http.ResponseWriter, r *http.Request) {
	addrs, err := s.backend.ActiveParticipants(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, addrs)
}

func (s *Server) handleCountsTotal(w http.ResponseWriter, r *http.Request) {
	counts, err := s.backend.ParticipantCounts(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleCountsDay(w http.ResponseWriter, r *http.Request) {
	start, end := s.dateParams(r)
	rep, err := s.backend.CoverageReport(r.Context(), start, end)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleCountsCSV(w http.ResponseWriter, r *http.Request) {
	start, end := s.dateParams(r)
	rep, err := s.backend.CoverageReport(r.Context(), start, end)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := render.ReportCSV(&buf, rep); err != nil {
		s.fail(w, r, err)
		return
	}
	writeCSV(w, &buf)
}

func (s *Server) handleDateRange(w http.ResponseWriter, r *http.Request) {
	dr, err := s.backend.DateRange(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dr)
}

func (s *Server) handleHolders(w http.ResponseWriter, r *http.Request) {
	minStake, err := s.minStakeParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	holders, err := s.backend.LicenseHolders(r.Context(), minStake, r.URL.Query().Get("license_no"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, holders)
}

func (s *Server) handleHoldersCSV(w http.ResponseWriter, r *http.Request) {
	minStake, err := s.minStakeParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	key := r.URL.Query().Get("sort")
	if _, err := render.SortHolders(nil, key); err != nil {
		s.fail(w, r, err)
		return
	}

	holders, err := s.backend.LicenseHolders(r.Context(), minStake, "")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := render.HoldersCSV(&buf, holders, key); err != nil {
		s.fail(w, r, err)
		return
	}
	writeCSV(w, &buf)
}

func (s *Server) handleParticipantsHTML(w http.ResponseWriter, r *http.Request) {
	holders, err := s.backend.LicenseHolders(r.Context(), 0, "")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := render.HoldersHTML(holders)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeHTML(w, strings.TrimSpace(out))
}

func (s *Server) handleOnlineCollectors(w http.ResponseWriter, r *http.Request) {
	rows, err := s.backend.OnlineCollectors(r.Context())
	if err != nil {
		s.logger.Warn().Err(err).Msg("collector counts unavailable")
		writeHTML(w, render.NoCollectorsHTML)
		return
	}
	out, err := render.CollectorsHTML(rows)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeHTML(w, strings.TrimSpace(out))
}

func (s *Server) handleCountActive(w http.ResponseWriter, r *http.Request) {
	addrs, err := s.backend.ActiveParticipants(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeHTML(w, strconv.Itoa(len(addrs)))
}
