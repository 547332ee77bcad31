package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hugo-lorenzo-mato/procreport/internal/catalog"
	"github.com/hugo-lorenzo-mato/procreport/internal/report"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// TriggerRequest is the body of POST /api/v1/reports. An empty body uses the
// configured filename.
type TriggerRequest struct {
	Filename string `json:"filename"`
}

// TriggerResponse describes the report that was written.
type TriggerResponse struct {
	Filename   string  `json:"filename"`
	Path       string  `json:"path,omitempty"`
	ReportID   string  `json:"report_id"`
	Bytes      int64   `json:"bytes"`
	DurationMS float64 `json:"duration_ms"`
}

func (s *Server) handleTriggerReport(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.dump(r.Context(), req.Filename)
	if err != nil {
		s.logger.Warn("report request failed", "filename", req.Filename, "error", err)
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, TriggerResponse{
		Filename:   res.Filename,
		Path:       res.Path,
		ReportID:   res.ReportID,
		Bytes:      res.Bytes,
		DurationMS: float64(res.Duration.Microseconds()) / 1000,
	})
}

// dump runs the report on the engine goroutine, where its script stack is the
// stack of the call.
func (s *Server) dump(ctx context.Context, filename string) (report.Result, error) {
	var res report.Result
	err := s.runner.Call(ctx, func() error {
		var err error
		res, err = s.reporter.Dump(filename)
		return err
	})
	return res, err
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		respondError(w, http.StatusNotFound, "report catalog disabled")
		return
	}

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	entries, err := s.catalog.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing reports", "error", err)
		respondErr(w, err)
		return
	}
	if entries == nil {
		entries = []catalog.Entry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		respondError(w, http.StatusNotFound, "report catalog disabled")
		return
	}

	entry, err := s.catalog.Get(r.Context(), chi.URLParam(r, "reportID"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// handleGetReportContent returns the report text as written.
func (s *Server) handleGetReportContent(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		respondError(w, http.StatusNotFound, "report catalog disabled")
		return
	}

	entry, data, err := s.catalog.Content(r.Context(), chi.URLParam(r, "reportID"))
	if err != nil {
		respondErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", entry.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
