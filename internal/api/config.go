package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hugo-lorenzo-mato/procreport/internal/config"
	"github.com/hugo-lorenzo-mato/procreport/internal/events"
	"github.com/hugo-lorenzo-mato/procreport/internal/report"
)

// OptionsResponse is the current trigger configuration.
type OptionsResponse struct {
	Events    string `json:"events"`
	CoreDump  bool   `json:"coredump"`
	Signal    string `json:"signal"`
	Filename  string `json:"filename"`
	Directory string `json:"directory"`
	Verbose   bool   `json:"verbose"`
}

// SetOptionRequest is the body of PUT /api/v1/config/{option}. Value uses the
// same syntax as the environment variables.
type SetOptionRequest struct {
	Value string `json:"value"`
}

func optionsToResponse(o report.Options) OptionsResponse {
	return OptionsResponse{
		Events:    o.Events.String(),
		CoreDump:  o.CoreDump,
		Signal:    o.SignalName(),
		Filename:  o.Filename,
		Directory: o.Directory,
		Verbose:   o.Verbose,
	}
}

// currentOptions returns the configuration and its ETag.
func (s *Server) currentOptions() (OptionsResponse, string, error) {
	resp := optionsToResponse(s.reporter.Options())
	body, err := json.Marshal(resp)
	if err != nil {
		return resp, "", fmt.Errorf("encoding options: %w", err)
	}
	return resp, config.CalculateETag(body), nil
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	resp, etag, err := s.currentOptions()
	if err != nil {
		respondErr(w, err)
		return
	}

	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetOption(w http.ResponseWriter, r *http.Request) {
	option := chi.URLParam(r, "option")

	var req SetOptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if match := r.Header.Get("If-Match"); match != "" {
		current, etag, err := s.currentOptions()
		if err != nil {
			respondErr(w, err)
			return
		}
		if match != etag {
			w.Header().Set("ETag", etag)
			respondJSON(w, http.StatusPreconditionFailed, map[string]any{
				"error":   "configuration changed since it was read",
				"current": current,
			})
			return
		}
	}

	if err := s.reporter.Set(option, req.Value); err != nil {
		respondErr(w, err)
		return
	}
	s.logger.Info("report option updated", "option", option, "value", req.Value)
	if s.events != nil {
		s.events.Publish(events.OptionChanged(option, req.Value))
	}

	resp, etag, err := s.currentOptions()
	if err != nil {
		respondErr(w, err)
		return
	}
	w.Header().Set("ETag", etag)
	respondJSON(w, http.StatusOK, resp)
}
