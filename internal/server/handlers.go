package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"indicator-lab/internal/artifacts"
	"indicator-lab/internal/config"
	"indicator-lab/internal/domain"
	"indicator-lab/internal/orchestrator"
)

// createRunResponse is the acknowledgment payload for POST /api/runs.
type createRunResponse struct {
	RunID     string           `json:"runId"`
	Status    domain.RunStatus `json:"status"`
	CreatedAt int64            `json:"createdAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var cfg domain.RunConfig
	if r.Body != nil {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	if err := config.PrepareRunConfig(&cfg); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.orch.CreateRun(r.Context(), cfg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, createRunResponse{
		RunID:     rec.RunID,
		Status:    rec.Status,
		CreatedAt: rec.CreatedAt,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.ListRuns())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.orch.GetRun(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.CancelRun(mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	summary, err := s.orch.Results(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	plot, err := s.orch.Plot(vars["id"], vars["plotId"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plot)
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	snaps, err := s.orch.Telemetry(mux.Vars(r)["id"], limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	diags, err := s.orch.Diagnostics(mux.Vars(r)["id"], limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diags)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	bundle, err := s.orch.Bundle(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(artifacts.RenderMarkdown(bundle)))
}

func (s *Server) handleScripts(w http.ResponseWriter, r *http.Request) {
	bundle, err := s.orch.Bundle(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(bundle.Scripts) == 0 {
		s.writeError(w, orchestrator.ErrNotCompleted)
		return
	}
	writeJSON(w, http.StatusOK, bundle.Scripts)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	bundle, err := s.orch.Bundle(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	export, err := artifacts.BuildExportBundle(bundle, s.now().UnixMilli())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, export)
}

// parseLimit reads the optional ?limit= query parameter. Zero means all.
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return limit, nil
}

// writeError maps orchestrator sentinels onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orchestrator.ErrRunNotFound),
		errors.Is(err, orchestrator.ErrPlotNotFound):
		status = http.StatusNotFound
	case errors.Is(err, orchestrator.ErrRunActive),
		errors.Is(err, orchestrator.ErrNotCompleted),
		errors.Is(err, orchestrator.ErrRunNotActive):
		status = http.StatusConflict
	default:
		s.log.Error().Err(err).Msg("request failed")
	}
	writeJSONError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
