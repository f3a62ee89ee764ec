package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/scheduler"
)

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status       string  `json:"status"`
	Service      string  `json:"service"`
	Database     string  `json:"database"`
	LatestPeriod string  `json:"latest_period_key,omitempty"`
	CPUPercent   float64 `json:"cpu_percent"`
	MemPercent   float64 `json:"mem_percent"`
}

// handleHealth reports database reachability and host load
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Service: "treasury", Database: "ok"}
	status := http.StatusOK

	if s.cfg.HistoryDB != nil {
		if err := s.cfg.HistoryDB.QuickCheck(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Health check: database unreachable")
			resp.Status = "unhealthy"
			resp.Database = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if s.cfg.Store != nil && status == http.StatusOK {
		if p, ok, err := s.cfg.Store.LatestPeriod(ctx); err == nil && ok {
			resp.LatestPeriod = p.String()
		}
	}

	resp.CPUPercent, resp.MemPercent = s.getSystemStats()
	s.writeJSON(w, status, resp)
}

// getSystemStats calculates CPU and RAM usage percentages
func (s *Server) getSystemStats() (float64, float64) {
	// 100ms sample keeps the health probe fast
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		return cpuPercent[0], 0
	}
	return cpuPercent[0], memStat.UsedPercent
}

// handleEvents returns the latest in-process events
// GET /api/events?limit=50
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Events == nil {
		s.writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.Events.Recent(queryInt(r, "limit", 50)))
}

// handleRuns lists recent runs
// GET /api/runs?limit=20
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runs == nil {
		s.writeError(w, http.StatusNotFound, "run history not available")
		return
	}
	runs, err := s.cfg.Runs.Recent(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list runs")
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

// handleTriggerRun starts an ingestion outside the schedule
// POST /api/runs
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	job := s.cfg.Ingest
	if job == nil {
		s.writeError(w, http.StatusNotImplemented, "ingest job not registered")
		return
	}
	if job.Running() {
		s.writeError(w, http.StatusConflict, "an ingestion is already running")
		return
	}

	s.log.Info().Str("job", job.Name()).Msg("Manual ingestion triggered")
	go func() {
		err := job.Run()
		switch {
		case errors.Is(err, scheduler.ErrAlreadyRunning):
			s.log.Info().Str("job", job.Name()).Msg("Manual ingestion skipped, a run is already in progress")
		case err != nil:
			s.log.Error().Err(err).Str("job", job.Name()).Msg("Manual ingestion failed")
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": "Ingestion triggered",
	})
}

// handleRunSection returns the table section archived by a run
// GET /api/runs/{runID}/section
func (s *Server) handleRunSection(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runs == nil {
		s.writeError(w, http.StatusNotFound, "run history not available")
		return
	}
	section, err := s.cfg.Runs.Section(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load run section")
		s.writeError(w, http.StatusInternalServerError, "failed to load section")
		return
	}
	if section == nil {
		s.writeError(w, http.StatusNotFound, "no section archived for run")
		return
	}
	s.writeJSON(w, http.StatusOK, section)
}

// handlePeriods returns one aggregate per committed period, cached until the next commit
// GET /api/periods
func (s *Server) handlePeriods(w http.ResponseWriter, r *http.Request) {
	if cached, ok := s.cache.Get(totalsCacheKey); ok {
		s.writeJSON(w, http.StatusOK, cached)
		return
	}

	totals, err := s.cfg.Store.Totals(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load period totals")
		s.writeError(w, http.StatusInternalServerError, "failed to load period totals")
		return
	}
	s.cache.SetDefault(totalsCacheKey, totals)
	s.writeJSON(w, http.StatusOK, totals)
}

// handlePeriod returns the records of one period
// GET /api/periods/{period}
func (s *Server) handlePeriod(w http.ResponseWriter, r *http.Request) {
	period, err := domain.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.cfg.Store.Records(r.Context(), period)
	if err != nil {
		s.log.Error().Err(err).Str("period", period.String()).Msg("Failed to load period")
		s.writeError(w, http.StatusInternalServerError, "failed to load period")
		return
	}
	if len(records) == 0 {
		s.writeError(w, http.StatusNotFound, "period not committed")
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

// handleEntityHistory searches the per-entity history by name substring
// GET /api/entities/{match}/history
func (s *Server) handleEntityHistory(w http.ResponseWriter, r *http.Request) {
	match := chi.URLParam(r, "match")
	if match == "" {
		s.writeError(w, http.StatusBadRequest, "entity name required")
		return
	}

	entries, err := s.cfg.Store.History(r.Context(), match)
	if err != nil {
		s.log.Error().Err(err).Str("match", match).Msg("Failed to load entity history")
		s.writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error body
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && v > 0 {
		return v
	}
	return def
}
