package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/model"
	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/storage"
	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/tracker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	readTimeout     = 10 * time.Second
	checkTimeout    = 60 * time.Second
	defaultAlertCap = 50
)

// Server exposes budget evaluation and alerting over HTTP.
type Server struct {
	budgets *tracker.BudgetManager
	mux     *http.ServeMux
	logger  *slog.Logger
}

// NewServer creates an API server. When gatherer is non-nil its metrics are
// served on /metrics.
func NewServer(budgets *tracker.BudgetManager, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	s := &Server{
		budgets: budgets,
		mux:     http.NewServeMux(),
		logger:  logger,
	}
	s.routes(gatherer)
	return s
}

func (s *Server) routes(gatherer prometheus.Gatherer) {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	s.mux.HandleFunc("GET /api/v1/budgets/{id}/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/v1/budgets/{id}/check", s.handleCheck)
	s.mux.HandleFunc("POST /api/v1/budgets/{id}/test-alert", s.handleCheck)
	s.mux.HandleFunc("GET /api/v1/budgets/{id}/alerts", s.handleAlerts)
	s.mux.HandleFunc("POST /api/v1/tenants/{tenant}/check", s.handleTenantCheck)
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	status, err := s.budgets.Evaluate(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, "evaluate budget", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	alert, err := s.budgets.CheckAndAlert(ctx, r.PathValue("id"))
	if err != nil {
		s.writeError(w, "check budget", err)
		return
	}
	if alert == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	limit := defaultAlertCap
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	history, err := s.budgets.ListAlerts(ctx, r.PathValue("id"), limit)
	if err != nil {
		s.writeError(w, "list alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleTenantCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	result, err := s.budgets.CheckAllAndAlert(ctx, r.PathValue("tenant"))
	if err != nil {
		s.writeError(w, "check tenant budgets", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error(op, "error", err)
		writeJSON(w, code, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tracker.ErrBudgetInactive):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidBudget),
		errors.Is(err, model.ErrInvalidPeriod),
		errors.Is(err, model.ErrChannelNotConfigured):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
