package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"late_report_bot/internal/app"
	"late_report_bot/internal/domain/stats"

	"github.com/sirupsen/logrus"
)

// StatsProvider is the statistics surface the HTTP API exposes.
type StatsProvider interface {
	PeriodicStatsJSON(ctx context.Context, period stats.Period, start, end string) (json.RawMessage, error)
	UserStatsJSON(ctx context.Context, userID int64, limit int) (json.RawMessage, error)
	ClearCache(ctx context.Context) (*app.ClearResult, error)
}

// SystemProvider exposes the system wide counters behind GET /api/stats.
type SystemProvider interface {
	SystemOverview(ctx context.Context) (*stats.SystemOverview, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Router builds the HTTP handlers for /api/stats and /health.
type Router struct {
	stats  StatsProvider
	system SystemProvider
	db     Pinger
	logger *logrus.Entry
}

func NewRouter(statsProvider StatsProvider, system SystemProvider, db Pinger, logger *logrus.Entry) *Router {
	return &Router{stats: statsProvider, system: system, db: db, logger: logger}
}

func (r *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/stats", r.systemStats)
	mux.HandleFunc("GET /api/stats/late-reports/user/{userId}", r.userStats)
	mux.HandleFunc("GET /api/stats/late-reports/{period}", r.periodicStats)
	mux.HandleFunc("POST /api/stats/clear-cache", r.clearCache)
	mux.HandleFunc("GET /health", r.health)
}

// Handler returns the registered routes wrapped in the CORS and request id
// middleware.
func (r *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	r.Register(mux)
	return withRequestID(withCORS(mux), r.logger)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

// errorEnvelope always carries all three keys so clients can rely on them.
type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (r *Router) periodicStats(w http.ResponseWriter, req *http.Request) {
	period, err := stats.ParsePeriod(req.PathValue("period"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid period", err.Error())
		return
	}

	q := req.URL.Query()
	data, err := r.stats.PeriodicStatsJSON(req.Context(), period, q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		if errors.Is(err, stats.ErrInvalidDateRange) {
			respondError(w, http.StatusBadRequest, "Invalid date range", err.Error())
			return
		}
		requestLogger(req, r.logger).WithError(err).WithField("period", period).Error("Failed to fetch periodic stats")
		respondError(w, http.StatusInternalServerError, "Failed to fetch "+string(period)+" stats", err.Error())
		return
	}
	respondData(w, data)
}

func (r *Router) userStats(w http.ResponseWriter, req *http.Request) {
	userID, err := parsePositiveID(req.PathValue("userId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid user ID", "userId must be a positive integer")
		return
	}

	limit := app.DefaultRecentLimit
	if raw := req.URL.Query().Get("limit"); raw != "" {
		if !allDigits(raw) {
			respondError(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer")
			return
		}
		limit, err = strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer")
			return
		}
	}

	data, err := r.stats.UserStatsJSON(req.Context(), userID, limit)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidUserID):
			respondError(w, http.StatusBadRequest, "Invalid user ID", err.Error())
		case errors.Is(err, app.ErrInvalidLimit):
			respondError(w, http.StatusBadRequest, "Invalid limit", err.Error())
		default:
			requestLogger(req, r.logger).WithError(err).WithField("user_id", userID).Error("Failed to fetch user stats")
			respondError(w, http.StatusInternalServerError, "Failed to fetch user stats", err.Error())
		}
		return
	}
	respondData(w, data)
}

func (r *Router) systemStats(w http.ResponseWriter, req *http.Request) {
	overview, err := r.system.SystemOverview(req.Context())
	if err != nil {
		requestLogger(req, r.logger).WithError(err).Error("Failed to fetch system stats")
		respondError(w, http.StatusInternalServerError, "Failed to fetch system stats", err.Error())
		return
	}
	data, err := json.Marshal(overview)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch system stats", err.Error())
		return
	}
	respondData(w, data)
}

func (r *Router) clearCache(w http.ResponseWriter, req *http.Request) {
	result, err := r.stats.ClearCache(req.Context())
	if err != nil {
		requestLogger(req, r.logger).WithError(err).Error("Failed to clear stats cache")
		respondError(w, http.StatusInternalServerError, "Failed to clear cache", err.Error())
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to clear cache", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Data: data, Message: "Cache cleared successfully"})
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	if err := r.db.PingContext(req.Context()); err != nil {
		requestLogger(req, r.logger).WithError(err).Warn("Health check failed")
		respondError(w, http.StatusServiceUnavailable, "Database unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, envelope{Success: true, Message: "ok"})
}

func respondData(w http.ResponseWriter, data json.RawMessage) {
	respondJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, errText, message string) {
	if message == "" {
		message = errText
	}
	respondJSON(w, status, errorEnvelope{Success: false, Error: errText, Message: message})
}

// parsePositiveID accepts only unsigned decimal digits, so "+5" and "-5"
// are rejected before ParseInt sees them.
func parsePositiveID(raw string) (int64, error) {
	if !allDigits(raw) {
		return 0, strconv.ErrSyntax
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, strconv.ErrRange
	}
	return id, nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
