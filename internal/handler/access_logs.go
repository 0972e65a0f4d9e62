package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snippet-store/internal/repository"
	"github.com/sakif/snippet-store/internal/service"
)

// AccessLogHandler exposes the request log to operators.
type AccessLogHandler struct {
	svc    *service.AccessLogService
	logger *slog.Logger
}

func NewAccessLogHandler(svc *service.AccessLogService, logger *slog.Logger) *AccessLogHandler {
	return &AccessLogHandler{svc: svc, logger: logger}
}

// Routes mounts under /access-logs.
func (h *AccessLogHandler) Routes(r chi.Router) {
	r.Get("/", h.HandleList)
	r.Get("/stats", h.HandleStats)
}

var accessLogFilters = []string{
	"user_id", "method", "path", "status_min", "status_max", "min_duration", "created_from", "created_to",
}

func parseAccessLogFilter(p *params) repository.AccessLogFilter {
	return repository.AccessLogFilter{
		UserID:      p.uuid("user_id"),
		Method:      p.optString("method"),
		Path:        p.str("path"),
		StatusMin:   p.int32("status_min"),
		StatusMax:   p.int32("status_max"),
		MinDuration: p.duration("min_duration"),
		Created:     repository.TimeRange{From: p.time("created_from"), To: p.time("created_to")},
	}
}

// HandleList returns one page of the request log.
//
// HTTP: GET /api/access-logs?status_min=500&min_duration=250ms&sort=duration
func (h *AccessLogHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	p := parseParams(r, accessLogFilters...)
	f := parseAccessLogFilter(p)
	sort, page := p.sort(repository.AccessLogSorts), p.page()
	if err := p.Err(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	result, err := h.svc.List(r.Context(), f, sort, page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AccessLogHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	p := parseParams(r, accessLogFilters...)
	f := parseAccessLogFilter(p)
	if err := p.Err(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	stats, err := h.svc.Stats(r.Context(), f)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
