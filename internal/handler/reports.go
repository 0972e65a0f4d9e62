package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/repository"
	"github.com/sakif/snippet-store/internal/service"
)

// ReportHandler serves the comment-report (moderation) API.
type ReportHandler struct {
	svc    *service.ModerationService
	logger *slog.Logger
}

func NewReportHandler(svc *service.ModerationService, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{svc: svc, logger: logger}
}

// Routes mounts the handler under /reports.
//
//	GET    /              → HandleList
//	POST   /              → HandleCreate
//	GET    /queue         → HandleQueue
//	GET    /stats         → HandleStats
//	GET    /{id}          → HandleGet
//	POST   /{id}/handle   → HandleHandle
//	DELETE /{id}          → HandleDelete
func (h *ReportHandler) Routes(r chi.Router) {
	r.Get("/", h.HandleList)
	r.Post("/", h.HandleCreate)
	r.Get("/queue", h.HandleQueue)
	r.Get("/stats", h.HandleStats)
	r.Get("/{id}", h.HandleGet)
	r.Post("/{id}/handle", h.HandleHandle)
	r.Delete("/{id}", h.HandleDelete)
}

// reportFilters are the query parameters HandleList and HandleStats accept.
var reportFilters = []string{
	"status", "reason", "comment_id", "snippet_id", "reporter_id", "handled_by",
	"created_from", "created_to", "q", "high_priority",
}

func parseReportFilter(p *params) repository.ReportFilter {
	f := repository.ReportFilter{
		CommentID:    p.uuid("comment_id"),
		SnippetID:    p.uuid("snippet_id"),
		ReporterID:   p.uuid("reporter_id"),
		HandledBy:    p.uuid("handled_by"),
		Created:      repository.TimeRange{From: p.time("created_from"), To: p.time("created_to")},
		Search:       p.str("q"),
		HighPriority: p.bool("high_priority"),
	}
	// status=pending,reviewing selects any of the listed statuses.
	if statuses := p.strings("status"); statuses != nil {
		f.Statuses = make([]model.ReportStatus, 0, len(statuses))
		for _, s := range statuses {
			status := model.ReportStatus(s)
			if !status.Valid() {
				p.fail("status", "unknown status %q", s)
			}
			f.Statuses = append(f.Statuses, status)
		}
	}
	if reason := p.optString("reason"); reason != nil {
		rr := model.ReportReason(*reason)
		if !rr.Valid() {
			p.fail("reason", "unknown reason %q", *reason)
		}
		f.Reason = &rr
	}
	return f
}

// HandleList returns one page of reports.
//
// HTTP: GET /api/reports?status=pending&sort=priority&dir=desc&page=2
func (h *ReportHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	p := parseParams(r, reportFilters...)
	f := parseReportFilter(p)
	sort, page := p.sort(repository.ReportSorts), p.page()
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

func (h *ReportHandler) HandleQueue(w http.ResponseWriter, r *http.Request) {
	p := parseParams(r)
	page := p.page()
	if err := p.Err(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	result, err := h.svc.Queue(r.Context(), page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ReportHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	p := parseParams(r, reportFilters...)
	f := parseReportFilter(p)
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

func (h *ReportHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	report, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type createReportRequest struct {
	CommentID uuid.UUID          `json:"commentId"`
	SnippetID uuid.UUID          `json:"snippetId"`
	Reason    model.ReportReason `json:"reason"`
	Details   string             `json:"details"`
}

// HandleCreate files a report as the calling user.
//
// HTTP: POST /api/reports
// REQUEST BODY: {"commentId": "...", "snippetId": "...", "reason": "spam", "details": "..."}
func (h *ReportHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	reporter, err := viewer(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req createReportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	report, err := h.svc.Report(r.Context(), service.NewReport{
		CommentID:  req.CommentID,
		SnippetID:  req.SnippetID,
		ReporterID: reporter,
		Reason:     req.Reason,
		Details:    req.Details,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

type handleReportRequest struct {
	Status model.ReportStatus `json:"status"`
	Note   string             `json:"note"`
}

// HandleHandle records the calling moderator's decision.
//
// HTTP: POST /api/reports/{id}/handle
// REQUEST BODY: {"status": "resolved", "note": "comment removed"}
func (h *ReportHandler) HandleHandle(w http.ResponseWriter, r *http.Request) {
	moderator, err := viewer(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req handleReportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	report, err := h.svc.Handle(r.Context(), id, moderator, req.Status, req.Note)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *ReportHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
