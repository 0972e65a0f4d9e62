package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/repository"
	"github.com/sakif/snippet-store/internal/service"
)

// NotificationHandler serves the caller's inbox and delivery settings.
type NotificationHandler struct {
	svc    *service.NotificationService
	logger *slog.Logger
}

func NewNotificationHandler(svc *service.NotificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

// Routes mounts under /notifications.
func (h *NotificationHandler) Routes(r chi.Router) {
	r.Get("/", h.HandleList)
	r.Get("/unread", h.HandleUnreadCount)
	r.Post("/read", h.HandleMarkRead)
	r.Post("/read-all", h.HandleMarkAllRead)
	r.Get("/settings", h.HandleSettings)
	r.Put("/settings", h.HandleUpdateSetting)
	r.Delete("/settings/{kind}", h.HandleResetSetting)
	r.Delete("/{id}", h.HandleDelete)
}

// HandleList returns the caller's notifications.
//
// HTTP: GET /api/notifications?kind=mention,message&is_read=false
func (h *NotificationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, err := viewer(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p := parseParams(r, "kind", "actor_id", "is_read", "created_from", "created_to")
	f := repository.NotificationFilter{
		ActorID: p.uuid("actor_id"),
		IsRead:  p.bool("is_read"),
		Created: repository.TimeRange{From: p.time("created_from"), To: p.time("created_to")},
	}
	if kinds := p.strings("kind"); kinds != nil {
		f.Kinds = make([]model.NotificationKind, 0, len(kinds))
		for _, k := range kinds {
			kind := model.NotificationKind(k)
			if !kind.Valid() {
				p.fail("kind", "unknown kind %q", k)
			}
			f.Kinds = append(f.Kinds, kind)
		}
	}
	sort, page := p.sort(repository.NotificationSorts), p.page()
	if err := p.Err(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.svc.List(r.Context(), user, f, sort, page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *NotificationHandler) HandleUnreadCount(w http.ResponseWriter, r *http.Request) {
	user, err := viewer(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	n, err := h.svc.UnreadCount(r.Context(), user)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

type markReadRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

// HandleMarkRead marks the listed notifications read. IDs that are not the
// caller's are ignored; the response counts what actually changed.
func (h *NotificationHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	user, err := viewer(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req markReadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	n, err := h.svc.MarkRead(r.Context(), user, req.IDs)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (h *NotificationHandler) HandleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	user, err := viewer(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	n, err := h.svc.MarkAllRead(r.Context(), user)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (h *NotificationHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, err := viewer(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.svc.Delete(r.Context(), user, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) HandleSettings(w http.ResponseWriter, r *http.Request) {
	user, err := viewer(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	settings, err := h.svc.Settings(r.Context(), user)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]map[string]any, 0, len(settings))
	for i := range settings {
		out = append(out, settingResponse(&settings[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// settingRequest carries durations as Go duration strings ("90m", "22h").
type settingRequest struct {
	Kind           model.NotificationKind `json:"kind"`
	InApp          bool                   `json:"inApp"`
	Email          bool                   `json:"email"`
	Push           bool                   `json:"push"`
	DigestInterval string                 `json:"digestInterval"`
	QuietStart     string                 `json:"quietStart"`
	QuietEnd       string                 `json:"quietEnd"`
}

// HandleUpdateSetting stores the caller's setting for one kind.
//
// HTTP: PUT /api/notifications/settings
// REQUEST BODY: {"kind": "message", "inApp": true, "digestInterval": "1h", "quietStart": "22h", "quietEnd": "7h"}
func (h *NotificationHandler) HandleUpdateSetting(w http.ResponseWriter, r *http.Request) {
	user, err := viewer(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req settingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	// The same sticky parser as the query string, fed from the body.
	p := &params{values: map[string][]string{
		"digestInterval": {req.DigestInterval},
		"quietStart":     {req.QuietStart},
		"quietEnd":       {req.QuietEnd},
	}}
	st := &model.NotificationSetting{
		UserID:         user,
		Kind:           req.Kind,
		InApp:          req.InApp,
		Email:          req.Email,
		Push:           req.Push,
		DigestInterval: p.duration("digestInterval"),
		QuietStart:     p.duration("quietStart"),
		QuietEnd:       p.duration("quietEnd"),
	}
	if err := p.Err(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.svc.UpdateSetting(r.Context(), st); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settingResponse(st))
}

// settingResponse renders durations back in the request's string form.
func settingResponse(st *model.NotificationSetting) map[string]any {
	out := map[string]any{
		"id":        st.ID,
		"kind":      st.Kind,
		"inApp":     st.InApp,
		"email":     st.Email,
		"push":      st.Push,
		"updatedAt": st.UpdatedAt,
	}
	for name, d := range map[string]*time.Duration{
		"digestInterval": st.DigestInterval,
		"quietStart":     st.QuietStart,
		"quietEnd":       st.QuietEnd,
	} {
		if d != nil {
			out[name] = d.String()
		}
	}
	return out
}

func (h *NotificationHandler) HandleResetSetting(w http.ResponseWriter, r *http.Request) {
	user, err := viewer(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.svc.ResetSetting(r.Context(), user, model.NotificationKind(r.PathValue("kind"))); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
