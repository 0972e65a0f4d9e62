package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sakif/snippet-store/internal/apperror"
	"github.com/sakif/snippet-store/internal/model"
	"github.com/sakif/snippet-store/internal/repository"
	"github.com/sakif/snippet-store/internal/service"
)

// MessageHandler serves conversations, messages and drafts. Every route
// acts as the user named by the X-User-ID header.
type MessageHandler struct {
	svc    *service.MessagingService
	logger *slog.Logger
}

func NewMessageHandler(svc *service.MessagingService, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{svc: svc, logger: logger}
}

// ConversationRoutes mounts under /conversations.
func (h *MessageHandler) ConversationRoutes(r chi.Router) {
	r.Get("/", h.HandleConversations)
	r.Get("/{id}", h.HandleConversation)
	r.Delete("/{id}", h.HandleDeleteConversation)
	r.Get("/{id}/messages", h.HandleMessages)
	r.Post("/{id}/read", h.HandleMarkRead)
	r.Put("/{id}/archive", h.HandleArchive)
}

// MessageRoutes mounts under /messages.
func (h *MessageHandler) MessageRoutes(r chi.Router) {
	r.Post("/", h.HandleSend)
	r.Get("/unread", h.HandleUnreadCount)
	r.Get("/stats", h.HandleStats)
	r.Delete("/{id}", h.HandleDeleteMessage)
}

// DraftRoutes mounts under /drafts.
func (h *MessageHandler) DraftRoutes(r chi.Router) {
	r.Get("/", h.HandleDrafts)
	r.Put("/", h.HandleSaveDraft)
}

// withViewer resolves the caller or answers 403.
func (h *MessageHandler) withViewer(fn func(w http.ResponseWriter, r *http.Request, user uuid.UUID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := viewer(r)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		fn(w, r, user)
	}
}

// parseInclude reads include=attachments,participants.
func parseInclude(p *params) model.MessageInclude {
	var inc model.MessageInclude
	for _, s := range p.strings("include") {
		switch strings.ToLower(s) {
		case "attachments":
			inc |= model.IncludeAttachments
		case "participants":
			inc |= model.IncludeParticipants
		default:
			p.fail("include", "unknown include %q", s)
		}
	}
	return inc
}

func (h *MessageHandler) HandleConversations(w http.ResponseWriter, r *http.Request) {
	h.withViewer(func(w http.ResponseWriter, r *http.Request, user uuid.UUID) {
		p := parseParams(r, "archived", "last_message_from", "last_message_to", "q")
		f := repository.ConversationFilter{
			Archived:    p.bool("archived"),
			LastMessage: repository.TimeRange{From: p.time("last_message_from"), To: p.time("last_message_to")},
			Search:      p.str("q"),
		}
		sort, page := p.sort(repository.ConversationSorts), p.page()
		if err := p.Err(); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		result, err := h.svc.Conversations(r.Context(), user, f, sort, page)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})(w, r)
}

func (h *MessageHandler) HandleConversation(w http.ResponseWriter, r *http.Request) {
	h.withViewer(func(w http.ResponseWriter, r *http.Request, user uuid.UUID) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		c, err := h.svc.Conversation(r.Context(), id, user)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	})(w, r)
}

// messageFilters are the query parameters of HandleMessages.
var messageFilters = []string{
	"sender_id", "is_read", "include_deleted", "has_attachments",
	"created_from", "created_to", "q", "include",
}

// HandleMessages lists one conversation.
//
// HTTP: GET /api/conversations/{id}/messages?is_read=false&include=attachments
func (h *MessageHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	h.withViewer(func(w http.ResponseWriter, r *http.Request, user uuid.UUID) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		p := parseParams(r, messageFilters...)
		f := repository.MessageFilter{
			SenderID:       p.uuid("sender_id"),
			IsRead:         p.bool("is_read"),
			HasAttachments: p.bool("has_attachments"),
			Created:        repository.TimeRange{From: p.time("created_from"), To: p.time("created_to")},
			Search:         p.str("q"),
		}
		if b := p.bool("include_deleted"); b != nil {
			f.IncludeDeleted = *b
		}
		include := parseInclude(p)
		sort, page := p.sort(repository.MessageSorts), p.page()
		if err := p.Err(); err != nil {
			writeError(w, r, h.logger, err)
			return
		}

		result, err := h.svc.Messages(r.Context(), id, user, f, sort, page, include)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})(w, r)
}

type sendMessageRequest struct {
	RecipientID uuid.UUID          `json:"recipientId"`
	Subject     string             `json:"subject"`
	Body        string             `json:"body"`
	Attachments []model.Attachment `json:"attachments"`
	DraftID     *uuid.UUID         `json:"draftId"`
}

// HandleSend sends a message as the caller.
//
// HTTP: POST /api/messages
// REQUEST BODY: {"recipientId": "...", "body": "hi", "attachments": [{"fileName": "...", "storageKey": "...", "sizeBytes": 10}]}
func (h *MessageHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	h.withViewer(func(w http.ResponseWriter, r *http.Request, user uuid.UUID) {
		var req sendMessageRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		msg, err := h.svc.Send(r.Context(), service.NewMessage{
			SenderID:    user,
			RecipientID: req.RecipientID,
			Subject:     req.Subject,
			Body:        req.Body,
			Attachments: req.Attachments,
			DraftID:     req.DraftID,
		})
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	})(w, r)
}

// countResponse is the body of every "how many" endpoint.
type countResponse struct {
	Count int64 `json:"count"`
}

func (h *MessageHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	h.withViewer(func(w http.ResponseWriter, r *http.Request, user uuid.UUID) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		n, err := h.svc.MarkRead(r.Context(), id, user)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, countResponse{Count: n})
	})(w, r)
}

func (h *MessageHandler) HandleUnreadCount(w http.ResponseWriter, r *http.Request) {
	h.withViewer(func(w http.ResponseWriter, r *http.Request, user uuid.UUID) {
		n, err := h.svc.UnreadCount(r.Context(), user)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, countResponse{Count: n})
	})(w, r)
}

// HandleStats aggregates messages across all conversations. It is an
// operator endpoint and takes the same filters as HandleMessages plus
// conversation_id and receiver_id.
func (h *MessageHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	p := parseParams(r, append([]string{"conversation_id", "receiver_id"}, messageFilters...)...)
	f := repository.MessageFilter{
		ConversationID: p.uuid("conversation_id"),
		SenderID:       p.uuid("sender_id"),
		ReceiverID:     p.uuid("receiver_id"),
		IsRead:         p.bool("is_read"),
		HasAttachments: p.bool("has_attachments"),
		Created:        repository.TimeRange{From: p.time("created_from"), To: p.time("created_to")},
		Search:         p.str("q"),
	}
	if b := p.bool("include_deleted"); b != nil {
		f.IncludeDeleted = *b
	}
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

type archiveRequest struct {
	Archived bool `json:"archived"`
}

func (h *MessageHandler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	h.withViewer(func(w http.ResponseWriter, r *http.Request, user uuid.UUID) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		var req archiveRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		if err := h.svc.Archive(r.Context(), id, user, req.Archived); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})(w, r)
}

func (h *MessageHandler) HandleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	h.withViewer(func(w http.ResponseWriter, r *http.Request, user uuid.UUID) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		if err := h.svc.DeleteConversation(r.Context(), id, user); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})(w, r)
}

func (h *MessageHandler) HandleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	h.withViewer(func(w http.ResponseWriter, r *http.Request, user uuid.UUID) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		if err := h.svc.DeleteMessage(r.Context(), id, user); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})(w, r)
}

func (h *MessageHandler) HandleDrafts(w http.ResponseWriter, r *http.Request) {
	h.withViewer(func(w http.ResponseWriter, r *http.Request, user uuid.UUID) {
		p := parseParams(r, "conversation_id", "updated_from", "updated_to", "q")
		f := repository.DraftFilter{
			ConversationID: p.uuid("conversation_id"),
			Updated:        repository.TimeRange{From: p.time("updated_from"), To: p.time("updated_to")},
			Search:         p.str("q"),
		}
		sort, page := p.sort(repository.DraftSorts), p.page()
		if err := p.Err(); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		result, err := h.svc.Drafts(r.Context(), user, f, sort, page)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})(w, r)
}

type saveDraftRequest struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID *uuid.UUID `json:"conversationId"`
	RecipientID    *uuid.UUID `json:"recipientId"`
	Body           string     `json:"body"`
	Version        int32      `json:"version"`
}

// HandleSaveDraft creates (version 0) or updates a draft.
//
// HTTP: PUT /api/drafts
// A stale version answers 409 with the draft untouched.
func (h *MessageHandler) HandleSaveDraft(w http.ResponseWriter, r *http.Request) {
	h.withViewer(func(w http.ResponseWriter, r *http.Request, user uuid.UUID) {
		var req saveDraftRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		if req.Version < 0 {
			writeError(w, r, h.logger, apperror.ValidationFailed("version", "version must not be negative"))
			return
		}
		d := &model.Draft{
			ID:             req.ID,
			UserID:         user,
			ConversationID: req.ConversationID,
			RecipientID:    req.RecipientID,
			Body:           req.Body,
			Version:        req.Version,
		}
		if err := h.svc.SaveDraft(r.Context(), d); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	})(w, r)
}
