package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/chris-hendrix/tripful-sub006/internal/api/middleware"
	"github.com/chris-hendrix/tripful-sub006/internal/domain"
	"github.com/chris-hendrix/tripful-sub006/internal/service"
)

// NotificationHandler serves the notification read endpoints and the
// synchronous fan-out triggers. The requesting user is identified by the
// X-User-ID header, set by the auth layer in front of this service.
type NotificationHandler struct {
	svc    *service.NotificationService
	logger *zap.Logger
}

func NewNotificationHandler(svc *service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

func requestUser(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// List handles GET /api/v1/notifications
// Query params: tripId, unread, page, limit.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}

	var f domain.NotificationFilter
	q := r.URL.Query()
	if tripID := q.Get("tripId"); tripID != "" {
		f.TripID = &tripID
	}
	f.UnreadOnly = q.Get("unread") == "true"
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))

	items, total, unread, err := h.svc.List(r.Context(), userID, f)
	if err != nil {
		mapError(w, err)
		return
	}
	if items == nil {
		items = []*domain.Notification{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"notifications": items,
		"total":         total,
		"unreadCount":   unread,
	})
}

// MarkRead handles POST /api/v1/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}
	if err := h.svc.MarkRead(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

// MarkAllRead handles POST /api/v1/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}
	var tripID *string
	if v := r.URL.Query().Get("tripId"); v != "" {
		tripID = &v
	}
	if err := h.svc.MarkAllRead(r.Context(), userID, tripID); err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

// GetPreferences handles GET /api/v1/trips/{tripID}/preferences
func (h *NotificationHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}
	prefs, err := h.svc.GetPreferences(r.Context(), userID, chi.URLParam(r, "tripID"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, prefs)
}

// UpdatePreferences handles PUT /api/v1/trips/{tripID}/preferences
func (h *NotificationHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}
	var prefs domain.Preferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.svc.UpdatePreferences(r.Context(), userID, chi.URLParam(r, "tripID"), prefs); err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, prefs)
}

type postMessageRequest struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
}

// PostMessage handles POST /api/v1/trips/{tripID}/messages
// Enqueues a trip-message fan-out synchronously, bypassing the cron
// producers. The author is excluded from the recipient set.
func (h *NotificationHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	jobID, err := h.svc.NotifyTripMembers(r.Context(), chi.URLParam(r, "tripID"),
		domain.TypeTripMessage, req.Title, req.Body, req.Data, userID)
	if err != nil {
		h.logger.Warn("trip message fan-out failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}

type sendInvitationRequest struct {
	Address string `json:"address"`
	Message string `json:"message"`
}

// SendInvitation handles POST /api/v1/invitations
func (h *NotificationHandler) SendInvitation(w http.ResponseWriter, r *http.Request) {
	var req sendInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	jobID, err := h.svc.SendInvitation(r.Context(), req.Address, req.Message)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}
