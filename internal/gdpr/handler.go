// Package gdpr exposes the compliance surface: consent records, per
// conversation data export, and deletion on request. All endpoints are
// tenant-scoped through the tenant middleware.
package gdpr

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mverkuijl/babbelbox/internal/api"
	"github.com/mverkuijl/babbelbox/internal/domain"
	"github.com/mverkuijl/babbelbox/internal/middleware"
	"github.com/mverkuijl/babbelbox/internal/store"
)

// Handler serves the GDPR endpoints.
type Handler struct {
	repo store.Repository
}

// NewHandler creates a GDPR handler backed by the repository.
func NewHandler(repo store.Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes mounts the GDPR endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/gdpr/consent", h.recordConsent)
	r.Get("/api/gdpr/consent", h.listConsent)
	r.Get("/api/gdpr/export", h.exportConversation)
	r.Delete("/api/gdpr/conversation/{id}", h.deleteConversation)
}

func (h *Handler) recordConsent(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantIDFromContext(r.Context())

	var req struct {
		VisitorID string `json:"visitorId"`
		Purpose   string `json:"purpose"`
		Granted   bool   `json:"granted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.VisitorID == "" || req.Purpose == "" {
		api.Error(w, http.StatusBadRequest, "visitorId and purpose are required")
		return
	}

	rec := &domain.ConsentRecord{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		VisitorID: req.VisitorID,
		Purpose:   req.Purpose,
		Granted:   req.Granted,
		CreatedAt: time.Now(),
	}
	if err := h.repo.CreateConsent(r.Context(), rec); err != nil {
		slog.Error("record consent", "error", err, "tenant_id", tenantID)
		api.Error(w, http.StatusInternalServerError, "Failed to record consent")
		return
	}

	api.JSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"consent": rec,
	})
}

func (h *Handler) listConsent(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantIDFromContext(r.Context())

	records, err := h.repo.ListConsent(r.Context(), tenantID)
	if err != nil {
		slog.Error("list consent", "error", err, "tenant_id", tenantID)
		api.Error(w, http.StatusInternalServerError, "Failed to list consent records")
		return
	}
	if records == nil {
		records = []domain.ConsentRecord{}
	}

	api.JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"consent": records,
	})
}

func (h *Handler) exportConversation(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantIDFromContext(r.Context())

	conversationID := r.URL.Query().Get("conversationId")
	if conversationID == "" {
		api.Error(w, http.StatusBadRequest, "conversationId query parameter is required")
		return
	}

	conv, err := h.repo.GetConversation(r.Context(), tenantID, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.Error(w, http.StatusNotFound, "Conversation not found")
			return
		}
		slog.Error("export conversation", "error", err, "tenant_id", tenantID)
		api.Error(w, http.StatusInternalServerError, "Failed to export conversation")
		return
	}

	messages, err := h.repo.GetMessages(r.Context(), conversationID)
	if err != nil {
		slog.Error("export conversation messages", "error", err, "conversation_id", conversationID)
		api.Error(w, http.StatusInternalServerError, "Failed to export conversation")
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	export := domain.ConversationExport{
		Conversation: *conv,
		Messages:     messages,
	}
	w.Header().Set("Content-Disposition", `attachment; filename="conversation-`+conversationID+`.json"`)
	api.JSON(w, http.StatusOK, export)
}

func (h *Handler) deleteConversation(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantIDFromContext(r.Context())
	conversationID := chi.URLParam(r, "id")

	deleted, err := h.repo.DeleteConversation(r.Context(), tenantID, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.Error(w, http.StatusNotFound, "Conversation not found")
			return
		}
		slog.Error("delete conversation", "error", err, "tenant_id", tenantID)
		api.Error(w, http.StatusInternalServerError, "Failed to delete conversation")
		return
	}

	slog.Info("conversation deleted on request",
		"tenant_id", tenantID,
		"conversation_id", conversationID,
		"messages_deleted", deleted)
	api.JSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"messagesDeleted": deleted,
	})
}
