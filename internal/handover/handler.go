package handover

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mverkuijl/babbelbox/internal/api"
	"github.com/mverkuijl/babbelbox/internal/middleware"
	"github.com/mverkuijl/babbelbox/internal/store"
)

// Handler exposes token issue and claim over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler creates a handover HTTP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the handover endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/handover", h.issue)
	r.Post("/api/handover/claim", h.claim)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantIDFromContext(r.Context())

	var req struct {
		ConversationID string `json:"conversationId"`
		AgentEmail     string `json:"agentEmail"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ConversationID == "" || req.AgentEmail == "" {
		api.Error(w, http.StatusBadRequest, "conversationId and agentEmail are required")
		return
	}

	token, err := h.svc.IssueToken(r.Context(), tenantID, req.ConversationID, req.AgentEmail)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.Error(w, http.StatusNotFound, "Conversation not found")
			return
		}
		slog.Error("issue handover token", "error", err, "tenant_id", tenantID)
		api.Error(w, http.StatusInternalServerError, "Failed to issue handover token")
		return
	}

	api.JSON(w, http.StatusCreated, map[string]interface{}{
		"success":   true,
		"token":     token.Token,
		"expiresAt": token.ExpiresAt,
	})
}

func (h *Handler) claim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		api.Error(w, http.StatusBadRequest, "token is required")
		return
	}

	rec, err := h.svc.Claim(r.Context(), req.Token)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			api.Error(w, http.StatusNotFound, "Token not found")
		case errors.Is(err, store.ErrTokenConsumed):
			api.Error(w, http.StatusGone, "Token already used or expired")
		default:
			slog.Error("claim handover token", "error", err)
			api.Error(w, http.StatusInternalServerError, "Failed to claim handover token")
		}
		return
	}

	api.JSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"conversationId": rec.ConversationID,
		"tenantId":       rec.TenantID,
	})
}
