// Package chat implements the widget-facing chat endpoint: one POST per
// turn, answered as an SSE stream of typing/content/done events. The
// abuse-protection chain (rate limiter, bot policy, WAF) runs before any
// generation work begins; once streaming starts all failures are in-band.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/mverkuijl/babbelbox/internal/api"
	"github.com/mverkuijl/babbelbox/internal/domain"
	"github.com/mverkuijl/babbelbox/internal/metrics"
	"github.com/mverkuijl/babbelbox/internal/middleware"
	"github.com/mverkuijl/babbelbox/internal/persona"
	"github.com/mverkuijl/babbelbox/internal/ratelimit"
	"github.com/mverkuijl/babbelbox/internal/sse"
	"github.com/mverkuijl/babbelbox/internal/store"
	"github.com/mverkuijl/babbelbox/internal/waf"
)

// maxRequestBodySize bounds chat request bodies (1MB).
const maxRequestBodySize = 1 << 20

// QueryPath is the strict-policy chat endpoint: a known-bot user agent is
// grounds for immediate rejection here, not just a captcha flag.
const QueryPath = "/api/ai/query"

// Config holds chat handler tunables.
type Config struct {
	// TokenDelay paces content event emission.
	TokenDelay time.Duration
	// TypingDelay is the pause between the typing event and the first token.
	TypingDelay time.Duration
}

// DefaultConfig returns the pacing defaults.
func DefaultConfig() Config {
	return Config{
		TokenDelay:  40 * time.Millisecond,
		TypingDelay: 300 * time.Millisecond,
	}
}

// Handler serves the streaming chat endpoint.
type Handler struct {
	limiter   *ratelimit.Limiter
	waf       *waf.Service
	generator persona.Generator
	repo      store.Repository
	metrics   *metrics.Metrics
	cfg       Config
}

// NewHandler creates the chat handler. repo and m may be nil in tests;
// persistence and metrics are then skipped.
func NewHandler(limiter *ratelimit.Limiter, wafService *waf.Service, generator persona.Generator, repo store.Repository, m *metrics.Metrics, cfg Config) *Handler {
	if cfg.TokenDelay <= 0 {
		cfg.TokenDelay = DefaultConfig().TokenDelay
	}
	return &Handler{
		limiter:   limiter,
		waf:       wafService,
		generator: generator,
		repo:      repo,
		metrics:   m,
		cfg:       cfg,
	}
}

// RegisterRoutes registers the chat endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post(QueryPath, h.HandleQuery)
}

type queryRequest struct {
	Content        string `json:"content"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
	VisitorID      string `json:"visitorId"`
}

// text returns the message body; older widget builds send "message", newer
// ones send "content".
func (q *queryRequest) text() string {
	if q.Content != "" {
		return q.Content
	}
	return q.Message
}

// HandleQuery runs one chat turn. Order is fixed: rate limit, bot policy,
// body parse, WAF, then streaming; the HTTP status is committed before the
// first event and errors after that point are in-band.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantIDFromContext(r.Context())
	clientIP := middleware.ClientIPFromContext(r.Context())
	userAgent := r.Header.Get("User-Agent")
	reqID := chiMiddleware.GetReqID(r.Context())

	key := ratelimit.Key(tenantID, clientIP)
	res := h.limiter.Check(key, QueryPath, userAgent)
	if !res.Allowed {
		if h.metrics != nil {
			h.metrics.RateLimitRejections.WithLabelValues(res.Reason).Inc()
		}
		slog.Info("Chat request rate limited",
			"tenant_id", tenantID,
			"client_ip", clientIP,
			"reason", res.Reason,
			"retry_after", res.RetryAfter,
			"request_id", reqID,
		)
		w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfter))
		api.JSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":      "Too many requests",
			"code":       "RATE_LIMIT_EXCEEDED",
			"retryAfter": res.RetryAfter,
			"reason":     res.Reason,
		})
		return
	}

	// Strict path policy: a known-bot user agent is rejected outright on the
	// query endpoint. The limiter only flags; the decision sits here.
	if ratelimit.IsBotUserAgent(userAgent) || res.CaptchaRequired {
		if h.metrics != nil {
			h.metrics.RateLimitRejections.WithLabelValues("bot_detected").Inc()
		}
		slog.Info("Chat request flagged as bot",
			"tenant_id", tenantID,
			"client_ip", clientIP,
			"user_agent", userAgent,
			"request_id", reqID,
		)
		api.JSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":           "Automated traffic detected",
			"code":            "BOT_DETECTED",
			"reason":          "Automated traffic detected",
			"captchaRequired": true,
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	message := strings.TrimSpace(req.text())
	if message == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	verdict := h.waf.Inspect(waf.RequestData{
		Method:  r.Method,
		Path:    QueryPath,
		Headers: map[string]string{"User-Agent": userAgent},
		Body:    message,
	})
	if verdict.Blocked {
		if h.metrics != nil {
			h.metrics.WAFMatches.WithLabelValues("block", verdict.RuleName).Inc()
		}
		slog.Warn("Chat request blocked by WAF",
			"tenant_id", tenantID,
			"rule_id", verdict.RuleID,
			"request_id", reqID,
		)
		api.JSON(w, http.StatusForbidden, map[string]interface{}{
			"error":  "Request blocked",
			"code":   "WAF_BLOCKED",
			"reason": verdict.Reason,
		})
		return
	}
	if verdict.Challenge {
		if h.metrics != nil {
			h.metrics.WAFMatches.WithLabelValues("challenge", verdict.RuleName).Inc()
		}
		api.JSON(w, http.StatusForbidden, map[string]interface{}{
			"error":           "Verification required",
			"code":            "WAF_CHALLENGE",
			"reason":          verdict.Reason,
			"captchaRequired": true,
		})
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	p := h.lookupPersona(r.Context(), tenantID)

	h.streamReply(w, r, streamRequest{
		tenantID:       tenantID,
		conversationID: conversationID,
		visitorID:      req.VisitorID,
		message:        message,
		persona:        p,
		requestID:      reqID,
	})
}

type streamRequest struct {
	tenantID       string
	conversationID string
	visitorID      string
	message        string
	persona        domain.Persona
	requestID      string
}

// streamReply emits the event stream for one accepted turn. Event order is
// persona, typing, zero or more content events, then exactly one terminal
// done or error event.
func (h *Handler) streamReply(w http.ResponseWriter, r *http.Request, req streamRequest) {
	out, err := sse.NewWriter(w)
	if err != nil {
		api.Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	if h.metrics != nil {
		h.metrics.ActiveStreams.Inc()
		defer h.metrics.ActiveStreams.Dec()
	}

	ctx := r.Context()
	if !req.persona.IsZero() {
		if err := out.Send(domain.NewPersonaEvent(req.persona.Name, req.persona.Tone)); err != nil {
			slog.Warn("failed to write persona event", "error", err, "request_id", req.requestID)
			return
		}
	}
	if err := out.Send(domain.NewTypingEvent()); err != nil {
		slog.Warn("failed to write typing event", "error", err, "request_id", req.requestID)
		return
	}
	if !h.pause(ctx, h.cfg.TypingDelay) {
		return
	}

	var reply strings.Builder
	for tok, genErr := range h.generator.Reply(ctx, persona.Request{
		TenantID:       req.tenantID,
		ConversationID: req.conversationID,
		Message:        req.message,
		Persona:        req.persona,
	}) {
		if genErr != nil {
			// The status line is long gone; the error travels in-band and
			// terminates the stream.
			if h.metrics != nil {
				h.metrics.StreamErrors.Inc()
			}
			slog.Error("Reply generation failed", "error", genErr, "tenant_id", req.tenantID, "request_id", req.requestID)
			if writeErr := out.Send(domain.NewErrorEvent("Er ging iets mis bij het genereren van een antwoord.")); writeErr != nil {
				slog.Warn("failed to write error event", "error", writeErr, "request_id", req.requestID)
			}
			return
		}

		if err := out.Send(domain.NewContentEvent(tok.Text, tok.Confidence)); err != nil {
			slog.Warn("client disconnected mid-stream", "error", err, "request_id", req.requestID)
			return
		}
		if h.metrics != nil {
			h.metrics.StreamedTokens.Inc()
		}
		reply.WriteString(tok.Text)

		if !h.pause(ctx, h.cfg.TokenDelay) {
			return
		}
	}

	if err := out.Send(domain.NewDoneEvent(req.conversationID)); err != nil {
		slog.Warn("failed to write done event", "error", err, "request_id", req.requestID)
		return
	}

	h.persistTurn(req, strings.TrimSpace(reply.String()))
}

// pause waits for the pacing delay, returning false when the client went
// away in the meantime.
func (h *Handler) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// lookupPersona loads the tenant persona, falling back to the default when
// the tenant is unknown or storage is unavailable.
func (h *Handler) lookupPersona(ctx context.Context, tenantID string) domain.Persona {
	if h.repo == nil {
		return domain.DefaultPersona()
	}
	tenant, err := h.repo.GetTenant(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("failed to load tenant persona", "tenant_id", tenantID, "error", err)
		}
		return domain.DefaultPersona()
	}
	if tenant.Persona.IsZero() {
		return domain.DefaultPersona()
	}
	return tenant.Persona
}

// persistTurn stores both halves of a completed turn. Storage failures are
// logged, never surfaced: the visitor already has the reply.
func (h *Handler) persistTurn(req streamRequest, reply string) {
	if h.repo == nil {
		return
	}
	// The request context is tied to the closed stream; persistence gets its
	// own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now()
	if _, err := h.repo.GetConversation(ctx, req.tenantID, req.conversationID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("failed to load conversation", "conversation_id", req.conversationID, "error", err)
			return
		}
		conv := &domain.Conversation{
			ID:        req.conversationID,
			TenantID:  req.tenantID,
			VisitorID: req.visitorID,
			StartedAt: now,
			UpdatedAt: now,
		}
		// ErrDuplicate means a concurrent turn created the conversation first.
		if err := h.repo.CreateConversation(ctx, conv); err != nil && !errors.Is(err, store.ErrDuplicate) {
			slog.Warn("failed to create conversation", "conversation_id", req.conversationID, "error", err)
			return
		}
	}

	visitorMsg := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: req.conversationID,
		Role:           domain.RoleVisitor,
		Content:        req.message,
		CreatedAt:      now,
	}
	if err := h.appendWithRetry(ctx, visitorMsg); err != nil {
		slog.Warn("failed to persist visitor message", "conversation_id", req.conversationID, "error", err)
		return
	}
	assistantMsg := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: req.conversationID,
		Role:           domain.RoleAssistant,
		Content:        reply,
		CreatedAt:      now.Add(time.Second),
	}
	if err := h.appendWithRetry(ctx, assistantMsg); err != nil {
		slog.Warn("failed to persist assistant message", "conversation_id", req.conversationID, "error", err)
	}
}

// appendWithRetry retries a message insert once when SQLite reports lock
// contention.
func (h *Handler) appendWithRetry(ctx context.Context, msg *domain.Message) error {
	err := h.repo.AppendMessage(ctx, msg)
	if err == nil || !store.IsBusyError(err) {
		return err
	}
	select {
	case <-ctx.Done():
		return err
	case <-time.After(50 * time.Millisecond):
	}
	return h.repo.AppendMessage(ctx, msg)
}
