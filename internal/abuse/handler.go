// Package abuse exposes the WAF and captcha services over HTTP. The handler
// is a thin seam: parse the request, delegate to the service, shape the
// response.
package abuse

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mverkuijl/babbelbox/internal/api"
	"github.com/mverkuijl/babbelbox/internal/captcha"
	"github.com/mverkuijl/babbelbox/internal/metrics"
	"github.com/mverkuijl/babbelbox/internal/waf"
)

// maxCheckBodySize bounds waf-check and captcha request bodies (1MB).
const maxCheckBodySize = 1 << 20

// Handler composes the abuse-protection services behind HTTP endpoints.
type Handler struct {
	waf     *waf.Service
	captcha *captcha.Service
	metrics *metrics.Metrics
}

// NewHandler creates the abuse-protection handler.
func NewHandler(wafService *waf.Service, captchaService *captcha.Service, m *metrics.Metrics) *Handler {
	return &Handler{waf: wafService, captcha: captchaService, metrics: m}
}

// RegisterRoutes registers the abuse-protection endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/abuse", func(r chi.Router) {
		r.Post("/waf-check", h.handleWAFCheck)
		r.Post("/captcha/generate", h.handleCaptchaGenerate)
		r.Post("/captcha/verify", h.handleCaptchaVerify)
		r.Get("/stats", h.handleStats)
	})
}

type wafCheckResponse struct {
	Success   bool   `json:"success"`
	Blocked   bool   `json:"blocked"`
	Challenge bool   `json:"challenge,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (h *Handler) handleWAFCheck(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCheckBodySize)

	var req waf.RequestData
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	verdict := h.waf.Inspect(req)
	if verdict.RuleID != "" && h.metrics != nil {
		action := "log"
		switch {
		case verdict.Blocked:
			action = "block"
		case verdict.Challenge:
			action = "challenge"
		}
		h.metrics.WAFMatches.WithLabelValues(action, verdict.RuleName).Inc()
	}
	if verdict.Blocked {
		slog.Warn("WAF check blocked request",
			"rule_id", verdict.RuleID,
			"method", req.Method,
			"path", req.Path,
		)
	}

	api.JSON(w, http.StatusOK, wafCheckResponse{
		Success:   true,
		Blocked:   verdict.Blocked,
		Challenge: verdict.Challenge,
		Reason:    verdict.Reason,
	})
}

func (h *Handler) handleCaptchaGenerate(w http.ResponseWriter, r *http.Request) {
	id, question := h.captcha.Generate()
	api.JSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"challengeId": id,
		"question":    question,
	})
}

type captchaVerifyRequest struct {
	ChallengeID string `json:"challengeId"`
	Answer      string `json:"answer"`
}

type captchaVerifyResponse struct {
	Success  bool   `json:"success"`
	Verified bool   `json:"verified"`
	Error    string `json:"error,omitempty"`
}

func (h *Handler) handleCaptchaVerify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCheckBodySize)

	var req captchaVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChallengeID == "" {
		api.Error(w, http.StatusBadRequest, "challengeId and answer are required")
		return
	}

	err := h.captcha.Verify(req.ChallengeID, req.Answer)
	if err == nil {
		if h.metrics != nil {
			h.metrics.CaptchaOutcomes.WithLabelValues("success").Inc()
		}
		api.JSON(w, http.StatusOK, captchaVerifyResponse{Success: true, Verified: true})
		return
	}

	outcome := "wrong_answer"
	message := "Incorrect answer"
	switch {
	case errors.Is(err, captcha.ErrNotFound):
		outcome = "not_found"
		message = "Challenge not found"
	case errors.Is(err, captcha.ErrExpired):
		outcome = "expired"
		message = "Challenge expired"
	case errors.Is(err, captcha.ErrMaxAttempts):
		outcome = "exhausted"
		message = "Maximum attempts exceeded"
	}
	if h.metrics != nil {
		h.metrics.CaptchaOutcomes.WithLabelValues(outcome).Inc()
	}
	api.JSON(w, http.StatusOK, captchaVerifyResponse{Success: true, Verified: false, Error: message})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"waf":     h.waf.Stats(),
		"captcha": h.captcha.GetStats(),
	})
}
