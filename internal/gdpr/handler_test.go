package gdpr

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mverkuijl/babbelbox/internal/domain"
	"github.com/mverkuijl/babbelbox/internal/middleware"
	"github.com/mverkuijl/babbelbox/internal/store"
)

func newTestRouter(t *testing.T) (http.Handler, store.Repository) {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	r := chi.NewRouter()
	r.Use(middleware.Tenant())
	NewHandler(repo).RegisterRoutes(r)
	return r, repo
}

func do(t *testing.T, router http.Handler, method, target, tenantID string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("X-Tenant-ID", tenantID)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func seedConversation(t *testing.T, repo store.Repository, tenantID, convID string, messages ...string) {
	t.Helper()
	ctx := context.Background()
	if err := repo.UpsertTenant(ctx, &domain.Tenant{ID: tenantID, Name: "Test", Persona: domain.DefaultPersona()}); err != nil {
		t.Fatalf("UpsertTenant: %v", err)
	}
	conv := &domain.Conversation{ID: convID, TenantID: tenantID, StartedAt: time.Now(), UpdatedAt: time.Now()}
	if err := repo.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	for _, content := range messages {
		msg := &domain.Message{
			ID:             uuid.New().String(),
			ConversationID: convID,
			Role:           domain.RoleVisitor,
			Content:        content,
			CreatedAt:      time.Now(),
		}
		if err := repo.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
}

func TestConsentRoundTrip(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/gdpr/consent", "acme",
		[]byte(`{"visitorId":"v-1","purpose":"chat_history","granted":true}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("record consent status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = do(t, router, http.MethodGet, "/api/gdpr/consent", "acme", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list consent status = %d", rec.Code)
	}
	var listed struct {
		Consent []domain.ConsentRecord `json:"consent"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Consent) != 1 {
		t.Fatalf("listed %d consent records, want 1", len(listed.Consent))
	}
	if !listed.Consent[0].Granted || listed.Consent[0].Purpose != "chat_history" {
		t.Errorf("consent record = %+v", listed.Consent[0])
	}
}

func TestConsentIsTenantScoped(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/gdpr/consent", "acme",
		[]byte(`{"visitorId":"v-1","purpose":"chat_history","granted":true}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("record consent status = %d", rec.Code)
	}

	rec = do(t, router, http.MethodGet, "/api/gdpr/consent", "other", nil)
	var listed struct {
		Consent []domain.ConsentRecord `json:"consent"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Consent) != 0 {
		t.Errorf("other tenant sees %d consent records, want 0", len(listed.Consent))
	}
}

func TestConsentValidation(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t)
	rec := do(t, router, http.MethodPost, "/api/gdpr/consent", "acme", []byte(`{"granted":true}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestExportConversation(t *testing.T) {
	t.Parallel()

	router, repo := newTestRouter(t)
	seedConversation(t, repo, "acme", "conv-1", "Hallo", "Wat zijn jullie openingstijden?")

	rec := do(t, router, http.MethodGet, "/api/gdpr/export?conversationId=conv-1", "acme", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d, body %s", rec.Code, rec.Body.String())
	}
	var export domain.ConversationExport
	if err := json.Unmarshal(rec.Body.Bytes(), &export); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if export.Conversation.ID != "conv-1" {
		t.Errorf("exported conversation ID = %q", export.Conversation.ID)
	}
	if len(export.Messages) != 2 {
		t.Fatalf("exported %d messages, want 2", len(export.Messages))
	}
	if export.Messages[0].Content != "Hallo" {
		t.Errorf("first message = %q, want insertion order preserved", export.Messages[0].Content)
	}
}

func TestExportRequiresConversationID(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t)
	rec := do(t, router, http.MethodGet, "/api/gdpr/export", "acme", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestExportIsTenantScoped(t *testing.T) {
	t.Parallel()

	router, repo := newTestRouter(t)
	seedConversation(t, repo, "acme", "conv-1", "Hallo")

	rec := do(t, router, http.MethodGet, "/api/gdpr/export?conversationId=conv-1", "other", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-tenant export status = %d, want 404", rec.Code)
	}
}

func TestDeleteConversation(t *testing.T) {
	t.Parallel()

	router, repo := newTestRouter(t)
	seedConversation(t, repo, "acme", "conv-1", "Hallo", "Nog een bericht")

	rec := do(t, router, http.MethodDelete, "/api/gdpr/conversation/conv-1", "acme", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body %s", rec.Code, rec.Body.String())
	}
	var deleted struct {
		MessagesDeleted int64 `json:"messagesDeleted"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &deleted); err != nil {
		t.Fatalf("decode delete response: %v", err)
	}
	if deleted.MessagesDeleted != 2 {
		t.Errorf("messagesDeleted = %d, want 2", deleted.MessagesDeleted)
	}

	rec = do(t, router, http.MethodGet, "/api/gdpr/export?conversationId=conv-1", "acme", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("export after delete status = %d, want 404", rec.Code)
	}

	rec = do(t, router, http.MethodDelete, "/api/gdpr/conversation/conv-1", "acme", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}
