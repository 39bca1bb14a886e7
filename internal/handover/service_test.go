package handover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mverkuijl/babbelbox/internal/domain"
	"github.com/mverkuijl/babbelbox/internal/middleware"
	"github.com/mverkuijl/babbelbox/internal/store"
)

type captureMailer struct {
	sent []Mail
	err  error
}

func (m *captureMailer) Send(_ context.Context, mail Mail) error {
	m.sent = append(m.sent, mail)
	return m.err
}

func newTestRepo(t *testing.T) store.Repository {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func seedConversation(t *testing.T, repo store.Repository, tenantID, convID string) {
	t.Helper()
	ctx := context.Background()
	if err := repo.UpsertTenant(ctx, &domain.Tenant{ID: tenantID, Name: "Test", Persona: domain.DefaultPersona()}); err != nil {
		t.Fatalf("UpsertTenant: %v", err)
	}
	conv := &domain.Conversation{
		ID:        convID,
		TenantID:  tenantID,
		StartedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := repo.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
}

func TestIssueAndClaim(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	seedConversation(t, repo, "acme", "conv-1")
	mailer := &captureMailer{}
	svc := NewService(repo, mailer, time.Hour)

	token, err := svc.IssueToken(context.Background(), "acme", "conv-1", "agent@example.com")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if token.Token == "" {
		t.Fatal("issued token is empty")
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(mailer.sent))
	}
	if mailer.sent[0].To != "agent@example.com" {
		t.Errorf("mail to = %q", mailer.sent[0].To)
	}
	if !strings.Contains(mailer.sent[0].Body, token.Token) {
		t.Error("mail body does not contain the claim token")
	}

	rec, err := svc.Claim(context.Background(), token.Token)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if rec.ConversationID != "conv-1" {
		t.Errorf("claimed conversationId = %q, want conv-1", rec.ConversationID)
	}
}

func TestClaimIsSingleUse(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	seedConversation(t, repo, "acme", "conv-1")
	svc := NewService(repo, &captureMailer{}, time.Hour)

	token, err := svc.IssueToken(context.Background(), "acme", "conv-1", "agent@example.com")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := svc.Claim(context.Background(), token.Token); err != nil {
		t.Fatalf("first Claim: %v", err)
	}
	if _, err := svc.Claim(context.Background(), token.Token); !errors.Is(err, store.ErrTokenConsumed) {
		t.Fatalf("second Claim = %v, want ErrTokenConsumed", err)
	}
}

func TestClaimUnknownToken(t *testing.T) {
	t.Parallel()

	svc := NewService(newTestRepo(t), &captureMailer{}, time.Hour)
	if _, err := svc.Claim(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Claim = %v, want ErrNotFound", err)
	}
}

func TestClaimExpiredToken(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	seedConversation(t, repo, "acme", "conv-1")
	svc := NewService(repo, &captureMailer{}, time.Hour)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := svc.IssueToken(context.Background(), "acme", "conv-1", "agent@example.com")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := svc.Claim(context.Background(), token.Token); !errors.Is(err, store.ErrTokenConsumed) {
		t.Fatalf("Claim expired = %v, want ErrTokenConsumed", err)
	}
}

func TestIssueTokenUnknownConversation(t *testing.T) {
	t.Parallel()

	svc := NewService(newTestRepo(t), &captureMailer{}, time.Hour)
	if _, err := svc.IssueToken(context.Background(), "acme", "missing", "agent@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("IssueToken = %v, want ErrNotFound", err)
	}
}

func TestMailFailureLeavesTokenClaimable(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	seedConversation(t, repo, "acme", "conv-1")
	svc := NewService(repo, &captureMailer{err: errors.New("smtp down")}, time.Hour)

	token, err := svc.IssueToken(context.Background(), "acme", "conv-1", "agent@example.com")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := svc.Claim(context.Background(), token.Token); err != nil {
		t.Fatalf("Claim after mail failure: %v", err)
	}
}

func newTestRouter(t *testing.T, svc *Service) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	r.Use(middleware.Tenant())
	NewHandler(svc).RegisterRoutes(r)
	return r
}

func TestHandlerIssueAndClaim(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	seedConversation(t, repo, "acme", "conv-1")
	router := newTestRouter(t, NewService(repo, &captureMailer{}, time.Hour))

	body := bytes.NewBufferString(`{"conversationId":"conv-1","agentEmail":"agent@example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/handover", body)
	req.Header.Set("X-Tenant-ID", "acme")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("issue status = %d, body %s", rec.Code, rec.Body.String())
	}
	var issued struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &issued); err != nil {
		t.Fatalf("decode issue response: %v", err)
	}

	claimBody := bytes.NewBufferString(`{"token":"` + issued.Token + `"}`)
	req = httptest.NewRequest(http.MethodPost, "/api/handover/claim", claimBody)
	req.Header.Set("X-Tenant-ID", "acme")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("claim status = %d, body %s", rec.Code, rec.Body.String())
	}

	// a second claim of the same token is rejected
	req = httptest.NewRequest(http.MethodPost, "/api/handover/claim", bytes.NewBufferString(`{"token":"`+issued.Token+`"}`))
	req.Header.Set("X-Tenant-ID", "acme")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusGone {
		t.Fatalf("second claim status = %d, want 410", rec.Code)
	}
}

func TestHandlerIssueValidation(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, NewService(newTestRepo(t), &captureMailer{}, time.Hour))

	req := httptest.NewRequest(http.MethodPost, "/api/handover", bytes.NewBufferString(`{}`))
	req.Header.Set("X-Tenant-ID", "acme")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
