package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mverkuijl/babbelbox/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS tenants (
		tenant_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		persona_json TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		conversation_id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		visitor_id TEXT,
		started_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_tenant ON conversations(tenant_id);

	CREATE TABLE IF NOT EXISTS messages (
		message_id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

	CREATE TABLE IF NOT EXISTS consent_records (
		consent_id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		visitor_id TEXT NOT NULL,
		purpose TEXT NOT NULL,
		granted INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_consent_tenant ON consent_records(tenant_id, created_at);

	CREATE TABLE IF NOT EXISTS handover_tokens (
		token TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		used INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_handover_expires ON handover_tokens(expires_at) WHERE used = 0;
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetTenant retrieves a tenant by ID.
func (s *SQLiteStore) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	query := `SELECT tenant_id, name, persona_json, created_at, updated_at FROM tenants WHERE tenant_id = ?`

	row := s.db.QueryRowContext(ctx, query, tenantID)

	var tenant domain.Tenant
	var personaJSON sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&tenant.ID, &tenant.Name, &personaJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan tenant row: %w", err)
	}

	if personaJSON.Valid && personaJSON.String != "" {
		if err := json.Unmarshal([]byte(personaJSON.String), &tenant.Persona); err != nil {
			return nil, fmt.Errorf("decode persona: %w", err)
		}
	}
	tenant.CreatedAt = time.Unix(createdAt, 0)
	tenant.UpdatedAt = time.Unix(updatedAt, 0)

	return &tenant, nil
}

// UpsertTenant creates or updates a tenant record.
func (s *SQLiteStore) UpsertTenant(ctx context.Context, tenant *domain.Tenant) error {
	personaJSON, err := json.Marshal(tenant.Persona)
	if err != nil {
		return fmt.Errorf("encode persona: %w", err)
	}

	query := `
	INSERT INTO tenants (tenant_id, name, persona_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(tenant_id) DO UPDATE SET
		name = excluded.name,
		persona_json = excluded.persona_json,
		updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		tenant.ID, tenant.Name, string(personaJSON),
		tenant.CreatedAt.Unix(), tenant.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert tenant: %w", err)
	}
	return nil
}

// CreateConversation stores a new conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	query := `
	INSERT INTO conversations (conversation_id, tenant_id, visitor_id, started_at, updated_at)
	VALUES (?, ?, ?, ?, ?)`

	var visitorID interface{}
	if conv.VisitorID != "" {
		visitorID = conv.VisitorID
	}

	_, err := s.db.ExecContext(ctx, query,
		conv.ID, conv.TenantID, visitorID,
		conv.StartedAt.Unix(), conv.UpdatedAt.Unix(),
	)
	if isConstraintError(err) {
		return fmt.Errorf("create conversation %s: %w", conv.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation scoped to a tenant.
func (s *SQLiteStore) GetConversation(ctx context.Context, tenantID, conversationID string) (*domain.Conversation, error) {
	query := `
		SELECT conversation_id, tenant_id, visitor_id, started_at, updated_at
		FROM conversations WHERE conversation_id = ? AND tenant_id = ?`

	row := s.db.QueryRowContext(ctx, query, conversationID, tenantID)

	var conv domain.Conversation
	var visitorID sql.NullString
	var startedAt, updatedAt int64

	err := row.Scan(&conv.ID, &conv.TenantID, &visitorID, &startedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation row: %w", err)
	}

	conv.VisitorID = visitorID.String
	conv.StartedAt = time.Unix(startedAt, 0)
	conv.UpdatedAt = time.Unix(updatedAt, 0)

	return &conv, nil
}

// AppendMessage adds a message to a conversation.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append message: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (message_id, conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE conversation_id = ?`,
		msg.CreatedAt.Unix(), msg.ConversationID,
	)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append message: %w", err)
	}
	return nil
}

// GetMessages returns a conversation's messages in insertion order.
func (s *SQLiteStore) GetMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	query := `
		SELECT message_id, conversation_id, role, content, created_at
		FROM messages WHERE conversation_id = ? ORDER BY created_at, message_id`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var role string
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Role = domain.MessageRole(role)
		msg.CreatedAt = time.Unix(createdAt, 0)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// DeleteConversation removes a conversation and its messages.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, tenantID, conversationID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete conversation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM conversations WHERE conversation_id = ? AND tenant_id = ?`,
		conversationID, tenantID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete conversation rows affected: %w", err)
	}
	if affected == 0 {
		return 0, ErrNotFound
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete messages rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete conversation: %w", err)
	}
	return deleted, nil
}

// CreateConsent stores a consent decision.
func (s *SQLiteStore) CreateConsent(ctx context.Context, rec *domain.ConsentRecord) error {
	query := `
	INSERT INTO consent_records (consent_id, tenant_id, visitor_id, purpose, granted, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	granted := 0
	if rec.Granted {
		granted = 1
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.TenantID, rec.VisitorID, rec.Purpose, granted, rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create consent record: %w", err)
	}
	return nil
}

// ListConsent returns consent records for a tenant, newest first.
func (s *SQLiteStore) ListConsent(ctx context.Context, tenantID string) ([]domain.ConsentRecord, error) {
	query := `
		SELECT consent_id, tenant_id, visitor_id, purpose, granted, created_at
		FROM consent_records WHERE tenant_id = ? ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query consent records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []domain.ConsentRecord
	for rows.Next() {
		var rec domain.ConsentRecord
		var granted int
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.VisitorID, &rec.Purpose, &granted, &createdAt); err != nil {
			return nil, fmt.Errorf("scan consent row: %w", err)
		}
		rec.Granted = granted != 0
		rec.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consent records: %w", err)
	}
	return records, nil
}

// CreateHandoverToken stores a new handover token.
func (s *SQLiteStore) CreateHandoverToken(ctx context.Context, token *domain.HandoverToken) error {
	query := `
	INSERT INTO handover_tokens (token, tenant_id, conversation_id, created_at, expires_at, used)
	VALUES (?, ?, ?, ?, ?, 0)`

	_, err := s.db.ExecContext(ctx, query,
		token.Token, token.TenantID, token.ConversationID,
		token.CreatedAt.Unix(), token.ExpiresAt.Unix(),
	)
	if isConstraintError(err) {
		return fmt.Errorf("create handover token: %w", ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("create handover token: %w", err)
	}
	return nil
}

// ConsumeHandoverToken atomically marks a token as used. The conditional
// UPDATE is the single-use guarantee: two concurrent claims race on the
// used flag and only one row update wins.
func (s *SQLiteStore) ConsumeHandoverToken(ctx context.Context, token string) (*domain.HandoverToken, error) {
	now := time.Now()

	res, err := s.db.ExecContext(ctx,
		`UPDATE handover_tokens SET used = 1 WHERE token = ? AND used = 0 AND expires_at > ?`,
		token, now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("consume handover token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("consume handover token rows affected: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT token, tenant_id, conversation_id, created_at, expires_at, used
		 FROM handover_tokens WHERE token = ?`, token)

	var t domain.HandoverToken
	var createdAt, expiresAt int64
	var used int
	err = row.Scan(&t.Token, &t.TenantID, &t.ConversationID, &createdAt, &expiresAt, &used)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan handover token row: %w", err)
	}
	t.CreatedAt = time.Unix(createdAt, 0)
	t.ExpiresAt = time.Unix(expiresAt, 0)
	t.Used = used != 0

	if affected == 0 {
		return nil, ErrTokenConsumed
	}
	return &t, nil
}
