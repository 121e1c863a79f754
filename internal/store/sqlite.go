package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/chat-widget/internal/domain"
	"github.com/ashureev/chat-widget/internal/shared"
	"github.com/containerd/errdefs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writes to prevent SQLITE_BUSY
	now     func() time.Time
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	return newSQLite(dbPath)
}

func newSQLite(dbPath string) (*SQLiteStore, error) {
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

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		satisfaction INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_email ON conversations(email, created_at);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

	CREATE TABLE IF NOT EXISTS prototypes (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		preview_url TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_prototypes_chat ON prototypes(chat_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_prototypes_preview ON prototypes(email, preview_url, created_at);

	CREATE TABLE IF NOT EXISTS profiles (
		device_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// classify tags SQLite lock contention as unavailable so callers can tell it
// apart from data errors.
func classify(op string, err error) error {
	if shared.IsSQLiteConflictError(err) {
		return fmt.Errorf("%s: %w: %w", op, errdefs.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func scanConversation(row *sql.Row) (*domain.Conversation, error) {
	var conv domain.Conversation
	var satisfaction sql.NullInt64
	var createdAt int64

	err := row.Scan(&conv.ID, &conv.Name, &conv.Email, &satisfaction, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation row: %w", err)
	}

	if satisfaction.Valid {
		score := int(satisfaction.Int64)
		conv.Satisfaction = &score
	}
	conv.CreatedAt = time.Unix(0, createdAt)
	return &conv, nil
}

// LatestConversationByEmail returns the most recently created conversation for email.
func (s *SQLiteStore) LatestConversationByEmail(ctx context.Context, email string) (*domain.Conversation, error) {
	query := `
		SELECT id, name, email, satisfaction, created_at
		FROM conversations WHERE email = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`

	return scanConversation(s.db.QueryRowContext(ctx, query, email))
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	query := `SELECT id, name, email, satisfaction, created_at FROM conversations WHERE id = ?`
	return scanConversation(s.db.QueryRowContext(ctx, query, id))
}

// CreateConversation inserts a new conversation for the profile.
func (s *SQLiteStore) CreateConversation(ctx context.Context, name, email string) (*domain.Conversation, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conv := &domain.Conversation{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		CreatedAt: s.now(),
	}

	query := `INSERT INTO conversations (id, name, email, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, conv.ID, conv.Name, conv.Email, conv.CreatedAt.UnixNano()); err != nil {
		return nil, classify("insert conversation", err)
	}
	return conv, nil
}

// SetSatisfaction updates the satisfaction score of a conversation.
func (s *SQLiteStore) SetSatisfaction(ctx context.Context, conversationID string, score int) error {
	if err := domain.ValidateSatisfaction(score); err != nil {
		return fmt.Errorf("%w: %w", errdefs.ErrInvalidArgument, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.db.ExecContext(ctx, `UPDATE conversations SET satisfaction = ? WHERE id = ?`, score, conversationID)
	if err != nil {
		return classify("update satisfaction", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("SetSatisfaction affected 0 rows", "conversation_id", conversationID)
		return fmt.Errorf("conversation %s: %w", conversationID, errdefs.ErrNotFound)
	}
	return nil
}

// AppendMessage inserts a transcript row. A zero CreatedAt is set to now.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("message role %q: %w", msg.Role, errdefs.ErrInvalidArgument)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, msg.ConversationID, string(msg.Role), msg.Content, msg.CreatedAt.UnixNano()); err != nil {
		return classify("insert message", err)
	}
	return nil
}

// ListMessages returns all messages of a conversation in creation order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	query := `
		SELECT conversation_id, role, content, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	var msgs []domain.Message
	for rows.Next() {
		var msg domain.Message
		var role string
		var createdAt int64
		if err := rows.Scan(&msg.ConversationID, &role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Role = domain.Role(role)
		msg.CreatedAt = time.Unix(0, createdAt)
		msgs = append(msgs, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

func scanPrototype(row *sql.Row) (*domain.Prototype, error) {
	var p domain.Prototype
	var createdAt int64

	err := row.Scan(&p.ID, &p.ChatID, &p.Email, &p.PreviewURL, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan prototype row: %w", err)
	}
	p.CreatedAt = time.Unix(0, createdAt)
	return &p, nil
}

// CreatePrototype records a generated prototype. Missing ID and CreatedAt are filled in.
func (s *SQLiteStore) CreatePrototype(ctx context.Context, p *domain.Prototype) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `INSERT INTO prototypes (id, chat_id, email, preview_url, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, p.ID, p.ChatID, p.Email, p.PreviewURL, p.CreatedAt.UnixNano()); err != nil {
		return classify("insert prototype", err)
	}
	return nil
}

// GetPrototype retrieves a prototype by ID.
func (s *SQLiteStore) GetPrototype(ctx context.Context, id string) (*domain.Prototype, error) {
	query := `SELECT id, chat_id, email, preview_url, created_at FROM prototypes WHERE id = ?`
	return scanPrototype(s.db.QueryRowContext(ctx, query, id))
}

// LatestPrototypeByChatID returns the most recent prototype for a generator chat ID.
func (s *SQLiteStore) LatestPrototypeByChatID(ctx context.Context, chatID string) (*domain.Prototype, error) {
	query := `
		SELECT id, chat_id, email, preview_url, created_at
		FROM prototypes WHERE chat_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`
	return scanPrototype(s.db.QueryRowContext(ctx, query, chatID))
}

// LatestPrototypeByPreview returns the most recent prototype matching email and preview URL.
func (s *SQLiteStore) LatestPrototypeByPreview(ctx context.Context, email, previewURL string) (*domain.Prototype, error) {
	query := `
		SELECT id, chat_id, email, preview_url, created_at
		FROM prototypes WHERE email = ? AND preview_url = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`
	return scanPrototype(s.db.QueryRowContext(ctx, query, email, previewURL))
}

// GetDeviceProfile retrieves the profile persisted for a device.
func (s *SQLiteStore) GetDeviceProfile(ctx context.Context, deviceID string) (*domain.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT name, email FROM profiles WHERE device_id = ?`, deviceID)

	var p domain.Profile
	err := row.Scan(&p.Name, &p.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile row: %w", err)
	}
	return &p, nil
}

// UpsertDeviceProfile stores the profile for a device.
func (s *SQLiteStore) UpsertDeviceProfile(ctx context.Context, deviceID string, profile domain.Profile) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `
	INSERT INTO profiles (device_id, name, email, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(device_id) DO UPDATE SET
		name = excluded.name,
		email = excluded.email,
		updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, deviceID, profile.Name, profile.Email, s.now().Unix()); err != nil {
		return classify("upsert profile", err)
	}
	return nil
}

// DeleteDeviceProfile removes the profile of a device.
func (s *SQLiteStore) DeleteDeviceProfile(ctx context.Context, deviceID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE device_id = ?`, deviceID); err != nil {
		return classify("delete profile", err)
	}
	return nil
}
