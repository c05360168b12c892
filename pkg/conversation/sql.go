package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/strandkit/strand/pkg/config"
)

const createConversationsTableSQL = `
CREATE TABLE IF NOT EXISTS conversations (
    id VARCHAR(255) PRIMARY KEY,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    metadata TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at);
`

const createMessagesTableSQL = `
CREATE TABLE IF NOT EXISTS conversation_messages (
    message_id VARCHAR(255) PRIMARY KEY,
    conversation_id VARCHAR(255) NOT NULL,
    role VARCHAR(50) NOT NULL,
    content TEXT NOT NULL,
    metadata TEXT,
    sequence_num BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON conversation_messages(conversation_id, sequence_num);
`

// SQLStore persists conversations in sqlite, postgres, or mysql.
type SQLStore struct {
	db      *sql.DB
	dialect string
	logger  *slog.Logger
}

func NewSQLStore(cfg config.StoreConfig, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open(cfg.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s conversation store: %w", cfg.Backend, err)
	}

	s := &SQLStore{db: db, dialect: cfg.Backend, logger: logger}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize conversation schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createConversationsTableSQL); err != nil {
		return fmt.Errorf("failed to create conversations table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createMessagesTableSQL); err != nil {
		return fmt.Errorf("failed to create messages table: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders for the postgres dialect.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var out []byte
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, fmt.Sprintf("$%d", n)...)
		} else {
			out = append(out, query[i])
		}
	}
	return string(out)
}

func (s *SQLStore) CreateConversation(ctx context.Context, id string, metadata map[string]any) (*Conversation, error) {
	if id == "" {
		id = uuid.New().String()
	}

	if existing, err := s.getConversation(ctx, id); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrConversationNotFound) {
		return nil, err
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	now := time.Now().UTC()
	query := s.rebind(`INSERT INTO conversations (id, active, metadata, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, id, true, string(metaJSON), now, now); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return &Conversation{ID: id, Active: true, CreatedAt: now, UpdatedAt: now, Metadata: metadata}, nil
}

func (s *SQLStore) getConversation(ctx context.Context, id string) (*Conversation, error) {
	query := s.rebind(`SELECT id, active, metadata, created_at, updated_at FROM conversations WHERE id = ?`)

	var conv Conversation
	var metaJSON sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(&conv.ID, &conv.Active, &metaJSON, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if metaJSON.Valid && metaJSON.String != "" {
		_ = json.Unmarshal([]byte(metaJSON.String), &conv.Metadata)
	}
	return &conv, nil
}

func (s *SQLStore) LoadConversation(ctx context.Context, id string, maxMessages int) ([]Message, error) {
	if _, err := s.getConversation(ctx, id); err != nil {
		return nil, err
	}

	query := s.rebind(`
SELECT message_id, role, content, metadata, sequence_num, created_at
FROM conversation_messages WHERE conversation_id = ? ORDER BY sequence_num ASC`)

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var metaJSON sql.NullString
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &metaJSON, &msg.SequenceNum, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if metaJSON.Valid && metaJSON.String != "" {
			_ = json.Unmarshal([]byte(metaJSON.String), &msg.Metadata)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if maxMessages > 0 && len(messages) > maxMessages {
		messages = messages[len(messages)-maxMessages:]
	}
	return messages, nil
}

func (s *SQLStore) AppendMessages(ctx context.Context, id string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	if _, err := s.CreateConversation(ctx, id, nil); err != nil {
		return fmt.Errorf("failed to ensure conversation exists: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var lastSeq int64
	seqQuery := s.rebind(`SELECT COALESCE(MAX(sequence_num), 0) FROM conversation_messages WHERE conversation_id = ?`)
	if err := tx.QueryRowContext(ctx, seqQuery, id).Scan(&lastSeq); err != nil {
		return fmt.Errorf("failed to read sequence number: %w", err)
	}

	insertQuery := s.rebind(`
INSERT INTO conversation_messages (message_id, conversation_id, role, content, metadata, sequence_num, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`)

	lastCreated := time.Time{}
	for i, msg := range messages {
		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}
		metaJSON, marshalErr := json.Marshal(msg.Metadata)
		if marshalErr != nil {
			return fmt.Errorf("failed to marshal metadata for message %d: %w", i, marshalErr)
		}

		now := time.Now().UTC()
		if !now.After(lastCreated) {
			now = lastCreated.Add(time.Microsecond)
		}
		lastCreated = now

		seq := lastSeq + int64(i) + 1
		if _, err := tx.ExecContext(ctx, insertQuery, msg.ID, id, msg.Role, msg.Content, string(metaJSON), seq, now); err != nil {
			return fmt.Errorf("failed to insert message %d: %w", i, err)
		}
	}

	touchQuery := s.rebind(`UPDATE conversations SET updated_at = ? WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, touchQuery, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message batch: %w", err)
	}
	committed = true
	return nil
}

func (s *SQLStore) ListConversations(ctx context.Context, limit, offset int, activeOnly bool) ([]Conversation, error) {
	query := `
SELECT c.id, c.active, c.metadata, c.created_at, c.updated_at,
       (SELECT COUNT(*) FROM conversation_messages m WHERE m.conversation_id = c.id)
FROM conversations c`
	if activeOnly {
		query += ` WHERE c.active = TRUE`
	}
	query += ` ORDER BY c.updated_at DESC, c.id ASC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	if offset > 0 {
		query += fmt.Sprintf(` OFFSET %d`, offset)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var conv Conversation
		var metaJSON sql.NullString
		if err := rows.Scan(&conv.ID, &conv.Active, &metaJSON, &conv.CreatedAt, &conv.UpdatedAt, &conv.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		if metaJSON.Valid && metaJSON.String != "" {
			_ = json.Unmarshal([]byte(metaJSON.String), &conv.Metadata)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

func (s *SQLStore) MarkInactive(ctx context.Context, id string) error {
	query := s.rebind(`UPDATE conversations SET active = FALSE, updated_at = ? WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark conversation inactive: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (s *SQLStore) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM conversation_messages WHERE conversation_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	result, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM conversations WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrConversationNotFound
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *SQLStore) Close() error { return s.db.Close() }
