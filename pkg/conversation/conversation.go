// Package conversation persists multi-turn exchanges. Backends share one
// contract: appends are atomic, and sequence numbers and created-at
// timestamps increase monotonically within a conversation.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/strandkit/strand/pkg/config"
)

var ErrConversationNotFound = errors.New("conversation not found")

// Roles stored with messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one stored utterance.
type Message struct {
	ID          string         `json:"id"`
	Role        string         `json:"role"`
	Content     string         `json:"content"`
	SequenceNum int64          `json:"sequence_num"`
	CreatedAt   time.Time      `json:"created_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Conversation is the listing view of one exchange.
type Conversation struct {
	ID           string         `json:"id"`
	Active       bool           `json:"active"`
	MessageCount int64          `json:"message_count"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Store is the persistence contract. Appending to an unknown conversation
// creates it; loading or deleting an unknown one returns
// ErrConversationNotFound.
type Store interface {
	CreateConversation(ctx context.Context, id string, metadata map[string]any) (*Conversation, error)

	// LoadConversation returns messages in sequence order. A positive
	// maxMessages keeps only the most recent ones.
	LoadConversation(ctx context.Context, id string, maxMessages int) ([]Message, error)

	// AppendMessages stores the batch atomically: either every message
	// lands with consecutive sequence numbers, or none do.
	AppendMessages(ctx context.Context, id string, messages []Message) error

	ListConversations(ctx context.Context, limit, offset int, activeOnly bool) ([]Conversation, error)

	MarkInactive(ctx context.Context, id string) error

	DeleteConversation(ctx context.Context, id string) error

	Close() error
}

// NewStore builds the configured backend.
func NewStore(cfg config.StoreConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite", "postgres", "mysql":
		return NewSQLStore(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown conversation store backend: %s", cfg.Backend)
	}
}
