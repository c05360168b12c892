package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryConversation struct {
	meta     Conversation
	messages []Message
}

// MemoryStore keeps conversations in process memory. Used by tests and
// the default zero configuration.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*memoryConversation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string]*memoryConversation)}
}

func (s *MemoryStore) CreateConversation(ctx context.Context, id string, metadata map[string]any) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = uuid.New().String()
	}
	if existing, ok := s.conversations[id]; ok {
		meta := existing.meta
		return &meta, nil
	}

	now := time.Now()
	conv := &memoryConversation{
		meta: Conversation{
			ID:        id,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
			Metadata:  metadata,
		},
	}
	s.conversations[id] = conv
	meta := conv.meta
	return &meta, nil
}

func (s *MemoryStore) LoadConversation(ctx context.Context, id string, maxMessages int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}

	messages := conv.messages
	if maxMessages > 0 && len(messages) > maxMessages {
		messages = messages[len(messages)-maxMessages:]
	}
	out := make([]Message, len(messages))
	copy(out, messages)
	return out, nil
}

func (s *MemoryStore) AppendMessages(ctx context.Context, id string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		now := time.Now()
		conv = &memoryConversation{
			meta: Conversation{ID: id, Active: true, CreatedAt: now, UpdatedAt: now},
		}
		s.conversations[id] = conv
	}

	seq := int64(len(conv.messages))
	last := time.Time{}
	if seq > 0 {
		last = conv.messages[seq-1].CreatedAt
	}

	for _, msg := range messages {
		seq++
		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}
		msg.SequenceNum = seq

		now := time.Now()
		// Timestamps must advance even when the clock does not.
		if !now.After(last) {
			now = last.Add(time.Nanosecond)
		}
		msg.CreatedAt = now
		last = now

		conv.messages = append(conv.messages, msg)
	}

	conv.meta.MessageCount = int64(len(conv.messages))
	conv.meta.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ListConversations(ctx context.Context, limit, offset int, activeOnly bool) ([]Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		if activeOnly && !conv.meta.Active {
			continue
		}
		all = append(all, conv.meta)
	}
	// Most recently updated first, id as the stable tie-break.
	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.After(all[j].UpdatedAt)
		}
		return all[i].ID < all[j].ID
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryStore) MarkInactive(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	conv.meta.Active = false
	conv.meta.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return ErrConversationNotFound
	}
	delete(s.conversations, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
