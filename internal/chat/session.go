package chat

import (
	"context"
	"sync"
	"time"

	"github.com/obahamonde/cloudantic/internal/domain"
	"github.com/obahamonde/cloudantic/internal/store"
	appErrors "github.com/obahamonde/cloudantic/pkg/errors"
)

// Session holds one user's ordered exchange history, most recent first, and
// the staging area for an in-flight streaming turn. A staged turn only
// becomes durable through FinalizeTurn; an abandoned placeholder is never
// persisted.
type Session struct {
	keyedStore store.KeyedStore
	user       string

	mu       sync.Mutex
	messages []domain.Message // newest first
	pending  bool
}

// NewSession loads the persisted history for user. A missing record yields
// an empty session, not an error.
func NewSession(ctx context.Context, keyedStore store.KeyedStore, user string) (*Session, error) {
	messages, err := LoadHistory(ctx, keyedStore, user)
	if err != nil {
		return nil, err
	}
	return &Session{
		keyedStore: keyedStore,
		user:       user,
		messages:   messages,
	}, nil
}

// LoadHistory returns the persisted history for user, newest first. Empty
// assistant messages left behind by an aborted turn are dropped on load.
func LoadHistory(ctx context.Context, keyedStore store.KeyedStore, user string) ([]domain.Message, error) {
	pk, sk := domain.ChatKey(user)
	item, err := keyedStore.Get(ctx, pk, sk)
	if err != nil {
		if appErrors.IsNotFound(err) {
			return []domain.Message{}, nil
		}
		return nil, err
	}

	history, err := domain.DecodeChatHistory(item)
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(history.Messages))
	for _, m := range history.Messages {
		if m.Role == domain.RoleAssistant && m.Content == "" {
			continue
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// User returns the owning user identifier.
func (s *Session) User() string {
	return s.user
}

// History returns a copy of the session's messages, newest first. A pending
// placeholder is excluded.
func (s *Session) History() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Message, 0, len(s.messages))
	for _, m := range s.messages {
		if m.Role == domain.RoleAssistant && m.Content == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

// PriorTurns returns the history in chronological order for use as upstream
// completion context.
func (s *Session) PriorTurns() []domain.Message {
	newest := s.History()
	out := make([]domain.Message, len(newest))
	for i, m := range newest {
		out[len(newest)-1-i] = m
	}
	return out
}

// AppendTurn stages a user message and an empty assistant placeholder. The
// pair stays in memory only until FinalizeTurn or DiscardTurn.
func (s *Session) AppendTurn(userText string) {
	now := domain.Timestamp(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	// Newest first: placeholder ahead of the user message.
	s.messages = append([]domain.Message{
		{Role: domain.RoleAssistant, Content: "", CreatedAt: now},
		{Role: domain.RoleUser, Content: userText, CreatedAt: now},
	}, s.messages...)
	s.pending = true
}

// FinalizeTurn fills the staged placeholder with the completed text and
// persists the whole session.
func (s *Session) FinalizeTurn(ctx context.Context, fullText string) error {
	s.mu.Lock()
	if !s.pending {
		s.mu.Unlock()
		return appErrors.NewInternal("no pending turn to finalize", nil)
	}
	s.messages[0].Content = fullText
	s.messages[0].CreatedAt = domain.Timestamp(time.Now())
	s.pending = false
	snapshot := make([]domain.Message, len(s.messages))
	copy(snapshot, s.messages)
	s.mu.Unlock()

	pk, sk, item, err := domain.EncodeChatHistory(domain.ChatHistory{
		User:      s.user,
		Messages:  snapshot,
		UpdatedAt: domain.Timestamp(time.Now()),
	})
	if err != nil {
		return err
	}
	return s.keyedStore.Put(ctx, pk, sk, item)
}

// DiscardTurn drops the staged pair without persisting anything.
func (s *Session) DiscardTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pending {
		return
	}
	s.messages = s.messages[2:]
	s.pending = false
}
