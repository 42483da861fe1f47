package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/Chative-support-agent/server/internal/agent/model"
	errx "github.com/Chative-support-agent/server/internal/core/error"
)

// MemoryStore keeps turns in process memory. Contents are lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	turns map[string]*model.ConversationTurn
	order []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: map[string]*model.ConversationTurn{}}
}

func (s *MemoryStore) Append(ctx context.Context, turn *model.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.turns[turn.ConversationID]; ok {
		return errx.AlreadyExists("Conversation already exists")
	}
	s.turns[turn.ConversationID] = cloneTurn(turn)
	s.order = append(s.order, turn.ConversationID)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, conversationID string) (*model.ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.turns[conversationID]
	if !ok {
		return nil, errx.NotFound(errx.ConversationNotFoundMessage)
	}
	return cloneTurn(t), nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*model.ConversationTurn, error) {
	s.mu.RLock()
	out := make([]*model.ConversationTurn, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneTurn(s.turns[id]))
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) AttachFeedback(ctx context.Context, conversationID string, feedback model.UserFeedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.turns[conversationID]
	if !ok {
		return errx.NotFound(errx.ConversationNotFoundMessage)
	}
	if t.UserFeedback != nil {
		return errx.AlreadyExists(errx.FeedbackExistsMessage)
	}
	t.UserFeedback = &feedback
	return nil
}

func (s *MemoryStore) AttachEvaluation(ctx context.Context, conversationID string, evaluation model.LlmEvaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.turns[conversationID]
	if !ok {
		return errx.NotFound(errx.ConversationNotFoundMessage)
	}
	t.LlmEvaluation = &evaluation
	return nil
}

func cloneTurn(t *model.ConversationTurn) *model.ConversationTurn {
	c := *t
	if t.UserFeedback != nil {
		fb := *t.UserFeedback
		c.UserFeedback = &fb
	}
	if t.LlmEvaluation != nil {
		ev := *t.LlmEvaluation
		c.LlmEvaluation = &ev
	}
	return &c
}

var _ model.ConversationStore = (*MemoryStore)(nil)
