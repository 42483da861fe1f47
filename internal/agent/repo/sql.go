package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Chative-support-agent/server/internal/agent/model"
	errx "github.com/Chative-support-agent/server/internal/core/error"
	logx "github.com/Chative-support-agent/server/pkg/logger"
)

// conversationRecord is the gorm row for one turn. Feedback and evaluation are
// NULL until attached.
type conversationRecord struct {
	ConversationID string         `gorm:"column:conversation_id;primaryKey;type:varchar(64)"`
	SessionID      string         `gorm:"column:session_id;index"`
	UserQuery      string         `gorm:"column:user_query;type:text;not null"`
	AgentResponse  string         `gorm:"column:agent_response;type:text;not null"`
	Timestamp      time.Time      `gorm:"column:occurred_at;not null;index"`
	CustomerState  datatypes.JSON `gorm:"column:customer_state"`
	Outcome        string         `gorm:"column:outcome;type:varchar(16)"`
	ToolRounds     int            `gorm:"column:tool_rounds"`
	Feedback       datatypes.JSON `gorm:"column:user_feedback"`
	Evaluation     datatypes.JSON `gorm:"column:llm_evaluation"`
}

func (conversationRecord) TableName() string { return "conversation_turns" }

// SQLStore persists turns through gorm (Postgres in production, SQLite in tests).
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore migrates the schema and returns the store.
func NewSQLStore(ctx context.Context, db *gorm.DB) (*SQLStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&conversationRecord{}); err != nil {
		return nil, fmt.Errorf("migrate conversation_turns: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Append(ctx context.Context, turn *model.ConversationTurn) error {
	state, err := json.Marshal(turn.CustomerState)
	if err != nil {
		return fmt.Errorf("marshal customer state: %w", err)
	}
	rec := conversationRecord{
		ConversationID: turn.ConversationID,
		SessionID:      turn.SessionID,
		UserQuery:      turn.UserQuery,
		AgentResponse:  turn.AgentResponse,
		Timestamp:      turn.Timestamp.UTC(),
		CustomerState:  datatypes.JSON(state),
		Outcome:        string(turn.Outcome),
		ToolRounds:     turn.ToolRounds,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&conversationRecord{}).Where("conversation_id = ?", rec.ConversationID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return errx.AlreadyExists("Conversation already exists")
		}
		return tx.Create(&rec).Error
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errx.ErrAlreadyExists):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errx.AlreadyExists("Conversation already exists")
	}
	logx.Error().Err(err).Str("conversation_id", turn.ConversationID).Msg("failed to insert turn")
	return errx.WrapDB(err)
}

func (s *SQLStore) Get(ctx context.Context, conversationID string) (*model.ConversationTurn, error) {
	var rec conversationRecord
	err := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).First(&rec).Error
	if err != nil {
		return nil, errx.WrapDB(err)
	}
	return rec.toTurn()
}

func (s *SQLStore) List(ctx context.Context) ([]*model.ConversationTurn, error) {
	var recs []conversationRecord
	if err := s.db.WithContext(ctx).Order("occurred_at ASC").Order("conversation_id ASC").Find(&recs).Error; err != nil {
		return nil, errx.WrapDB(err)
	}
	out := make([]*model.ConversationTurn, 0, len(recs))
	for i := range recs {
		t, err := recs[i].toTurn()
		if err != nil {
			logx.Error().Err(err).Str("conversation_id", recs[i].ConversationID).Msg("skipping unreadable turn")
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// AttachFeedback is a conditional update; only the writer that sees a NULL column wins.
func (s *SQLStore) AttachFeedback(ctx context.Context, conversationID string, feedback model.UserFeedback) error {
	b, err := json.Marshal(feedback)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}
	res := s.db.WithContext(ctx).
		Model(&conversationRecord{}).
		Where("conversation_id = ? AND user_feedback IS NULL", conversationID).
		Update("user_feedback", datatypes.JSON(b))
	if res.Error != nil {
		return errx.WrapDB(res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if err := s.requireTurn(ctx, conversationID); err != nil {
		return err
	}
	return errx.AlreadyExists(errx.FeedbackExistsMessage)
}

func (s *SQLStore) AttachEvaluation(ctx context.Context, conversationID string, evaluation model.LlmEvaluation) error {
	b, err := json.Marshal(evaluation)
	if err != nil {
		return fmt.Errorf("marshal evaluation: %w", err)
	}
	res := s.db.WithContext(ctx).
		Model(&conversationRecord{}).
		Where("conversation_id = ?", conversationID).
		Update("llm_evaluation", datatypes.JSON(b))
	if res.Error != nil {
		return errx.WrapDB(res.Error)
	}
	if res.RowsAffected == 0 {
		return errx.NotFound(errx.ConversationNotFoundMessage)
	}
	return nil
}

func (s *SQLStore) requireTurn(ctx context.Context, conversationID string) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&conversationRecord{}).Where("conversation_id = ?", conversationID).Count(&n).Error; err != nil {
		return errx.WrapDB(err)
	}
	if n == 0 {
		return errx.NotFound(errx.ConversationNotFoundMessage)
	}
	return nil
}

func (r *conversationRecord) toTurn() (*model.ConversationTurn, error) {
	t := &model.ConversationTurn{
		ConversationID: r.ConversationID,
		SessionID:      r.SessionID,
		UserQuery:      r.UserQuery,
		AgentResponse:  r.AgentResponse,
		Timestamp:      r.Timestamp.UTC(),
		Outcome:        model.Outcome(r.Outcome),
		ToolRounds:     r.ToolRounds,
	}
	if len(r.CustomerState) > 0 {
		if err := json.Unmarshal(r.CustomerState, &t.CustomerState); err != nil {
			return nil, fmt.Errorf("unmarshal customer state: %w", err)
		}
	}
	if len(r.Feedback) > 0 {
		var fb model.UserFeedback
		if err := json.Unmarshal(r.Feedback, &fb); err != nil {
			return nil, fmt.Errorf("unmarshal feedback: %w", err)
		}
		t.UserFeedback = &fb
	}
	if len(r.Evaluation) > 0 {
		var ev model.LlmEvaluation
		if err := json.Unmarshal(r.Evaluation, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal evaluation: %w", err)
		}
		t.LlmEvaluation = &ev
	}
	return t, nil
}

var _ model.ConversationStore = (*SQLStore)(nil)
