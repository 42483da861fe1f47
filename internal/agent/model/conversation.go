package model

import (
	"context"
	"time"
)

// ConversationStore persists completed turns and the feedback/evaluation
// attached to them. conversation_id is the only join key.
type ConversationStore interface {
	// Append records a completed turn. A duplicate id fails with errx.ErrAlreadyExists.
	Append(ctx context.Context, turn *ConversationTurn) error

	// Get returns the turn or an error matching errx.ErrNotFound.
	Get(ctx context.Context, conversationID string) (*ConversationTurn, error)

	// List returns every stored turn ordered by timestamp (oldest first).
	List(ctx context.Context) ([]*ConversationTurn, error)

	// AttachFeedback sets feedback once. A second attach fails with errx.ErrAlreadyExists,
	// even when two callers race.
	AttachFeedback(ctx context.Context, conversationID string, feedback UserFeedback) error

	// AttachEvaluation sets or replaces the judge verdict.
	AttachEvaluation(ctx context.Context, conversationID string, evaluation LlmEvaluation) error
}

// Outcome describes how a turn ended.
type Outcome string

const (
	OutcomeAnswered  Outcome = "answered"
	OutcomeChallenge Outcome = "challenge"
	OutcomeDenied    Outcome = "denied"
	OutcomeDegraded  Outcome = "degraded"
)

// ConversationTurn is one user query and the agent response, plus the optional
// quality signals attached later.
type ConversationTurn struct {
	ConversationID string         `json:"conversation_id"`
	SessionID      string         `json:"session_id,omitempty"`
	UserQuery      string         `json:"user_query"`
	AgentResponse  string         `json:"agent_response"`
	Timestamp      time.Time      `json:"timestamp"`
	CustomerState  CustomerState  `json:"customer_state"`
	Outcome        Outcome        `json:"outcome"`
	ToolRounds     int            `json:"tool_rounds"`
	UserFeedback   *UserFeedback  `json:"user_feedback"`
	LlmEvaluation  *LlmEvaluation `json:"llm_evaluation"`
}

// HistoryMessage is a prior chat message supplied by the client.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type UserFeedback struct {
	ThumbsUp    bool      `json:"thumbs_up"`
	Comment     string    `json:"comment"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type CategoryScore struct {
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

// EvaluationCategories lists the rubric dimensions in display order.
var EvaluationCategories = []string{"helpfulness", "accuracy", "tone", "completeness", "safety"}

// LlmEvaluation is the judge verdict for one turn. OverallScore is always the
// mean of the five category scores.
type LlmEvaluation struct {
	Helpfulness  CategoryScore `json:"helpfulness"`
	Accuracy     CategoryScore `json:"accuracy"`
	Tone         CategoryScore `json:"tone"`
	Completeness CategoryScore `json:"completeness"`
	Safety       CategoryScore `json:"safety"`
	OverallScore float64       `json:"overall_score"`
	Summary      string        `json:"summary"`
	EvaluatedAt  time.Time     `json:"evaluated_at"`
}

// Scores returns the category scores keyed by category name.
func (e *LlmEvaluation) Scores() map[string]CategoryScore {
	return map[string]CategoryScore{
		"helpfulness":  e.Helpfulness,
		"accuracy":     e.Accuracy,
		"tone":         e.Tone,
		"completeness": e.Completeness,
		"safety":       e.Safety,
	}
}

// Summary aggregates quality signals over all stored turns.
type Summary struct {
	TotalConversations int                `json:"total_conversations"`
	WithUserFeedback   int                `json:"with_user_feedback"`
	WithLlmEvaluation  int                `json:"with_llm_evaluation"`
	ThumbsUp           int                `json:"thumbs_up"`
	ThumbsDown         int                `json:"thumbs_down"`
	AverageLlmScore    float64            `json:"average_llm_score"`
	CategoryAverages   map[string]float64 `json:"category_averages"`
}

type EvaluationListing struct {
	Evaluations []*ConversationTurn `json:"evaluations"`
	Summary     Summary             `json:"summary"`
}
