package chat

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Chative-support-agent/server/internal/agent/events"
	"github.com/Chative-support-agent/server/internal/agent/graph"
	"github.com/Chative-support-agent/server/internal/agent/guardrail"
	"github.com/Chative-support-agent/server/internal/agent/model"
	"github.com/Chative-support-agent/server/internal/agent/verification"
	errx "github.com/Chative-support-agent/server/internal/core/error"
	"github.com/Chative-support-agent/server/internal/core/metrics"
	logx "github.com/Chative-support-agent/server/pkg/logger"
)

// Request is one inbound user turn.
type Request struct {
	Message       string                 `json:"message"`
	History       []model.HistoryMessage `json:"history"`
	CustomerState model.CustomerState    `json:"customer_state"`
	SessionID     string                 `json:"session_id,omitempty"`
}

// Response is returned to the client; CustomerState must be sent back on the next turn.
type Response struct {
	Message        string              `json:"message"`
	ConversationID string              `json:"conversation_id"`
	CustomerState  model.CustomerState `json:"customer_state"`
}

type Service struct {
	filter *guardrail.Filter
	runner graph.Runner
	store  model.ConversationStore
	signer *verification.TokenSigner
	sink   events.Sink
	now    func() time.Time
	newID  func() string
}

type Option func(*Service)

func WithSink(sink events.Sink) Option {
	return func(s *Service) { s.sink = sink }
}

func WithSigner(signer *verification.TokenSigner) Option {
	return func(s *Service) { s.signer = signer }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(filter *guardrail.Filter, runner graph.Runner, store model.ConversationStore, opts ...Option) *Service {
	s := &Service{
		filter: filter,
		runner: runner,
		store:  store,
		sink:   events.NopSink{},
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunTurn screens the input, runs the agent and records the turn. Guardrail
// rejections return an error and are not recorded. A store failure is logged
// and the answer is still returned.
func (s *Service) RunTurn(ctx context.Context, req Request) (*Response, error) {
	screened, err := s.filter.Check(req.Message, req.History)
	if err != nil {
		return nil, err
	}

	customer := s.signer.Verify(req.CustomerState)
	conversationID := s.newID()

	result, err := s.runner.Invoke(ctx, model.TurnInput{
		RequestID: conversationID,
		Query:     screened.Message,
		History:   screened.History,
		Customer:  customer,
	})
	if err != nil {
		logx.Error().Err(err).Str("conversation_id", conversationID).Msg("Agent turn failed")
		return nil, errx.New(err, http.StatusInternalServerError, errx.SystemErrorMessage).WithCode("agent_failure")
	}

	turn := &model.ConversationTurn{
		ConversationID: conversationID,
		SessionID:      strings.TrimSpace(req.SessionID),
		UserQuery:      screened.Message,
		AgentResponse:  result.Response,
		Timestamp:      s.now().UTC(),
		CustomerState:  result.Customer.Snapshot(),
		Outcome:        result.Outcome,
		ToolRounds:     result.ToolRounds,
	}
	if err := s.store.Append(ctx, turn); err != nil {
		logx.Error().Err(err).Str("conversation_id", conversationID).Msg("Failed to record conversation turn")
	}
	metrics.ChatTurns.WithLabelValues(string(result.Outcome)).Inc()

	events.Emit(ctx, s.sink, events.Event{
		Type:           events.TurnCompleted,
		ConversationID: conversationID,
		OccurredAt:     turn.Timestamp,
		Outcome:        result.Outcome,
		ToolRounds:     result.ToolRounds,
		CostUSD:        result.CostUSD,
	})

	state, err := s.signer.Sign(result.Customer)
	if err != nil {
		logx.Error().Err(err).Str("conversation_id", conversationID).Msg("Failed to sign customer state")
		return nil, errx.New(err, http.StatusInternalServerError, errx.SystemErrorMessage).WithCode("internal_error")
	}

	logx.Info().
		Str("conversation_id", conversationID).
		Str("outcome", string(result.Outcome)).
		Int("tool_rounds", result.ToolRounds).
		Str("verification_status", string(state.Status)).
		Float64("cost_usd", result.CostUSD).
		Msg("Chat turn completed")

	return &Response{
		Message:        result.Response,
		ConversationID: conversationID,
		CustomerState:  state,
	}, nil
}
