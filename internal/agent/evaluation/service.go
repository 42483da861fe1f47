package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"

	"github.com/Chative-support-agent/server/internal/agent/events"
	"github.com/Chative-support-agent/server/internal/agent/graph/prompts"
	"github.com/Chative-support-agent/server/internal/agent/model"
	errx "github.com/Chative-support-agent/server/internal/core/error"
	"github.com/Chative-support-agent/server/internal/core/metrics"
	logx "github.com/Chative-support-agent/server/pkg/logger"
)

const (
	TriggerManual = "manual"
	TriggerAuto   = "auto"
)

// Service attaches user feedback and judge verdicts to stored turns.
type Service struct {
	store   model.ConversationStore
	judge   einomodel.BaseChatModel
	timeout time.Duration
	sink    events.Sink
	now     func() time.Time

	dispatcher *Dispatcher
	auto       bool
}

type Option func(*Service)

func WithSink(sink events.Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithAutoEvaluation queues a background judge run after each accepted feedback.
func WithAutoEvaluation(d *Dispatcher) Option {
	return func(s *Service) {
		s.dispatcher = d
		s.auto = d != nil
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store model.ConversationStore, judge einomodel.BaseChatModel, timeout time.Duration, opts ...Option) *Service {
	s := &Service{
		store:   store,
		judge:   judge,
		timeout: timeout,
		sink:    events.NopSink{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitFeedback records thumbs up/down once per conversation.
func (s *Service) SubmitFeedback(ctx context.Context, conversationID string, thumbsUp bool, comment string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return errx.InvalidInput("conversation_id is required")
	}
	fb := model.UserFeedback{
		ThumbsUp:    thumbsUp,
		Comment:     strings.TrimSpace(comment),
		SubmittedAt: s.now().UTC(),
	}

	if err := s.store.AttachFeedback(ctx, conversationID, fb); err != nil {
		switch {
		case errors.Is(err, errx.ErrNotFound):
			metrics.Feedback.WithLabelValues("not_found").Inc()
		case errors.Is(err, errx.ErrAlreadyExists):
			metrics.Feedback.WithLabelValues("duplicate").Inc()
		default:
			metrics.Feedback.WithLabelValues("error").Inc()
			logx.Error().Err(err).Str("conversation_id", conversationID).Msg("Failed to record feedback")
		}
		return err
	}
	metrics.Feedback.WithLabelValues("ok").Inc()
	logx.Info().Str("conversation_id", conversationID).Bool("thumbs_up", thumbsUp).Msg("Feedback recorded")

	events.Emit(ctx, s.sink, events.Event{
		Type:           events.FeedbackSubmitted,
		ConversationID: conversationID,
		OccurredAt:     fb.SubmittedAt,
		Feedback:       &fb,
	})

	if s.auto {
		s.dispatcher.Submit(conversationID)
	}
	return nil
}

// Evaluate runs the judge over one stored turn and replaces any prior verdict.
// Nothing is persisted when the judge fails.
func (s *Service) Evaluate(ctx context.Context, conversationID string) (*model.LlmEvaluation, error) {
	return s.evaluate(ctx, conversationID, TriggerManual)
}

// EvaluateInBackground is the dispatcher handler.
func (s *Service) EvaluateInBackground(ctx context.Context, conversationID string) error {
	_, err := s.evaluate(ctx, conversationID, TriggerAuto)
	return err
}

func (s *Service) evaluate(ctx context.Context, conversationID, trigger string) (*model.LlmEvaluation, error) {
	turn, err := s.store.Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, errx.ErrNotFound) {
			metrics.Evaluations.WithLabelValues(trigger, "not_found").Inc()
		}
		return nil, err
	}

	ev, err := s.judgeTurn(ctx, turn)
	if err != nil {
		metrics.Evaluations.WithLabelValues(trigger, "judge_failed").Inc()
		logx.Error().Err(err).Str("conversation_id", conversationID).Str("trigger", trigger).Msg("Judge evaluation failed")
		return nil, errx.JudgeFailed(err)
	}

	if err := s.store.AttachEvaluation(ctx, conversationID, *ev); err != nil {
		metrics.Evaluations.WithLabelValues(trigger, "store_failed").Inc()
		return nil, err
	}
	metrics.Evaluations.WithLabelValues(trigger, "ok").Inc()
	logx.Info().
		Str("conversation_id", conversationID).
		Str("trigger", trigger).
		Float64("overall_score", ev.OverallScore).
		Msg("Conversation evaluated")

	events.Emit(ctx, s.sink, events.Event{
		Type:           events.EvaluationCompleted,
		ConversationID: conversationID,
		OccurredAt:     ev.EvaluatedAt,
		Evaluation:     ev,
	})
	return ev, nil
}

func (s *Service) judgeTurn(ctx context.Context, turn *model.ConversationTurn) (*model.LlmEvaluation, error) {
	if s.judge == nil {
		return nil, errors.New("no judge model configured")
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	msgs, err := prompts.RenderJudge(ctx, turn.UserQuery, turn.AgentResponse)
	if err != nil {
		return nil, err
	}
	out, err := s.judge.Generate(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("judge generate: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: empty judge reply", ErrInvalidVerdict)
	}
	return ParseVerdict(out.Content, s.now())
}

// List returns every stored turn with a freshly computed summary.
func (s *Service) List(ctx context.Context) (*model.EvaluationListing, error) {
	turns, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if turns == nil {
		turns = []*model.ConversationTurn{}
	}
	return &model.EvaluationListing{
		Evaluations: turns,
		Summary:     Summarize(turns),
	}, nil
}

func (s *Service) Get(ctx context.Context, conversationID string) (*model.ConversationTurn, error) {
	return s.store.Get(ctx, conversationID)
}
