package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Chative-support-agent/server/internal/agent/model"
	"github.com/Chative-support-agent/server/internal/core/metrics"
	logx "github.com/Chative-support-agent/server/pkg/logger"
)

type Type string

const (
	TurnCompleted       Type = "turn.completed"
	FeedbackSubmitted   Type = "feedback.submitted"
	EvaluationCompleted Type = "evaluation.completed"
)

// Event is published for analytics consumers, keyed by conversation id.
type Event struct {
	Type           Type      `json:"type"`
	ConversationID string    `json:"conversation_id"`
	OccurredAt     time.Time `json:"occurred_at"`

	Outcome    model.Outcome        `json:"outcome,omitempty"`
	ToolRounds int                  `json:"tool_rounds,omitempty"`
	CostUSD    float64              `json:"cost_usd,omitempty"`
	Feedback   *model.UserFeedback  `json:"user_feedback,omitempty"`
	Evaluation *model.LlmEvaluation `json:"llm_evaluation,omitempty"`
}

// Sink publishes events. Publishing is best effort and never fails a request.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Emit publishes through sink and logs a failure instead of returning it.
func Emit(ctx context.Context, sink Sink, ev Event) {
	if sink == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if err := sink.Publish(ctx, ev); err != nil {
		metrics.EventPublishFailures.Inc()
		logx.Warn().Err(err).Str("event", string(ev.Type)).Str("conversation_id", ev.ConversationID).Msg("Failed to publish event")
	}
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) error {
	return nil
}

func (NopSink) Close() error {
	return nil
}

// KafkaSink writes JSON events to one topic. Writes are asynchronous; delivery
// errors are logged from the writer's completion callback.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			Async:        true,
			BatchTimeout: 50 * time.Millisecond,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					metrics.EventPublishFailures.Add(float64(len(messages)))
					logx.Warn().Err(err).Int("messages", len(messages)).Msg("Kafka delivery failed")
				}
			},
		},
	}
}

func (k *KafkaSink) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.ConversationID),
		Value: data,
	})
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

// NewSink returns a Kafka sink when brokers are configured, otherwise a no-op sink.
func NewSink(cfg model.KafkaConfig) Sink {
	if len(cfg.Brokers) == 0 {
		logx.Debug().Msg("KAFKA_BROKERS not set; events are not published")
		return NopSink{}
	}
	logx.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("Publishing events to Kafka")
	return NewKafkaSink(cfg.Brokers, cfg.Topic)
}
