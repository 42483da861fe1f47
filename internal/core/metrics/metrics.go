package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChatTurns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_agent_chat_turns_total",
			Help: "Completed chat turns by outcome",
		},
		[]string{"outcome"},
	)

	GuardrailRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_agent_guardrail_rejections_total",
			Help: "Messages rejected by the guardrail filter",
		},
		[]string{"family", "source"},
	)

	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_agent_tool_calls_total",
			Help: "Tool gateway calls by tool and result",
		},
		[]string{"tool", "result"},
	)

	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "support_agent_tool_call_duration_seconds",
			Help: "Tool gateway call latency including retries",
		},
		[]string{"tool"},
	)

	VerificationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_agent_verification_transitions_total",
			Help: "PIN verification state transitions",
		},
		[]string{"event"},
	)

	Feedback = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_agent_feedback_total",
			Help: "Feedback submissions by result",
		},
		[]string{"result"},
	)

	Evaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_agent_evaluations_total",
			Help: "Judge evaluations by trigger and result",
		},
		[]string{"trigger", "result"},
	)

	EvaluationQueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "support_agent_evaluation_queue_dropped_total",
			Help: "Evaluation jobs dropped because the queue was full",
		},
	)

	EventPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "support_agent_event_publish_failures_total",
			Help: "Turn events that could not be published",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_agent_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "support_agent_http_request_duration_seconds",
			Help: "HTTP request latency",
		},
		[]string{"method", "route"},
	)
)
