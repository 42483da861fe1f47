package guardrail

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Chative-support-agent/server/internal/agent/model"
	errx "github.com/Chative-support-agent/server/internal/core/error"
	"github.com/Chative-support-agent/server/internal/core/metrics"
	logx "github.com/Chative-support-agent/server/pkg/logger"
)

const (
	RefusalMessage          = "I can only help with TechStore product and order inquiries. Please ask about our products, check orders, or get support."
	HistoryRejectedMessage  = "Invalid message history detected."
	DefaultMaxMessageLength = 4000
	DefaultHistoryLimit     = 20
)

// Rejection describes a matched injection pattern.
type Rejection struct {
	Family  Family
	Pattern string
	// Source is "message" or "history".
	Source string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("prompt injection (%s) in %s: %s", r.Family, r.Source, r.Pattern)
}

// Screened is the validated, sanitized input of one turn.
type Screened struct {
	Message string
	History []model.HistoryMessage
}

type Filter struct {
	patterns         []pattern
	maxMessageLength int
	historyLimit     int
}

func New(maxMessageLength, historyLimit int) *Filter {
	if maxMessageLength <= 0 {
		maxMessageLength = DefaultMaxMessageLength
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Filter{
		patterns:         defaultPatterns,
		maxMessageLength: maxMessageLength,
		historyLimit:     historyLimit,
	}
}

// Detect returns the first matching injection pattern, or nil.
func (f *Filter) Detect(text string) *Rejection {
	for _, pt := range f.patterns {
		if pt.expr.MatchString(text) {
			return &Rejection{Family: pt.family, Pattern: pt.expr.String()}
		}
	}
	return nil
}

// Check validates the user message and history, screens both for injection and
// returns sanitized copies. Validation problems map to 400 invalid_request,
// injection to 400 guardrail_rejection.
func (f *Filter) Check(message string, history []model.HistoryMessage) (*Screened, error) {
	if strings.TrimSpace(message) == "" {
		return nil, errx.InvalidInput("Message cannot be empty")
	}
	if utf8.RuneCountInString(message) > f.maxMessageLength {
		return nil, errx.InvalidInput(fmt.Sprintf("Message too long (max %d characters)", f.maxMessageLength))
	}
	for _, m := range history {
		if m.Role != model.RoleUser && m.Role != model.RoleAssistant {
			return nil, errx.InvalidInput(`Role must be "user" or "assistant"`)
		}
		if utf8.RuneCountInString(m.Content) > f.maxMessageLength {
			return nil, errx.InvalidInput(fmt.Sprintf("Message too long (max %d characters)", f.maxMessageLength))
		}
	}
	if len(history) > f.historyLimit {
		history = history[len(history)-f.historyLimit:]
	}

	if rej := f.Detect(message); rej != nil {
		rej.Source = "message"
		return nil, f.reject(rej, RefusalMessage)
	}
	for _, m := range history {
		if rej := f.Detect(m.Content); rej != nil {
			rej.Source = "history"
			return nil, f.reject(rej, HistoryRejectedMessage)
		}
	}

	out := &Screened{
		Message: Sanitize(message),
		History: make([]model.HistoryMessage, 0, len(history)),
	}
	for _, m := range history {
		out.History = append(out.History, model.HistoryMessage{Role: m.Role, Content: Sanitize(m.Content)})
	}
	return out, nil
}

func (f *Filter) reject(rej *Rejection, refusal string) error {
	metrics.GuardrailRejections.WithLabelValues(string(rej.Family), rej.Source).Inc()
	logx.Warn().
		Str("family", string(rej.Family)).
		Str("pattern", rej.Pattern).
		Str("source", rej.Source).
		Msg("Blocked prompt injection attempt")
	return errx.GuardrailRejected(rej, refusal)
}

// Sanitize strips chat-template delimiters and trims the text.
func Sanitize(text string) string {
	for _, s := range sanitizers {
		text = s.expr.ReplaceAllString(text, s.repl)
	}
	return strings.TrimSpace(text)
}
