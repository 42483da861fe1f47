package nodes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-support-agent/server/internal/agent/graph/conversations"
	"github.com/Chative-support-agent/server/internal/agent/graph/prompts"
	"github.com/Chative-support-agent/server/internal/agent/graph/tools"
	"github.com/Chative-support-agent/server/internal/agent/model"
	"github.com/Chative-support-agent/server/internal/agent/verification"
	logx "github.com/Chative-support-agent/server/pkg/logger"
)

// NewInputConverterPreHandler resets the per-turn state from the turn input.
func NewInputConverterPreHandler() func(context.Context, model.TurnInput, *model.AppState) (model.TurnInput, error) {
	return func(ctx context.Context, in model.TurnInput, s *model.AppState) (model.TurnInput, error) {
		in.Customer = in.Customer.Normalize()

		s.RequestID = in.RequestID
		s.Customer = in.Customer
		s.History = nil
		s.ToolRounds = 0
		s.ToolCallIDSeq = 0
		s.Outcome = ""
		s.Notice = ""
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewInputConverterNode renders the system prompt for the current customer and
// assembles the model context.
func NewInputConverterNode(
	mm *conversations.MessagesManager,
	responsePromptConfig *model.ResponsePromptConfig,
) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.TurnInput) ([]*schema.Message, error) {
		// Generate system prompt via Eino prompt component (enables prompt callbacks)
		systemPrompt, err := prompts.RenderResponseSystem(ctx, *responsePromptConfig, input.Customer)
		if err != nil {
			return nil, fmt.Errorf("render response system prompt: %w", err)
		}
		return mm.BuildResponseContext(systemPrompt, input.History, input.Query), nil
	})
}

// NewResponseChatModelPreHandler appends the node input to the running history
// and hands the model the full context.
func NewResponseChatModelPreHandler() func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		state.History = append(state.History, in...)
		logx.Debug().Str("request_id", state.RequestID).Int("tool_rounds", state.ToolRounds).Msg("AI thinking...")
		return state.History, nil
	}
}

// NewResponseChatModelPostHandler accounts usage cost, normalizes tool call ids
// and stamps the outcome on a final answer.
func NewResponseChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		if out == nil {
			return nil, fmt.Errorf("response model returned no message")
		}

		if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
			cost, totalC := model.UsageCost(modelName, out.ResponseMeta.Usage)
			if out.Extra == nil {
				out.Extra = map[string]any{}
			}
			out.Extra[model.ExtraUsageCost] = cost
			logx.Debug().
				Str("request_id", state.RequestID).
				Str("node", NodeResponseChatModel).
				Str("model", modelName).
				Int("prompt_tokens", out.ResponseMeta.Usage.PromptTokens).
				Int("completion_tokens", out.ResponseMeta.Usage.CompletionTokens).
				Int("total_tokens", out.ResponseMeta.Usage.TotalTokens).
				Float64("total_cost_usd", totalC).
				Msg("LLM usage")

			state.TotalCostUSD += totalC
		}

		// Some providers omit tool_call ids; tool results must reference one.
		for i := range out.ToolCalls {
			if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
				state.ToolCallIDSeq++
				out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
			}
		}

		state.History = append(state.History, out)

		if len(out.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
			return out, nil
		}

		logx.Debug().Msg("AI response ready")
		if state.Outcome == "" {
			state.Outcome = model.OutcomeAnswered
		}
		stampOutcome(out, state)
		return out, nil
	}
}

// NewToolDispatchCondition routes a model message to END, to tool dispatch, or
// to the degraded answer once the tool round budget is spent.
func NewToolDispatchCondition(maxRounds int) func(context.Context, *schema.Message) (string, error) {
	maxRounds = normalizeMaxToolRounds(maxRounds)
	return func(ctx context.Context, input *schema.Message) (string, error) {
		if len(input.ToolCalls) == 0 {
			logx.Debug().Msg("No tool calls - continuing to end")
			return compose.END, nil
		}

		var rounds int
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			rounds = state.ToolRounds
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to access state: %w", err)
		}

		if rounds >= maxRounds {
			logx.Warn().Int("tool_rounds", rounds).Int("max_tool_rounds", maxRounds).
				Msg("Tool round limit reached - routing to degraded answer")
			return NodeDegraded, nil
		}
		logx.Debug().Int("tool_count", len(input.ToolCalls)).Msg("Routing to ToolDispatch")
		return NodeToolDispatch, nil
	}
}

// NewNoticeCondition ends the turn when dispatch produced a fixed notice.
func NewNoticeCondition() func(context.Context, []*schema.Message) (string, error) {
	return func(ctx context.Context, _ []*schema.Message) (string, error) {
		var notice string
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			notice = state.Notice
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to access state: %w", err)
		}
		if notice != "" {
			return NodeNotice, nil
		}
		return NodeResponseChatModel, nil
	}
}

// ToolDispatcher runs one round of model-requested tool calls, enforcing the
// verification gate before any gated tool reaches the gateway.
type ToolDispatcher struct {
	registry  *tools.Registry
	machine   *verification.Machine
	toolsNode *compose.ToolsNode
}

func NewToolDispatcher(registry *tools.Registry, machine *verification.Machine, toolsNode *compose.ToolsNode) *ToolDispatcher {
	return &ToolDispatcher{registry: registry, machine: machine, toolsNode: toolsNode}
}

// Node wraps Dispatch as a graph lambda.
func (d *ToolDispatcher) Node() *compose.Lambda {
	return compose.InvokableLambda(d.Dispatch)
}

// Dispatch executes the calls of one assistant message in order. State is read
// once, tools run without holding it, and the result is written back at the end.
func (d *ToolDispatcher) Dispatch(ctx context.Context, msg *schema.Message) ([]*schema.Message, error) {
	var (
		customer  model.CustomerState
		requestID string
	)
	err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
		state.ToolRounds++
		customer = state.Customer
		requestID = state.RequestID
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access state: %w", err)
	}

	var (
		results []*schema.Message
		notice  string
		outcome model.Outcome
	)

calls:
	for _, call := range msg.ToolCalls {
		name := call.Function.Name
		def, known := d.registry.Lookup(name)

		if known && !d.machine.Allowed(customer, def.Gated) {
			customer = d.machine.Challenge(customer)
			notice, outcome = verification.ChallengeMessage, model.OutcomeChallenge
			logx.Info().Str("request_id", requestID).Str("tool", name).
				Msg("Gated tool requested by unverified customer - issuing PIN challenge")
			break calls
		}
		if known && def.CustomerScoped {
			call.Function.Arguments = tools.ScopeToCustomer(call.Function.Arguments, customer.CustomerID)
		}

		outs, err := d.toolsNode.Invoke(ctx, &schema.Message{
			Role:      schema.Assistant,
			ToolCalls: []schema.ToolCall{call},
		})
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", name, err)
		}

		if name == tools.ToolVerifyCustomerPin {
			for _, out := range outs {
				var denied bool
				customer, denied = d.applyVerification(requestID, customer, out)
				if denied {
					notice, outcome = verification.DeniedMessage, model.OutcomeDenied
					break calls
				}
			}
		}
		results = append(results, outs...)
	}

	err = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
		state.Customer = customer
		if notice != "" {
			state.Notice = notice
			state.Outcome = outcome
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access state: %w", err)
	}
	return results, nil
}

// applyVerification moves the customer state according to a verify_customer_pin
// result. A mismatched customer rewrites the tool message so the model does not
// treat it as a success. It reports whether attempts are exhausted.
func (d *ToolDispatcher) applyVerification(requestID string, customer model.CustomerState, out *schema.Message) (model.CustomerState, bool) {
	res := tools.ParseVerifyOutput(out.Content)

	var err error
	switch res.Verdict {
	case tools.VerdictConfirmed:
		customer, err = d.machine.Confirm(customer, res.CustomerID, res.Name)
		if errors.Is(err, verification.ErrCustomerMismatch) {
			b, _ := json.Marshal(tools.Output{
				Tool:    tools.ToolVerifyCustomerPin,
				Error:   tools.ErrorToolReported,
				Message: "Verification failed: the account does not match this session.",
			})
			out.Content = string(b)
		}
	case tools.VerdictRejected:
		customer, err = d.machine.Fail(customer)
	default:
		return customer, false
	}

	logx.Info().
		Str("request_id", requestID).
		Str("verification_status", string(customer.Status)).
		Int("pin_attempts", customer.PinAttempts).
		AnErr("verification_error", err).
		Msg("Verification state updated")

	return customer, errors.Is(err, verification.ErrAttemptsExhausted)
}

// NewNoticeNode answers with the notice chosen during dispatch (PIN challenge or denial).
func NewNoticeNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ []*schema.Message) (*schema.Message, error) {
		var out *schema.Message
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			out = schema.AssistantMessage(state.Notice, nil)
			state.History = append(state.History, out)
			stampOutcome(out, state)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		return out, nil
	})
}

// NewDegradedNode ends a turn whose model kept asking for tools past the round budget.
func NewDegradedNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *schema.Message) (*schema.Message, error) {
		var out *schema.Message
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			state.Outcome = model.OutcomeDegraded
			out = schema.AssistantMessage(DegradedMessage, nil)
			state.History = append(state.History, out)
			stampOutcome(out, state)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		return out, nil
	})
}
