package nodes

import (
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-support-agent/server/internal/agent/model"
)

const (
	NodeInputConverter    = "InputConverter"
	NodeResponseChatModel = "ResponseChatModel"
	NodeToolDispatch      = "ToolDispatch"
	NodeNotice            = "Notice"
	NodeDegraded          = "Degraded"
)

const DefaultMaxToolRounds = 5

// DegradedMessage answers a turn that ran out of tool rounds or produced no answer.
const DegradedMessage = "I'm sorry, I wasn't able to complete that request right now. Please try again or rephrase your question."

// ===== Small helpers to keep handlers simple/readable =====
// normalizeMaxToolRounds returns a sane default when the provided value is invalid.
func normalizeMaxToolRounds(n int) int {
	if n <= 0 {
		return DefaultMaxToolRounds
	}
	return n
}

// stampOutcome records the turn result on the final message so the runner can
// read it without touching graph state.
func stampOutcome(out *schema.Message, state *model.AppState) {
	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	out.Extra[model.ExtraCustomerState] = state.Customer
	out.Extra[model.ExtraOutcome] = state.Outcome
	out.Extra[model.ExtraToolRounds] = state.ToolRounds
	out.Extra[model.ExtraTotalCost] = state.TotalCostUSD
}
