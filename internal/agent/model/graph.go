package model

import (
	"github.com/cloudwego/eino/schema"
)

// AppState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Eino serializes access to state within these handlers, so no additional
//     mutex/atomic is required as long as you never touch it outside handlers.
//   - Tool I/O runs outside ProcessState: take a snapshot, call, then write back.
type AppState struct {
	RequestID     string
	Customer      CustomerState     // mutated only through verification.Machine
	History       []*schema.Message // mutated only inside Eino state handlers
	ToolRounds    int               // completed tool dispatch rounds for this turn
	ToolCallIDSeq int               // local sequence to synthesize tool_call_id when provider omits

	// Outcome and Notice are set when the turn ends without a model answer.
	Outcome Outcome
	Notice  string

	// Accumulated total LLM cost (USD) across model invocations for this query
	TotalCostUSD float64
}

// TurnInput is the graph input for one user turn.
type TurnInput struct {
	RequestID string           `json:"request_id"`
	Query     string           `json:"query"`
	History   []HistoryMessage `json:"history"`
	Customer  CustomerState    `json:"customer_state"`
}

// TurnResult is what the runner hands back after the graph finishes.
type TurnResult struct {
	Response   string
	Customer   CustomerState
	Outcome    Outcome
	ToolRounds int
	CostUSD    float64
}

// Keys set on the final message Extra so the runner can rebuild a TurnResult.
const (
	ExtraCustomerState = "customer_state"
	ExtraOutcome       = "outcome"
	ExtraToolRounds    = "tool_rounds"
	ExtraUsageCost     = "usage_cost"
	ExtraTotalCost     = "usage_cost_total_usd"
)
