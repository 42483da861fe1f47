package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-support-agent/server/internal/agent/graph/tools"
	"github.com/Chative-support-agent/server/internal/agent/model"
)

//go:embed template/system_prompt.txt
var coreSystemPrompt string

// RenderResponseSystem renders the response system prompt for the current customer
// state and triggers prompt callbacks.
func RenderResponseSystem(ctx context.Context, config model.ResponsePromptConfig, customer model.CustomerState) (string, error) {
	customer = customer.Normalize()

	// Render via Eino prompt component (Go template) to both format and emit callbacks
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(coreSystemPrompt),
	)
	vars := map[string]any{
		"BusinessType":    config.BusinessType,
		"BusinessName":    config.BusinessName,
		"Verified":        customer.Status == model.StatusVerified,
		"PendingPin":      customer.Status == model.StatusPendingPin,
		"PinAttempts":     customer.PinAttempts,
		"CustomerName":    customer.Name,
		"CustomerID":      customer.CustomerID,
		"SearchTool":      tools.ToolSearchProducts,
		"ListTool":        tools.ToolListProducts,
		"GetProductTool":  tools.ToolGetProduct,
		"VerifyTool":      tools.ToolVerifyCustomerPin,
		"ListOrdersTool":  tools.ToolListOrders,
		"GetOrderTool":    tools.ToolGetOrder,
		"CreateOrderTool": tools.ToolCreateOrder,
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("response prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("response prompt render: empty result")
	}
	return msgs[0].Content, nil
}
