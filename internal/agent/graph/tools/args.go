package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	logx "github.com/Chative-support-agent/server/pkg/logger"
)

// SanitizeArguments coerces model-produced arguments into the shapes the typed
// inputs decode. It never fails: unparseable JSON becomes an empty object so the
// tool reports invalid_arguments instead of aborting the graph.
func SanitizeArguments(ctx context.Context, name, arguments string) (string, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil || m == nil {
		logx.Warn().Str("tool_name", name).Str("arguments", arguments).Msg("Tool arguments are not a JSON object")
		return "{}", nil
	}

	switch name {
	case ToolSearchProducts, ToolListProducts:
		coerceString(m, "query")
		coerceString(m, "category")
		if c, ok := m["category"].(string); ok {
			m["category"] = strings.ToLower(c)
		}
		coerceInt(m, "limit", 1, maxListLimit)
	case ToolGetProduct:
		coerceString(m, "sku")
	case ToolListOrders:
		coerceString(m, "customer_id")
		coerceString(m, "status")
	case ToolGetOrder:
		coerceString(m, "order_id")
		coerceString(m, "customer_id")
	case ToolCreateOrder:
		coerceString(m, "customer_id")
		items, ok := m["items"].([]any)
		if !ok {
			delete(m, "items")
			break
		}
		kept := make([]any, 0, len(items))
		for _, raw := range items {
			item, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			coerceString(item, "sku")
			coerceInt(item, "quantity", 1, maxOrderQuantity)
			coerceFloat(item, "unit_price")
			kept = append(kept, item)
		}
		m["items"] = kept
	case ToolVerifyCustomerPin:
		coerceString(m, "email")
		coerceString(m, "pin")
	}

	b, err := json.Marshal(m)
	if err != nil {
		return "{}", nil
	}
	return string(b), nil
}

// ScopeToCustomer forces customer_id on customer-scoped tools to the verified
// customer, whatever the model asked for.
func ScopeToCustomer(arguments, customerID string) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil || m == nil {
		m = map[string]any{}
	}
	if prev, ok := m["customer_id"].(string); ok && prev != "" && prev != customerID {
		logx.Warn().Str("requested", prev).Str("verified", customerID).Msg("Tool call customer_id overridden")
	}
	m["customer_id"] = customerID
	b, err := json.Marshal(m)
	if err != nil {
		return arguments
	}
	return string(b)
}

// UnknownTool answers hallucinated or malformed tool calls with a structured error.
func UnknownTool(ctx context.Context, name, input string) (string, error) {
	logx.Warn().
		Str("tool_name", name).
		Str("arguments", input).
		Msg("Unknown or invalid tool call; returning fallback result")
	return fmt.Sprintf("{\"error\":%q,\"name\":%q}", ErrorUnknownTool, name), nil
}

func coerceString(m map[string]any, key string) {
	v, ok := m[key]
	if !ok {
		return
	}
	switch vv := v.(type) {
	case string:
		m[key] = strings.TrimSpace(vv)
	case nil:
		delete(m, key)
	case float64:
		// PINs and ids sometimes arrive as numbers
		m[key] = strconv.FormatFloat(vv, 'f', -1, 64)
	default:
		m[key] = strings.TrimSpace(fmt.Sprint(v))
	}
}

func coerceInt(m map[string]any, key string, min, max int) {
	v, ok := m[key]
	if !ok {
		return
	}
	switch vv := v.(type) {
	case float64:
		m[key] = clampInt(int(vv), min, max)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(vv)); err == nil {
			m[key] = clampInt(n, min, max)
		} else {
			delete(m, key)
		}
	default:
		delete(m, key)
	}
}

func coerceFloat(m map[string]any, key string) {
	v, ok := m[key]
	if !ok {
		return
	}
	switch vv := v.(type) {
	case float64:
	case string:
		if f, err := strconv.ParseFloat(strings.TrimPrefix(strings.TrimSpace(vv), "$"), 64); err == nil {
			m[key] = f
		} else {
			delete(m, key)
		}
	default:
		delete(m, key)
	}
}

// clampInt returns v limited to [min, max].
func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
