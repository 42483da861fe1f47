package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

// ===================================
// Order tools (verified customers only)
// ===================================

type ListOrdersInput struct {
	CustomerID string `json:"customer_id"`
	Status     string `json:"status,omitempty"`
}

func (in *ListOrdersInput) args() (map[string]any, error) {
	if in.CustomerID == "" {
		return nil, errors.New("customer_id is required")
	}
	m := map[string]any{"customer_id": in.CustomerID}
	if in.Status != "" {
		m["status"] = strings.ToLower(strings.TrimSpace(in.Status))
	}
	return m, nil
}

func (r *Registry) newListOrdersTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolListOrders,
			Desc: "List the verified customer's orders, newest first.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"customer_id": {
					Type:     schema.String,
					Desc:     "Customer ID returned by verify_customer_pin.",
					Required: true,
				},
				"status": {
					Type: schema.String,
					Desc: "Optional status filter.",
					Enum: []string{"pending", "processing", "shipped", "delivered", "cancelled"},
				},
			}),
		},
		func(ctx context.Context, in *ListOrdersInput) (*Output, error) {
			return r.run(ctx, ToolListOrders, in.args)
		},
	)
}

type GetOrderInput struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
}

func (in *GetOrderInput) args() (map[string]any, error) {
	id := strings.ToUpper(strings.TrimSpace(in.OrderID))
	if id == "" {
		return nil, errors.New("order_id is required")
	}
	if in.CustomerID == "" {
		return nil, errors.New("customer_id is required")
	}
	return map[string]any{"order_id": id, "customer_id": in.CustomerID}, nil
}

func (r *Registry) newGetOrderTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGetOrder,
			Desc: "Get the status and items of one of the verified customer's orders.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"order_id": {
					Type:     schema.String,
					Desc:     "Order ID, e.g. ORD-1A2B3C4D.",
					Required: true,
				},
				"customer_id": {
					Type:     schema.String,
					Desc:     "Customer ID returned by verify_customer_pin.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *GetOrderInput) (*Output, error) {
			return r.run(ctx, ToolGetOrder, in.args)
		},
	)
}

type OrderItemInput struct {
	SKU       string  `json:"sku"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price,omitempty"`
}

type CreateOrderInput struct {
	CustomerID string           `json:"customer_id"`
	Items      []OrderItemInput `json:"items"`
}

func (in *CreateOrderInput) args() (map[string]any, error) {
	if in.CustomerID == "" {
		return nil, errors.New("customer_id is required")
	}
	if len(in.Items) == 0 {
		return nil, errors.New("items must contain at least one product")
	}
	items := make([]any, 0, len(in.Items))
	for i, it := range in.Items {
		sku := strings.ToUpper(strings.TrimSpace(it.SKU))
		if sku == "" {
			return nil, fmt.Errorf("items[%d].sku is required", i)
		}
		item := map[string]any{
			"sku":      sku,
			"quantity": clampInt(it.Quantity, 1, maxOrderQuantity),
		}
		if it.UnitPrice > 0 {
			item["unit_price"] = it.UnitPrice
		}
		items = append(items, item)
	}
	return map[string]any{"customer_id": in.CustomerID, "items": items}, nil
}

func (r *Registry) newCreateOrderTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolCreateOrder,
			Desc: "Place an order for the verified customer. Confirm SKU, quantity and unit price with the customer first.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"customer_id": {
					Type:     schema.String,
					Desc:     "Customer ID returned by verify_customer_pin.",
					Required: true,
				},
				"items": {
					Type:     schema.Array,
					Desc:     "Products to order.",
					Required: true,
					ElemInfo: &schema.ParameterInfo{
						Type: schema.Object,
						SubParams: map[string]*schema.ParameterInfo{
							"sku":        {Type: schema.String, Desc: "Product SKU.", Required: true},
							"quantity":   {Type: schema.Integer, Desc: "Units to order (1-10).", Required: true},
							"unit_price": {Type: schema.Number, Desc: "Unit price from get_product."},
						},
					},
				},
			}),
		},
		func(ctx context.Context, in *CreateOrderInput) (*Output, error) {
			return r.run(ctx, ToolCreateOrder, in.args)
		},
	)
}
