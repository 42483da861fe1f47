package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

// ===================================
// Product tools
// ===================================

type SearchProductsInput struct {
	Query    string `json:"query"`
	Category string `json:"category,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

func (in *SearchProductsInput) args() (map[string]any, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, errors.New("query is required")
	}
	m := map[string]any{"query": strings.TrimSpace(in.Query)}
	if in.Category != "" {
		m["category"] = in.Category
	}
	if in.Limit > 0 {
		m["limit"] = clampInt(in.Limit, 1, maxListLimit)
	}
	return m, nil
}

func (r *Registry) newSearchProductsTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolSearchProducts,
			Desc: "Search the TechStore catalog by keyword. Returns matching products with SKU, name, price and stock. Use this for any free-text product question.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     schema.String,
					Desc:     "Search keywords, e.g. \"gaming laptop\", \"4K monitor\", \"wifi router\".",
					Required: true,
				},
				"category": {
					Type: schema.String,
					Desc: "Optional category filter.",
					Enum: categories,
				},
				"limit": {
					Type: schema.Integer,
					Desc: "Maximum number of products to return (default 10, max 20).",
				},
			}),
		},
		func(ctx context.Context, in *SearchProductsInput) (*Output, error) {
			return r.run(ctx, ToolSearchProducts, in.args)
		},
	)
}

type ListProductsInput struct {
	Category string `json:"category,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

func (in *ListProductsInput) args() (map[string]any, error) {
	m := map[string]any{}
	if in.Category != "" {
		m["category"] = in.Category
	}
	if in.Limit > 0 {
		m["limit"] = clampInt(in.Limit, 1, maxListLimit)
	}
	return m, nil
}

func (r *Registry) newListProductsTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolListProducts,
			Desc: "Browse products, optionally by category. Use this when the customer wants to see what is available rather than search for something specific.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"category": {
					Type: schema.String,
					Desc: "Category to browse.",
					Enum: categories,
				},
				"limit": {
					Type: schema.Integer,
					Desc: "Maximum number of products to return (default 20, max 20).",
				},
			}),
		},
		func(ctx context.Context, in *ListProductsInput) (*Output, error) {
			return r.run(ctx, ToolListProducts, in.args)
		},
	)
}

type GetProductInput struct {
	SKU string `json:"sku"`
}

func (in *GetProductInput) args() (map[string]any, error) {
	sku := strings.ToUpper(strings.TrimSpace(in.SKU))
	if sku == "" {
		return nil, errors.New("sku is required")
	}
	return map[string]any{"sku": sku}, nil
}

func (r *Registry) newGetProductTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGetProduct,
			Desc: "Get full details, current price and stock for one product by SKU. Call this before creating an order to confirm the unit price.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"sku": {
					Type:     schema.String,
					Desc:     "Product SKU such as COM-1001, MON-2001, PRI-3001, ACC-4001 or NET-5001.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *GetProductInput) (*Output, error) {
			return r.run(ctx, ToolGetProduct, in.args)
		},
	)
}
