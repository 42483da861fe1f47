package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Chative-support-agent/server/internal/agent/model"
)

// CatalogGateway serves the tool set from memory. It is used when no MCP server
// is configured and in tests.
type CatalogGateway struct {
	mu        sync.Mutex
	products  []model.Product
	customers []model.Customer
	orders    []model.Order
	now       func() time.Time
}

func NewCatalogGateway() *CatalogGateway {
	products := make([]model.Product, len(demoProducts))
	copy(products, demoProducts)
	orders := make([]model.Order, len(demoOrders))
	copy(orders, demoOrders)
	return &CatalogGateway{
		products:  products,
		customers: demoCustomers,
		orders:    orders,
		now:       time.Now,
	}
}

func (g *CatalogGateway) Call(ctx context.Context, name string, args map[string]any) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	switch name {
	case ToolSearchProducts:
		return g.search(str(args, "query"), str(args, "category"), num(args, "limit", 10))
	case ToolListProducts:
		return g.search("", str(args, "category"), num(args, "limit", 20))
	case ToolGetProduct:
		p, ok := g.product(str(args, "sku"))
		if !ok {
			return errorResult("Product %s not found", str(args, "sku")), nil
		}
		return jsonResult(p)
	case ToolListOrders:
		return g.listOrders(str(args, "customer_id"), str(args, "status"))
	case ToolGetOrder:
		for _, o := range g.orders {
			if o.OrderID == str(args, "order_id") && o.CustomerID == str(args, "customer_id") {
				return jsonResult(o)
			}
		}
		return errorResult("Order %s not found", str(args, "order_id")), nil
	case ToolCreateOrder:
		return g.createOrder(str(args, "customer_id"), args["items"])
	case ToolVerifyCustomerPin:
		return g.verify(str(args, "email"), str(args, "pin"))
	}
	return Result{}, fmt.Errorf("%w: unknown tool %q", ErrNonRetryable, name)
}

func (g *CatalogGateway) search(query, category string, limit int) (Result, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	terms := strings.Fields(query)
	matched := []model.Product{}
	for _, p := range g.products {
		if category != "" && !strings.EqualFold(p.Category, category) {
			continue
		}
		haystack := strings.ToLower(p.SKU + " " + p.Name + " " + p.Category + " " + p.Description)
		if !matchesAll(haystack, terms) {
			continue
		}
		matched = append(matched, p)
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return jsonResult(map[string]any{"products": matched, "total": len(matched)})
}

// matchesAll accepts singular/plural variants ("laptops" matches "laptop").
func matchesAll(haystack string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(haystack, t) {
			continue
		}
		if strings.HasSuffix(t, "s") && strings.Contains(haystack, strings.TrimSuffix(t, "s")) {
			continue
		}
		return false
	}
	return true
}

func (g *CatalogGateway) product(sku string) (model.Product, bool) {
	for _, p := range g.products {
		if strings.EqualFold(p.SKU, sku) {
			return p, true
		}
	}
	return model.Product{}, false
}

func (g *CatalogGateway) listOrders(customerID, status string) (Result, error) {
	orders := []model.Order{}
	for _, o := range g.orders {
		if o.CustomerID != customerID {
			continue
		}
		if status != "" && !strings.EqualFold(o.Status, status) {
			continue
		}
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return jsonResult(map[string]any{"orders": orders, "total": len(orders)})
}

func (g *CatalogGateway) createOrder(customerID string, rawItems any) (Result, error) {
	if !g.knownCustomer(customerID) {
		return errorResult("Customer %s not found", customerID), nil
	}
	list, _ := rawItems.([]any)
	if len(list) == 0 {
		return errorResult("An order needs at least one item"), nil
	}

	order := model.Order{
		OrderID:    "ORD-" + strings.ToUpper(uuid.NewString()[:8]),
		CustomerID: customerID,
		Status:     "pending",
		CreatedAt:  g.now().UTC(),
	}
	// A SKU may repeat across lines; stock is checked against the running total.
	wanted := map[string]int{}
	for _, raw := range list {
		item, _ := raw.(map[string]any)
		sku := str(item, "sku")
		qty := num(item, "quantity", 1)
		p, ok := g.product(sku)
		if !ok {
			return errorResult("Product %s not found", sku), nil
		}
		wanted[p.SKU] += qty
		if p.Stock < wanted[p.SKU] {
			return errorResult("Only %d units of %s in stock", p.Stock, p.SKU), nil
		}
		order.Items = append(order.Items, model.OrderItem{SKU: p.SKU, Quantity: qty, UnitPrice: p.Price})
		order.Total += p.Price * float64(qty)
	}
	order.Total = math.Round(order.Total*100) / 100
	for _, item := range order.Items {
		for i := range g.products {
			if g.products[i].SKU == item.SKU {
				g.products[i].Stock -= item.Quantity
			}
		}
	}
	g.orders = append(g.orders, order)
	return jsonResult(order)
}

func (g *CatalogGateway) verify(email, pin string) (Result, error) {
	for _, c := range g.customers {
		if strings.EqualFold(c.Email, strings.TrimSpace(email)) && c.PIN == strings.TrimSpace(pin) {
			return jsonResult(map[string]any{
				"verified":    true,
				"customer_id": c.ID,
				"name":        c.Name,
			})
		}
	}
	return errorResult("Verification failed: email or PIN is incorrect"), nil
}

func (g *CatalogGateway) knownCustomer(id string) bool {
	for _, c := range g.customers {
		if c.ID == id {
			return true
		}
	}
	return false
}

func jsonResult(v any) (Result, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Result{}, fmt.Errorf("%w: encode result: %v", ErrNonRetryable, err)
	}
	return Result{Text: string(b)}, nil
}

func errorResult(format string, a ...any) Result {
	return Result{Text: fmt.Sprintf(format, a...), IsError: true}
}

func str(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func num(m map[string]any, key string, def int) int {
	if m == nil {
		return def
	}
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

var _ Gateway = (*CatalogGateway)(nil)

// ===================================
// Demo data
// ===================================

var demoProducts = []model.Product{
	{SKU: "COM-1001", Name: "Acer Aspire 5 A515-58", Category: "computers", Price: 649.00, Stock: 14,
		Description: "Everyday laptop, Intel Core i5, 8GB RAM, 512GB SSD, 15.6-inch Full HD"},
	{SKU: "COM-1002", Name: "Lenovo IdeaPad 3 Gaming", Category: "computers", Price: 799.00, Stock: 6,
		Description: "Gaming laptop, AMD Ryzen 5, 8GB RAM, GTX 1650, 120Hz display"},
	{SKU: "COM-1003", Name: "MacBook Air M3", Category: "computers", Price: 1099.00, Stock: 0,
		Description: "13.6-inch Liquid Retina laptop with Apple M3 chip"},
	{SKU: "COM-1004", Name: "Dell XPS 13", Category: "computers", Price: 999.00, Stock: 9,
		Description: "Premium ultrabook laptop with Intel 13th Gen and InfinityEdge display"},
	{SKU: "COM-1005", Name: "ASUS ROG Strix G16", Category: "computers", Price: 1499.00, Stock: 4,
		Description: "Gaming laptop, Intel Core i7, RTX 4060, 165Hz display"},
	{SKU: "COM-1006", Name: "HP Pavilion Desktop TP01", Category: "computers", Price: 579.00, Stock: 11,
		Description: "Desktop PC, AMD Ryzen 5, 16GB RAM, 512GB SSD"},
	{SKU: "MON-2001", Name: "Dell S2721Q 27\" 4K", Category: "monitors", Price: 299.00, Stock: 20,
		Description: "27-inch 4K UHD IPS monitor with HDR"},
	{SKU: "MON-2002", Name: "LG 34WP65C Ultrawide", Category: "monitors", Price: 379.00, Stock: 7,
		Description: "34-inch curved ultrawide monitor, 160Hz"},
	{SKU: "PRI-3001", Name: "Brother HL-L2350DW", Category: "printers", Price: 139.00, Stock: 15,
		Description: "Compact monochrome laser printer with wireless printing"},
	{SKU: "ACC-4001", Name: "Logitech MX Master 3S", Category: "accessories", Price: 99.00, Stock: 40,
		Description: "Wireless mouse with quiet clicks"},
	{SKU: "ACC-4002", Name: "Keychron K2 Keyboard", Category: "accessories", Price: 89.00, Stock: 25,
		Description: "Wireless mechanical keyboard"},
	{SKU: "NET-5001", Name: "TP-Link Archer AX55", Category: "networking", Price: 129.00, Stock: 18,
		Description: "WiFi 6 dual-band router"},
}

var demoCustomers = []model.Customer{
	{ID: "5f0c2a9e-3b1d-4c2e-9a7f-1d2e3f4a5b6c", Name: "Jane Doe", Email: "jane@example.com", PIN: "1234"},
	{ID: "8b7e6d5c-4a3b-4c2d-8e1f-0a9b8c7d6e5f", Name: "Sam Lee", Email: "sam@example.com", PIN: "4321"},
}

var demoOrders = []model.Order{
	{
		OrderID: "ORD-1A2B3C4D", CustomerID: "5f0c2a9e-3b1d-4c2e-9a7f-1d2e3f4a5b6c", Status: "shipped",
		Items:     []model.OrderItem{{SKU: "MON-2001", Quantity: 1, UnitPrice: 299.00}},
		Total:     299.00,
		CreatedAt: time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC),
	},
}
