package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	errx "github.com/Chative-support-agent/server/internal/core/error"
	"github.com/Chative-support-agent/server/internal/core/metrics"
	logx "github.com/Chative-support-agent/server/pkg/logger"
)

const (
	ToolSearchProducts    = "search_products"
	ToolListProducts      = "list_products"
	ToolGetProduct        = "get_product"
	ToolListOrders        = "list_orders"
	ToolGetOrder          = "get_order"
	ToolCreateOrder       = "create_order"
	ToolVerifyCustomerPin = "verify_customer_pin"
)

const (
	maxListLimit     = 20
	maxOrderQuantity = 10

	DefaultToolTimeout = 30 * time.Second
	DefaultMaxTries    = 2
)

var categories = []string{"computers", "monitors", "printers", "accessories", "networking"}

// Error codes placed in Output.Error and seen by the model.
const (
	ErrorToolCallFailed   = "tool_call_failed"
	ErrorToolReported     = "tool_error"
	ErrorInvalidArguments = "invalid_arguments"
	ErrorUnknownTool      = "unknown_tool"
)

// Output is the JSON envelope every tool returns to the model.
type Output struct {
	Tool    string `json:"tool"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Definition is one entry of the closed dispatch table.
type Definition struct {
	Name string
	// Gated tools require a verified customer.
	Gated bool
	// CustomerScoped tools always run with the verified customer's id.
	CustomerScoped bool
	tool           tool.InvokableTool
}

type Option func(*Registry)

func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMaxTries sets the attempts per call, capped at DefaultMaxTries so a
// failing tool is retried at most once.
func WithMaxTries(n uint) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxTries = min(n, DefaultMaxTries)
		}
	}
}

// WithInitialBackoff sets the delay before the retry.
func WithInitialBackoff(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.initialBackoff = d
		}
	}
}

// Registry binds the closed tool set to a Gateway.
type Registry struct {
	gateway        Gateway
	timeout        time.Duration
	maxTries       uint
	initialBackoff time.Duration

	defs  map[string]*Definition
	order []string
}

func NewRegistry(gw Gateway, opts ...Option) *Registry {
	r := &Registry{
		gateway:        gw,
		timeout:        DefaultToolTimeout,
		maxTries:       DefaultMaxTries,
		initialBackoff: 250 * time.Millisecond,
		defs:           map[string]*Definition{},
	}
	for _, opt := range opts {
		opt(r)
	}

	r.register(&Definition{Name: ToolSearchProducts, tool: r.newSearchProductsTool()})
	r.register(&Definition{Name: ToolListProducts, tool: r.newListProductsTool()})
	r.register(&Definition{Name: ToolGetProduct, tool: r.newGetProductTool()})
	r.register(&Definition{Name: ToolVerifyCustomerPin, tool: r.newVerifyCustomerPinTool()})
	r.register(&Definition{Name: ToolListOrders, Gated: true, CustomerScoped: true, tool: r.newListOrdersTool()})
	r.register(&Definition{Name: ToolGetOrder, Gated: true, CustomerScoped: true, tool: r.newGetOrderTool()})
	r.register(&Definition{Name: ToolCreateOrder, Gated: true, CustomerScoped: true, tool: r.newCreateOrderTool()})
	return r
}

func (r *Registry) register(d *Definition) {
	r.defs[d.Name] = d
	r.order = append(r.order, d.Name)
}

// Lookup returns the definition for a tool name.
func (r *Registry) Lookup(name string) (*Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Tools returns the eino tools in registration order.
func (r *Registry) Tools() []tool.BaseTool {
	out := make([]tool.BaseTool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name].tool)
	}
	return out
}

// ToolInfos returns the schemas bound to the chat model.
func (r *Registry) ToolInfos(ctx context.Context) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		info, err := r.defs[name].tool.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info %s: %w", name, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Call invokes the gateway under a per-attempt timeout and retries a transient
// failure with exponential backoff. A failure that survives the retries wraps
// errx.ErrToolCall.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (Result, error) {
	start := time.Now()
	attempt := 0

	op := func() (Result, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		res, err := r.gateway.Call(callCtx, name, args)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return Result{}, backoff.Permanent(ctx.Err())
		}
		if !IsTransient(err) {
			return Result{}, backoff.Permanent(err)
		}
		logx.Warn().Err(err).Str("tool", name).Int("attempt", attempt).Msg("Tool call failed")
		return Result{}, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialBackoff
	res, err := backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(r.maxTries))

	metrics.ToolCallDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		metrics.ToolCalls.WithLabelValues(name, "failed").Inc()
	case res.IsError:
		metrics.ToolCalls.WithLabelValues(name, "tool_error").Inc()
	default:
		metrics.ToolCalls.WithLabelValues(name, "ok").Inc()
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", errx.ErrToolCall, name, err)
	}
	return res, nil
}

// run builds gateway arguments from a typed input and folds every failure into
// the Output envelope so a tool never aborts the graph.
func (r *Registry) run(ctx context.Context, name string, build func() (map[string]any, error)) (*Output, error) {
	args, err := build()
	if err != nil {
		return &Output{Tool: name, Error: ErrorInvalidArguments, Message: err.Error()}, nil
	}

	res, err := r.Call(ctx, name, args)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		logx.Error().Err(err).Str("tool", name).Msg("Tool call failed after retries")
		msg := "The store system is temporarily unavailable."
		if !IsTransient(err) {
			msg = "The store system could not complete this request."
		}
		return &Output{Tool: name, Error: ErrorToolCallFailed, Message: msg}, nil
	}
	if res.IsError {
		return &Output{Tool: name, Error: ErrorToolReported, Message: res.Text}, nil
	}
	if json.Valid([]byte(res.Text)) {
		return &Output{Tool: name, Result: json.RawMessage(res.Text)}, nil
	}
	return &Output{Tool: name, Result: res.Text}, nil
}
