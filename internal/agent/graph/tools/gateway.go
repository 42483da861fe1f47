package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	logx "github.com/Chative-support-agent/server/pkg/logger"
)

// Gateway is the transport to the catalog/order tool provider.
type Gateway interface {
	// Call invokes a tool. A returned error means the call did not complete and
	// wraps ErrNonRetryable when a retry cannot help; a tool that ran and
	// reported a problem comes back as Result.IsError.
	Call(ctx context.Context, name string, args map[string]any) (Result, error)
}

// Result is the text payload returned by a tool.
type Result struct {
	Text    string
	IsError bool
}

// ErrNonRetryable marks gateway errors that a retry cannot fix.
var ErrNonRetryable = errors.New("non-retryable tool error")

// IsTransient reports whether a gateway error is worth one more attempt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrNonRetryable) && !errors.Is(err, context.Canceled)
}

// =========== MCP over Streamable HTTP ===========

const (
	clientName    = "techstore-support-agent"
	clientVersion = "1.0.0"
)

// MCPGateway keeps one initialized MCP session and reconnects after a transport failure.
type MCPGateway struct {
	url     string
	timeout time.Duration

	mu     sync.Mutex
	client *client.Client
}

func NewMCPGateway(url string, timeout time.Duration) *MCPGateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MCPGateway{url: url, timeout: timeout}
}

func (g *MCPGateway) session(ctx context.Context) (*client.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}

	c, err := client.NewStreamableHttpClient(g.url)
	if err != nil {
		return nil, fmt.Errorf("create mcp client: %w", err)
	}
	// The session outlives the request that opened it.
	if err := c.Start(context.WithoutCancel(ctx)); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("start mcp client: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}
	res, err := c.Initialize(initCtx, req)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize mcp session: %w", err)
	}
	logx.Info().
		Str("server", res.ServerInfo.Name).
		Str("server_version", res.ServerInfo.Version).
		Str("protocol", res.ProtocolVersion).
		Msg("MCP session initialized")

	g.client = c
	return c, nil
}

func (g *MCPGateway) reset(c *client.Client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == c {
		_ = c.Close()
		g.client = nil
	}
}

func (g *MCPGateway) Call(ctx context.Context, name string, args map[string]any) (Result, error) {
	c, err := g.session(ctx)
	if err != nil {
		return Result{}, err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := c.CallTool(ctx, req)
	if err != nil {
		if !sessionBroken(ctx, err) {
			// The server answered with a JSON-RPC error; the session is healthy.
			return Result{}, fmt.Errorf("mcp call %s: %w: %w", name, ErrNonRetryable, err)
		}
		g.reset(c)
		return Result{}, fmt.Errorf("mcp call %s: %w", name, err)
	}
	return Result{Text: contentText(res.Content), IsError: res.IsError}, nil
}

// sessionBroken separates transport and deadline failures from error replies
// the server sent over a working session.
func sessionBroken(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	return strings.HasPrefix(msg, "transport error") || msg == "client not initialized"
}

// ListTools returns the tool names the server advertises.
func (g *MCPGateway) ListTools(ctx context.Context) ([]string, error) {
	c, err := g.session(ctx)
	if err != nil {
		return nil, err
	}
	res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		if sessionBroken(ctx, err) {
			g.reset(c)
		}
		return nil, fmt.Errorf("mcp list tools: %w", err)
	}
	names := make([]string, 0, len(res.Tools))
	for _, t := range res.Tools {
		names = append(names, t.Name)
	}
	return names, nil
}

// ToolLister is a gateway that can advertise its tools.
type ToolLister interface {
	ListTools(ctx context.Context) ([]string, error)
}

// MissingTools returns the registry tools the provider does not advertise.
func MissingTools(ctx context.Context, l ToolLister, r *Registry) ([]string, error) {
	advertised, err := l.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	have := make(map[string]struct{}, len(advertised))
	for _, name := range advertised {
		have[name] = struct{}{}
	}
	var missing []string
	for _, name := range r.Names() {
		if _, ok := have[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

func (g *MCPGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		return nil
	}
	err := g.client.Close()
	g.client = nil
	return err
}

func contentText(items []mcp.Content) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var _ Gateway = (*MCPGateway)(nil)
