package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-support-agent/server/internal/agent/graph/conversations"
	"github.com/Chative-support-agent/server/internal/agent/graph/nodes"
	"github.com/Chative-support-agent/server/internal/agent/graph/observers"
	"github.com/Chative-support-agent/server/internal/agent/graph/tools"
	"github.com/Chative-support-agent/server/internal/agent/model"
	"github.com/Chative-support-agent/server/internal/agent/verification"
	logx "github.com/Chative-support-agent/server/pkg/logger"
)

// Runner executes one user turn through the compiled graph.
type Runner interface {
	Invoke(ctx context.Context, in model.TurnInput) (*model.TurnResult, error)
}

// Config holds everything needed to compose the response graph end-to-end.
type Config struct {
	ChatModels     *nodes.ChatModels
	Tools          *tools.Registry
	Verification   *verification.Machine
	ResponsePrompt model.ResponsePromptConfig
	Conversation   model.ConversationConfig
}

// GraphBuilder handles the construction of the agent conversation graph
type GraphBuilder struct {
	config    *Config
	manager   *conversations.MessagesManager
	maxRounds int
	graph     *compose.Graph[model.TurnInput, *schema.Message]
	errs      []error
}

type graphRunner struct {
	runnable compose.Runnable[model.TurnInput, *schema.Message]
}

func (r *graphRunner) Invoke(ctx context.Context, in model.TurnInput) (*model.TurnResult, error) {
	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return nil, err
	}
	return resultFromMessage(in, out), nil
}

// resultFromMessage reads the outcome stamped on the final message.
func resultFromMessage(in model.TurnInput, out *schema.Message) *model.TurnResult {
	res := &model.TurnResult{
		Customer: in.Customer.Normalize(),
		Outcome:  model.OutcomeAnswered,
	}
	if out == nil {
		res.Response = nodes.DegradedMessage
		res.Outcome = model.OutcomeDegraded
		return res
	}

	res.Response = out.Content
	if v, ok := out.Extra[model.ExtraCustomerState].(model.CustomerState); ok {
		res.Customer = v
	}
	if v, ok := out.Extra[model.ExtraOutcome].(model.Outcome); ok && v != "" {
		res.Outcome = v
	}
	if v, ok := out.Extra[model.ExtraToolRounds].(int); ok {
		res.ToolRounds = v
	}
	if v, ok := out.Extra[model.ExtraTotalCost].(float64); ok {
		res.CostUSD = v
	}

	if strings.TrimSpace(res.Response) == "" {
		logx.Warn().Str("request_id", in.RequestID).Msg("Model returned an empty answer")
		res.Response = nodes.DegradedMessage
		res.Outcome = model.OutcomeDegraded
	}
	return res
}

// BuildResponseGraph builds the graph and returns a Runner.
func BuildResponseGraph(ctx context.Context, cfg Config) (Runner, error) {
	runnable, err := BuildGraph(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	logx.Debug().Msg("Response graph built successfully")
	return &graphRunner{runnable: runnable}, nil
}

// BuildGraph constructs and returns the compiled agent graph
func BuildGraph(ctx context.Context, config *Config) (compose.Runnable[model.TurnInput, *schema.Message], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModels == nil || config.ChatModels.Response == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}
	if config.Tools == nil {
		return nil, fmt.Errorf("tool registry is nil")
	}
	if config.Verification == nil {
		config.Verification = verification.NewMachine(config.Conversation.PinMaxAttempts)
	}

	builder := &GraphBuilder{
		config:    config,
		manager:   conversations.NewMessagesManager(config.Conversation),
		maxRounds: config.Conversation.Tools.MaxRounds,
		graph: compose.NewGraph[model.TurnInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}
	if builder.maxRounds <= 0 {
		builder.maxRounds = nodes.DefaultMaxToolRounds
	}

	if err := builder.setupTools(ctx); err != nil {
		return nil, err
	}

	builder.addNodes()
	builder.addEdges()
	builder.addBranches()

	if err := errors.Join(builder.errs...); err != nil {
		logx.Error().Err(err).Msg("Error assembling graph")
		return nil, fmt.Errorf("error assembling graph: %w", err)
	}

	return builder.compile(ctx)
}

func (b *GraphBuilder) check(err error) {
	if err != nil {
		b.errs = append(b.errs, err)
	}
}

// setupTools binds the tool schemas to the response model and adds the dispatch node.
func (b *GraphBuilder) setupTools(ctx context.Context) error {
	toolInfos, err := b.config.Tools.ToolInfos(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to get tool infos")
		return fmt.Errorf("failed to get tool infos: %w", err)
	}

	if err := b.config.ChatModels.BindToolsToResponseModel(ctx, toolInfos); err != nil {
		return fmt.Errorf("failed to bind tools to response model: %w", err)
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:                b.config.Tools.Tools(),
		ExecuteSequentially:  true,
		UnknownToolsHandler:  tools.UnknownTool,
		ToolArgumentsHandler: tools.SanitizeArguments,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return fmt.Errorf("failed to create tools node: %w", err)
	}

	dispatcher := nodes.NewToolDispatcher(b.config.Tools, b.config.Verification, toolsNode)
	b.check(b.graph.AddLambdaNode(nodes.NodeToolDispatch, dispatcher.Node()))
	return nil
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() {
	b.check(b.graph.AddLambdaNode(nodes.NodeInputConverter,
		nodes.NewInputConverterNode(b.manager, &b.config.ResponsePrompt),
		compose.WithStatePreHandler(nodes.NewInputConverterPreHandler()),
	))

	b.check(b.graph.AddChatModelNode(nodes.NodeResponseChatModel,
		b.config.ChatModels.Response,
		compose.WithStatePreHandler(nodes.NewResponseChatModelPreHandler()),
		compose.WithStatePostHandler(nodes.NewResponseChatModelPostHandler(b.config.ChatModels.ResponseModelName)),
	))

	b.check(b.graph.AddLambdaNode(nodes.NodeNotice, nodes.NewNoticeNode()))
	b.check(b.graph.AddLambdaNode(nodes.NodeDegraded, nodes.NewDegradedNode()))
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodeInputConverter, nodes.NodeResponseChatModel},
		{nodes.NodeNotice, compose.END},
		{nodes.NodeDegraded, compose.END},
	}

	for _, edge := range edges {
		b.check(b.graph.AddEdge(edge[0], edge[1]))
	}
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() {
	decisionBranch := compose.NewGraphBranch(
		nodes.NewToolDispatchCondition(b.maxRounds),
		map[string]bool{
			nodes.NodeToolDispatch: true,
			nodes.NodeDegraded:     true,
			compose.END:            true,
		},
	)
	b.check(b.graph.AddBranch(nodes.NodeResponseChatModel, decisionBranch))

	noticeBranch := compose.NewGraphBranch(
		nodes.NewNoticeCondition(),
		map[string]bool{
			nodes.NodeNotice:            true,
			nodes.NodeResponseChatModel: true,
		},
	)
	b.check(b.graph.AddBranch(nodes.NodeToolDispatch, noticeBranch))
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.TurnInput, *schema.Message], error) {
	// Limit total run steps to avoid infinite loops in branching or tool retries
	maxSteps := 10 + b.maxRounds*2
	if maxSteps < 20 {
		maxSteps = 20
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps), compose.WithGraphName("SupportAgent"))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
