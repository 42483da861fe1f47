package main

import (
	"context"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/Chative-support-agent/server/internal/agent/chat"
	"github.com/Chative-support-agent/server/internal/agent/evaluation"
	"github.com/Chative-support-agent/server/internal/agent/events"
	"github.com/Chative-support-agent/server/internal/agent/graph"
	"github.com/Chative-support-agent/server/internal/agent/graph/nodes"
	"github.com/Chative-support-agent/server/internal/agent/graph/tools"
	"github.com/Chative-support-agent/server/internal/agent/guardrail"
	"github.com/Chative-support-agent/server/internal/agent/model"
	"github.com/Chative-support-agent/server/internal/agent/repo"
	"github.com/Chative-support-agent/server/internal/agent/verification"
	"github.com/Chative-support-agent/server/internal/core"
	"github.com/Chative-support-agent/server/internal/server"
	logx "github.com/Chative-support-agent/server/pkg/logger"
	pkgredis "github.com/Chative-support-agent/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the service,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Redis pkgredis.Config
	Store model.StoreConfig
	Kafka model.KafkaConfig
	MCP   model.MCPConfig

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Response     model.ResponseModelConfig
	Judge        model.JudgeModelConfig
	Prompt       model.ResponsePromptConfig
	Conversation model.ConversationConfig
	Evaluation   model.EvaluationConfig
	Session      model.SessionConfig

	// HTTP
	Addr           string   `envconfig:"HTTP_ADDR" default:":8000"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
	OriginPattern  string   `envconfig:"ALLOWED_ORIGIN_PATTERN" default:"^https://.*\\.vercel\\.app$"`
}

func main() {
	// Load .env file
	if err := godotenv.Load(".env"); err != nil {
		logx.Debug().Err(err).Msg("No .env file loaded")
	}

	// Load structured config from env
	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		logx.Fatal().Err(err).Msg("Failed to process environment config")
	}

	env := core.ParseEnvironment(envCfg.Environment)
	logx.Init(logx.LoggerOpts{Environment: env})
	gin.SetMode(env.GinMode())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := repo.NewStore(ctx, envCfg.Store, envCfg.Redis)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to initialise conversation store")
	}
	defer func() {
		if err := closeStore(); err != nil {
			logx.Warn().Err(err).Msg("Failed to close conversation store")
		}
	}()

	var gateway tools.Gateway
	var mcpGateway *tools.MCPGateway
	if envCfg.MCP.ServerURL != "" {
		mcpGateway = tools.NewMCPGateway(envCfg.MCP.ServerURL, envCfg.MCP.Timeout)
		defer mcpGateway.Close()
		gateway = mcpGateway
		logx.Info().Str("url", envCfg.MCP.ServerURL).Msg("Using MCP tool server")
	} else {
		gateway = tools.NewCatalogGateway()
		logx.Warn().Msg("MCP_SERVER_URL not set; using the built-in demo catalog")
	}
	registry := tools.NewRegistry(gateway,
		tools.WithTimeout(envCfg.Conversation.Tools.Timeout),
		tools.WithMaxTries(envCfg.Conversation.Tools.MaxTries),
	)
	if mcpGateway != nil {
		missing, err := tools.MissingTools(ctx, mcpGateway, registry)
		if err != nil {
			logx.Warn().Err(err).Msg("Could not list MCP server tools; calls will reconnect on demand")
		} else if len(missing) > 0 {
			logx.Warn().Strs("tools", missing).Msg("MCP server does not advertise some registry tools")
		}
	}

	chatModels, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:      envCfg.APIKey,
		BaseURL:     envCfg.BaseURL,
		RespConfig:  &envCfg.Response,
		JudgeConfig: &envCfg.Judge,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create chat models")
	}

	// ====================================================
	// Build graph config entirely from env
	machine := verification.NewMachine(envCfg.Conversation.PinMaxAttempts)
	runner, err := graph.BuildResponseGraph(ctx, graph.Config{
		ChatModels:     chatModels,
		Tools:          registry,
		Verification:   machine,
		ResponsePrompt: envCfg.Prompt,
		Conversation:   envCfg.Conversation,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to build graph")
	}

	sink := events.NewSink(envCfg.Kafka)
	defer func() {
		if err := sink.Close(); err != nil {
			logx.Warn().Err(err).Msg("Failed to flush event sink")
		}
	}()

	signer := verification.NewTokenSigner(envCfg.Session.SigningKey, envCfg.Session.TokenTTL)
	if !signer.Enabled() {
		logx.Warn().Msg("SESSION_SIGNING_KEY not set; client customer state is trusted as sent")
	}

	evalOpts := []evaluation.Option{evaluation.WithSink(sink)}
	var evalService *evaluation.Service
	var dispatcher *evaluation.Dispatcher
	if envCfg.Evaluation.Auto {
		dispatcher = evaluation.NewDispatcher(envCfg.Evaluation.Workers, envCfg.Evaluation.QueueSize,
			func(ctx context.Context, id string) error {
				return evalService.EvaluateInBackground(ctx, id)
			})
		evalOpts = append(evalOpts, evaluation.WithAutoEvaluation(dispatcher))
	}
	evalService = evaluation.NewService(store, chatModels.Judge, envCfg.Evaluation.Timeout, evalOpts...)
	if dispatcher != nil {
		dispatcher.Start(context.WithoutCancel(ctx))
	}

	chatService := chat.NewService(
		guardrail.New(envCfg.Conversation.MaxMessageLength, envCfg.Conversation.HistoryLimit),
		runner,
		store,
		chat.WithSigner(signer),
		chat.WithSink(sink),
	)

	var originPattern *regexp.Regexp
	if p := strings.TrimSpace(envCfg.OriginPattern); p != "" {
		originPattern, err = regexp.Compile(p)
		if err != nil {
			logx.Fatal().Err(err).Str("pattern", p).Msg("Invalid ALLOWED_ORIGIN_PATTERN")
		}
	}

	srv := server.NewServer(envCfg.Addr, server.RouterConfig{
		ChatHandler:       server.NewChatHandler(chatService),
		EvaluationHandler: server.NewEvaluationHandler(evalService),
		AllowedOrigins:    envCfg.AllowedOrigins,
		OriginPattern:     originPattern,
	})

	logx.Info().
		Str("environment", env.String()).
		Str("store", envCfg.Store.Backend).
		Str("response_model", chatModels.ResponseModelName).
		Str("judge_model", chatModels.JudgeModelName).
		Bool("auto_evaluation", envCfg.Evaluation.Auto).
		Msg("Support agent starting")

	if err := srv.Run(ctx); err != nil {
		logx.Error().Err(err).Msg("HTTP server stopped with error")
	}

	if dispatcher != nil {
		if err := dispatcher.Close(); err != nil {
			logx.Warn().Err(err).Msg("Evaluation dispatcher stopped with error")
		}
	}
	logx.Info().Msg("Support agent stopped")
}
