package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/Chative-support-agent/server/internal/agent/model"
	logx "github.com/Chative-support-agent/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey      string
	BaseURL     string
	RespConfig  *model.ResponseModelConfig
	JudgeConfig *model.JudgeModelConfig
}

// ChatModels holds the response model (tools are bound later) and the judge model.
type ChatModels struct {
	Response          einomodel.ToolCallingChatModel
	Judge             einomodel.BaseChatModel
	ResponseModelName string
	JudgeModelName    string
}

// NewChatModels creates the Gemini response and judge models sharing one client.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	if config.RespConfig == nil || config.JudgeConfig == nil {
		return nil, fmt.Errorf("chat model config is incomplete")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	chatModelResponse, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.RespConfig.Model,
		Temperature: &config.RespConfig.Temperature,
		MaxTokens:   &config.RespConfig.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(2000)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Response model")
		return nil, fmt.Errorf("error creating Response model: %w", err)
	}

	chatModelJudge, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.JudgeConfig.Model,
		Temperature: &config.JudgeConfig.Temperature,
		MaxTokens:   &config.JudgeConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Judge model")
		return nil, fmt.Errorf("error creating Judge model: %w", err)
	}

	return &ChatModels{
		Response:          chatModelResponse,
		Judge:             chatModelJudge,
		ResponseModelName: config.RespConfig.Model,
		JudgeModelName:    config.JudgeConfig.Model,
	}, nil
}

// BindToolsToResponseModel replaces the response model with a copy bound to tools.
func (cm *ChatModels) BindToolsToResponseModel(ctx context.Context, tools []*schema.ToolInfo) error {
	bound, err := cm.Response.WithTools(tools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return fmt.Errorf("failed to bind tools: %w", err)
	}
	cm.Response = bound

	logx.Debug().Int("tools", len(tools)).Msg("Successfully bound tools to response model")
	return nil
}
