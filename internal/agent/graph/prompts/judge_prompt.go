package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/judge_prompt.txt
var judgePrompt string

// RenderJudge builds the single user message sent to the judge model.
func RenderJudge(ctx context.Context, userQuery, agentResponse string) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.UserMessage(judgePrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"UserQuery":     userQuery,
		"AgentResponse": agentResponse,
	})
	if err != nil {
		return nil, fmt.Errorf("judge prompt render: %w", err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("judge prompt render: empty result")
	}
	return msgs, nil
}
