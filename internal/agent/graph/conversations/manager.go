package conversations

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-support-agent/server/internal/agent/model"
)

// MessagesManager turns client-carried history into model context.
// The server keeps no per-session history; the client resends it every turn.
type MessagesManager struct {
	historyLimit int
}

func NewMessagesManager(config model.ConversationConfig) *MessagesManager {
	return &MessagesManager{historyLimit: config.HistoryLimit}
}

// BuildResponseContext returns the system prompt, the most recent history
// messages and the current user message.
func (cm *MessagesManager) BuildResponseContext(systemPrompt string, history []model.HistoryMessage, query string) []*schema.Message {
	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
	}
	messages = append(messages, cm.historyMessages(history)...)
	messages = append(messages, schema.UserMessage(query))
	return messages
}

func (cm *MessagesManager) historyMessages(history []model.HistoryMessage) []*schema.Message {
	out := make([]*schema.Message, 0, len(history))
	for _, h := range history {
		content := strings.TrimSpace(h.Content)
		if content == "" {
			continue
		}
		switch h.Role {
		case model.RoleUser:
			out = append(out, schema.UserMessage(content))
		case model.RoleAssistant:
			out = append(out, schema.AssistantMessage(content, nil))
		}
	}
	return trimTail(out, cm.historyLimit)
}

// ====================== Helper function ======================
func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if maxTurns <= 0 || len(messages) <= maxTurns {
		return messages
	}
	source := messages[len(messages)-maxTurns:]
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}
