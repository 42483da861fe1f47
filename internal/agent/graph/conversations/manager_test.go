package conversations

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-support-agent/server/internal/agent/model"
)

func TestBuildResponseContext(t *testing.T) {
	mm := NewMessagesManager(model.ConversationConfig{HistoryLimit: 2})

	msgs := mm.BuildResponseContext("sys", []model.HistoryMessage{
		{Role: model.RoleUser, Content: "first"},
		{Role: model.RoleAssistant, Content: "second"},
		{Role: model.RoleAssistant, Content: "   "},
		{Role: model.RoleUser, Content: "third"},
	}, "now")

	require.Len(t, msgs, 4)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, "second", msgs[1].Content)
	assert.Equal(t, schema.Assistant, msgs[1].Role)
	assert.Equal(t, "third", msgs[2].Content)
	assert.Equal(t, schema.User, msgs[3].Role)
	assert.Equal(t, "now", msgs[3].Content)
}
