package prompts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-support-agent/server/internal/agent/model"
)

var promptCfg = model.ResponsePromptConfig{BusinessName: "TechStore", BusinessType: "computer products retailer"}

func TestRenderResponseSystemUnverified(t *testing.T) {
	out, err := RenderResponseSystem(context.Background(), promptCfg, model.CustomerState{})
	require.NoError(t, err)

	assert.Contains(t, out, "TechStore, a computer products retailer")
	assert.Contains(t, out, "search_products")
	assert.NotContains(t, out, "VERIFIED CUSTOMER SESSION")
	assert.NotContains(t, out, "VERIFICATION IN PROGRESS")
}

func TestRenderResponseSystemVerified(t *testing.T) {
	out, err := RenderResponseSystem(context.Background(), promptCfg, model.CustomerState{
		Verified:   true,
		Name:       "Jane Doe",
		CustomerID: "cust-1",
	})
	require.NoError(t, err)

	assert.Contains(t, out, "VERIFIED CUSTOMER SESSION")
	assert.Contains(t, out, "Customer name: Jane Doe")
	assert.Contains(t, out, "Customer ID: cust-1")
}

func TestRenderResponseSystemPending(t *testing.T) {
	out, err := RenderResponseSystem(context.Background(), promptCfg, model.CustomerState{
		Status:      model.StatusPendingPin,
		PinAttempts: 1,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "1 failed attempt(s)")
}

func TestRenderJudge(t *testing.T) {
	msgs, err := RenderJudge(context.Background(), "Do you have 4K monitors?", "Yes, the Dell S2721Q {{ is }} $299.")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Contains(t, msgs[0].Content, "Do you have 4K monitors?")
	assert.Contains(t, msgs[0].Content, "{{ is }}")
	assert.Contains(t, msgs[0].Content, `"safety"`)
}
