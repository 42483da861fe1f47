package graph

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-support-agent/server/internal/agent/graph/nodes"
	"github.com/Chative-support-agent/server/internal/agent/graph/tools"
	"github.com/Chative-support-agent/server/internal/agent/model"
	"github.com/Chative-support-agent/server/internal/agent/verification"
)

const janeID = "5f0c2a9e-3b1d-4c2e-9a7f-1d2e3f4a5b6c"

// scriptedModel replies from a script; once the script runs out the last reply repeats.
type scriptedModel struct {
	mu      sync.Mutex
	replies []*schema.Message
	inputs  [][]*schema.Message
}

func (m *scriptedModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, append([]*schema.Message(nil), input...))
	i := len(m.inputs) - 1
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	// copy so post-handlers never mutate the script
	reply := *m.replies[i]
	reply.ToolCalls = append([]schema.ToolCall(nil), m.replies[i].ToolCalls...)
	reply.Extra = nil
	return &reply, nil
}

func (m *scriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *scriptedModel) WithTools(_ []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return m, nil
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

// countingGateway records every call that reaches the catalog.
type countingGateway struct {
	mu    sync.Mutex
	calls []recordedCall
	inner tools.Gateway
}

type recordedCall struct {
	Name string
	Args map[string]any
}

func (g *countingGateway) Call(ctx context.Context, name string, args map[string]any) (tools.Result, error) {
	g.mu.Lock()
	g.calls = append(g.calls, recordedCall{Name: name, Args: args})
	g.mu.Unlock()
	return g.inner.Call(ctx, name, args)
}

func (g *countingGateway) names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.calls))
	for _, c := range g.calls {
		out = append(out, c.Name)
	}
	return out
}

func toolCall(id, name, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       id,
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}})
}

func answer(text string) *schema.Message {
	return schema.AssistantMessage(text, nil)
}

func newRunner(t *testing.T, cm *scriptedModel) (Runner, *countingGateway) {
	t.Helper()
	gw := &countingGateway{inner: tools.NewCatalogGateway()}
	registry := tools.NewRegistry(gw, tools.WithTimeout(time.Second), tools.WithInitialBackoff(time.Millisecond))

	conv := model.ConversationConfig{HistoryLimit: 20, PinMaxAttempts: 3}
	conv.Tools.MaxRounds = 5

	runner, err := BuildResponseGraph(context.Background(), Config{
		ChatModels:     &nodes.ChatModels{Response: cm, ResponseModelName: "gemini-2.5-flash"},
		Tools:          registry,
		Verification:   verification.NewMachine(3),
		ResponsePrompt: model.ResponsePromptConfig{BusinessName: "TechStore", BusinessType: "computer products retailer"},
		Conversation:   conv,
	})
	require.NoError(t, err)
	return runner, gw
}

func lastToolMessage(msgs []*schema.Message) *schema.Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == schema.Tool {
			return msgs[i]
		}
	}
	return nil
}

func TestProductSearchNeedsNoVerification(t *testing.T) {
	cm := &scriptedModel{replies: []*schema.Message{
		toolCall("c1", tools.ToolSearchProducts, `{"query":"gaming laptop"}`),
		answer("We have the Lenovo IdeaPad 3 Gaming and the ASUS ROG Strix G16."),
	}}
	runner, gw := newRunner(t, cm)

	res, err := runner.Invoke(context.Background(), model.TurnInput{Query: "Show me gaming laptops"})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeAnswered, res.Outcome)
	assert.Contains(t, res.Response, "Lenovo")
	assert.Equal(t, 1, res.ToolRounds)
	assert.Equal(t, model.StatusUnverified, res.Customer.Status)
	assert.False(t, res.Customer.Verified)
	assert.Equal(t, []string{tools.ToolSearchProducts}, gw.names())

	require.Equal(t, 2, cm.calls())
	toolMsg := lastToolMessage(cm.inputs[1])
	require.NotNil(t, toolMsg)
	assert.Equal(t, "c1", toolMsg.ToolCallID)
	assert.Contains(t, toolMsg.Content, "COM-1002")
}

func TestGatedToolChallengesUnverifiedCustomer(t *testing.T) {
	cm := &scriptedModel{replies: []*schema.Message{
		toolCall("c1", tools.ToolCreateOrder, `{"customer_id":"x","items":[{"sku":"COM-1001","quantity":1}]}`),
	}}
	runner, gw := newRunner(t, cm)

	res, err := runner.Invoke(context.Background(), model.TurnInput{Query: "Place an order for SKU COM-1001"})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeChallenge, res.Outcome)
	assert.Equal(t, verification.ChallengeMessage, res.Response)
	assert.Equal(t, model.StatusPendingPin, res.Customer.Status)
	assert.False(t, res.Customer.Verified)
	assert.Empty(t, gw.names())
	assert.Equal(t, 1, cm.calls())
}

func TestCorrectPinVerifiesAndUnlocksOrders(t *testing.T) {
	cm := &scriptedModel{replies: []*schema.Message{
		toolCall("c1", tools.ToolVerifyCustomerPin, `{"email":"jane@example.com","pin":1234}`),
		answer("Thanks Jane, you're verified."),
	}}
	runner, _ := newRunner(t, cm)

	res, err := runner.Invoke(context.Background(), model.TurnInput{
		Query:    "jane@example.com 1234",
		Customer: model.CustomerState{Status: model.StatusPendingPin},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerified, res.Customer.Status)
	assert.True(t, res.Customer.Verified)
	assert.Equal(t, janeID, res.Customer.CustomerID)
	assert.Equal(t, "Jane Doe", res.Customer.Name)

	// Next turn: order tools run, always for the verified customer.
	cm2 := &scriptedModel{replies: []*schema.Message{
		toolCall("c2", tools.ToolListOrders, `{"customer_id":"someone-else"}`),
		answer("You have one shipped order."),
	}}
	runner2, gw := newRunner(t, cm2)

	res, err = runner2.Invoke(context.Background(), model.TurnInput{
		Query:    "Show my orders",
		Customer: res.Customer,
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAnswered, res.Outcome)
	require.Len(t, gw.calls, 1)
	assert.Equal(t, janeID, gw.calls[0].Args["customer_id"])

	toolMsg := lastToolMessage(cm2.inputs[1])
	require.NotNil(t, toolMsg)
	assert.Contains(t, toolMsg.Content, "ORD-1A2B3C4D")

	// The verified section is rendered into the system prompt.
	assert.Contains(t, cm2.inputs[0][0].Content, "VERIFIED CUSTOMER SESSION")
}

func TestWrongPinCountsAttempt(t *testing.T) {
	cm := &scriptedModel{replies: []*schema.Message{
		toolCall("c1", tools.ToolVerifyCustomerPin, `{"email":"jane@example.com","pin":"0000"}`),
		answer("That PIN didn't match. Please try again."),
	}}
	runner, _ := newRunner(t, cm)

	res, err := runner.Invoke(context.Background(), model.TurnInput{
		Query:    "jane@example.com 0000",
		Customer: model.CustomerState{Status: model.StatusPendingPin},
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAnswered, res.Outcome)
	assert.Equal(t, model.StatusPendingPin, res.Customer.Status)
	assert.Equal(t, 1, res.Customer.PinAttempts)
}

func TestThirdWrongPinResetsVerification(t *testing.T) {
	cm := &scriptedModel{replies: []*schema.Message{
		toolCall("c1", tools.ToolVerifyCustomerPin, `{"email":"jane@example.com","pin":"9999"}`),
	}}
	runner, _ := newRunner(t, cm)

	res, err := runner.Invoke(context.Background(), model.TurnInput{
		Query:    "jane@example.com 9999",
		Customer: model.CustomerState{Status: model.StatusPendingPin, PinAttempts: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeDenied, res.Outcome)
	assert.Equal(t, verification.DeniedMessage, res.Response)
	assert.Equal(t, model.StatusUnverified, res.Customer.Status)
	assert.Zero(t, res.Customer.PinAttempts)
	assert.False(t, res.Customer.Verified)
}

func TestToolRoundBoundDegradesTurn(t *testing.T) {
	cm := &scriptedModel{replies: []*schema.Message{
		toolCall("", tools.ToolSearchProducts, `{"query":"monitor"}`),
	}}
	runner, gw := newRunner(t, cm)

	res, err := runner.Invoke(context.Background(), model.TurnInput{Query: "Compare every monitor you have"})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeDegraded, res.Outcome)
	assert.Equal(t, nodes.DegradedMessage, res.Response)
	assert.Equal(t, 5, res.ToolRounds)
	assert.Len(t, gw.names(), 5)
	assert.Equal(t, 6, cm.calls())

	// Missing tool call ids are synthesized.
	toolMsg := lastToolMessage(cm.inputs[1])
	require.NotNil(t, toolMsg)
	assert.True(t, strings.HasPrefix(toolMsg.ToolCallID, "call_"))
}

func TestUnknownToolIsAnsweredWithError(t *testing.T) {
	cm := &scriptedModel{replies: []*schema.Message{
		toolCall("c1", "drop_database", `{}`),
		answer("Sorry, I can't do that."),
	}}
	runner, gw := newRunner(t, cm)

	res, err := runner.Invoke(context.Background(), model.TurnInput{Query: "hello"})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAnswered, res.Outcome)
	assert.Empty(t, gw.names())

	toolMsg := lastToolMessage(cm.inputs[1])
	require.NotNil(t, toolMsg)
	assert.Contains(t, toolMsg.Content, tools.ErrorUnknownTool)
}

func TestHistoryIsPassedToModel(t *testing.T) {
	cm := &scriptedModel{replies: []*schema.Message{answer("Sure.")}}
	runner, _ := newRunner(t, cm)

	_, err := runner.Invoke(context.Background(), model.TurnInput{
		Query: "and in black?",
		History: []model.HistoryMessage{
			{Role: model.RoleUser, Content: "Do you sell the MX Master 3S?"},
			{Role: model.RoleAssistant, Content: "Yes, ACC-4001 for $99."},
		},
	})
	require.NoError(t, err)

	in := cm.inputs[0]
	require.Len(t, in, 4)
	assert.Equal(t, schema.System, in[0].Role)
	assert.Equal(t, "Yes, ACC-4001 for $99.", in[2].Content)
	assert.Equal(t, "and in black?", in[3].Content)
}
