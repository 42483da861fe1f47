package tools

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

type VerifyCustomerPinInput struct {
	Email string `json:"email"`
	Pin   string `json:"pin"`
}

func (in *VerifyCustomerPinInput) args() (map[string]any, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	pin := strings.TrimSpace(in.Pin)
	if email == "" || pin == "" {
		return nil, errors.New("email and pin are required")
	}
	return map[string]any{"email": email, "pin": pin}, nil
}

func (r *Registry) newVerifyCustomerPinTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolVerifyCustomerPin,
			Desc: "Verify a customer's identity with the email on their account and their 4-digit PIN. Required before any order lookup or order placement.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"email": {
					Type:     schema.String,
					Desc:     "Email address on the customer account.",
					Required: true,
				},
				"pin": {
					Type:     schema.String,
					Desc:     "The customer's 4-digit PIN.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *VerifyCustomerPinInput) (*Output, error) {
			return r.run(ctx, ToolVerifyCustomerPin, in.args)
		},
	)
}

// VerifyVerdict classifies a verify_customer_pin tool message.
type VerifyVerdict int

const (
	// VerdictInconclusive covers transport failures and bad arguments; no attempt is counted.
	VerdictInconclusive VerifyVerdict = iota
	VerdictConfirmed
	VerdictRejected
)

// VerifyOutcome is the parsed result of a PIN check.
type VerifyOutcome struct {
	Verdict    VerifyVerdict
	CustomerID string
	Name       string
}

var (
	uuidPattern       = `[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{12}`
	customerIDPattern = regexp.MustCompile(`(?i)customer[_ ]?id["':\s]*(` + uuidPattern + `)`)
	looseIDPattern    = regexp.MustCompile(`(?i)(?:verified|customer|id)[:\s]+.*?(` + uuidPattern + `)`)
	namePattern       = regexp.MustCompile(`(?:verified|[Ww]elcome)[,:\s]+([A-Z][a-z]+(?:[ \t]+[A-Z][a-z]+)*)`)
)

// ParseVerifyOutput reads the tool message content produced for verify_customer_pin.
// Structured JSON is preferred; free text falls back to locating a customer UUID.
func ParseVerifyOutput(content string) VerifyOutcome {
	var env struct {
		Error   string          `json:"error"`
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal([]byte(content), &env); err != nil {
		return parseVerifyText(content)
	}
	switch env.Error {
	case "":
	case ErrorToolReported:
		return VerifyOutcome{Verdict: VerdictRejected}
	default:
		return VerifyOutcome{Verdict: VerdictInconclusive}
	}

	var fields map[string]any
	if err := json.Unmarshal(env.Result, &fields); err == nil {
		return parseVerifyFields(fields)
	}
	var text string
	if err := json.Unmarshal(env.Result, &text); err == nil {
		return parseVerifyText(text)
	}
	return VerifyOutcome{Verdict: VerdictRejected}
}

func parseVerifyFields(fields map[string]any) VerifyOutcome {
	if nested, ok := fields["customer"].(map[string]any); ok {
		for k, v := range nested {
			if _, exists := fields[k]; !exists {
				fields[k] = v
			}
		}
	}
	id := firstString(fields, "customer_id", "customerId", "id")
	name := firstString(fields, "name", "customer_name", "customerName")

	flag, hasFlag := fields["verified"].(bool)
	if !hasFlag {
		flag, hasFlag = fields["success"].(bool)
	}
	if hasFlag && !flag {
		return VerifyOutcome{Verdict: VerdictRejected}
	}
	if id == "" {
		return VerifyOutcome{Verdict: VerdictRejected}
	}
	return VerifyOutcome{Verdict: VerdictConfirmed, CustomerID: id, Name: name}
}

func parseVerifyText(text string) VerifyOutcome {
	m := customerIDPattern.FindStringSubmatch(text)
	if m == nil {
		m = looseIDPattern.FindStringSubmatch(text)
	}
	if m == nil {
		return VerifyOutcome{Verdict: VerdictRejected}
	}
	out := VerifyOutcome{Verdict: VerdictConfirmed, CustomerID: strings.ToLower(m[1])}
	if n := namePattern.FindStringSubmatch(text); n != nil {
		out.Name = strings.TrimSpace(n[1])
	}
	return out
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
