package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/plaudehq/opsgate/gate"
)

// CheckDecisionTool reports the most recent human decision, for turns where
// the user asks for an update on a previously gated operation.
type CheckDecisionTool struct {
	Gate *gate.Gate
}

func NewCheckDecisionTool(g *gate.Gate) *CheckDecisionTool {
	return &CheckDecisionTool{Gate: g}
}

func (t *CheckDecisionTool) Name() string { return "check_latest_decision" }

func (t *CheckDecisionTool) Description() string {
	return "Check the most recent human decision (approve or reject) recorded for a risky operation."
}

func (t *CheckDecisionTool) ParameterSchema() string {
	// The model tends to call this with no arguments; accept anything.
	return `{ "type": "object", "additionalProperties": true }`
}

type checkDecisionResult struct {
	Found           bool     `json:"found"`
	ID              string   `json:"id,omitempty"`
	Decision        string   `json:"decision,omitempty"`
	Amount          *float64 `json:"amount,omitempty"`
	MessageForAgent string   `json:"message_for_agent"`
}

func (t *CheckDecisionTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	_ = params
	if t == nil || t.Gate == nil {
		return "", fmt.Errorf("approval gate is not configured")
	}

	latest, err := t.Gate.LatestDecision(ctx)
	if err != nil {
		return "", err
	}

	out := checkDecisionResult{Found: latest.Found}
	if !latest.Found {
		out.MessageForAgent = "No human decision has been recorded yet; the request is still pending."
	} else {
		out.ID = latest.ID
		out.Decision = string(latest.Decision)
		out.Amount = latest.Amount
		amount := "n/a"
		if latest.Amount != nil {
			amount = strconv.FormatFloat(*latest.Amount, 'f', -1, 64)
		}
		verb := "REJECT"
		if latest.Decision == gate.DecisionApprove {
			verb = "APPROVE"
		}
		out.MessageForAgent = "The most recent human decision is " + verb + " for amount " + amount + ". Report it to the user exactly; do not say it is pending."
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
