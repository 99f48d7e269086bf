// Package ops provides the agent-facing tools that bridge the model to the
// approval gate. RequestApprovalTool is the interception point: the model
// asks to perform a risky operation, the classifier decides, and required
// operations are suspended behind a pending approval instead of executed.
package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/plaudehq/opsgate/gate"
	"github.com/plaudehq/opsgate/tools"
)

type RequestApprovalTool struct {
	Gate  *gate.Gate
	Rules gate.Ruleset
	Log   *slog.Logger
}

func NewRequestApprovalTool(g *gate.Gate, rules gate.Ruleset, log *slog.Logger) *RequestApprovalTool {
	if log == nil {
		log = slog.Default()
	}
	return &RequestApprovalTool{Gate: g, Rules: rules, Log: log}
}

func (t *RequestApprovalTool) Name() string { return "request_approval" }

func (t *RequestApprovalTool) Description() string {
	return "Ask a human operator to approve or reject a risky operation before it is performed. The reason should include the user's original request or a close paraphrase."
}

func (t *RequestApprovalTool) ParameterSchema() string {
	return `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "operation_type": { "type": "string", "enum": ["refund", "high_value", "ambiguous", "account_change"] },
    "risk": { "type": "string", "enum": ["low", "medium", "high"] },
    "reason": { "type": "string", "description": "Short explanation of why the operation is requested." },
    "amount": { "type": "number", "description": "Monetary amount, if the user specified one." }
  },
  "required": ["operation_type", "risk", "reason"]
}`
}

// result is what the model sees. It never claims an approval outcome; at
// most it reports that the request is pending, or that the approver could
// not be reached.
type requestApprovalResult struct {
	OK               bool   `json:"ok"`
	ApprovalRequired bool   `json:"approval_required"`
	ApprovalID       string `json:"approval_id,omitempty"`
	MessageForUser   string `json:"message_for_user,omitempty"`
	MessageForAgent  string `json:"message_for_agent,omitempty"`
}

func (t *RequestApprovalTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	if t == nil || t.Gate == nil {
		return "", fmt.Errorf("approval gate is not configured")
	}

	opType := gate.OperationType(strings.TrimSpace(tools.GetString(params, "operation_type")))
	if !opType.Valid() {
		return "", fmt.Errorf("invalid operation_type: %q", opType)
	}

	req := gate.GateRequest{
		OperationType: opType,
		RiskTier:      gate.RiskTier(strings.TrimSpace(tools.GetString(params, "risk"))),
		Reason:        strings.TrimSpace(tools.GetString(params, "reason")),
	}
	if v, ok := tools.GetFloat(params, "amount"); ok {
		req.Amount = &v
	}

	st, _ := TurnStateFromContext(ctx)
	if st != nil {
		req.UserText = st.UserText()
	}

	verdict := t.Rules.Classify(req)
	if !verdict.Required {
		t.Log.Info("approval_not_required",
			"operation_type", string(opType),
			"rule", verdict.Rule,
		)
		return marshalResult(requestApprovalResult{
			OK:               true,
			ApprovalRequired: false,
			MessageForAgent:  "No human approval is required for this operation; you may proceed.",
		})
	}

	// The classifier's tier wins over whatever the model guessed.
	req.RiskTier = verdict.Tier

	res, err := t.Gate.Request(ctx, req)
	if err != nil {
		return "", err
	}
	if st != nil {
		st.MarkGateInvoked(res.ApprovalID, res.Delivered)
	}

	if !res.Delivered {
		return marshalResult(requestApprovalResult{
			OK:               false,
			ApprovalRequired: true,
			ApprovalID:       res.ApprovalID,
			MessageForUser:   "I'm having trouble reaching a human operator for approval. Your request was recorded and is still pending.",
			MessageForAgent:  "Notification delivery failed; the approval is recorded as pending. Tell the user the approver could not be reached yet.",
		})
	}

	return marshalResult(requestApprovalResult{
		OK:               true,
		ApprovalRequired: true,
		ApprovalID:       res.ApprovalID,
		MessageForUser:   "I've sent your request to an internal operator for approval.",
		MessageForAgent:  "Approval requested; the operation is suspended until a human decides. Tell the user to wait for an update. Never state an approval outcome yourself.",
	})
}

func marshalResult(r requestApprovalResult) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
