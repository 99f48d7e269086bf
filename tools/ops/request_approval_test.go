package ops

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/plaudehq/opsgate/gate"
)

type noopNotifier struct{ err error }

func (n noopNotifier) Notify(ctx context.Context, rec gate.ApprovalRecord) error { return n.err }

func newTestTool(t *testing.T) (*RequestApprovalTool, *gate.MemoryStore) {
	t.Helper()
	store := gate.NewMemoryStore()
	g := gate.New(store, noopNotifier{})
	return NewRequestApprovalTool(g, gate.DefaultRuleset(), nil), store
}

func decodeResult(t *testing.T, raw string) requestApprovalResult {
	t.Helper()
	var r requestApprovalResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		t.Fatalf("tool result is not json: %v\n%s", err, raw)
	}
	return r
}

func TestRequestApprovalTool_NotRequiredProceeds(t *testing.T) {
	tool, store := newTestTool(t)

	raw, err := tool.Execute(context.Background(), map[string]any{
		"operation_type": "refund",
		"risk":           "low",
		"reason":         "refund $20 for late delivery",
		"amount":         20,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	r := decodeResult(t, raw)
	if !r.OK || r.ApprovalRequired {
		t.Fatalf("small refund should proceed without approval: %+v", r)
	}
	if r.ApprovalID != "" {
		t.Fatal("no approval record should be created")
	}
	if _, found, _ := store.Latest(context.Background()); found {
		t.Fatal("ledger should be empty")
	}
}

func TestRequestApprovalTool_OverThresholdSuspends(t *testing.T) {
	tool, store := newTestTool(t)

	st := NewTurnState("I want a refund of $75 for order #220")
	ctx := WithTurnState(context.Background(), st)

	raw, err := tool.Execute(ctx, map[string]any{
		"operation_type": "refund",
		"risk":           "low",
		"reason":         "refund $75 for order #220",
		"amount":         75,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	r := decodeResult(t, raw)
	if !r.OK || !r.ApprovalRequired || r.ApprovalID == "" {
		t.Fatalf("expected a pending approval: %+v", r)
	}

	rec, found, _ := store.Get(ctx, r.ApprovalID)
	if !found {
		t.Fatal("approval record missing from ledger")
	}
	if rec.Status != gate.StatusPending {
		t.Fatalf("Status = %s, want pending", rec.Status)
	}
	// The classifier's tier overrides the model's "low" guess.
	if rec.RiskTier != gate.RiskMedium {
		t.Fatalf("RiskTier = %s, want medium", rec.RiskTier)
	}
	if rec.UserText != st.UserText() {
		t.Fatal("record should carry the user's literal text from the turn state")
	}

	if !st.GateInvoked() {
		t.Fatal("turn state not marked")
	}
	if id, _ := st.ApprovalID(); id != r.ApprovalID {
		t.Fatalf("turn state id = %s, want %s", id, r.ApprovalID)
	}
}

func TestRequestApprovalTool_NeverClaimsOutcome(t *testing.T) {
	tool, _ := newTestTool(t)

	raw, err := tool.Execute(context.Background(), map[string]any{
		"operation_type": "account_change",
		"risk":           "high",
		"reason":         "close the account",
	})
	if err != nil {
		t.Fatal(err)
	}
	r := decodeResult(t, raw)
	if !r.ApprovalRequired {
		t.Fatal("account change must require approval")
	}
	for _, banned := range []string{"was approved", "was rejected", "has been approved", "has been rejected"} {
		if strings.Contains(r.MessageForUser, banned) || strings.Contains(r.MessageForAgent, banned) {
			t.Fatalf("tool result claims an outcome: %+v", r)
		}
	}
}

func TestRequestApprovalTool_DeliveryFailure(t *testing.T) {
	store := gate.NewMemoryStore()
	g := gate.New(store, noopNotifier{err: context.DeadlineExceeded})
	tool := NewRequestApprovalTool(g, gate.DefaultRuleset(), nil)

	st := NewTurnState("refund $300 please")
	ctx := WithTurnState(context.Background(), st)

	raw, err := tool.Execute(ctx, map[string]any{
		"operation_type": "refund",
		"risk":           "medium",
		"reason":         "refund $300",
		"amount":         300,
	})
	if err != nil {
		t.Fatalf("delivery failure must not error the tool: %v", err)
	}
	r := decodeResult(t, raw)
	if r.OK {
		t.Fatal("expected ok=false on delivery failure")
	}
	if !r.ApprovalRequired || r.ApprovalID == "" {
		t.Fatalf("record must still exist: %+v", r)
	}

	rec, found, _ := store.Get(ctx, r.ApprovalID)
	if !found || rec.Status != gate.StatusPending {
		t.Fatalf("record after failed delivery: found=%v status=%s", found, rec.Status)
	}

	if _, delivered := st.ApprovalID(); delivered {
		t.Fatal("turn state should remember the failed delivery")
	}
}

func TestRequestApprovalTool_InvalidOperationType(t *testing.T) {
	tool, _ := newTestTool(t)
	_, err := tool.Execute(context.Background(), map[string]any{
		"operation_type": "wire_transfer",
		"risk":           "high",
		"reason":         "x",
	})
	if err == nil {
		t.Fatal("expected error for unknown operation type")
	}
}
