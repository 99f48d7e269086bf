package gate

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestJSONLAuditSink_AppendsOneLinePerEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewJSONLAuditSink(path, 0)
	if err != nil {
		t.Fatalf("NewJSONLAuditSink: %v", err)
	}
	defer sink.Close()

	ctx := context.Background()
	events := []AuditEvent{
		{Event: "approval_requested", ApprovalID: "apr_1", OperationType: OpRefund, RiskTier: RiskMedium},
		{Event: "decision_recorded", ApprovalID: "apr_1", Decision: DecisionApprove, Actor: "alice"},
	}
	for _, e := range events {
		if err := sink.Emit(ctx, e); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []AuditEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AuditEvent
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line is not json: %v\n%s", err, sc.Text())
		}
		lines = append(lines, e)
	}
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[0].Event != "approval_requested" || lines[1].Decision != DecisionApprove {
		t.Fatalf("unexpected events: %+v", lines)
	}
	if lines[0].Time.IsZero() {
		t.Fatal("Emit should stamp a timestamp when the event has none")
	}
}

func TestJSONLAuditSink_Rotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	sink, err := NewJSONLAuditSink(path, 256)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	e := AuditEvent{
		Event:      "approval_requested",
		ApprovalID: "apr_0123456789abcdef01234567",
		Summary:    strings.Repeat("x", 120),
		Time:       time.Now().UTC(),
	}
	for i := 0; i < 10; i++ {
		if err := sink.Emit(context.Background(), e); err != nil {
			t.Fatalf("Emit %d: %v", i, err)
		}
	}
	sink.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected rotated files, found %d entries", len(entries))
	}

	// The live file never exceeds the rotation cap.
	if st, err := os.Stat(path); err == nil && st.Size() > 256 {
		t.Fatalf("live file size = %d, want <= 256", st.Size())
	}
}
