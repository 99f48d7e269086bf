package gate

import (
	"context"
	"time"
)

// AuditEvent is one line in the gate's audit trail.
type AuditEvent struct {
	Event         string        `json:"event"`
	ApprovalID    string        `json:"approval_id"`
	OperationType OperationType `json:"operation_type,omitempty"`
	RiskTier      RiskTier      `json:"risk_tier,omitempty"`
	Decision      Decision      `json:"decision,omitempty"`
	Actor         string        `json:"actor,omitempty"`
	Amount        *float64      `json:"amount,omitempty"`
	Summary       string        `json:"summary,omitempty"`
	Time          time.Time     `json:"ts"`
}

type AuditSink interface {
	Emit(ctx context.Context, e AuditEvent) error
	Close() error
}
