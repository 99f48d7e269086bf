package gate

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

type OperationType string

const (
	OpRefund        OperationType = "refund"
	OpHighValue     OperationType = "high_value"
	OpAmbiguous     OperationType = "ambiguous"
	OpAccountChange OperationType = "account_change"
)

func (t OperationType) Valid() bool {
	switch t {
	case OpRefund, OpHighValue, OpAmbiguous, OpAccountChange:
		return true
	}
	return false
}

type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// StatusFor maps a decision value to the terminal record status.
func StatusFor(d Decision) (Status, bool) {
	switch d {
	case DecisionApprove:
		return StatusApproved, true
	case DecisionReject:
		return StatusRejected, true
	}
	return "", false
}

// ApprovalRecord tracks one gated action's decision lifecycle. The ID doubles
// as the capability token embedded in decision links, so it must come from
// NewApprovalID and never from caller input.
type ApprovalRecord struct {
	ID            string
	OperationType OperationType
	RiskTier      RiskTier
	Reason        string
	Amount        *float64
	UserText      string

	Status    Status
	Actor     string
	CreatedAt time.Time
	// ExpiresAt is optional; the zero value means the record never expires.
	ExpiresAt time.Time
	// DecidedAt is stamped exactly once, on the first transition out of pending.
	DecidedAt *time.Time
}

func (r ApprovalRecord) Decided() bool {
	return r.Status == StatusApproved || r.Status == StatusRejected
}

func (r ApprovalRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// GateRequest is the ephemeral classifier input. It is produced by the
// agent's approval tool or the fallback sentinel and consumed once by
// Gate.Request; it is never persisted as-is.
type GateRequest struct {
	OperationType OperationType
	RiskTier      RiskTier
	Reason        string
	Amount        *float64
	UserText      string
}

// NewApprovalID returns an unguessable approval identifier.
func NewApprovalID() string {
	return "apr_" + randHex(12)
}

func randHex(nbytes int) string {
	if nbytes <= 0 {
		nbytes = 12
	}
	b := make([]byte, nbytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
