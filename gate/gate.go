package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("approval not found")
	ErrExpired           = errors.New("approval is expired")
	ErrMalformedDecision = errors.New("malformed decision value")
)

// Notifier delivers the approval request to the out-of-band decision channel.
// Delivery success only means the channel accepted the message; it says
// nothing about when, or whether, a human will act.
type Notifier interface {
	Notify(ctx context.Context, rec ApprovalRecord) error
}

// RequestResult is what the caller gets back from Request. Delivered=false
// with a pending record means "could not reach approver": the approval still
// exists and can be resolved, but the caller should surface the delivery
// failure instead of silently waiting.
type RequestResult struct {
	ApprovalID  string
	Delivered   bool
	DeliveryErr error
}

// ResolveState reports how a Resolve call landed.
type ResolveState string

const (
	// ResolveApplied: this call performed the pending→decided transition.
	ResolveApplied ResolveState = "applied"
	// ResolveDuplicate: the record was already decided; first decision wins.
	ResolveDuplicate ResolveState = "duplicate"
	// ResolveSynthesized: the id was unknown and a fresh resolved record was
	// created from the decision alone.
	ResolveSynthesized ResolveState = "synthesized"
)

// StatusView is the poll bridge's answer. Unknown identifiers read as
// pending so a client racing the ledger write never sees a hard failure.
type StatusView struct {
	Status Status   `json:"status"`
	Amount *float64 `json:"amount,omitempty"`
}

// LatestView is the "any news?" answer for a mid-conversation status check.
type LatestView struct {
	Found    bool     `json:"found"`
	ID       string   `json:"id,omitempty"`
	Decision Decision `json:"decision,omitempty"`
	Amount   *float64 `json:"amount,omitempty"`
}

// Gate owns the request→suspend→resume protocol. Records are created only by
// Request and mutated only by Resolve; everything else is a read.
type Gate struct {
	store    ApprovalStore
	notifier Notifier
	audit    AuditSink
	log      *slog.Logger
	ttl      time.Duration
	now      func() time.Time
}

type Option func(*Gate)

func WithAudit(sink AuditSink) Option {
	return func(g *Gate) { g.audit = sink }
}

func WithLogger(log *slog.Logger) Option {
	return func(g *Gate) {
		if log != nil {
			g.log = log
		}
	}
}

// WithTTL sets an expiry window on new records. Zero (the default) means
// records stay resolvable forever; pending windows may legitimately span
// hours.
func WithTTL(ttl time.Duration) Option {
	return func(g *Gate) { g.ttl = ttl }
}

func New(store ApprovalStore, notifier Notifier, opts ...Option) *Gate {
	g := &Gate{
		store:    store,
		notifier: notifier,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Request writes a pending record and solicits a human decision through the
// notifier. It returns as soon as the delivery attempt finishes; it never
// waits for the decision itself.
func (g *Gate) Request(ctx context.Context, req GateRequest) (RequestResult, error) {
	if g == nil || g.store == nil {
		return RequestResult{}, fmt.Errorf("gate is not configured")
	}
	if !req.OperationType.Valid() {
		return RequestResult{}, fmt.Errorf("invalid operation type: %q", req.OperationType)
	}

	now := g.now().UTC()
	rec := ApprovalRecord{
		ID:            NewApprovalID(),
		OperationType: req.OperationType,
		RiskTier:      req.RiskTier,
		Reason:        strings.TrimSpace(req.Reason),
		Amount:        req.Amount,
		UserText:      strings.TrimSpace(req.UserText),
		Status:        StatusPending,
		CreatedAt:     now,
	}
	if g.ttl > 0 {
		rec.ExpiresAt = now.Add(g.ttl)
	}

	id, err := g.store.Create(ctx, rec)
	if err != nil {
		return RequestResult{}, fmt.Errorf("create approval: %w", err)
	}
	rec.ID = id

	g.emit(ctx, AuditEvent{
		Event:         "approval_requested",
		ApprovalID:    id,
		OperationType: rec.OperationType,
		RiskTier:      rec.RiskTier,
		Amount:        rec.Amount,
		Summary:       rec.Reason,
		Time:          now,
	})

	result := RequestResult{ApprovalID: id, Delivered: true}
	if g.notifier == nil {
		result.Delivered = false
		result.DeliveryErr = fmt.Errorf("no decision channel configured")
		g.log.Warn("approval_notify_skipped", "approval_id", id)
		return result, nil
	}
	if err := g.notifier.Notify(ctx, rec); err != nil {
		// The record stays pending; the caller surfaces "could not reach
		// approver" instead of an approval outcome.
		result.Delivered = false
		result.DeliveryErr = err
		g.log.Warn("approval_notify_failed", "approval_id", id, "error", err.Error())
		return result, nil
	}

	g.log.Info("approval_requested",
		"approval_id", id,
		"operation_type", string(rec.OperationType),
		"risk_tier", string(rec.RiskTier),
	)
	return result, nil
}

// Resolve ingests a human decision. Unknown identifiers synthesize a fresh
// resolved record: the initiating request may have been lost, and an
// out-of-band decision with no audit trail is worse than one marked as
// synthesized. Already-decided records are left untouched.
func (g *Gate) Resolve(ctx context.Context, id string, d Decision, actor string, amount *float64) (ApprovalRecord, ResolveState, error) {
	if g == nil || g.store == nil {
		return ApprovalRecord{}, "", fmt.Errorf("gate is not configured")
	}
	status, ok := StatusFor(d)
	if !ok {
		return ApprovalRecord{}, "", fmt.Errorf("%w: %q", ErrMalformedDecision, d)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ApprovalRecord{}, "", fmt.Errorf("missing approval id")
	}

	now := g.now().UTC()

	if existing, found, err := g.store.Get(ctx, id); err != nil {
		return ApprovalRecord{}, "", err
	} else if found && !existing.Decided() && existing.Expired(now) {
		return existing, "", fmt.Errorf("%w: %s", ErrExpired, id)
	}

	rec, applied, err := g.store.Resolve(ctx, id, d, actor)
	if errors.Is(err, ErrNotFound) {
		rec, err = g.synthesize(ctx, id, status, actor, amount, now)
		if err != nil {
			return ApprovalRecord{}, "", err
		}
		g.emit(ctx, AuditEvent{
			Event:      "decision_recorded",
			ApprovalID: id,
			Decision:   d,
			Actor:      rec.Actor,
			Amount:     rec.Amount,
			Summary:    "out-of-band decision for unknown approval",
			Time:       now,
		})
		g.log.Warn("approval_synthesized", "approval_id", id, "decision", string(d))
		return rec, ResolveSynthesized, nil
	}
	if err != nil {
		return ApprovalRecord{}, "", err
	}
	if !applied {
		g.log.Info("approval_duplicate_decision", "approval_id", id, "status", string(rec.Status))
		return rec, ResolveDuplicate, nil
	}

	g.emit(ctx, AuditEvent{
		Event:         "decision_recorded",
		ApprovalID:    id,
		OperationType: rec.OperationType,
		RiskTier:      rec.RiskTier,
		Decision:      d,
		Actor:         rec.Actor,
		Amount:        rec.Amount,
		Time:          now,
	})
	g.log.Info("decision_recorded", "approval_id", id, "decision", string(d))
	return rec, ResolveApplied, nil
}

func (g *Gate) synthesize(ctx context.Context, id string, status Status, actor string, amount *float64, now time.Time) (ApprovalRecord, error) {
	rec := ApprovalRecord{
		ID:            id,
		OperationType: OpAmbiguous,
		RiskTier:      RiskMedium,
		Reason:        "decision received for unknown approval id",
		Amount:        amount,
		Status:        status,
		Actor:         strings.TrimSpace(actor),
		CreatedAt:     now,
		DecidedAt:     &now,
	}
	if _, err := g.store.Create(ctx, rec); err != nil {
		// Lost a race with a concurrent callback for the same id; the other
		// writer's decision stands.
		existing, found, getErr := g.store.Get(ctx, id)
		if getErr == nil && found {
			return existing, nil
		}
		return ApprovalRecord{}, err
	}
	return rec, nil
}

// CurrentStatus is a pure read of one record.
func (g *Gate) CurrentStatus(ctx context.Context, id string) (ApprovalRecord, bool, error) {
	if g == nil || g.store == nil {
		return ApprovalRecord{}, false, fmt.Errorf("gate is not configured")
	}
	return g.store.Get(ctx, id)
}

// PollStatus is the stateless polling bridge. Unknown ids report pending.
func (g *Gate) PollStatus(ctx context.Context, id string) (StatusView, error) {
	rec, found, err := g.CurrentStatus(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	if !found {
		return StatusView{Status: StatusPending}, nil
	}
	return StatusView{Status: rec.Status, Amount: rec.Amount}, nil
}

// LatestDecision reports the most recently resolved record, for "any update
// on my refund?" turns.
func (g *Gate) LatestDecision(ctx context.Context) (LatestView, error) {
	if g == nil || g.store == nil {
		return LatestView{}, fmt.Errorf("gate is not configured")
	}
	rec, found, err := g.store.Latest(ctx)
	if err != nil {
		return LatestView{}, err
	}
	if !found || !rec.Decided() {
		return LatestView{Found: false}, nil
	}
	decision := DecisionReject
	if rec.Status == StatusApproved {
		decision = DecisionApprove
	}
	return LatestView{Found: true, ID: rec.ID, Decision: decision, Amount: rec.Amount}, nil
}

func (g *Gate) emit(ctx context.Context, e AuditEvent) {
	if g.audit == nil {
		return
	}
	if err := g.audit.Emit(ctx, e); err != nil {
		g.log.Warn("audit_emit_failed", "error", err.Error())
	}
}
