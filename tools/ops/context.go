package ops

import (
	"context"
	"sync"
)

// TurnState carries per-turn gate bookkeeping between the agent loop and the
// approval tool: whether the gate was invoked, the id it produced, and the
// user's literal text for notification enrichment.
type TurnState struct {
	mu sync.Mutex

	userText    string
	gateInvoked bool
	approvalID  string
	delivered   bool
}

func NewTurnState(userText string) *TurnState {
	return &TurnState{userText: userText, delivered: true}
}

func (s *TurnState) UserText() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userText
}

func (s *TurnState) MarkGateInvoked(approvalID string, delivered bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gateInvoked = true
	// Keep the first id of the turn; a turn requests approval at most once.
	if s.approvalID == "" {
		s.approvalID = approvalID
		s.delivered = delivered
	}
}

func (s *TurnState) GateInvoked() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gateInvoked
}

func (s *TurnState) ApprovalID() (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.approvalID, s.delivered
}

type ctxKeyTurnState struct{}

func WithTurnState(ctx context.Context, st *TurnState) context.Context {
	return context.WithValue(ctx, ctxKeyTurnState{}, st)
}

func TurnStateFromContext(ctx context.Context) (*TurnState, bool) {
	if ctx == nil {
		return nil, false
	}
	st, ok := ctx.Value(ctxKeyTurnState{}).(*TurnState)
	return st, ok
}
