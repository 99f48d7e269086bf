package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"

	"github.com/plaudehq/opsgate/gate"
	"github.com/plaudehq/opsgate/llm"
)

const maxAgentBody = 1 << 20 // 1 MB

type clientMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type agentTurnRequest struct {
	Messages []clientMessage `json:"messages"`
}

func (s *Server) handleAgentTurn(w http.ResponseWriter, r *http.Request) {
	if s.Engine == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "agent engine not configured"})
		return
	}

	var req agentTurnRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAgentBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	history := make([]llm.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		if role != "user" {
			role = "assistant"
		}
		history = append(history, llm.Message{Role: role, Content: m.Content})
	}

	outcome, err := s.Engine.Turn(r.Context(), history)
	if err != nil {
		s.Log.Error("agent_turn_failed", "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error in agent turn"})
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// handleDecision is the ingestion boundary behind the links embedded in the
// notification. A human clicks it; Slack or a browser fetches it; retries and
// double clicks must all land idempotently.
func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	if s.Gate == nil {
		http.Error(w, "gate not configured", http.StatusNotImplemented)
		return
	}

	q := r.URL.Query()
	decision := gate.Decision(strings.TrimSpace(q.Get("decision")))
	if _, ok := gate.StatusFor(decision); !ok {
		// Malformed decision: reject before touching the ledger.
		writeHTML(w, http.StatusBadRequest, "<h1>Invalid decision. Please close this window.</h1>")
		return
	}

	id := strings.TrimSpace(q.Get("id"))
	if id == "" {
		// The link was mangled; record the decision under a fresh id so it
		// is not lost entirely.
		id = gate.NewApprovalID()
	}

	var amount *float64
	if raw := strings.TrimSpace(q.Get("amount")); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			amount = &v
		}
	}

	rec, state, err := s.Gate.Resolve(r.Context(), id, decision, "decision-link", amount)
	if errors.Is(err, gate.ErrExpired) {
		writeHTML(w, http.StatusGone, "<h1>This approval request has expired.</h1>")
		return
	}
	if err != nil {
		s.Log.Error("decision_ingest_failed", "approval_id", id, "error", err.Error())
		writeHTML(w, http.StatusInternalServerError, "<h1>Could not record the decision. Please try again.</h1>")
		return
	}

	s.Log.Info("decision_ingested",
		"approval_id", rec.ID,
		"decision", string(decision),
		"state", string(state),
	)

	// Acknowledge the stored status, not the clicked link: a duplicate click
	// with the opposite decision must show what actually stands.
	message := "✅ Approval recorded. You can close this window."
	if rec.Status == gate.StatusRejected {
		message = "❌ Rejection recorded. You can close this window."
	}
	body := "<h1>" + message + "</h1>\n<p>Approval ID: <code>" + html.EscapeString(rec.ID) + "</code></p>"
	if rec.Amount != nil {
		body += "\n<p>Amount: <strong>" + strconv.FormatFloat(*rec.Amount, 'f', -1, 64) + "</strong></p>"
	}
	writeHTML(w, http.StatusOK, body)
}

type approvalStatusResponse struct {
	Status  gate.Status `json:"status"`
	Message string      `json:"message,omitempty"`
	Amount  *float64    `json:"amount,omitempty"`
}

// handleApprovalStatus is the polling bridge. Unknown ids come back pending:
// a client racing the ledger write must not see a hard failure.
func (s *Server) handleApprovalStatus(w http.ResponseWriter, r *http.Request) {
	if s.Gate == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "gate not configured"})
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "missing id parameter"})
		return
	}

	view, err := s.Gate.PollStatus(r.Context(), id)
	if err != nil {
		s.Log.Error("approval_status_failed", "approval_id", id, "error", err.Error())
		writeJSON(w, http.StatusOK, approvalStatusResponse{Status: gate.StatusPending})
		return
	}

	resp := approvalStatusResponse{Status: view.Status, Amount: view.Amount}
	switch view.Status {
	case gate.StatusApproved:
		resp.Message = fmt.Sprintf("The operation with id %s has been approved by a human operator.", id)
	case gate.StatusRejected:
		resp.Message = fmt.Sprintf("The operation with id %s has been rejected by a human operator.", id)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte("<html><body style=\"font-family: system-ui; padding: 24px;\">\n" + body + "\n</body></html>"))
}
