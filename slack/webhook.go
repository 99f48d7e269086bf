// Package slack delivers approval requests to an incoming webhook and
// embeds the decision links a human clicks to answer them.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/plaudehq/opsgate/gate"
)

const defaultMaxResponseBytes = 64 * 1024

// WebhookNotifier implements gate.Notifier against a Slack-compatible
// incoming webhook. Delivery success only confirms the channel accepted the
// message; the human may answer hours later, through the embedded links.
type WebhookNotifier struct {
	// WebhookURL is the incoming webhook endpoint. Empty means the channel
	// is unconfigured and every Notify fails with a config error.
	WebhookURL string

	// BaseURL is the public address of this service; decision links point at
	// its ingestion boundary.
	BaseURL string

	HTTP             *http.Client
	MaxResponseBytes int64
	Log              *slog.Logger
}

func NewWebhookNotifier(webhookURL, baseURL string) *WebhookNotifier {
	return &WebhookNotifier{
		WebhookURL:       strings.TrimSpace(webhookURL),
		BaseURL:          strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:             &http.Client{Timeout: 15 * time.Second},
		MaxResponseBytes: defaultMaxResponseBytes,
		Log:              slog.Default(),
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, rec gate.ApprovalRecord) error {
	if n == nil {
		return fmt.Errorf("nil notifier")
	}
	if n.WebhookURL == "" {
		return fmt.Errorf("slack webhook url is not configured")
	}

	payload, err := json.Marshal(map[string]string{"text": n.messageText(rec)})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.HTTP
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	defer resp.Body.Close()

	limit := n.MaxResponseBytes
	if limit <= 0 {
		limit = defaultMaxResponseBytes
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, limit))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if n.Log != nil {
		n.Log.Debug("slack_notify_sent", "approval_id", rec.ID, "status", resp.StatusCode)
	}
	return nil
}

// DecisionURL builds the callback link for one candidate decision. The
// approval id in the query string is the capability token; the amount rides
// along so an out-of-band resolution still carries it.
func (n *WebhookNotifier) DecisionURL(rec gate.ApprovalRecord, d gate.Decision) string {
	q := url.Values{}
	q.Set("id", rec.ID)
	q.Set("decision", string(d))
	if rec.Amount != nil {
		q.Set("amount", strconv.FormatFloat(*rec.Amount, 'f', -1, 64))
	}
	return n.BaseURL + "/api/decision?" + q.Encode()
}

func (n *WebhookNotifier) messageText(rec gate.ApprovalRecord) string {
	amount := "n/a"
	if rec.Amount != nil {
		amount = strconv.FormatFloat(*rec.Amount, 'f', -1, 64)
	}

	lines := []string{
		"*Plaude Agent – approval requested*",
		"• Operation type: " + string(rec.OperationType),
		"• Risk level: " + string(rec.RiskTier),
		"• Amount: " + amount,
		"• Reason (AI summary): " + rec.Reason,
	}
	if rec.UserText != "" {
		lines = append(lines, "• Original user request: "+rec.UserText)
	}
	lines = append(lines,
		"",
		"*Decision (click one):*",
		"Approve: "+n.DecisionURL(rec, gate.DecisionApprove),
		"Reject: "+n.DecisionURL(rec, gate.DecisionReject),
	)
	return strings.Join(lines, "\n")
}
