// Package sentinel is the defense-in-depth pass that runs after the model's
// turn: an independent look at the user's literal words, so a refund-intent
// message can never complete without a human touchpoint even when the model
// skips the approval tool.
package sentinel

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/plaudehq/opsgate/gate"
	"github.com/plaudehq/opsgate/internal/strutil"
)

const maxReasonBytes = 240

// amountRe pulls the first plausible monetary figure out of free text.
var amountRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(usd|u\$s|dollars|d[oó]lares)?`)

// Outcome describes what the sentinel did for one turn.
type Outcome struct {
	Fired      bool
	ApprovalID string
	Delivered  bool
	// Reply replaces the model's answer when the sentinel fired, in the
	// detected language.
	Reply string
}

type Sentinel struct {
	rules Rules
	gate  *gate.Gate
	log   *slog.Logger
}

func New(g *gate.Gate, opts ...Option) *Sentinel {
	s := &Sentinel{
		rules: DefaultRules(),
		gate:  g,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Option func(*Sentinel)

func WithRules(r Rules) Option {
	return func(s *Sentinel) {
		if len(r.IntentPhrases) > 0 {
			s.rules = r
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Sentinel) {
		if log != nil {
			s.log = log
		}
	}
}

// Match reports whether the text plausibly requests a gated operation. It is
// intentionally simpler and more trigger-happy than the policy classifier: a
// duplicate approval request is cheaper than a refund that slipped through.
func (s *Sentinel) Match(userText string) bool {
	lower := strings.ToLower(userText)
	if strings.TrimSpace(lower) == "" {
		return false
	}
	for _, phrase := range s.rules.IntentPhrases {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase == "" {
			continue
		}
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Check runs once per turn, after the model finished. If the gate was never
// invoked but the text matches, it synthesizes a GateRequest and files it,
// returning the canned reply that overrides the model's answer.
func (s *Sentinel) Check(ctx context.Context, userText string, gateInvoked bool) Outcome {
	if s == nil || s.gate == nil {
		return Outcome{}
	}
	if gateInvoked || !s.Match(userText) {
		return Outcome{}
	}

	lang := DetectLanguage(userText)
	req := gate.GateRequest{
		OperationType: gate.OpRefund,
		RiskTier:      gate.RiskHigh,
		Reason:        strutil.TruncateWithEllipsis(strings.TrimSpace(userText), maxReasonBytes),
		Amount:        ExtractAmount(userText),
		UserText:      userText,
	}

	res, err := s.gate.Request(ctx, req)
	if err != nil {
		s.log.Error("sentinel_request_failed", "error", err.Error())
		return Outcome{}
	}

	s.log.Warn("sentinel_fired",
		"approval_id", res.ApprovalID,
		"delivered", res.Delivered,
	)

	reply := SentForApprovalMessage(lang)
	if !res.Delivered {
		reply = DeliveryFailedMessage(lang)
	}
	return Outcome{
		Fired:      true,
		ApprovalID: res.ApprovalID,
		Delivered:  res.Delivered,
		Reply:      reply,
	}
}

// ExtractAmount best-effort parses a monetary amount from free text. Bare
// order numbers ("#220") are skipped; a number is taken when it follows a
// currency marker or precedes a currency word.
func ExtractAmount(text string) *float64 {
	for _, m := range amountRe.FindAllStringSubmatchIndex(text, -1) {
		start := m[2]
		numStr := text[m[2]:m[3]]
		hasCurrencyWord := m[4] >= 0
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		prefixedByCurrency := prev == '$' || prev == '€'
		precededByHash := prev == '#'
		if precededByHash {
			continue
		}
		if !hasCurrencyWord && !prefixedByCurrency {
			continue
		}
		if v, err := strconv.ParseFloat(numStr, 64); err == nil {
			return &v
		}
	}
	// Fallback: first number not glued to a '#'.
	for _, m := range amountRe.FindAllStringSubmatchIndex(text, -1) {
		start := m[2]
		if start > 0 && text[start-1] == '#' {
			continue
		}
		if v, err := strconv.ParseFloat(text[m[2]:m[3]], 64); err == nil {
			return &v
		}
	}
	return nil
}
