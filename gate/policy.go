package gate

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Verdict is the classifier output for one proposed operation.
type Verdict struct {
	Required bool
	Tier     RiskTier
	Rule     string
}

// Ruleset is the policy classifier's rule table. It is deliberately separate
// from the sentinel's phrase table: the two heuristics have different
// false-positive tradeoffs and are versioned independently.
type Ruleset struct {
	Version string `yaml:"version"`

	// RefundThreshold is the monetary floor for refunds. Amounts strictly
	// greater than it require approval; an amount exactly at the threshold
	// does not.
	RefundThreshold float64 `yaml:"refund_threshold"`

	// HighAmount is the floor above which a refund is tiered high rather
	// than medium.
	HighAmount float64 `yaml:"high_amount"`

	// FraudSignals are matched case-insensitively against the refund reason
	// and the originating user text.
	FraudSignals []string `yaml:"fraud_signals"`
}

// DefaultRuleset encodes the operations policy: refunds over $50, any refund
// with fraud/dispute signals, account changes, and ambiguous requests all go
// to a human.
func DefaultRuleset() Ruleset {
	return Ruleset{
		Version:         "2024-11",
		RefundThreshold: 50,
		HighAmount:      500,
		FraudSignals: []string{
			"fraud",
			"fraudulent",
			"chargeback",
			"dispute",
			"disputed",
			"unauthorized",
			"fraude",
			"contracargo",
			"disputa",
			"no autoric",
		},
	}
}

// LoadRuleset reads a YAML rule table, filling unset numeric fields and the
// signal list from the defaults.
func LoadRuleset(path string) (Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Ruleset{}, err
	}
	rs := Ruleset{}
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return Ruleset{}, fmt.Errorf("invalid ruleset yaml: %w", err)
	}
	def := DefaultRuleset()
	if rs.RefundThreshold <= 0 {
		rs.RefundThreshold = def.RefundThreshold
	}
	if rs.HighAmount <= 0 {
		rs.HighAmount = def.HighAmount
	}
	if len(rs.FraudSignals) == 0 {
		rs.FraudSignals = def.FraudSignals
	}
	if strings.TrimSpace(rs.Version) == "" {
		rs.Version = def.Version
	}
	return rs, nil
}

// Classify maps a proposed operation to a require-approval verdict. It is
// pure: no clock, no store, no side effects.
//
// Rule order: account changes first (irreversible), then refunds (fraud
// signals dominate amount so the tier comes out high), then ambiguity.
// Everything else proceeds without a human.
func (rs Ruleset) Classify(req GateRequest) Verdict {
	switch req.OperationType {
	case OpAccountChange:
		return Verdict{Required: true, Tier: RiskHigh, Rule: "account_change"}

	case OpHighValue:
		return Verdict{Required: true, Tier: RiskHigh, Rule: "high_value"}

	case OpRefund:
		if rs.hasFraudSignal(req.Reason) || rs.hasFraudSignal(req.UserText) {
			return Verdict{Required: true, Tier: RiskHigh, Rule: "refund_fraud_signal"}
		}
		if req.Amount == nil {
			// Unknown amount on a monetary operation: conservative default.
			return Verdict{Required: true, Tier: RiskMedium, Rule: "refund_missing_amount"}
		}
		if *req.Amount > rs.RefundThreshold {
			tier := RiskMedium
			if *req.Amount > rs.HighAmount {
				tier = RiskHigh
			}
			return Verdict{Required: true, Tier: tier, Rule: "refund_over_threshold"}
		}
		return Verdict{Required: false, Tier: RiskLow, Rule: "refund_below_threshold"}

	case OpAmbiguous:
		return Verdict{Required: true, Tier: RiskMedium, Rule: "ambiguous"}
	}

	return Verdict{Required: false, Tier: RiskLow, Rule: "default_allow"}
}

func (rs Ruleset) hasFraudSignal(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return false
	}
	for _, sig := range rs.FraudSignals {
		sig = strings.ToLower(strings.TrimSpace(sig))
		if sig == "" {
			continue
		}
		if strings.Contains(text, sig) {
			return true
		}
	}
	return false
}
