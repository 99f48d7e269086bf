package sentinel

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rules is the sentinel's phrase table. It is versioned separately from the
// policy classifier's ruleset on purpose: the sentinel trades precision for
// recall and the two tables must stay testable in isolation.
type Rules struct {
	Version       string   `yaml:"version"`
	IntentPhrases []string `yaml:"intent_phrases"`
}

func DefaultRules() Rules {
	return Rules{
		Version: "2024-11",
		IntentPhrases: []string{
			"refund",
			"refound",
			"reembolso",
			"rembolso",
			"devolución",
			"devolucion",
			"devolver el dinero",
			"money back",
			"chargeback",
			"contracargo",
		},
	}
}

// LoadRules reads a YAML phrase table; an empty file falls back to defaults.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, err
	}
	r := Rules{}
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rules{}, fmt.Errorf("invalid sentinel rules yaml: %w", err)
	}
	if len(r.IntentPhrases) == 0 {
		r.IntentPhrases = DefaultRules().IntentPhrases
	}
	if strings.TrimSpace(r.Version) == "" {
		r.Version = DefaultRules().Version
	}
	return r, nil
}
