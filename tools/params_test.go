package tools

import (
	"encoding/json"
	"testing"
)

func TestGetString(t *testing.T) {
	params := map[string]any{"reason": "refund $75", "amount": 75.0}
	if got := GetString(params, "reason"); got != "refund $75" {
		t.Fatalf("got %q", got)
	}
	if got := GetString(params, "missing"); got != "" {
		t.Fatalf("missing key should yield empty, got %q", got)
	}
	if got := GetString(params, "amount"); got != "" {
		t.Fatalf("non-string value should yield empty, got %q", got)
	}
	if got := GetString(nil, "reason"); got != "" {
		t.Fatalf("nil params should yield empty, got %q", got)
	}
}

func TestGetFloat(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  float64
		ok    bool
	}{
		{"float64", 75.5, 75.5, true},
		{"int", 75, 75, true},
		{"int64", int64(75), 75, true},
		{"json.Number", json.Number("75.5"), 75.5, true},
		{"string", "75", 0, false},
		{"bad json.Number", json.Number("abc"), 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := GetFloat(map[string]any{"amount": tc.value}, "amount")
			if ok != tc.ok || got != tc.want {
				t.Fatalf("GetFloat = (%v, %v), want (%v, %v)", got, ok, tc.want, tc.ok)
			}
		})
	}

	if _, ok := GetFloat(nil, "amount"); ok {
		t.Fatal("nil params should report not found")
	}
}
