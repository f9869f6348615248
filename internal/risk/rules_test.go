package risk

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func TestEngineRulesAreLoggable(t *testing.T) {
	rules := DefaultRules()
	rules.SynFloodThreshold = 42
	e := NewEngine(NewRegistry(), rules, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	if e.Rules() != rules {
		t.Fatalf("Rules() = %+v, want configured rules", e.Rules())
	}

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("ready", "rules", e.Rules())
	var line struct {
		Rules map[string]any `json:"rules"`
	}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line.Rules["syn_flood_threshold"] != float64(42) {
		t.Fatalf("logged rules = %v", line.Rules)
	}
	if line.Rules["window"] != float64(2*time.Minute) {
		t.Fatalf("logged window = %v", line.Rules["window"])
	}
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	if err := DefaultRules().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	r := DefaultRules()
	r.Window = 0
	if err := r.Validate(); err == nil {
		t.Fatal("expected error for zero window")
	}
	r = DefaultRules()
	r.DecayStep = -1
	if err := r.Validate(); err == nil {
		t.Fatal("expected error for negative decay")
	}
}
