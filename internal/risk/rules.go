// Package risk keeps a rolling per-agent traffic baseline and scores each new
// sample against it.
package risk

import (
	"fmt"
	"log/slog"
	"time"
)

type RuleID string

const (
	RuleSpike    RuleID = "traffic_spike"
	RuleIdleLoud RuleID = "idle_to_loud"
	RuleSynFlood RuleID = "syn_flood"
	RulePortScan RuleID = "port_scan"
)

const MaxRisk = 100.0

// Rules holds every detection threshold used by Evaluate.
type Rules struct {
	Window            time.Duration `yaml:"window"`
	SpikeMultiplier   float64       `yaml:"spike_multiplier"`
	MinBaselineBPS    float64       `yaml:"min_baseline_bps"`
	IdleLoudBPS       float64       `yaml:"idle_loud_bps"`
	SynFloodThreshold int64         `yaml:"syn_flood_threshold"`
	PortScanThreshold int64         `yaml:"port_scan_threshold"`
	DecayStep         float64       `yaml:"decay_step"`

	SpikeBaseRisk  float64 `yaml:"-"`
	SpikeRiskSlope float64 `yaml:"-"`
	IdleLoudRisk   float64 `yaml:"-"`
	SynFloodRisk   float64 `yaml:"-"`
	PortScanRisk   float64 `yaml:"-"`
}

func DefaultRules() Rules {
	return Rules{
		Window:            2 * time.Minute,
		SpikeMultiplier:   5.0,
		MinBaselineBPS:    10_000,
		IdleLoudBPS:       1_000_000,
		SynFloodThreshold: 500,
		PortScanThreshold: 50,
		DecayStep:         5.0,
		SpikeBaseRisk:     50,
		SpikeRiskSlope:    5,
		IdleLoudRisk:      60,
		SynFloodRisk:      80,
		PortScanRisk:      70,
	}
}

func (r Rules) Validate() error {
	switch {
	case r.Window <= 0:
		return fmt.Errorf("window must be positive, got %s", r.Window)
	case r.SpikeMultiplier <= 0:
		return fmt.Errorf("spike_multiplier must be positive, got %v", r.SpikeMultiplier)
	case r.MinBaselineBPS <= 0:
		return fmt.Errorf("min_baseline_bps must be positive, got %v", r.MinBaselineBPS)
	case r.IdleLoudBPS <= 0:
		return fmt.Errorf("idle_loud_bps must be positive, got %v", r.IdleLoudBPS)
	case r.SynFloodThreshold <= 0:
		return fmt.Errorf("syn_flood_threshold must be positive, got %d", r.SynFloodThreshold)
	case r.PortScanThreshold <= 0:
		return fmt.Errorf("port_scan_threshold must be positive, got %d", r.PortScanThreshold)
	case r.DecayStep < 0:
		return fmt.Errorf("decay_step must not be negative, got %v", r.DecayStep)
	}
	return nil
}

// LogValue reports the tunable thresholds.
func (r Rules) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Duration("window", r.Window),
		slog.Float64("spike_multiplier", r.SpikeMultiplier),
		slog.Float64("min_baseline_bps", r.MinBaselineBPS),
		slog.Float64("idle_loud_bps", r.IdleLoudBPS),
		slog.Int64("syn_flood_threshold", r.SynFloodThreshold),
		slog.Int64("port_scan_threshold", r.PortScanThreshold),
		slog.Float64("decay_step", r.DecayStep),
	)
}
