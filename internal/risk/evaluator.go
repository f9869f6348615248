package risk

import (
	"fmt"
	"math"
	"strings"

	"sentinelflow/internal/models"
)

// Verdict is the outcome of scoring one sample.
type Verdict struct {
	Risk        float64
	Alert       string
	Fired       []RuleID
	BaselineBPS float64
	CurrentBPS  float64
}

func (v Verdict) Alerted() bool { return len(v.Fired) > 0 }

// Evaluate scores the newest sample. history is the trimmed ledger history
// with the new sample already appended; prevRisk is the ledger's stored score.
//
// The spike and idle-to-loud rules are mutually exclusive. SYN-flood and
// port-scan are checked independently and only ever raise the score. When no
// rule fires the score decays by DecayStep.
func Evaluate(prevRisk float64, history []models.Sample, sample models.Sample, rules Rules) Verdict {
	v := Verdict{Risk: prevRisk}
	if len(history) > 1 {
		v.BaselineBPS = EstimateBPS(history[:len(history)-1])
	}
	v.CurrentBPS = currentBPS(history)

	var msgs []string
	switch {
	case v.BaselineBPS >= rules.MinBaselineBPS && v.CurrentBPS > v.BaselineBPS*rules.SpikeMultiplier:
		ratio := v.CurrentBPS / v.BaselineBPS
		v.Risk = math.Min(MaxRisk, rules.SpikeBaseRisk+(ratio-rules.SpikeMultiplier)*rules.SpikeRiskSlope)
		v.Fired = append(v.Fired, RuleSpike)
		msgs = append(msgs, fmt.Sprintf("Traffic spike: %.0f B/s vs baseline %.0f B/s (~%.1fx)", v.CurrentBPS, v.BaselineBPS, ratio))
	case v.BaselineBPS < rules.MinBaselineBPS && v.CurrentBPS > rules.IdleLoudBPS:
		v.Risk = math.Max(v.Risk, rules.IdleLoudRisk)
		v.Fired = append(v.Fired, RuleIdleLoud)
		msgs = append(msgs, fmt.Sprintf("Idle node went to high traffic: %.0f B/s", v.CurrentBPS))
	}

	if sample.SynCount.Valid && sample.SynCount.N > rules.SynFloodThreshold {
		v.Risk = math.Max(v.Risk, rules.SynFloodRisk)
		v.Fired = append(v.Fired, RuleSynFlood)
		msgs = append(msgs, fmt.Sprintf("High SYN rate: %d SYN packets in this interval", sample.SynCount.N))
	}
	if sample.UniqueDstPorts.Valid && sample.UniqueDstPorts.N > rules.PortScanThreshold {
		v.Risk = math.Max(v.Risk, rules.PortScanRisk)
		v.Fired = append(v.Fired, RulePortScan)
		msgs = append(msgs, fmt.Sprintf("Possible port scan: %d unique destination ports", sample.UniqueDstPorts.N))
	}

	if len(msgs) == 0 {
		v.Risk = math.Max(0, v.Risk-rules.DecayStep)
	}
	v.Risk = clamp(v.Risk)
	v.Alert = strings.Join(msgs, " | ")
	return v
}

func clamp(r float64) float64 {
	if math.IsNaN(r) || r < 0 {
		return 0
	}
	if r > MaxRisk {
		return MaxRisk
	}
	return r
}
