package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// OptionalCount is a per-interval counter that an agent may be unable to
// observe. Valid=false means "no visibility", which is distinct from an
// observed zero.
type OptionalCount struct {
	N     int64
	Valid bool
}

func Count(n int64) OptionalCount { return OptionalCount{N: n, Valid: true} }

func (c OptionalCount) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(c.N, 10)), nil
}

// UnmarshalJSON accepts null, an integer, or a float with no fractional part
// such as 600.0.
func (c *OptionalCount) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*c = OptionalCount{}
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	if n, err := num.Int64(); err == nil {
		*c = OptionalCount{N: n, Valid: true}
		return nil
	}
	f, err := num.Float64()
	if err != nil {
		return err
	}
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return fmt.Errorf("count %s is not an integer", num)
	}
	*c = OptionalCount{N: int64(f), Valid: true}
	return nil
}

// Sample is one agent's report for one interval. Byte and packet counters are
// cumulative OS totals, SynCount and UniqueDstPorts are per-interval.
type Sample struct {
	AgentID        string        `json:"agent_id"`
	Hostname       string        `json:"hostname"`
	Timestamp      time.Time     `json:"timestamp"`
	BytesSent      int64         `json:"bytes_sent"`
	BytesRecv      int64         `json:"bytes_recv"`
	PacketsSent    int64         `json:"packets_sent"`
	PacketsRecv    int64         `json:"packets_recv"`
	SynCount       OptionalCount `json:"syn_count"`
	UniqueDstPorts OptionalCount `json:"unique_dst_ports"`
}

func (s Sample) TotalBytes() int64 { return s.BytesSent + s.BytesRecv }

// NodeState is a value copy of a node ledger.
type NodeState struct {
	AgentID   string    `json:"agent_id"`
	Hostname  string    `json:"hostname"`
	LastSeen  time.Time `json:"last_seen"`
	History   []Sample  `json:"history"`
	RiskScore float64   `json:"risk_score"`
	LastAlert *string   `json:"last_alert"`
}

type AlertEvent struct {
	ID          string    `json:"id"`
	TS          time.Time `json:"ts"`
	AgentID     string    `json:"agent_id"`
	Hostname    string    `json:"hostname"`
	RiskScore   float64   `json:"risk_score"`
	Rules       []string  `json:"rules"`
	Message     string    `json:"message"`
	BaselineBPS float64   `json:"baseline_bps"`
	CurrentBPS  float64   `json:"current_bps"`
}

type NotificationEvent struct {
	AlertID   string
	Channel   string
	Status    string
	Attempts  int
	LastError string
	SentAt    *time.Time
}
