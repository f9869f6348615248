package risk

import (
	"io"
	"log/slog"
	"time"

	"sentinelflow/internal/models"
)

var t0 = time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

func sampleAt(agent string, offset time.Duration, totalBytes int64) models.Sample {
	return models.Sample{
		AgentID:   agent,
		Hostname:  agent + ".local",
		Timestamp: t0.Add(offset),
		BytesSent: totalBytes / 2,
		BytesRecv: totalBytes - totalBytes/2,
	}
}

// testClock returns a clock the test can move.
type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestEngine(clock *testClock) *Engine {
	e := NewEngine(NewRegistry(), DefaultRules(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.now = clock.Now
	return e
}

// feed ingests s with the clock set to the sample timestamp.
func feed(e *Engine, clock *testClock, s models.Sample) models.NodeState {
	clock.now = s.Timestamp
	return e.Ingest(s)
}
