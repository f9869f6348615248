package risk

import (
	"testing"
	"time"

	"sentinelflow/internal/models"
)

func TestTrim(t *testing.T) {
	history := []models.Sample{
		sampleAt("a", 0, 0),
		sampleAt("a", 30*time.Second, 0),
		sampleAt("a", 90*time.Second, 0),
		sampleAt("a", 150*time.Second, 0),
	}
	cases := []struct {
		name string
		now  time.Time
		want int
	}{
		{"all inside", t0.Add(2 * time.Minute), 4},
		{"boundary kept", t0.Add(150 * time.Second), 3},
		{"drop two", t0.Add(151 * time.Second), 2},
		{"all stale", t0.Add(time.Hour), 0},
	}
	for _, tc := range cases {
		got := Trim(history, tc.now, 2*time.Minute)
		if len(got) != tc.want {
			t.Fatalf("%s: len = %d, want %d", tc.name, len(got), tc.want)
		}
	}
}

func TestTrimPreservesOrderAndInput(t *testing.T) {
	history := []models.Sample{
		sampleAt("a", 60*time.Second, 3),
		sampleAt("a", 0, 1),
		sampleAt("a", 50*time.Second, 2),
	}
	got := Trim(history, t0.Add(2*time.Minute+10*time.Second), 2*time.Minute)
	if len(got) != 2 || got[0].TotalBytes() != 3 || got[1].TotalBytes() != 2 {
		t.Fatalf("unexpected trim result: %+v", got)
	}
	if len(history) != 3 || history[1].TotalBytes() != 1 {
		t.Fatalf("input modified: %+v", history)
	}
}

func TestTrimIdempotent(t *testing.T) {
	history := []models.Sample{
		sampleAt("a", 0, 0),
		sampleAt("a", 70*time.Second, 0),
		sampleAt("a", 140*time.Second, 0),
	}
	now := t0.Add(3 * time.Minute)
	once := Trim(history, now, 2*time.Minute)
	twice := Trim(once, now, 2*time.Minute)
	if len(once) != len(twice) {
		t.Fatalf("len once=%d twice=%d", len(once), len(twice))
	}
	for i := range once {
		if !once[i].Timestamp.Equal(twice[i].Timestamp) {
			t.Fatalf("entry %d differs", i)
		}
	}
}

func TestTrimEmpty(t *testing.T) {
	if got := Trim(nil, t0, time.Minute); len(got) != 0 {
		t.Fatalf("got %d samples from empty history", len(got))
	}
}
