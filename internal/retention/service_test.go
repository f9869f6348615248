package retention

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeJournal struct {
	cutoff time.Time
	err    error
}

func (f *fakeJournal) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 3, f.err
}

type fakeEvictor struct {
	cutoff time.Time
	calls  int
}

func (f *fakeEvictor) EvictIdle(cutoff time.Time) []string {
	f.cutoff = cutoff
	f.calls++
	return []string{"stale"}
}

var now = time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

func TestRunPrunesJournalOnlyByDefault(t *testing.T) {
	j, ev := &fakeJournal{}, &fakeEvictor{}
	s := NewService(j, ev, 0, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return now }
	s.Run(context.Background())

	if !j.cutoff.Equal(now.AddDate(0, 0, -14)) {
		t.Fatalf("cutoff = %v", j.cutoff)
	}
	if ev.calls != 0 {
		t.Fatal("eviction ran with node TTL disabled")
	}
}

func TestRunEvictsIdleNodes(t *testing.T) {
	j, ev := &fakeJournal{err: errors.New("locked")}, &fakeEvictor{}
	s := NewService(j, ev, 7, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return now }
	s.Run(context.Background())

	if ev.calls != 1 || !ev.cutoff.Equal(now.Add(-time.Hour)) {
		t.Fatalf("evict calls=%d cutoff=%v", ev.calls, ev.cutoff)
	}
}
