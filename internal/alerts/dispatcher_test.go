package alerts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"sentinelflow/internal/models"
	"sentinelflow/internal/risk"
)

type memJournal struct {
	mu     sync.Mutex
	alerts []models.AlertEvent
	notes  []models.NotificationEvent
}

func (j *memJournal) InsertAlertEvents(_ context.Context, events []models.AlertEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.alerts = append(j.alerts, events...)
	return nil
}

func (j *memJournal) InsertNotificationEvent(_ context.Context, n models.NotificationEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.notes = append(j.notes, n)
	return nil
}

func (j *memJournal) counts() (int, int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.alerts), len(j.notes)
}

type fakeNotifier struct {
	enabled bool
	fail    int
	sent    []string
}

func (f *fakeNotifier) Name() string  { return "fake" }
func (f *fakeNotifier) Enabled() bool { return f.enabled }
func (f *fakeNotifier) Send(_ context.Context, msg string) error {
	if f.fail > 0 {
		f.fail--
		return errors.New("unavailable")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func newTestDispatcher(j *memJournal, n *fakeNotifier, opts Options) *Dispatcher {
	d := NewDispatcher(j, n, slog.New(slog.NewTextHandler(io.Discard, nil)), opts)
	d.backoff = 0
	return d
}

func alertUpdate(agent string, score float64, rules ...risk.RuleID) risk.Update {
	return risk.Update{
		Node:    models.NodeState{AgentID: agent, Hostname: agent + ".local", LastSeen: time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC), RiskScore: score},
		Verdict: risk.Verdict{Risk: score, Alert: "High SYN rate", Fired: rules},
	}
}

func TestNodeUpdatedIgnoresQuietUpdates(t *testing.T) {
	d := newTestDispatcher(&memJournal{}, &fakeNotifier{}, Options{})
	d.NodeUpdated(risk.Update{Node: models.NodeState{AgentID: "a"}})
	d.NodeUpdated(risk.Update{Node: models.NodeState{AgentID: "a"}, First: true})
	if len(d.in) != 0 {
		t.Fatalf("queued %d events, want 0", len(d.in))
	}
}

func TestNodeUpdatedDropsWhenFull(t *testing.T) {
	drops := 0
	d := newTestDispatcher(&memJournal{}, &fakeNotifier{}, Options{QueueSize: 1, OnDrop: func() { drops++ }})
	d.NodeUpdated(alertUpdate("a", 80, risk.RuleSynFlood))
	d.NodeUpdated(alertUpdate("a", 80, risk.RuleSynFlood))
	if drops != 1 {
		t.Fatalf("drops = %d, want 1", drops)
	}
	ev := <-d.in
	if ev.ID == "" || ev.AgentID != "a" || len(ev.Rules) != 1 || ev.Rules[0] != "syn_flood" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestHandleNotifiesWithCooldown(t *testing.T) {
	j := &memJournal{}
	n := &fakeNotifier{enabled: true}
	d := newTestDispatcher(j, n, Options{MinRisk: 70, Cooldown: time.Minute})
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	d.NodeUpdated(alertUpdate("a", 80, risk.RuleSynFlood))
	d.handle(ctx, <-d.in)
	if len(n.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(n.sent))
	}
	alerts, notes := j.counts()
	if alerts != 1 || notes != 1 || j.notes[0].Status != "sent" || j.notes[0].AlertID != j.alerts[0].ID {
		t.Fatalf("journal alerts=%d notes=%+v", alerts, j.notes)
	}

	now = now.Add(30 * time.Second)
	d.NodeUpdated(alertUpdate("a", 90, risk.RuleSynFlood))
	d.handle(ctx, <-d.in)
	if len(n.sent) != 1 {
		t.Fatalf("cooldown ignored, sent = %d", len(n.sent))
	}

	d.NodeUpdated(alertUpdate("b", 55, risk.RuleSpike))
	d.handle(ctx, <-d.in)
	if len(n.sent) != 1 {
		t.Fatalf("below min risk notified, sent = %d", len(n.sent))
	}

	now = now.Add(time.Minute)
	d.NodeUpdated(alertUpdate("a", 90, risk.RuleSynFlood))
	d.handle(ctx, <-d.in)
	if len(n.sent) != 2 {
		t.Fatalf("sent = %d after cooldown, want 2", len(n.sent))
	}
}

func TestSendNotificationRetriesThenRecordsFailure(t *testing.T) {
	j := &memJournal{}
	n := &fakeNotifier{enabled: true, fail: 5}
	d := newTestDispatcher(j, n, Options{MinRisk: 0})
	d.NodeUpdated(alertUpdate("a", 80, risk.RulePortScan))
	d.handle(context.Background(), <-d.in)

	if len(j.notes) != 1 {
		t.Fatalf("notes = %d, want 1", len(j.notes))
	}
	got := j.notes[0]
	if got.Status != "failed" || got.Attempts != 3 || got.LastError != "unavailable" {
		t.Fatalf("unexpected notification event: %+v", got)
	}
	if n.fail != 2 {
		t.Fatalf("attempts made = %d, want 3", 5-n.fail)
	}
}

func TestRunFlushesOnShutdown(t *testing.T) {
	j := &memJournal{}
	d := newTestDispatcher(j, &fakeNotifier{}, Options{})
	for i := 0; i < 5; i++ {
		d.NodeUpdated(alertUpdate("a", 55, risk.RuleSpike))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if alerts, _ := j.counts(); alerts != 5 {
		t.Fatalf("journaled %d alerts, want 5", alerts)
	}
}
