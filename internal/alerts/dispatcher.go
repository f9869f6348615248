// Package alerts journals engine alerts and forwards the serious ones to a
// notification channel, off the ingest path.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sentinelflow/internal/models"
	"sentinelflow/internal/risk"
)

type Journal interface {
	InsertAlertEvents(ctx context.Context, events []models.AlertEvent) error
	InsertNotificationEvent(ctx context.Context, n models.NotificationEvent) error
}

type Notifier interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, msg string) error
}

type Options struct {
	MinRisk   float64
	Cooldown  time.Duration
	QueueSize int
	OnDrop    func()
}

const (
	maxBatch      = 200
	flushInterval = 2 * time.Second
	sendAttempts  = 3
)

type Dispatcher struct {
	journal  Journal
	notify   Notifier
	log      *slog.Logger
	opts     Options
	now      func() time.Time
	backoff  time.Duration
	in       chan models.AlertEvent
	lastSent map[string]time.Time
	batch    []models.AlertEvent
}

func NewDispatcher(journal Journal, notify Notifier, logger *slog.Logger, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	return &Dispatcher{
		journal:  journal,
		notify:   notify,
		log:      logger,
		opts:     opts,
		now:      time.Now,
		backoff:  300 * time.Millisecond,
		in:       make(chan models.AlertEvent, opts.QueueSize),
		lastSent: map[string]time.Time{},
		batch:    make([]models.AlertEvent, 0, maxBatch),
	}
}

// NodeUpdated implements risk.Listener. It never blocks; when the queue is
// full the event is dropped.
func (d *Dispatcher) NodeUpdated(u risk.Update) {
	if !u.Verdict.Alerted() {
		return
	}
	rules := make([]string, 0, len(u.Verdict.Fired))
	for _, r := range u.Verdict.Fired {
		rules = append(rules, string(r))
	}
	ev := models.AlertEvent{
		ID:          uuid.NewString(),
		TS:          u.Node.LastSeen,
		AgentID:     u.Node.AgentID,
		Hostname:    u.Node.Hostname,
		RiskScore:   u.Verdict.Risk,
		Rules:       rules,
		Message:     u.Verdict.Alert,
		BaselineBPS: u.Verdict.BaselineBPS,
		CurrentBPS:  u.Verdict.CurrentBPS,
	}
	select {
	case d.in <- ev:
	default:
		if d.opts.OnDrop != nil {
			d.opts.OnDrop()
		}
		d.log.Warn("alert queue full, dropping event", "agent_id", ev.AgentID)
	}
}

// Run consumes queued events until ctx is done, then drains and flushes what
// is left.
func (d *Dispatcher) Run(ctx context.Context) {
	t := time.NewTicker(flushInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case ev := <-d.in:
			d.handle(ctx, ev)
		case <-t.C:
			d.flush(ctx)
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-d.in:
			d.batch = append(d.batch, ev)
		default:
			d.flush(ctx)
			return
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev models.AlertEvent) {
	d.batch = append(d.batch, ev)
	if d.shouldNotify(ev) {
		// the notification row references the alert row
		d.flush(ctx)
		d.sendNotification(ctx, ev)
		return
	}
	if len(d.batch) >= maxBatch {
		d.flush(ctx)
	}
}

func (d *Dispatcher) flush(ctx context.Context) {
	if len(d.batch) == 0 {
		return
	}
	if err := d.journal.InsertAlertEvents(ctx, d.batch); err != nil {
		d.log.Error("insert alert events", "err", err, "count", len(d.batch))
	}
	d.batch = d.batch[:0]
}

func (d *Dispatcher) shouldNotify(ev models.AlertEvent) bool {
	if d.notify == nil || !d.notify.Enabled() || ev.RiskScore < d.opts.MinRisk {
		return false
	}
	last, ok := d.lastSent[ev.AgentID]
	return !ok || d.now().Sub(last) >= d.opts.Cooldown
}

func (d *Dispatcher) sendNotification(ctx context.Context, ev models.AlertEvent) {
	msg := fmt.Sprintf("ALERT %s (%s) risk=%.1f: %s", ev.AgentID, ev.Hostname, ev.RiskScore, ev.Message)
	attempts := 0
	var err error
retry:
	for attempts < sendAttempts {
		attempts++
		err = d.notify.Send(ctx, msg)
		if err == nil {
			now := d.now().UTC()
			d.lastSent[ev.AgentID] = now
			d.record(ctx, models.NotificationEvent{AlertID: ev.ID, Channel: d.notify.Name(), Status: "sent", Attempts: attempts, SentAt: &now})
			return
		}
		if attempts == sendAttempts {
			break
		}
		select {
		case <-ctx.Done():
			break retry
		case <-time.After(time.Duration(attempts) * d.backoff):
		}
	}
	d.record(ctx, models.NotificationEvent{AlertID: ev.ID, Channel: d.notify.Name(), Status: "failed", Attempts: attempts, LastError: err.Error()})
	d.log.Warn("notify failed", "agent_id", ev.AgentID, "err", err)
}

func (d *Dispatcher) record(ctx context.Context, n models.NotificationEvent) {
	if err := d.journal.InsertNotificationEvent(ctx, n); err != nil {
		d.log.Error("insert notification event", "err", err, "alert_id", n.AlertID)
	}
}
