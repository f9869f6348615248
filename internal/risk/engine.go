package risk

import (
	"fmt"
	"log/slog"
	"time"

	"sentinelflow/internal/models"
)

// Update is delivered to listeners after every ingest. First is set when the
// sample created the ledger, in which case Verdict is zero. Evicted updates
// carry only Node.AgentID.
//
// Seq increases with every update to a ledger. Listeners run outside the
// ledger lock and may see updates for one agent out of order; an update whose
// Seq is not above the last one seen for that agent is stale.
type Update struct {
	Node    models.NodeState
	Verdict Verdict
	First   bool
	Evicted bool
	Seq     uint64
}

// Listener is notified after the ledger lock is released. Implementations
// must not block.
type Listener interface {
	NodeUpdated(u Update)
}

type ListenerFunc func(u Update)

func (f ListenerFunc) NodeUpdated(u Update) { f(u) }

type Engine struct {
	reg       *Registry
	rules     Rules
	log       *slog.Logger
	now       func() time.Time
	listeners []Listener
}

func NewEngine(reg *Registry, rules Rules, logger *slog.Logger) *Engine {
	return &Engine{reg: reg, rules: rules, log: logger, now: time.Now}
}

// Subscribe registers l. It is not safe to call concurrently with Ingest.
func (e *Engine) Subscribe(l Listener) {
	e.listeners = append(e.listeners, l)
}

func (e *Engine) Rules() Rules { return e.rules }

// Ingest applies s to its agent's ledger and returns the updated snapshot.
// The first sample for an agent only creates the ledger.
func (e *Engine) Ingest(s models.Sample) models.NodeState {
	now := e.now().UTC()
	l, created := e.reg.acquire(s, now)
	if created {
		node, seq := l.snapshot(), e.reg.next()
		l.mu.Unlock()
		e.log.Info("new node", "agent_id", s.AgentID, "hostname", s.Hostname)
		e.notify(Update{Node: node, First: true, Seq: seq})
		return node
	}

	l.lastSeen = now
	l.hostname = s.Hostname
	l.history = Trim(append(l.history, s), now, e.rules.Window)

	v := Evaluate(l.risk, l.history, s, e.rules)
	l.risk = v.Risk
	if v.Alerted() {
		msg := fmt.Sprintf("[%s] %s", now.Format(time.RFC3339Nano), v.Alert)
		l.lastAlert = &msg
	}
	node, seq := l.snapshot(), e.reg.next()
	l.mu.Unlock()

	e.log.Debug("evaluated",
		"agent_id", s.AgentID,
		"baseline_bps", v.BaselineBPS,
		"current_bps", v.CurrentBPS,
		"risk", v.Risk,
		"history", len(node.History),
	)
	e.notify(Update{Node: node, Verdict: v, Seq: seq})
	return node
}

func (e *Engine) notify(u Update) {
	for _, l := range e.listeners {
		l.NodeUpdated(u)
	}
}

func (e *Engine) ListNodes() []models.NodeState { return e.reg.Snapshots() }

func (e *Engine) Node(agentID string) (models.NodeState, bool) { return e.reg.Get(agentID) }

// EvictIdle drops ledgers not updated since cutoff and tells listeners.
func (e *Engine) EvictIdle(cutoff time.Time) []string {
	ids, mark := e.reg.EvictIdle(cutoff)
	if len(ids) == 0 {
		return nil
	}
	e.log.Info("evicted idle nodes", "count", len(ids), "cutoff", cutoff)
	for _, id := range ids {
		e.notify(Update{Node: models.NodeState{AgentID: id}, Evicted: true, Seq: mark})
	}
	return ids
}
