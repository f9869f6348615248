package risk

import (
	"sync"
	"sync/atomic"
	"time"

	"sentinelflow/internal/models"
)

type ledger struct {
	mu        sync.Mutex
	agentID   string
	hostname  string
	lastSeen  time.Time
	history   []models.Sample
	risk      float64
	lastAlert *string
	evicted   bool
}

// snapshot must be called with l.mu held.
func (l *ledger) snapshot() models.NodeState {
	st := models.NodeState{
		AgentID:   l.agentID,
		Hostname:  l.hostname,
		LastSeen:  l.lastSeen,
		History:   append([]models.Sample(nil), l.history...),
		RiskScore: l.risk,
	}
	if l.lastAlert != nil {
		a := *l.lastAlert
		st.LastAlert = &a
	}
	return st
}

// Registry owns every node ledger. The map is guarded by mu, each ledger by
// its own lock, so updates for different agents do not contend. Lock order is
// always Registry.mu before ledger.mu.
type Registry struct {
	mu      sync.RWMutex
	ledgers map[string]*ledger
	order   []string
	seq     atomic.Uint64
}

func NewRegistry() *Registry {
	return &Registry{ledgers: make(map[string]*ledger)}
}

// acquire returns the ledger for s.AgentID with its lock held. When no ledger
// exists one is created holding s as its only sample and the second result is true.
func (r *Registry) acquire(s models.Sample, now time.Time) (*ledger, bool) {
	for {
		r.mu.RLock()
		l, ok := r.ledgers[s.AgentID]
		r.mu.RUnlock()
		if !ok {
			r.mu.Lock()
			l, ok = r.ledgers[s.AgentID]
			if !ok {
				l = &ledger{
					agentID:  s.AgentID,
					hostname: s.Hostname,
					lastSeen: now,
					history:  []models.Sample{s},
				}
				l.mu.Lock()
				r.ledgers[s.AgentID] = l
				r.order = append(r.order, s.AgentID)
				r.mu.Unlock()
				return l, true
			}
			r.mu.Unlock()
		}
		l.mu.Lock()
		if !l.evicted {
			return l, false
		}
		// evicted between lookup and lock; retry against the current map
		l.mu.Unlock()
	}
}

func (r *Registry) Get(agentID string) (models.NodeState, bool) {
	r.mu.RLock()
	l, ok := r.ledgers[agentID]
	r.mu.RUnlock()
	if !ok {
		return models.NodeState{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.evicted {
		return models.NodeState{}, false
	}
	return l.snapshot(), true
}

// Snapshots returns value copies of all ledgers in creation order.
func (r *Registry) Snapshots() []models.NodeState {
	r.mu.RLock()
	ls := make([]*ledger, 0, len(r.order))
	for _, id := range r.order {
		ls = append(ls, r.ledgers[id])
	}
	r.mu.RUnlock()

	out := make([]models.NodeState, 0, len(ls))
	for _, l := range ls {
		l.mu.Lock()
		if !l.evicted {
			out = append(out, l.snapshot())
		}
		l.mu.Unlock()
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ledgers)
}

// next issues an update sequence number. Callers hold the ledger lock, so
// sequence numbers follow the order in which a ledger's updates were applied.
func (r *Registry) next() uint64 { return r.seq.Add(1) }

// EvictIdle removes every ledger last updated before cutoff and returns the
// removed agent IDs together with a watermark: every update applied to an
// evicted ledger has a sequence number at or below it, and every update to a
// ledger created afterwards is above it.
func (r *Registry) EvictIdle(cutoff time.Time) ([]string, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted []string
	kept := r.order[:0]
	for _, id := range r.order {
		l := r.ledgers[id]
		l.mu.Lock()
		if l.lastSeen.Before(cutoff) {
			l.evicted = true
			delete(r.ledgers, id)
			evicted = append(evicted, id)
		} else {
			kept = append(kept, id)
		}
		l.mu.Unlock()
	}
	r.order = kept
	return evicted, r.seq.Load()
}
