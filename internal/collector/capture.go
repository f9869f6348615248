package collector

import (
	"context"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Accumulator counts SYN-flagged TCP packets and distinct TCP destination
// ports between two calls to Swap.
type Accumulator struct {
	mu    sync.Mutex
	syn   int64
	ports map[layers.TCPPort]struct{}
}

func NewAccumulator() *Accumulator {
	return &Accumulator{ports: map[layers.TCPPort]struct{}{}}
}

// Observe records a packet. Every TCP packet contributes its destination
// port; any packet with SYN set, SYN-ACK included, counts as a SYN.
func (a *Accumulator) Observe(p gopacket.Packet) {
	l := p.Layer(layers.LayerTypeTCP)
	if l == nil {
		return
	}
	tcp, _ := l.(*layers.TCP)
	if tcp == nil {
		return
	}
	a.mu.Lock()
	if tcp.SYN {
		a.syn++
	}
	a.ports[tcp.DstPort] = struct{}{}
	a.mu.Unlock()
}

// Swap returns the interval totals and starts a new interval.
func (a *Accumulator) Swap() (syn, uniquePorts int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	syn, uniquePorts = a.syn, int64(len(a.ports))
	a.syn = 0
	a.ports = map[layers.TCPPort]struct{}{}
	return syn, uniquePorts
}

// Capture feeds packets from src into the accumulator until ctx is done or
// the source is exhausted.
func (a *Accumulator) Capture(ctx context.Context, src *gopacket.PacketSource) {
	packets := src.Packets()
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-packets:
			if !ok {
				return
			}
			a.Observe(p)
		}
	}
}
