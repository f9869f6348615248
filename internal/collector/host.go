package collector

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
)

// Counters are cumulative interface totals as reported by the kernel.
type Counters struct {
	BytesRecv   uint64
	PacketsRecv uint64
	BytesSent   uint64
	PacketsSent uint64
}

// HostCollector reads cumulative interface totals from /proc/net/dev. The
// server derives throughput from consecutive totals, so no deltas are taken
// here.
type HostCollector struct {
	path  string
	iface string
}

// NewHostCollector sums all non-loopback interfaces unless iface is set.
func NewHostCollector(iface string) *HostCollector {
	return &HostCollector{path: "/proc/net/dev", iface: iface}
}

func (h *HostCollector) Collect() (Counters, error) {
	f, err := os.Open(h.path)
	if err != nil {
		return Counters{}, err
	}
	defer f.Close()
	return parseNetDev(f, h.iface)
}

func parseNetDev(r io.Reader, iface string) (Counters, error) {
	var c Counters
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if !strings.Contains(line, ":") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		name := strings.TrimSpace(parts[0])
		if name == "lo" || (iface != "" && name != iface) {
			continue
		}
		vals := strings.Fields(parts[1])
		if len(vals) < 16 {
			continue
		}
		rb, _ := strconv.ParseUint(vals[0], 10, 64)
		rp, _ := strconv.ParseUint(vals[1], 10, 64)
		tb, _ := strconv.ParseUint(vals[8], 10, 64)
		tp, _ := strconv.ParseUint(vals[9], 10, 64)
		c.BytesRecv += rb
		c.PacketsRecv += rp
		c.BytesSent += tb
		c.PacketsSent += tp
	}
	return c, s.Err()
}
