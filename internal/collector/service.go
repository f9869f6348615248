package collector

import (
	"context"
	"log/slog"
	"time"

	"sentinelflow/internal/models"
)

// Service builds one sample per tick and reports it.
type Service struct {
	agentID  string
	hostname string
	host     *HostCollector
	capture  *Accumulator
	reporter *Reporter
	log      *slog.Logger
	now      func() time.Time
}

// NewService wires the agent loop. capture may be nil, in which case the
// optional SYN and port counters are sent as null.
func NewService(agentID, hostname string, host *HostCollector, capture *Accumulator, reporter *Reporter, logger *slog.Logger) *Service {
	return &Service{
		agentID:  agentID,
		hostname: hostname,
		host:     host,
		capture:  capture,
		reporter: reporter,
		log:      logger,
		now:      time.Now,
	}
}

func (s *Service) Sample() (models.Sample, error) {
	c, err := s.host.Collect()
	if err != nil {
		return models.Sample{}, err
	}
	sample := models.Sample{
		AgentID:     s.agentID,
		Hostname:    s.hostname,
		Timestamp:   s.now().UTC(),
		BytesSent:   int64(c.BytesSent),
		BytesRecv:   int64(c.BytesRecv),
		PacketsSent: int64(c.PacketsSent),
		PacketsRecv: int64(c.PacketsRecv),
	}
	if s.capture != nil {
		syn, ports := s.capture.Swap()
		sample.SynCount = models.Count(syn)
		sample.UniqueDstPorts = models.Count(ports)
	}
	return sample, nil
}

func (s *Service) Tick(ctx context.Context) {
	sample, err := s.Sample()
	if err != nil {
		s.log.Warn("collect interface counters", "err", err)
		return
	}
	ack, err := s.reporter.Report(ctx, sample)
	if err != nil {
		s.log.Error("report sample", "err", err)
		return
	}
	if ack.LastAlert != nil && ack.RiskScore > 0 {
		s.log.Warn("server flagged this node", "risk_score", ack.RiskScore, "last_alert", *ack.LastAlert)
		return
	}
	s.log.Debug("sample reported", "risk_score", ack.RiskScore, "bytes", sample.TotalBytes())
}

// Run ticks every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Tick(ctx)
		}
	}
}
