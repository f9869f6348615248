package retention

import (
	"context"
	"log/slog"
	"time"
)

type Journal interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Evictor interface {
	EvictIdle(cutoff time.Time) []string
}

// Service prunes the alert journal and, when nodeTTL > 0, evicts ledgers
// that have not reported for longer than nodeTTL.
type Service struct {
	journal       Journal
	nodes         Evictor
	retentionDays int
	nodeTTL       time.Duration
	log           *slog.Logger
	now           func() time.Time
}

func NewService(journal Journal, nodes Evictor, days int, nodeTTL time.Duration, logger *slog.Logger) *Service {
	if days <= 0 {
		days = 14
	}
	return &Service{journal: journal, nodes: nodes, retentionDays: days, nodeTTL: nodeTTL, log: logger, now: time.Now}
}

func (s *Service) Run(ctx context.Context) {
	now := s.now().UTC()
	cutoff := now.AddDate(0, 0, -s.retentionDays)
	if n, err := s.journal.DeleteOlderThan(ctx, cutoff); err != nil {
		s.log.Error("retention cleanup failed", "err", err)
	} else {
		s.log.Info("retention cleanup completed", "cutoff", cutoff, "deleted", n)
	}

	if s.nodeTTL <= 0 || s.nodes == nil {
		return
	}
	s.nodes.EvictIdle(now.Add(-s.nodeTTL))
}
