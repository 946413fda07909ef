package scheduler

import (
	"context"
	"time"

	"leadrouting_backend/internal/routing/repository"
	"leadrouting_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultSweepInterval = time.Hour

// StaleProposalSweep periodically rejects proposals that have waited for a
// manual decision longer than the configured age. A stale proposal blocks
// nothing: the item can be re-proposed after any config change.
type StaleProposalSweep struct {
	repo     *repository.Repository
	log      *logger.Logger
	interval time.Duration
	maxAge   time.Duration
}

func NewStaleProposalSweep(pool *pgxpool.Pool, log *logger.Logger, interval, maxAge time.Duration) *StaleProposalSweep {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &StaleProposalSweep{
		repo:     repository.New(pool),
		log:      log,
		interval: interval,
		maxAge:   maxAge,
	}
}

func (s *StaleProposalSweep) Run(ctx context.Context) {
	if s == nil || s.repo == nil || s.maxAge <= 0 {
		return
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *StaleProposalSweep) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.maxAge)
	rejected, err := s.repo.RejectStaleProposed(ctx, cutoff)
	if err != nil {
		s.log.Warn("stale proposal sweep failed", "error", err)
		return
	}
	if rejected > 0 {
		s.log.Info("stale proposal sweep rejected proposals", "rejected", rejected)
	}
}
