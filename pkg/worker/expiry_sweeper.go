package worker

import (
	"context"
	"time"

	"github.com/medflow/waitlist-api/internal/service/waitlist"
	"github.com/medflow/waitlist-api/pkg/logger"
	"github.com/medflow/waitlist-api/pkg/metrics"
)

type ExpirySweeperConfig struct {
	Interval  time.Duration
	BatchSize int
}

// ExpirySweeper is the time-based collaborator that transitions passed-due
// entries to expired. The engine only computes expiry timestamps; this loop
// is the one place where the clock drives state.
type ExpirySweeper struct {
	svc     *waitlist.Service
	config  ExpirySweeperConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewExpirySweeper(svc *waitlist.Service, config ExpirySweeperConfig, logger *logger.Logger, metrics *metrics.Metrics) *ExpirySweeper {
	if config.Interval <= 0 {
		panic("Interval must be greater than 0")
	}
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	return &ExpirySweeper{
		svc:     svc,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

func (s *ExpirySweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Info("starting expiry sweeper")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down expiry sweeper")
			return
		case <-ticker.C:
			expired, err := s.svc.ExpireDue(ctx, time.Now(), s.config.BatchSize)
			if err != nil {
				s.logger.Error(err, "expiry sweep failed", "expired", expired)
				continue
			}
			if expired > 0 {
				s.metrics.EntriesExpired.Add(float64(expired))
				s.logger.Info("expired waitlist entries", "count", expired)
			}
		}
	}
}
