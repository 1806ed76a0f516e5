package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const sweepTimeout = 1 * time.Minute

// CacheSweeper drops expired statistics cache entries.
type CacheSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// SessionSweeper drops conversational sessions that lapsed before now.
type SessionSweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// MaintenanceScheduler runs the periodic housekeeping jobs.
type MaintenanceScheduler struct {
	cronEngine    *cron.Cron
	cache         CacheSweeper
	sessions      SessionSweeper
	logger        *logrus.Entry
	cronSpecSweep string
	now           func() time.Time
}

func NewMaintenanceScheduler(
	cache CacheSweeper,
	sessions SessionSweeper,
	loc *time.Location,
	cronSpecSweep string, // e.g. "*/30 * * * *"
	logger *logrus.Entry,
) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		cronEngine:    cron.New(cron.WithLocation(loc)),
		cache:         cache,
		sessions:      sessions,
		logger:        logger,
		cronSpecSweep: cronSpecSweep,
		now:           time.Now,
	}
}

// Start registers the jobs and starts the cron engine.
func (s *MaintenanceScheduler) Start() error {
	s.logger.Info("Starting maintenance scheduler...")

	if _, err := s.cronEngine.AddFunc(s.cronSpecSweep, s.sweep); err != nil {
		return fmt.Errorf("could not add sweep job %q: %w", s.cronSpecSweep, err)
	}

	s.cronEngine.Start()
	s.logger.WithField("schedule", s.cronSpecSweep).Info("Maintenance scheduler started")
	return nil
}

// sweep removes expired cache entries and sessions. A failure in one does
// not skip the other.
func (s *MaintenanceScheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	jobLogger := s.logger.WithField("job", "sweep")

	if n, err := s.cache.SweepExpired(ctx); err != nil {
		jobLogger.WithError(err).Error("Failed to sweep expired stats cache entries")
	} else if n > 0 {
		jobLogger.WithField("removed", n).Info("Swept expired stats cache entries")
	}

	if n, err := s.sessions.DeleteExpired(ctx, s.now()); err != nil {
		jobLogger.WithError(err).Error("Failed to sweep expired sessions")
	} else if n > 0 {
		jobLogger.WithField("removed", n).Info("Swept expired sessions")
	}
}

func (s *MaintenanceScheduler) Stop() {
	s.logger.Info("Stopping maintenance scheduler...")
	ctx := s.cronEngine.Stop() // Waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Maintenance scheduler gracefully stopped.")
}
