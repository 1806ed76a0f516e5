package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"late_report_bot/internal/domain/stats"

	"github.com/sirupsen/logrus"
)

const (
	// UserStatsTTL bounds how long a per-user aggregate may be served from cache.
	UserStatsTTL = 900 * time.Second

	DefaultRecentLimit = 30
	MaxRecentLimit     = 100

	unknownUserName = "未知用戶"
)

var ErrInvalidUserID = fmt.Errorf("invalid user ID")
var ErrInvalidLimit = fmt.Errorf("invalid limit")

// ClearResult reports how many cache entries a purge removed.
type ClearResult struct {
	Expired  int64 `json:"expired"`
	Periodic int64 `json:"periodic"`
}

// StatsService serves late report statistics through a read-through cache.
// It also implements latereport.CacheInvalidator.
type StatsService struct {
	querier     stats.Querier
	cache       stats.Cache
	periodicTTL time.Duration
	loc         *time.Location
	now         func() time.Time
	logger      *logrus.Entry
}

func NewStatsService(querier stats.Querier, cache stats.Cache, periodicTTL time.Duration, loc *time.Location, logger *logrus.Entry) *StatsService {
	return &StatsService{
		querier:     querier,
		cache:       cache,
		periodicTTL: periodicTTL,
		loc:         loc,
		now:         time.Now,
		logger:      logger,
	}
}

// PeriodicStatsJSON returns the encoded periodic aggregate. Within the TTL,
// repeated calls for the same window return the same bytes.
func (s *StatsService) PeriodicStatsJSON(ctx context.Context, period stats.Period, start, end string) (json.RawMessage, error) {
	w, err := stats.CalculateDateRange(period, start, end, s.now().In(s.loc))
	if err != nil {
		return nil, err
	}

	key := stats.PeriodicKey(period, w).String()
	return s.readThrough(ctx, key, s.periodicTTL, func(ctx context.Context) (any, error) {
		users, err := s.querier.TallyByUser(ctx, w.Start, w.End)
		if err != nil {
			return nil, err
		}
		reasons, err := s.querier.TallyByReason(ctx, w.Start, w.End)
		if err != nil {
			return nil, err
		}
		return stats.BuildPeriodic(period, w, users, reasons), nil
	})
}

func (s *StatsService) PeriodicStats(ctx context.Context, period stats.Period, start, end string) (*stats.PeriodicStats, error) {
	raw, err := s.PeriodicStatsJSON(ctx, period, start, end)
	if err != nil {
		return nil, err
	}
	out := &stats.PeriodicStats{}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("failed to decode periodic stats: %w", err)
	}
	return out, nil
}

// UserStatsJSON returns the encoded lifetime aggregate of userID with up to
// limit recent processed reports.
func (s *StatsService) UserStatsJSON(ctx context.Context, userID int64, limit int) (json.RawMessage, error) {
	if userID <= 0 {
		return nil, ErrInvalidUserID
	}
	if limit <= 0 || limit > MaxRecentLimit {
		return nil, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidLimit, MaxRecentLimit)
	}

	key := stats.UserKey(userID, limit).String()
	return s.readThrough(ctx, key, UserStatsTTL, func(ctx context.Context) (any, error) {
		tally, err := s.querier.UserTally(ctx, userID)
		if err != nil {
			return nil, err
		}
		if tally.UserName == "" {
			tally.UserName = unknownUserName
		}
		reasons, err := s.querier.UserReasons(ctx, userID)
		if err != nil {
			return nil, err
		}
		recent, err := s.querier.RecentProcessed(ctx, userID, limit)
		if err != nil {
			return nil, err
		}
		return stats.BuildUser(userID, tally, reasons, recent, limit), nil
	})
}

func (s *StatsService) UserStats(ctx context.Context, userID int64, limit int) (*stats.UserStats, error) {
	raw, err := s.UserStatsJSON(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	out := &stats.UserStats{}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("failed to decode user stats: %w", err)
	}
	return out, nil
}

// ClearCache removes expired entries and then every periodic aggregate.
func (s *StatsService) ClearCache(ctx context.Context) (*ClearResult, error) {
	expired, err := s.cache.DeleteExpired(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired stats: %w", err)
	}
	periodic, err := s.cache.DeletePrefix(ctx, stats.PeriodicPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to delete periodic stats: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"expired": expired, "periodic": periodic}).Info("Stats cache cleared")
	return &ClearResult{Expired: expired, Periodic: periodic}, nil
}

// SweepExpired removes expired entries only.
func (s *StatsService) SweepExpired(ctx context.Context) (int64, error) {
	return s.cache.DeleteExpired(ctx)
}

func (s *StatsService) InvalidateUser(ctx context.Context, userID int64) error {
	_, err := s.cache.DeletePrefix(ctx, stats.UserPrefix(userID))
	return err
}

func (s *StatsService) InvalidatePeriodic(ctx context.Context) error {
	_, err := s.cache.DeletePrefix(ctx, stats.PeriodicPrefix())
	return err
}

// readThrough serves key from the cache or computes, stores and returns it.
// Cache failures and corrupt payloads degrade to a recomputation.
func (s *StatsService) readThrough(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (any, error)) (json.RawMessage, error) {
	log := s.logger.WithField("cache_key", key)

	data, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		log.WithError(err).Warn("Stats cache read failed")
	case ok && json.Valid(data):
		log.Debug("Stats cache hit")
		return data, nil
	case ok:
		log.Warn("Discarding corrupt stats cache entry")
	}

	result, err := compute(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute %s: %w", key, err)
	}
	data, err = json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.cache.Set(ctx, key, data, ttl); err != nil {
		log.WithError(err).Warn("Stats cache write failed")
	}
	return data, nil
}
