package latereport

import (
	"context"
	"errors"
	"fmt"
)

// Repository defines the persistence operations for late reports.
type Repository interface {
	// Create stores a new report and fills in ID, Version and timestamps.
	Create(ctx context.Context, report *Report) error
	GetByID(ctx context.Context, id int64) (*Report, error)
	// Update applies p to a pending report whose stored version equals
	// expectedVersion. A mismatch returns ErrVersionConflict.
	Update(ctx context.Context, id int64, expectedVersion int, p Patch) (*Report, error)
	// ListRecent returns the newest reports of any status with joined names.
	ListRecent(ctx context.Context, limit int) ([]*ListedReport, error)
}

// CacheInvalidator purges cached statistics affected by report writes.
type CacheInvalidator interface {
	InvalidateUser(ctx context.Context, userID int64) error
	InvalidatePeriodic(ctx context.Context) error
}

type invalidatingRepository struct {
	Repository
	invalidator CacheInvalidator
}

// WithCacheInvalidation wraps repo so that every write which can change
// statistics purges the affected cache entries before returning.
func WithCacheInvalidation(repo Repository, invalidator CacheInvalidator) Repository {
	return &invalidatingRepository{Repository: repo, invalidator: invalidator}
}

func (r *invalidatingRepository) Create(ctx context.Context, report *Report) error {
	if err := r.Repository.Create(ctx, report); err != nil {
		return err
	}
	if err := r.invalidator.InvalidateUser(ctx, report.UserID); err != nil {
		return fmt.Errorf("%w: user %d: %v", ErrCacheInvalidation, report.UserID, err)
	}
	return nil
}

func (r *invalidatingRepository) Update(ctx context.Context, id int64, expectedVersion int, p Patch) (*Report, error) {
	updated, err := r.Repository.Update(ctx, id, expectedVersion, p)
	if err != nil {
		return nil, err
	}
	var errs []error
	if p.TouchesUserStats() {
		if err := r.invalidator.InvalidateUser(ctx, updated.UserID); err != nil {
			errs = append(errs, fmt.Errorf("user %d: %w", updated.UserID, err))
		}
	}
	// New processed rows can move every periodic bucket.
	if p.Processes() {
		if err := r.invalidator.InvalidatePeriodic(ctx); err != nil {
			errs = append(errs, fmt.Errorf("periodic: %w", err))
		}
	}
	if len(errs) > 0 {
		return updated, fmt.Errorf("%w: %w", ErrCacheInvalidation, errors.Join(errs...))
	}
	return updated, nil
}
