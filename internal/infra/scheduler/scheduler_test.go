package scheduler

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type countingSweeper struct {
	calls int
	err   error
	at    time.Time
}

func (c *countingSweeper) SweepExpired(context.Context) (int64, error) {
	c.calls++
	return 2, c.err
}

func (c *countingSweeper) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	c.calls++
	c.at = now
	return 1, c.err
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestSweepRunsBothJobsEvenOnFailure(t *testing.T) {
	cacheSweeper := &countingSweeper{err: errors.New("cache down")}
	sessionSweeper := &countingSweeper{}
	s := NewMaintenanceScheduler(cacheSweeper, sessionSweeper, time.UTC, "*/30 * * * *", testLogger())
	fixed := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.sweep()

	if cacheSweeper.calls != 1 || sessionSweeper.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", cacheSweeper.calls, sessionSweeper.calls)
	}
	if !sessionSweeper.at.Equal(fixed) {
		t.Errorf("sessions swept at %v, want %v", sessionSweeper.at, fixed)
	}
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	s := NewMaintenanceScheduler(&countingSweeper{}, &countingSweeper{}, time.UTC, "every now and then", testLogger())
	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("expected an error for an invalid cron expression")
	}
}
