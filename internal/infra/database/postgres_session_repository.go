package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"late_report_bot/internal/domain/session"
)

// ErrSessionNotFound is returned when a user has no live conversational session.
var ErrSessionNotFound = fmt.Errorf("conversation session not found")

type PostgresSessionRepository struct {
	db *sql.DB
}

func NewPostgresSessionRepository(db *sql.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

func (r *PostgresSessionRepository) Put(ctx context.Context, s *session.Session) error {
	query := `INSERT INTO conversation_sessions (user_id, kind, target_id, expires_at)
               VALUES ($1, $2, $3, $4)
               ON CONFLICT (user_id) DO UPDATE
               SET kind = EXCLUDED.kind, target_id = EXCLUDED.target_id, expires_at = EXCLUDED.expires_at`
	if _, err := r.db.ExecContext(ctx, query, s.UserID, string(s.Kind), s.TargetID, s.ExpiresAt); err != nil {
		return fmt.Errorf("error saving conversation session: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepository) Get(ctx context.Context, userID int64, now time.Time) (*session.Session, error) {
	query := `SELECT user_id, kind, target_id, expires_at
               FROM conversation_sessions WHERE user_id = $1 AND expires_at > $2`
	s := &session.Session{}
	err := r.db.QueryRowContext(ctx, query, userID, now).Scan(&s.UserID, &s.Kind, &s.TargetID, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("error getting conversation session: %w", err)
	}
	return s, nil
}

func (r *PostgresSessionRepository) Delete(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM conversation_sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("error deleting conversation session: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conversation_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("error deleting expired conversation sessions: %w", err)
	}
	return res.RowsAffected()
}
