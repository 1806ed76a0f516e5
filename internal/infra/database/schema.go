package database

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id           BIGSERIAL PRIMARY KEY,
		telegram_id  BIGINT NOT NULL UNIQUE,
		username     VARCHAR(255),
		first_name   VARCHAR(255) NOT NULL DEFAULT '',
		last_name    VARCHAR(255),
		display_name VARCHAR(100),
		role         VARCHAR(20) NOT NULL DEFAULT 'user',
		is_active    BOOLEAN NOT NULL DEFAULT TRUE,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS groups (
		id                  BIGSERIAL PRIMARY KEY,
		telegram_id         BIGINT NOT NULL UNIQUE,
		title               VARCHAR(255) NOT NULL DEFAULT '',
		is_active           BOOLEAN NOT NULL DEFAULT FALSE,
		late_report_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS late_reports (
		id             BIGSERIAL PRIMARY KEY,
		user_id        BIGINT NOT NULL REFERENCES users(id),
		group_id       BIGINT NOT NULL REFERENCES groups(id),
		employee_name  VARCHAR(100) NOT NULL,
		is_before_nine BOOLEAN NOT NULL,
		report_time    TIMESTAMPTZ NOT NULL,
		reason         TEXT,
		status         VARCHAR(20) NOT NULL DEFAULT 'pending'
		               CHECK (status IN ('pending', 'processed', 'cancelled')),
		admin_notified BOOLEAN NOT NULL DEFAULT FALSE,
		version        INTEGER NOT NULL DEFAULT 1,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_late_reports_status_time ON late_reports (status, report_time)`,
	`CREATE INDEX IF NOT EXISTS idx_late_reports_user ON late_reports (user_id, status, report_time DESC)`,
	`CREATE TABLE IF NOT EXISTS stats_cache (
		cache_key  VARCHAR(255) PRIMARY KEY,
		data       TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stats_cache_expires ON stats_cache (expires_at)`,
	`CREATE TABLE IF NOT EXISTS conversation_sessions (
		user_id    BIGINT PRIMARY KEY REFERENCES users(id),
		kind       VARCHAR(30) NOT NULL,
		target_id  BIGINT NOT NULL DEFAULT 0,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
}

// EnsureSchema creates the bot's tables and indexes if they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error applying schema: %w", err)
		}
	}
	return nil
}
