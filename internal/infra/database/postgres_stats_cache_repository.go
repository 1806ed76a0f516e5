package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PostgresStatsCache stores aggregate payloads in the stats_cache table.
type PostgresStatsCache struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStatsCache(db *sql.DB) *PostgresStatsCache {
	return &PostgresStatsCache{db: db, now: time.Now}
}

// Get compares expires_at with the current time on every read, so an entry
// that outlived its TTL is a miss even before the sweeper removes it.
func (c *PostgresStatsCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query := `SELECT data FROM stats_cache WHERE cache_key = $1 AND expires_at > $2`
	var data string
	err := c.db.QueryRowContext(ctx, query, key, c.now()).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("error reading stats cache %q: %w", key, err)
	}
	return []byte(data), true, nil
}

func (c *PostgresStatsCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	query := `INSERT INTO stats_cache (cache_key, data, expires_at)
               VALUES ($1, $2, $3)
               ON CONFLICT (cache_key) DO UPDATE
               SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at, created_at = NOW()`
	if _, err := c.db.ExecContext(ctx, query, key, string(data), c.now().Add(ttl)); err != nil {
		return fmt.Errorf("error writing stats cache %q: %w", key, err)
	}
	return nil
}

func (c *PostgresStatsCache) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM stats_cache WHERE expires_at <= $1`, c.now())
	if err != nil {
		return 0, fmt.Errorf("error deleting expired stats cache: %w", err)
	}
	return res.RowsAffected()
}

func (c *PostgresStatsCache) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	query := `DELETE FROM stats_cache WHERE cache_key LIKE $1 ESCAPE '\'`
	res, err := c.db.ExecContext(ctx, query, escapeLike(prefix)+"%")
	if err != nil {
		return 0, fmt.Errorf("error deleting stats cache prefix %q: %w", prefix, err)
	}
	return res.RowsAffected()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
