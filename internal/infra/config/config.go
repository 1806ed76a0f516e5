package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"
	_ "time/tzdata" // TIMEZONE must resolve in minimal containers

	"late_report_bot/internal/domain/member"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken      string
	DatabaseURL        string
	DatabaseDriver     string // "postgres" (lib/pq) or "pgx"
	HTTPPort           string
	LogLevel           string
	Environment        string
	Location           *time.Location // Zone of report times, the 09:00 cut-off and stats windows
	StatsCacheTTL      time.Duration  // TTL of periodic aggregates
	StatsCacheBackend  string         // "postgres" or "memory"
	SessionTTL         time.Duration
	CronSpecCacheSweep string
	VocabularyFile     string
	ReasonRules        ReasonRules
	LateReportsListMax int
	RoleGrants         member.RoleGrants // From ADMIN_TELEGRAM_IDS and SUPERADMIN_TELEGRAM_IDS
}

// ReasonRules are the product-tuned bounds on late report reasons.
type ReasonRules struct {
	MinLength      int // Shortest custom reason accepted
	MaxLength      int // Longest custom reason accepted
	AdequateLength int // Reasons at least this long skip the preset keyboard
}

// DefaultReasonRules returns the bounds used when nothing is configured.
func DefaultReasonRules() ReasonRules {
	return ReasonRules{MinLength: 5, MaxLength: 200, AdequateLength: 10}
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Errors are ignored if the file doesn't exist; existing variables win.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.DatabaseDriver = strings.ToLower(getenv("DATABASE_DRIVER", "postgres"))
	if cfg.DatabaseDriver != "postgres" && cfg.DatabaseDriver != "pgx" {
		return nil, fmt.Errorf("invalid DATABASE_DRIVER %q: want postgres or pgx", cfg.DatabaseDriver)
	}

	cfg.HTTPPort = getenv("HTTP_PORT", "8080")
	cfg.LogLevel = strings.ToLower(getenv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getenv("ENVIRONMENT", "development"))

	tz := getenv("TIMEZONE", "Asia/Taipei")
	cfg.Location, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	ttlSeconds, err := getenvInt("STATS_CACHE_TTL", 3600)
	if err != nil {
		return nil, err
	}
	if ttlSeconds <= 0 {
		return nil, fmt.Errorf("STATS_CACHE_TTL must be positive, got %d", ttlSeconds)
	}
	cfg.StatsCacheTTL = time.Duration(ttlSeconds) * time.Second

	cfg.StatsCacheBackend = strings.ToLower(getenv("STATS_CACHE_BACKEND", "postgres"))
	if cfg.StatsCacheBackend != "postgres" && cfg.StatsCacheBackend != "memory" {
		return nil, fmt.Errorf("invalid STATS_CACHE_BACKEND %q: want postgres or memory", cfg.StatsCacheBackend)
	}

	cfg.SessionTTL, err = time.ParseDuration(getenv("SESSION_TTL", "10m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}

	cfg.CronSpecCacheSweep = getenv("CRON_SPEC_CACHE_SWEEP", "*/30 * * * *") // Default: every 30 minutes
	cfg.VocabularyFile = os.Getenv("LATE_VOCABULARY_FILE")

	defaults := DefaultReasonRules()
	if cfg.ReasonRules.MinLength, err = getenvInt("REASON_MIN_LENGTH", defaults.MinLength); err != nil {
		return nil, err
	}
	if cfg.ReasonRules.MaxLength, err = getenvInt("REASON_MAX_LENGTH", defaults.MaxLength); err != nil {
		return nil, err
	}
	if cfg.ReasonRules.AdequateLength, err = getenvInt("REASON_ADEQUATE_LENGTH", defaults.AdequateLength); err != nil {
		return nil, err
	}
	if cfg.ReasonRules.MinLength < 1 || cfg.ReasonRules.MaxLength < cfg.ReasonRules.MinLength {
		return nil, fmt.Errorf("invalid reason length bounds %d..%d", cfg.ReasonRules.MinLength, cfg.ReasonRules.MaxLength)
	}

	if cfg.LateReportsListMax, err = getenvInt("LATE_REPORTS_LIST_MAX", 50); err != nil {
		return nil, err
	}

	cfg.RoleGrants, err = loadRoleGrants()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadRoleGrants reads the comma separated Telegram ids of admins and
// superadmins. An id listed in both is a superadmin.
func loadRoleGrants() (member.RoleGrants, error) {
	grants := member.RoleGrants{}
	for _, src := range []struct {
		key  string
		role member.Role
	}{
		{"ADMIN_TELEGRAM_IDS", member.RoleAdmin},
		{"SUPERADMIN_TELEGRAM_IDS", member.RoleSuperAdmin},
	} {
		ids, err := getenvIDs(src.key)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			grants[id] = src.role
		}
	}
	return grants, nil
}

func getenvIDs(key string) ([]int64, error) {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid %s entry %q: want a positive Telegram user id", key, part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
