package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"late_report_bot/internal/domain/member"

	"github.com/lib/pq" // For pq.Array
)

// Custom errors
var ErrUserNotFound = fmt.Errorf("user not found")
var ErrGroupNotFound = fmt.Errorf("group not found")

const userColumns = `id, telegram_id, username, first_name, last_name, display_name, role, is_active, created_at, updated_at`
const groupColumns = `id, telegram_id, title, is_active, late_report_enabled, created_at, updated_at`

type PostgresMemberRepository struct {
	db *sql.DB
}

func NewPostgresMemberRepository(db *sql.DB) *PostgresMemberRepository {
	return &PostgresMemberRepository{db: db}
}

func scanUser(row rowScanner, u *member.User) error {
	return row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.DisplayName,
		&u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
}

func scanGroup(row rowScanner, g *member.Group) error {
	return row.Scan(&g.ID, &g.TelegramID, &g.Title, &g.IsActive, &g.LateReportEnabled, &g.CreatedAt, &g.UpdatedAt)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *PostgresMemberRepository) EnsureUser(ctx context.Context, p member.Profile) (*member.User, error) {
	query := `INSERT INTO users (telegram_id, username, first_name, last_name, role)
               VALUES ($1, $2, $3, $4, $5)
               ON CONFLICT (telegram_id) DO UPDATE
               SET username = EXCLUDED.username, first_name = EXCLUDED.first_name,
                   last_name = EXCLUDED.last_name, updated_at = NOW()
               RETURNING ` + userColumns
	u := &member.User{}
	err := scanUser(r.db.QueryRowContext(ctx, query,
		p.TelegramID, nullString(p.Username), p.FirstName, nullString(p.LastName), string(member.RoleUser)), u)
	if err != nil {
		return nil, fmt.Errorf("error registering user %d: %w", p.TelegramID, err)
	}
	return u, nil
}

func (r *PostgresMemberRepository) GetUserByID(ctx context.Context, id int64) (*member.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u := &member.User{}
	if err := scanUser(r.db.QueryRowContext(ctx, query, id), u); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("error getting user by ID: %w", err)
	}
	return u, nil
}

func (r *PostgresMemberRepository) UpdateDisplayName(ctx context.Context, userID int64, name string) (*member.User, error) {
	query := `UPDATE users SET display_name = $1, updated_at = NOW()
               WHERE id = $2
               RETURNING ` + userColumns
	u := &member.User{}
	if err := scanUser(r.db.QueryRowContext(ctx, query, name, userID), u); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("error updating display name: %w", err)
	}
	return u, nil
}

func (r *PostgresMemberRepository) ListPrivileged(ctx context.Context) ([]*member.User, error) {
	roles := make([]string, len(member.PrivilegedRoles))
	for i, role := range member.PrivilegedRoles {
		roles[i] = string(role)
	}
	query := `SELECT ` + userColumns + `
               FROM users
               WHERE is_active = TRUE AND role = ANY($1::varchar[])
               ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(roles))
	if err != nil {
		return nil, fmt.Errorf("error listing privileged users: %w", err)
	}
	defer rows.Close()

	users := make([]*member.User, 0)
	for rows.Next() {
		u := &member.User{}
		if err := scanUser(rows, u); err != nil {
			return nil, fmt.Errorf("error scanning privileged user: %w", err)
		}
		users = append(users, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating privileged users: %w", err)
	}
	return users, nil
}

func (r *PostgresMemberRepository) SetRole(ctx context.Context, userID int64, role member.Role) (*member.User, error) {
	query := `UPDATE users SET role = $1, updated_at = NOW()
               WHERE id = $2
               RETURNING ` + userColumns
	u := &member.User{}
	if err := scanUser(r.db.QueryRowContext(ctx, query, string(role), userID), u); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("error setting role of user %d: %w", userID, err)
	}
	return u, nil
}

func (r *PostgresMemberRepository) EnsureGroup(ctx context.Context, telegramID int64, title string) (*member.Group, error) {
	query := `INSERT INTO groups (telegram_id, title)
               VALUES ($1, $2)
               ON CONFLICT (telegram_id) DO UPDATE
               SET title = EXCLUDED.title, updated_at = NOW()
               RETURNING ` + groupColumns
	g := &member.Group{}
	if err := scanGroup(r.db.QueryRowContext(ctx, query, telegramID, title), g); err != nil {
		return nil, fmt.Errorf("error registering group %d: %w", telegramID, err)
	}
	return g, nil
}

func (r *PostgresMemberRepository) GetGroupByID(ctx context.Context, id int64) (*member.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1`
	g := &member.Group{}
	if err := scanGroup(r.db.QueryRowContext(ctx, query, id), g); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("error getting group by ID: %w", err)
	}
	return g, nil
}

func (r *PostgresMemberRepository) GetGroupByTelegramID(ctx context.Context, telegramID int64) (*member.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE telegram_id = $1`
	g := &member.Group{}
	if err := scanGroup(r.db.QueryRowContext(ctx, query, telegramID), g); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("error getting group by telegram ID: %w", err)
	}
	return g, nil
}

func (r *PostgresMemberRepository) ListGroups(ctx context.Context, limit int) ([]*member.Group, error) {
	query := `SELECT ` + groupColumns + `
               FROM groups
               ORDER BY is_active DESC, created_at DESC
               LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing groups: %w", err)
	}
	defer rows.Close()

	groups := make([]*member.Group, 0)
	for rows.Next() {
		g := &member.Group{}
		if err := scanGroup(rows, g); err != nil {
			return nil, fmt.Errorf("error scanning group: %w", err)
		}
		groups = append(groups, g)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating groups: %w", err)
	}
	return groups, nil
}

func (r *PostgresMemberRepository) SetLateReportEnabled(ctx context.Context, groupID int64, enabled bool) (*member.Group, error) {
	query := `UPDATE groups SET late_report_enabled = $1, is_active = TRUE, updated_at = NOW()
               WHERE id = $2
               RETURNING ` + groupColumns
	g := &member.Group{}
	if err := scanGroup(r.db.QueryRowContext(ctx, query, enabled, groupID), g); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("error toggling late reports of group %d: %w", groupID, err)
	}
	return g, nil
}
