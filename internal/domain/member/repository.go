package member

import "context"

// Profile is the sender information Telegram attaches to every update.
type Profile struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
}

// Repository defines the operations for persisting users and groups.
type Repository interface {
	// EnsureUser registers the sender on first contact and refreshes the
	// Telegram profile fields afterwards. Role and display name are kept.
	EnsureUser(ctx context.Context, p Profile) (*User, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
	UpdateDisplayName(ctx context.Context, userID int64, name string) (*User, error)
	ListPrivileged(ctx context.Context) ([]*User, error)
	SetRole(ctx context.Context, userID int64, role Role) (*User, error)

	// EnsureGroup registers a group on first contact. New groups are inactive
	// with late reports disabled.
	EnsureGroup(ctx context.Context, telegramID int64, title string) (*Group, error)
	GetGroupByID(ctx context.Context, id int64) (*Group, error)
	GetGroupByTelegramID(ctx context.Context, telegramID int64) (*Group, error)
	// ListGroups returns active groups first, newest first within each state.
	ListGroups(ctx context.Context, limit int) ([]*Group, error)
	// SetLateReportEnabled toggles the feature and marks the group active.
	SetLateReportEnabled(ctx context.Context, groupID int64, enabled bool) (*Group, error)
}
