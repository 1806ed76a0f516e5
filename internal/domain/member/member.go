package member

import (
	"database/sql"
	"fmt"
	"time"
)

// Role is the privilege level of a user.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// PrivilegedRoles lists the roles that receive late-report notifications
// and may run admin commands.
var PrivilegedRoles = []Role{RoleAdmin, RoleSuperAdmin}

func (r Role) rank() int {
	switch r {
	case RoleSuperAdmin:
		return 2
	case RoleAdmin:
		return 1
	default:
		return 0
	}
}

// RoleGrants maps Telegram user ids to the role configured for them.
type RoleGrants map[int64]Role

// Upgrade returns the granted role for u when it outranks the stored one.
// Grants never demote a user.
func (g RoleGrants) Upgrade(u *User) (Role, bool) {
	granted, ok := g[u.TelegramID]
	if !ok || granted.rank() <= u.Role.rank() {
		return u.Role, false
	}
	return granted, true
}

// User represents a Telegram user known to the bot.
type User struct {
	ID          int64
	TelegramID  int64
	Username    sql.NullString
	FirstName   string
	LastName    sql.NullString
	DisplayName sql.NullString // Set through /set_name, preferred over FirstName
	Role        Role
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SuperAdmin reports whether the user may see system wide statistics.
func (u *User) SuperAdmin() bool {
	return u.Role == RoleSuperAdmin
}

// Privileged reports whether the user holds an admin role.
func (u *User) Privileged() bool {
	for _, r := range PrivilegedRoles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// Name returns the name used when a report snapshots the employee.
func (u *User) Name() string {
	if u.DisplayName.Valid && u.DisplayName.String != "" {
		return u.DisplayName.String
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username.Valid && u.Username.String != "" {
		return u.Username.String
	}
	return fmt.Sprintf("用戶%d", u.TelegramID)
}

// Group represents a Telegram group or supergroup the bot is a member of.
type Group struct {
	ID                int64
	TelegramID        int64
	Title             string
	IsActive          bool
	LateReportEnabled bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AcceptsLateReports reports whether messages from this group enter the late-report workflow.
func (g *Group) AcceptsLateReports() bool {
	return g != nil && g.IsActive && g.LateReportEnabled
}
