package models

import "time"

type User struct {
	ID        int64
	Email     string
	FullName  string
	PassHash  []byte
	Roles     []Role
	CreatedAt time.Time
}

// RoleNames returns the names of the assigned roles in assignment order.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

type Role struct {
	ID          int64
	Name        string
	Description string
}

// UserRole is the user/role association. It has no identity of its own.
type UserRole struct {
	UserID int64
	RoleID int64
}
