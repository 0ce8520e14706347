package models

// Claims is the identity carried by an access token.
type Claims struct {
	UserID   int64
	TokenID  string
	FullName string
	Email    string
	Roles    []string
}

// HasRole reports whether the claims carry the named role.
func (c Claims) HasRole(name string) bool {
	for _, r := range c.Roles {
		if r == name {
			return true
		}
	}
	return false
}
