// Package auth is the login boundary: a fixed credential table checked on exact match.
package auth

import (
	"crypto/subtle"
	"errors"

	"github.com/samber/lo"
)

// ErrInvalidCredentials is returned when no user matches.
var ErrInvalidCredentials = errors.New("invalid credentials")

// User is one entry of the credential table.
type User struct {
	Role     string `json:"role"`
	Mobile   string `json:"mobile"`
	Password string `json:"password"`
}

// DefaultUsers is used when the configuration lists none.
var DefaultUsers = []User{
	{Role: "user", Mobile: "9999999999", Password: "user123"},
	{Role: "admin", Mobile: "8888888888", Password: "admin123"},
}

// Authenticator checks credentials against a static table.
type Authenticator struct {
	users []User
}

// New creates an authenticator. An empty table falls back to DefaultUsers.
func New(users []User) *Authenticator {
	if len(users) == 0 {
		users = DefaultUsers
	}
	return &Authenticator{users: users}
}

// Login returns nil when role, mobile and password all match one entry.
func (a *Authenticator) Login(role, mobile, password string) error {
	_, ok := lo.Find(a.users, func(u User) bool {
		return u.Role == role && u.Mobile == mobile &&
			subtle.ConstantTimeCompare([]byte(u.Password), []byte(password)) == 1
	})
	if !ok {
		return ErrInvalidCredentials
	}
	return nil
}
