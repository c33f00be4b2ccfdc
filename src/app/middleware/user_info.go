package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	userIDHeader    = "X-User-Id"
	userEmailHeader = "X-User-Email"
	userRoleHeader  = "X-User-Role"

	// UserKey is the context key for the caller identity.
	UserKey = "user"

	systemUser = "system"
)

// User is the caller identity forwarded by the gateway. It is used for
// attribution only; no authorization decisions are made on it.
type User struct {
	ID    string
	Email string
	Role  string
}

// CreatedBy returns the identifier recorded on rows the user creates.
func (u User) CreatedBy() string {
	switch {
	case u.ID != "":
		return u.ID
	case u.Email != "":
		return u.Email
	}
	return systemUser
}

// UserInfo reads the X-User-* headers into the context.
func UserInfo() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(UserKey, User{
			ID:    strings.TrimSpace(c.GetHeader(userIDHeader)),
			Email: strings.TrimSpace(c.GetHeader(userEmailHeader)),
			Role:  strings.TrimSpace(c.GetHeader(userRoleHeader)),
		})
		c.Next()
	}
}

// GetUser returns the caller identity, or the zero User when UserInfo did
// not run.
func GetUser(c *gin.Context) User {
	if v, ok := c.Get(UserKey); ok {
		if u, ok := v.(User); ok {
			return u
		}
	}
	return User{}
}
