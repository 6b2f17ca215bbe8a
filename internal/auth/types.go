package auth

import "errors"

// Role represents an authorisation tier.
type Role string

const (
	// RoleViewer can read everything but change nothing.
	RoleViewer Role = "viewer"

	// RoleOperator can also send control intents and request refreshes.
	RoleOperator Role = "operator"

	// RoleAdmin can also replace the account credentials.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole returns true if r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// MinSecretLength is the shortest accepted signing secret.
const MinSecretLength = 32

// Sentinel errors for token handling.
var (
	ErrTokenInvalid   = errors.New("invalid token")
	ErrInvalidRole    = errors.New("invalid role")
	ErrSecretTooShort = errors.New("signing secret too short")
)
