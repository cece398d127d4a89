package auth

import "time"

// Principal is an authenticable actor that may own packages and publish
// versions. It is also referred to as "User" in the spec's terminology.
type Principal struct {
	ID           int64
	Name         string
	Pwd          string
	Salt         string
	IsAdmin      bool
	IsReadOnly   bool
}

// Session is an opaque interactive-login token with an expiry.
type Session struct {
	Token         string
	PrincipalName string
	ExpiresAt     time.Time
}

// APIToken is a long-lived credential independent of any session,
// identified by an opaque label for display.
type APIToken struct {
	ID            int64
	Label         string
	Token         string
	PrincipalName string
}

// BootstrapAdminName is the name of the single principal seeded into an
// empty store.
const BootstrapAdminName = "admin"

// BootstrapAdminPassword is the default password hashed for the seeded
// admin principal.
const BootstrapAdminPassword = "123"

// BootstrapAdminSalt is the default salt hashed for the seeded admin
// principal.
const BootstrapAdminSalt = "salt"
