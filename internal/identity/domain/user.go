package domain

import "time"

// User is a locally registered account.
type User struct {
	ID           string
	UserName     string
	Email        string
	PasswordHash string // argon2id PHC string, empty for external-only users
	PhoneNumber  string // E.164

	// SecurityStamp changes whenever credentials change and keys
	// phone-change codes.
	SecurityStamp string

	TwoFactorEnabled bool
	TwoFactorSecret  string // base32 TOTP secret

	LockoutEnd        *time.Time
	AccessFailedCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsLockedOut reports whether a lockout is active at now.
func (u User) IsLockedOut(now time.Time) bool {
	return u.LockoutEnd != nil && now.Before(*u.LockoutEnd)
}

// RequiresTwoFactor is true when a second factor is enrolled.
func (u User) RequiresTwoFactor() bool {
	return u.TwoFactorEnabled && u.TwoFactorSecret != ""
}

// ExternalLogin links a provider identity to a local user.
type ExternalLogin struct {
	Provider    string
	ProviderKey string
	DisplayName string
}
