package domain

import "time"

// AccessToken is the result of a successful sign-in or refresh.
type AccessToken struct {
	AppID        string        `json:"appId"`
	SubjectID    string        `json:"subjectId"`
	Token        string        `json:"token"`
	ExpireAt     time.Time     `json:"expireAt"`
	RefreshToken *RefreshToken `json:"refreshToken,omitempty"`
}

// IsExpired reports whether now has reached ExpireAt.
func (t AccessToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpireAt)
}

// RefreshToken is the opaque token handed to the client. Only its
// fingerprint is ever stored.
type RefreshToken struct {
	Token    string    `json:"token"`
	ExpireAt time.Time `json:"expireAt"`
}

func (t RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpireAt)
}

// RefreshTokenRecord is the stored form of the single live refresh token for
// a (user, app) pair.
type RefreshTokenRecord struct {
	ID        string
	UserID    string
	AppID     string
	TokenHash string // base64url SHA-256 of the opaque token
	ExpiresAt time.Time
	CreatedAt time.Time
}
