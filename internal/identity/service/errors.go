package service

import "errors"

// Outcomes surfaced to callers. Every credential failure is ErrUnauthorized,
// whichever check actually failed.
var (
	ErrUnauthorized           = errors.New("unauthorized")
	ErrLockedOut              = errors.New("locked_out")
	ErrTwoFactorRequired      = errors.New("two_factor_required")
	ErrExternalLoginNotLinked = errors.New("external_login_not_linked")
	ErrUserNameTaken          = errors.New("user_name_taken")
	ErrPhoneNumberTaken       = errors.New("phone_number_taken")
	ErrInvalidPhoneNumber     = errors.New("invalid_phone_number")
	ErrInvalidRequest         = errors.New("invalid_request")
	ErrInvalidCode            = errors.New("invalid_code")
)

// ErrMisconfigured is returned by constructors and is fatal at startup.
var ErrMisconfigured = errors.New("misconfigured")

// Internal discriminants, logged and collapsed to ErrUnauthorized by
// SignInService.
var (
	ErrTokenInvalid         = errors.New("token_invalid")
	ErrRefreshTokenInvalid  = errors.New("refresh_token_invalid")
	ErrRefreshTokenMismatch = errors.New("refresh_token_mismatch")
	ErrRefreshTokenExpired  = errors.New("refresh_token_expired")
)
