package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/tollgate/pkg/httpx"
)

// Error codes used in ErrorResponse.Error.
const (
	ErrorCodeInvalidRequest         = "invalid_request"
	ErrorCodeInvalidToken           = "invalid_token"
	ErrorCodeUnauthorized           = "unauthorized"
	ErrorCodeLockedOut              = "locked_out"
	ErrorCodeTwoFactorRequired      = "two_factor_required"
	ErrorCodeExternalLoginNotLinked = "external_login_not_linked"
	ErrorCodeUserNameTaken          = "user_name_taken"
	ErrorCodePhoneNumberTaken       = "phone_number_taken"
	ErrorCodeInvalidCode            = "invalid_code"
	ErrorCodeRateLimited            = "rate_limit_exceeded"
	ErrorCodeServerError            = "server_error"
)

// APIError is a non-2xx response. The server writes the predefined values
// below; the client decodes into one.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes e as an ErrorResponse.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, e.StatusCode, ErrorResponse{Error: e.Code, ErrorDescription: e.Description})
}

// WithDescription returns a copy of e with a different description.
func (e *APIError) WithDescription(desc string) *APIError {
	c := *e
	c.Description = desc
	return &c
}

var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}
	ErrUnauthorized = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeUnauthorized,
		Description: "the credentials were rejected",
	}
	ErrLockedOut = &APIError{
		StatusCode:  http.StatusLocked,
		Code:        ErrorCodeLockedOut,
		Description: "the account is temporarily locked",
	}
	ErrExternalLoginNotLinked = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeExternalLoginNotLinked,
		Description: "no local account is linked to this external identity",
	}
	ErrUserNameTaken = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeUserNameTaken,
		Description: "the user name is already in use",
	}
	ErrPhoneNumberTaken = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodePhoneNumberTaken,
		Description: "the phone number belongs to another account",
	}
	ErrInvalidCode = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidCode,
		Description: "the verification code is invalid or expired",
	}
	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "the server encountered an unexpected condition",
	}
)

// TwoFactorRequiredError is returned by PasswordSignIn when the user must
// complete TwoFactorSignIn with Ticket.
type TwoFactorRequiredError struct {
	Ticket string
}

func (e *TwoFactorRequiredError) Error() string {
	return ErrorCodeTwoFactorRequired
}

// WriteError writes a 401 carrying the ticket.
func (e *TwoFactorRequiredError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error:            ErrorCodeTwoFactorRequired,
		ErrorDescription: "a second factor is required",
		Ticket:           e.Ticket,
	})
}

// IsErrorCode reports whether err is an *APIError with the given code.
func IsErrorCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func parseErrorResponse(status int, body []byte) error {
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error == "" {
		return &APIError{
			StatusCode:  status,
			Code:        ErrorCodeServerError,
			Description: fmt.Sprintf("unexpected status %d", status),
		}
	}
	if resp.Error == ErrorCodeTwoFactorRequired && resp.Ticket != "" {
		return &TwoFactorRequiredError{Ticket: resp.Ticket}
	}
	return &APIError{StatusCode: status, Code: resp.Error, Description: resp.ErrorDescription}
}
