package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/tollgate/internal/identity/service"
	"github.com/aussiebroadwan/tollgate/pkg/authsdk"
	"github.com/aussiebroadwan/tollgate/pkg/httpx"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

// writeServiceError maps a service outcome to its response. res carries the
// two-factor ticket when there is one.
func writeServiceError(w http.ResponseWriter, r *http.Request, res service.SignInResult, err error) {
	switch {
	case errors.Is(err, service.ErrTwoFactorRequired):
		(&authsdk.TwoFactorRequiredError{Ticket: res.TwoFactorTicket}).WriteError(w)
	case errors.Is(err, service.ErrLockedOut):
		authsdk.ErrLockedOut.WriteError(w)
	case errors.Is(err, service.ErrExternalLoginNotLinked):
		authsdk.ErrExternalLoginNotLinked.WriteError(w)
	case errors.Is(err, service.ErrUnauthorized):
		authsdk.ErrUnauthorized.WriteError(w)
	case errors.Is(err, service.ErrUserNameTaken):
		authsdk.ErrUserNameTaken.WriteError(w)
	case errors.Is(err, service.ErrPhoneNumberTaken):
		authsdk.ErrPhoneNumberTaken.WriteError(w)
	case errors.Is(err, service.ErrInvalidCode):
		authsdk.ErrInvalidCode.WriteError(w)
	case errors.Is(err, service.ErrInvalidPhoneNumber):
		authsdk.ErrInvalidRequest.WithDescription("phone number is not valid").WriteError(w)
	case errors.Is(err, service.ErrInvalidRequest):
		authsdk.ErrInvalidRequest.WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("request failed", slogx.Err(err))
		authsdk.ErrServerError.WriteError(w)
	}
}

// decodeRequest reads the JSON body into dst and runs validate on it. It
// writes the 400 itself and reports whether the handler should go on.
func decodeRequest[T any](w http.ResponseWriter, r *http.Request, dst *T, validate func(T) error) bool {
	if err := httpx.DecodeJSON(w, r, dst); err != nil {
		slogx.FromContext(r.Context()).Info("invalid request body", slogx.Err(err))
		authsdk.ErrInvalidRequest.WithDescription("body must be a single JSON object").WriteError(w)
		return false
	}
	if err := validate(*dst); err != nil {
		authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return false
	}
	return true
}
