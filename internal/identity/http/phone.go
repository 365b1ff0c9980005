package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/tollgate/internal/identity/service"
	"github.com/aussiebroadwan/tollgate/pkg/authsdk"
	"github.com/aussiebroadwan/tollgate/pkg/httpx"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

// PhoneCodeSender delivers a phone verification code out of band.
type PhoneCodeSender interface {
	SendCode(ctx context.Context, phoneNumber, code string) error
}

// LogCodeSender writes codes to the request log. It is meant for
// development setups without an SMS gateway.
type LogCodeSender struct{}

func (LogCodeSender) SendCode(ctx context.Context, phoneNumber, code string) error {
	slogx.FromContext(ctx).Warn("phone verification code",
		slog.String("phone_number", phoneNumber),
		slog.String("code", code),
	)
	return nil
}

type PhoneHandler struct {
	Phone *service.PhoneNumberService
	Codes PhoneCodeSender
}

// HandleRequestToken handles POST /v1/account/phone/token.
func (h *PhoneHandler) HandleRequestToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := principalFromContext(ctx)
	if !ok {
		authsdk.ErrUnauthorized.WriteError(w)
		return
	}

	var req authsdk.PhoneNumberTokenRequest
	if !decodeRequest(w, r, &req, validatePhoneNumberToken) {
		return
	}

	code, normalized, err := h.Phone.GenerateChangePhoneNumberToken(ctx, p.SubjectID, req.PhoneNumber)
	if err != nil {
		writeServiceError(w, r, service.SignInResult{}, err)
		return
	}
	if err := h.Codes.SendCode(ctx, normalized, code); err != nil {
		slogx.FromContext(ctx).Error("failed to send phone code", slogx.Err(err))
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusAccepted, authsdk.PhoneNumberTokenResponse{PhoneNumber: normalized})
}

// HandleChange handles POST /v1/account/phone.
func (h *PhoneHandler) HandleChange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := principalFromContext(ctx)
	if !ok {
		authsdk.ErrUnauthorized.WriteError(w)
		return
	}

	var req authsdk.ChangePhoneNumberRequest
	if !decodeRequest(w, r, &req, validateChangePhoneNumber) {
		return
	}

	if err := h.Phone.ChangePhoneNumber(ctx, p.SubjectID, req.PhoneNumber, req.Code); err != nil {
		writeServiceError(w, r, service.SignInResult{}, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
