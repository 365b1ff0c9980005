package http

import (
	"net/http"

	"github.com/aussiebroadwan/tollgate/internal/identity/service"
	"github.com/aussiebroadwan/tollgate/pkg/authsdk"
	"github.com/aussiebroadwan/tollgate/pkg/httpx"
)

// ExternalCookieName is the cookie holding an in-progress external sign-in.
// Sign-out expires it.
const ExternalCookieName = "tollgate.external"

type SignInHandler struct {
	SignIn         *service.SignInService
	TransientRoles []string
}

// HandlePassword handles POST /v1/signin/password.
func (h *SignInHandler) HandlePassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.PasswordSignInRequest
	if !decodeRequest(w, r, &req, validatePasswordSignIn) {
		return
	}

	res, err := h.SignIn.PasswordSignIn(r.Context(), service.PasswordSignInRequest{
		UserName:    req.UserName,
		Password:    req.Password,
		AppID:       req.AppID,
		Refreshable: req.Refreshable,
		Claims:      toClaims(req.Claims),
	})
	if err != nil {
		writeServiceError(w, r, res, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTokenResponse(res.Token))
}

// HandleTwoFactor handles POST /v1/signin/twofactor.
func (h *SignInHandler) HandleTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req authsdk.TwoFactorSignInRequest
	if !decodeRequest(w, r, &req, validateTwoFactorSignIn) {
		return
	}

	res, err := h.SignIn.TwoFactorSignIn(r.Context(), req.Ticket, req.Code)
	if err != nil {
		writeServiceError(w, r, res, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTokenResponse(res.Token))
}

// HandleExternal handles POST /v1/signin/external. Without a user store the
// verified identity is turned straight into a non-refreshable token.
func (h *SignInHandler) HandleExternal(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ExternalSignInRequest
	if !decodeRequest(w, r, &req, validateExternalSignIn) {
		return
	}

	var (
		res service.SignInResult
		err error
	)
	if h.SignIn.AdminOnly() {
		res, err = h.SignIn.TransientExternalSignIn(r.Context(), service.TransientExternalSignInRequest{
			Credential: toCredential(req.Credential),
			AppID:      req.AppID,
			Roles:      h.TransientRoles,
			Claims:     toClaims(req.Claims),
		})
	} else {
		res, err = h.SignIn.ExternalSignIn(r.Context(), service.ExternalSignInRequest{
			Credential:  toCredential(req.Credential),
			AppID:       req.AppID,
			Refreshable: req.Refreshable,
			Claims:      toClaims(req.Claims),
		})
	}
	if err != nil {
		writeServiceError(w, r, res, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTokenResponse(res.Token))
}

// HandleExternalSignUp handles POST /v1/signin/external/signup.
func (h *SignInHandler) HandleExternalSignUp(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ExternalSignUpRequest
	if !decodeRequest(w, r, &req, validateExternalSignUp) {
		return
	}

	res, err := h.SignIn.ExternalSignUp(r.Context(), service.ExternalSignUpRequest{
		Credential:  toCredential(req.Credential),
		UserName:    req.UserName,
		AppID:       req.AppID,
		Refreshable: req.Refreshable,
	})
	if err != nil {
		writeServiceError(w, r, res, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toTokenResponse(res.Token))
}

// HandleRefresh handles POST /v1/token/refresh.
func (h *SignInHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if !decodeRequest(w, r, &req, validateRefresh) {
		return
	}

	res, err := h.SignIn.Refresh(r.Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, res, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTokenResponse(res.Token))
}

// HandleSignOut handles POST /v1/signout. The bearer may be expired.
func (h *SignInHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	raw, ok := httpx.BearerToken(r)
	if !ok {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="missing bearer token"`)
		authsdk.ErrUnauthorized.WithDescription("missing bearer token").WriteError(w)
		return
	}

	if err := h.SignIn.SignOut(r.Context(), raw); err != nil {
		writeServiceError(w, r, service.SignInResult{}, err)
		return
	}

	if _, err := r.Cookie(ExternalCookieName); err == nil {
		http.SetCookie(w, &http.Cookie{
			Name:     ExternalCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
	}
	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}
