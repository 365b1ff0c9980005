package http

import (
	"fmt"
	"strings"

	"github.com/aussiebroadwan/tollgate/internal/identity/domain"
	"github.com/aussiebroadwan/tollgate/pkg/authsdk"
	validation "github.com/go-ozzo/ozzo-validation"
)

const (
	maxNameLength  = 256
	maxTokenLength = 8192
	maxClaims      = 32
)

func validatePasswordSignIn(r authsdk.PasswordSignInRequest) error {
	if err := validation.ValidateStruct(&r,
		validation.Field(&r.UserName, validation.Required, validation.Length(1, maxNameLength)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 1024)),
		validation.Field(&r.AppID, validation.Length(0, maxNameLength)),
		validation.Field(&r.Claims, validation.Length(0, maxClaims)),
	); err != nil {
		return err
	}
	return validateClaims(r.Claims)
}

func validateTwoFactorSignIn(r authsdk.TwoFactorSignInRequest) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Ticket, validation.Required, validation.Length(1, maxTokenLength)),
		validation.Field(&r.Code, validation.Required, validation.Length(6, 8)),
	)
}

func validateCredential(c authsdk.ProviderCredential) error {
	tokenRules := []validation.Rule{validation.Length(0, maxTokenLength)}
	codeRules := []validation.Rule{validation.Length(0, maxTokenLength)}
	switch c.Kind {
	case authsdk.CredentialImplicitToken:
		tokenRules = append(tokenRules, validation.Required)
	case authsdk.CredentialAuthCode:
		codeRules = append(codeRules, validation.Required)
	}

	return validation.ValidateStruct(&c,
		validation.Field(&c.Provider, validation.Required, validation.Length(1, 64)),
		validation.Field(&c.Kind, validation.Required,
			validation.In(authsdk.CredentialImplicitToken, authsdk.CredentialAuthCode)),
		validation.Field(&c.AccessToken, tokenRules...),
		validation.Field(&c.Code, codeRules...),
		validation.Field(&c.CodeVerifier, validation.Length(0, 128)),
		validation.Field(&c.RedirectURI, validation.Length(0, 2048)),
	)
}

func validateExternalSignIn(r authsdk.ExternalSignInRequest) error {
	if err := validateCredential(r.Credential); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&r,
		validation.Field(&r.AppID, validation.Length(0, maxNameLength)),
		validation.Field(&r.Claims, validation.Length(0, maxClaims)),
	); err != nil {
		return err
	}
	return validateClaims(r.Claims)
}

func validateExternalSignUp(r authsdk.ExternalSignUpRequest) error {
	if err := validateCredential(r.Credential); err != nil {
		return err
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserName, validation.Length(0, maxNameLength)),
		validation.Field(&r.AppID, validation.Length(0, maxNameLength)),
	)
}

func validateRefresh(r authsdk.RefreshRequest) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.AccessToken, validation.Required, validation.Length(1, maxTokenLength)),
		validation.Field(&r.RefreshToken, validation.Required, validation.Length(1, 512)),
	)
}

func validatePhoneNumberToken(r authsdk.PhoneNumberTokenRequest) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PhoneNumber, validation.Required, validation.Length(1, 32)),
	)
}

func validateChangePhoneNumber(r authsdk.ChangePhoneNumberRequest) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PhoneNumber, validation.Required, validation.Length(1, 32)),
		validation.Field(&r.Code, validation.Required, validation.Length(6, 8)),
	)
}

func validateClaims(claims []authsdk.Claim) error {
	for i := range claims {
		c := claims[i]
		if err := validation.ValidateStruct(&c,
			validation.Field(&c.Type, validation.Required, validation.Length(1, maxNameLength)),
			validation.Field(&c.Value, validation.Length(0, 4096)),
		); err != nil {
			return err
		}
		if err := validation.Validate(strings.TrimSpace(c.Type), validation.NotIn(reservedClaimTypes()...)); err != nil {
			return fmt.Errorf("claims: type %q is reserved", c.Type)
		}
	}
	return nil
}

func reservedClaimTypes() []any {
	reserved := domain.ReservedClaimTypes()
	out := make([]any, len(reserved))
	for i, t := range reserved {
		out[i] = t
	}
	return out
}

func toCredential(c authsdk.ProviderCredential) domain.ProviderCredential {
	if c.Kind == authsdk.CredentialAuthCode {
		return domain.NewAuthCode(c.Provider, c.Code, c.CodeVerifier, c.RedirectURI)
	}
	return domain.NewImplicitToken(c.Provider, c.AccessToken)
}

func toClaims(in []authsdk.Claim) []domain.Claim {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Claim, 0, len(in))
	for _, c := range in {
		out = append(out, domain.Claim{Type: strings.TrimSpace(c.Type), Value: c.Value})
	}
	return out
}

func toTokenResponse(t domain.AccessToken) authsdk.TokenResponse {
	resp := authsdk.TokenResponse{
		AppID:       t.AppID,
		SubjectID:   t.SubjectID,
		AccessToken: t.Token,
		TokenType:   "Bearer",
		ExpiresAt:   t.ExpireAt.UTC(),
	}
	if t.RefreshToken != nil {
		exp := t.RefreshToken.ExpireAt.UTC()
		resp.RefreshToken = t.RefreshToken.Token
		resp.RefreshExpiresAt = &exp
	}
	return resp
}
