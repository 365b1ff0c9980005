package http

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/tollgate/internal/identity/domain"
	"github.com/aussiebroadwan/tollgate/internal/identity/service"
	"github.com/aussiebroadwan/tollgate/pkg/httpx"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

type principalKey struct{}

// bearerAuthenticator adapts SignInService to httpx.Authenticator.
type bearerAuthenticator struct {
	signIn *service.SignInService
}

func (a *bearerAuthenticator) Authenticate(ctx context.Context, bearer string) (context.Context, error) {
	p, err := a.signIn.Authenticate(bearer)
	if err != nil {
		return nil, err
	}
	ctx = httpx.WithUserID(ctx, p.SubjectID)
	ctx = slogx.With(ctx, slog.String("user_id", p.SubjectID), slog.String("app_id", p.AppID))
	return context.WithValue(ctx, principalKey{}, p), nil
}

func principalFromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok && p.SubjectID != ""
}
