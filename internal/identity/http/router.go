package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/identity/service"
	"github.com/aussiebroadwan/tollgate/pkg/httpx"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	limits       httpx.RateLimitProfiles

	SignIn *service.SignInService

	// Phone is nil in admin-only mode, which leaves the account routes
	// unregistered.
	Phone      *service.PhoneNumberService
	PhoneCodes PhoneCodeSender

	// TransientRoles are granted to external sign-ins when there is no user
	// store.
	TransientRoles []string

	// Checks back /readyz, keyed by component name.
	Checks map[string]ReadinessCheck

	// ClientIP keys the per-address rate limits. It defaults to the direct
	// peer address.
	ClientIP httpx.KeyExtractor
}

func NewRouter(buildVersion string, limits httpx.RateLimitProfiles, logger *slog.Logger) *Router {
	return &Router{
		Mux:          http.NewServeMux(),
		middlewares:  []httpx.Middleware{slogx.HTTPMiddleware(logger)},
		buildVersion: buildVersion,
		startTime:    time.Now(),
		limits:       limits,
		ClientIP:     httpx.IPKeyExtractor,
	}
}

func (r *Router) ApplyRoutes() {
	r.registerSignIn()
	r.registerAccount()
	r.registerSystem()
}

// ServeHTTP applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerSignIn() {
	h := &SignInHandler{SignIn: r.SignIn, TransientRoles: r.TransientRoles}

	// Password attempts share a budget per IP and user name.
	r.Mux.Handle("POST /v1/signin/password",
		httpx.Chain(http.HandlerFunc(h.HandlePassword),
			httpx.RateLimitByIPAndJSONField(r.limits.Strict, r.ClientIP, "username"),
		),
	)
	r.Mux.Handle("POST /v1/signin/twofactor",
		httpx.Chain(http.HandlerFunc(h.HandleTwoFactor),
			httpx.RateLimitByIP(r.limits.Strict, r.ClientIP),
		),
	)
	r.Mux.Handle("POST /v1/signin/external",
		httpx.Chain(http.HandlerFunc(h.HandleExternal),
			httpx.RateLimitByIP(r.limits.Strict, r.ClientIP),
		),
	)
	r.Mux.Handle("POST /v1/signin/external/signup",
		httpx.Chain(http.HandlerFunc(h.HandleExternalSignUp),
			httpx.RateLimitByIP(r.limits.Strict, r.ClientIP),
		),
	)
	r.Mux.Handle("POST /v1/token/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(r.limits.Moderate, r.ClientIP),
		),
	)

	// Sign-out accepts expired access tokens, so it reads the bearer itself
	// instead of going through AuthnMiddleware.
	r.Mux.Handle("POST /v1/signout",
		httpx.Chain(http.HandlerFunc(h.HandleSignOut),
			httpx.RateLimitByIP(r.limits.Moderate, r.ClientIP),
		),
	)
}

func (r *Router) registerAccount() {
	if r.Phone == nil {
		return
	}
	h := &PhoneHandler{Phone: r.Phone, Codes: r.PhoneCodes}
	authn := httpx.AuthnMiddleware(&bearerAuthenticator{signIn: r.SignIn})

	// Each code request may send an SMS, keep it tight.
	r.Mux.Handle("POST /v1/account/phone/token",
		httpx.Chain(http.HandlerFunc(h.HandleRequestToken),
			authn,
			httpx.RateLimitByUser(r.limits.Strict, r.ClientIP),
		),
	)
	r.Mux.Handle("POST /v1/account/phone",
		httpx.Chain(http.HandlerFunc(h.HandleChange),
			authn,
			httpx.RateLimitByUser(r.limits.Strict, r.ClientIP),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(r.limits.Lenient, r.ClientIP),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.Checks),
			httpx.RateLimitByIP(r.limits.Lenient, r.ClientIP),
		),
	)
}
