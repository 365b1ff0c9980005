package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/identity/domain"
	"github.com/aussiebroadwan/tollgate/internal/identity/store"
	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// totpPeriod is the authenticator-app step in seconds.
const totpPeriod = 30

// AdministratorRole is granted to the configured admin in store-less mode.
const AdministratorRole = "Administrator"

// Claims added to transient external principals.
const (
	ClaimIdentityProvider = domain.ClaimIdentityProvider
	ClaimAddress          = "address"
	ClaimBirthdate        = "birthdate"
)

// IdentityVerifier turns a provider credential into a verified identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, cred domain.ProviderCredential) (domain.ExternalIdentity, error)
}

type SignInState int

const (
	StateAnonymous SignInState = iota
	StateAuthenticated
	StateRejected
	StateLockedOut
	StateTwoFactorRequired
	StateNotLinked
)

func (s SignInState) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateRejected:
		return "rejected"
	case StateLockedOut:
		return "locked_out"
	case StateTwoFactorRequired:
		return "two_factor_required"
	case StateNotLinked:
		return "not_linked"
	default:
		return "anonymous"
	}
}

// SignInResult is the terminal state of a sign-in. Token is set only when
// State is StateAuthenticated, TwoFactorTicket only for
// StateTwoFactorRequired.
type SignInResult struct {
	State           SignInState
	Token           domain.AccessToken
	TwoFactorTicket string
}

type AdminCredentials struct {
	UserName string
	Password string
}

type SignInOptions struct {
	// Store is the user store. Leaving it nil selects admin-transient mode,
	// in which only Admin can sign in and nothing is refreshable.
	Store store.Store

	// Refresh is required with a Store.
	Refresh *RefreshTokenStore

	Signer   *TokenSigner
	External IdentityVerifier

	Admin        AdminCredentials
	DefaultRoles []string

	Now func() time.Time
}

// SignInService ties credential checks, claim assembly, signing and refresh
// rotation together.
type SignInService struct {
	store     store.Store
	refresh   *RefreshTokenStore
	signer    *TokenSigner
	external  IdentityVerifier
	admin     AdminCredentials
	roles     []string
	now       func() time.Time
	adminOnly bool
}

func NewSignInService(opts SignInOptions) (*SignInService, error) {
	if opts.Signer == nil {
		return nil, fmt.Errorf("%w: token signer is required", ErrMisconfigured)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &SignInService{
		store:    opts.Store,
		refresh:  opts.Refresh,
		signer:   opts.Signer,
		external: opts.External,
		admin:    opts.Admin,
		roles:    opts.DefaultRoles,
		now:      opts.Now,
	}

	if opts.Store == nil {
		if opts.Admin.UserName == "" || opts.Admin.Password == "" {
			return nil, fmt.Errorf("%w: admin credentials are required without a user store", ErrMisconfigured)
		}
		s.adminOnly = true
		return s, nil
	}
	if opts.Refresh == nil {
		return nil, fmt.Errorf("%w: refresh token store is required with a user store", ErrMisconfigured)
	}
	return s, nil
}

// AdminOnly reports whether the service runs without a user store.
func (s *SignInService) AdminOnly() bool { return s.adminOnly }

type PasswordSignInRequest struct {
	UserName    string
	Password    string
	AppID       string
	Refreshable bool

	// Claims are transient and only end up in this token.
	Claims []domain.Claim
}

func (s *SignInService) PasswordSignIn(ctx context.Context, req PasswordSignInRequest) (SignInResult, error) {
	req.Claims = callerClaims(ctx, req.Claims)
	if s.adminOnly {
		return s.adminSignIn(ctx, req)
	}

	l := slogx.FromContext(ctx)
	users := s.store.Users()

	// 1. Locate the user
	u, err := users.FindByUserName(ctx, req.UserName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.Info("password sign-in for unknown user")
			return rejected()
		}
		return SignInResult{}, err
	}

	// 2. Lockout is reported even before the password is checked
	locked, err := users.IsLockedOut(ctx, u)
	if err != nil {
		return SignInResult{}, err
	}
	if locked {
		l.Info("password sign-in for locked out user", slog.String("user_id", u.ID))
		return SignInResult{State: StateLockedOut}, ErrLockedOut
	}

	// 3. Password
	ok, err := users.CheckPassword(ctx, u, req.Password)
	if err != nil {
		return SignInResult{}, err
	}
	if !ok {
		if err := users.AccessFailed(ctx, u.ID); err != nil {
			l.Error("failed to record failed access", slogx.Err(err), slog.String("user_id", u.ID))
		}
		l.Info("password sign-in rejected", slog.String("user_id", u.ID))
		return rejected()
	}
	if u.AccessFailedCount > 0 {
		if err := users.ResetAccessFailedCount(ctx, u.ID); err != nil {
			return SignInResult{}, err
		}
	}

	// 4. Second factor
	twoFactor, err := users.RequiresTwoFactor(ctx, u)
	if err != nil {
		return SignInResult{}, err
	}
	if twoFactor {
		ticket, err := s.signer.IssueTwoFactorTicket(u.ID, appIDOrDefault(req.AppID), req.Refreshable)
		if err != nil {
			return SignInResult{}, err
		}
		return SignInResult{State: StateTwoFactorRequired, TwoFactorTicket: ticket}, ErrTwoFactorRequired
	}

	// 5. Issue
	return s.issueForUser(ctx, users, u, req.AppID, req.Refreshable, req.Claims)
}

func (s *SignInService) adminSignIn(ctx context.Context, req PasswordSignInRequest) (SignInResult, error) {
	nameOK := cryptox.ConstantTimeEqual(req.UserName, s.admin.UserName)
	passOK := cryptox.ConstantTimeEqual(req.Password, s.admin.Password)
	if !nameOK || !passOK {
		slogx.FromContext(ctx).Info("admin sign-in rejected")
		return rejected()
	}

	p := AssembleClaims(domain.Principal{
		SubjectID: s.admin.UserName,
		AppID:     req.AppID,
		UserName:  s.admin.UserName,
	}, []string{AdministratorRole}, req.Claims)

	tok, err := s.signer.Issue(p)
	if err != nil {
		return SignInResult{}, err
	}
	return SignInResult{State: StateAuthenticated, Token: tok}, nil
}

// TwoFactorSignIn completes a sign-in that returned StateTwoFactorRequired.
func (s *SignInService) TwoFactorSignIn(ctx context.Context, ticket, code string) (SignInResult, error) {
	if s.adminOnly {
		return rejected()
	}
	l := slogx.FromContext(ctx)

	t, err := s.signer.VerifyTwoFactorTicket(ticket)
	if err != nil {
		l.Info("two-factor ticket rejected", slogx.Err(err))
		return rejected()
	}

	users := s.store.Users()
	u, err := users.FindByID(ctx, t.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return rejected()
		}
		return SignInResult{}, err
	}

	locked, err := users.IsLockedOut(ctx, u)
	if err != nil {
		return SignInResult{}, err
	}
	if locked {
		return SignInResult{State: StateLockedOut}, ErrLockedOut
	}

	step, ok := matchTOTPStep(code, u.TwoFactorSecret, s.now())
	if !u.RequiresTwoFactor() || !ok {
		if err := users.AccessFailed(ctx, u.ID); err != nil {
			l.Error("failed to record failed access", slogx.Err(err), slog.String("user_id", u.ID))
		}
		l.Info("two-factor code rejected", slog.String("user_id", u.ID))
		return rejected()
	}
	fresh, err := users.UseTwoFactorStep(ctx, u.ID, step)
	if err != nil {
		return SignInResult{}, err
	}
	if !fresh {
		l.Info("two-factor code replayed", slog.String("user_id", u.ID))
		return rejected()
	}
	if u.AccessFailedCount > 0 {
		if err := users.ResetAccessFailedCount(ctx, u.ID); err != nil {
			return SignInResult{}, err
		}
	}

	return s.issueForUser(ctx, users, u, t.AppID, t.Refreshable, nil)
}

type ExternalSignInRequest struct {
	Credential  domain.ProviderCredential
	AppID       string
	Refreshable bool
	Claims      []domain.Claim
}

// ExternalSignIn signs in the local user linked to the verified external
// identity. An unlinked identity yields StateNotLinked so the caller can
// offer sign-up.
func (s *SignInService) ExternalSignIn(ctx context.Context, req ExternalSignInRequest) (SignInResult, error) {
	if s.adminOnly {
		return rejected()
	}
	req.Claims = callerClaims(ctx, req.Claims)

	ident, err := s.verifyExternal(ctx, req.Credential)
	if err != nil {
		return rejected()
	}

	users := s.store.Users()
	u, err := users.FindByExternalLogin(ctx, ident.Provider, ident.ProviderSubjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return SignInResult{State: StateNotLinked}, ErrExternalLoginNotLinked
		}
		return SignInResult{}, err
	}

	locked, err := users.IsLockedOut(ctx, u)
	if err != nil {
		return SignInResult{}, err
	}
	if locked {
		return SignInResult{State: StateLockedOut}, ErrLockedOut
	}

	return s.issueForUser(ctx, users, u, req.AppID, req.Refreshable, req.Claims)
}

type TransientExternalSignInRequest struct {
	Credential domain.ProviderCredential
	AppID      string
	Roles      []string
	Claims     []domain.Claim
}

// TransientExternalSignIn mints a token straight from the verified identity
// without touching the user store. The token is never refreshable.
func (s *SignInService) TransientExternalSignIn(ctx context.Context, req TransientExternalSignInRequest) (SignInResult, error) {
	req.Claims = callerClaims(ctx, req.Claims)
	ident, err := s.verifyExternal(ctx, req.Credential)
	if err != nil {
		return rejected()
	}

	provided := []domain.Claim{{Type: ClaimIdentityProvider, Value: ident.Provider}}
	if ident.Address != "" {
		provided = append(provided, domain.Claim{Type: ClaimAddress, Value: ident.Address})
	}
	if ident.Birthdate != "" {
		provided = append(provided, domain.Claim{Type: ClaimBirthdate, Value: ident.Birthdate})
	}

	p := AssembleClaims(domain.Principal{
		SubjectID: ident.ProviderSubjectID,
		AppID:     req.AppID,
		UserName:  ident.DisplayName,
		Email:     ident.Email,
	}, req.Roles, provided, req.Claims)

	tok, err := s.signer.Issue(p)
	if err != nil {
		return SignInResult{}, err
	}
	return SignInResult{State: StateAuthenticated, Token: tok}, nil
}

type ExternalSignUpRequest struct {
	Credential  domain.ProviderCredential
	UserName    string
	AppID       string
	Refreshable bool
}

// ExternalSignUp creates a local user for a verified identity, links the
// login and grants the default roles, then signs the user in. An identity
// that is already linked signs in as that user.
func (s *SignInService) ExternalSignUp(ctx context.Context, req ExternalSignUpRequest) (SignInResult, error) {
	if s.adminOnly {
		return rejected()
	}

	ident, err := s.verifyExternal(ctx, req.Credential)
	if err != nil {
		return rejected()
	}

	users := s.store.Users()
	existing, err := users.FindByExternalLogin(ctx, ident.Provider, ident.ProviderSubjectID)
	switch {
	case err == nil:
		return s.issueForUser(ctx, users, existing, req.AppID, req.Refreshable, nil)
	case !errors.Is(err, store.ErrNotFound):
		return SignInResult{}, err
	}

	name := strings.TrimSpace(req.UserName)
	if name == "" {
		name = ident.Email
	}
	if name == "" {
		return SignInResult{}, fmt.Errorf("%w: user name is required", ErrInvalidRequest)
	}

	var created domain.User
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		u := domain.User{UserName: name, Email: ident.Email}
		if err := tx.Users().CreateUser(ctx, u); err != nil {
			return err
		}
		found, err := tx.Users().FindByUserName(ctx, name)
		if err != nil {
			return err
		}
		created = found
		if err := tx.Users().AddLogin(ctx, created.ID, domain.ExternalLogin{
			Provider:    ident.Provider,
			ProviderKey: ident.ProviderSubjectID,
			DisplayName: ident.DisplayName,
		}); err != nil {
			return err
		}
		if len(s.roles) > 0 {
			return tx.Users().AddToRoles(ctx, created.ID, s.roles...)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return SignInResult{}, ErrUserNameTaken
		}
		return SignInResult{}, err
	}

	slogx.FromContext(ctx).Info("external user signed up",
		slog.String("user_id", created.ID),
		slog.String("provider", ident.Provider),
	)
	return s.issueForUser(ctx, users, created, req.AppID, req.Refreshable, nil)
}

// Refresh exchanges an access token, expired or not, plus its refresh token
// for a new pair. The stored refresh token is only replaced once the new
// access token has been signed.
func (s *SignInService) Refresh(ctx context.Context, accessToken, refreshToken string) (SignInResult, error) {
	if s.adminOnly {
		return rejected()
	}
	l := slogx.FromContext(ctx)

	// 1. Who is asking
	p, err := s.signer.Verify(accessToken, true)
	if err != nil {
		l.Info("refresh with invalid access token", slogx.Err(err))
		return rejected()
	}
	l = l.With(slog.String("user_id", p.SubjectID), slog.String("app_id", p.AppID))

	// 2. Check the presented refresh token
	rec, err := s.refresh.Consume(ctx, p.SubjectID, p.AppID, refreshToken)
	if err != nil {
		if isRefreshDiscriminant(err) {
			l.Info("refresh token rejected", slog.String("reason", err.Error()))
			return rejected()
		}
		return SignInResult{}, err
	}

	// 3. Reload the user so role changes take effect
	users := s.store.Users()
	u, err := users.FindByID(ctx, p.SubjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.Info("refresh for deleted user")
			return rejected()
		}
		return SignInResult{}, err
	}
	locked, err := users.IsLockedOut(ctx, u)
	if err != nil {
		return SignInResult{}, err
	}
	if locked {
		l.Info("refresh for locked out user")
		return rejected()
	}

	tok, err := s.signUser(ctx, users, u, p.AppID, nil)
	if err != nil {
		return SignInResult{}, err
	}

	// 4. Nothing has been written yet; stop here if the caller went away
	if err := ctx.Err(); err != nil {
		return SignInResult{}, err
	}

	// 5. Rotate. Losing the race leaves the winner's token in place.
	next, err := s.refresh.Rotate(ctx, rec)
	if err != nil {
		if isRefreshDiscriminant(err) {
			l.Info("refresh token rotation lost race", slog.String("reason", err.Error()))
			return rejected()
		}
		return SignInResult{}, err
	}
	tok.RefreshToken = &next

	return SignInResult{State: StateAuthenticated, Token: tok}, nil
}

// SignOut drops the refresh token behind accessToken. Access tokens stay
// valid until they expire.
func (s *SignInService) SignOut(ctx context.Context, accessToken string) error {
	p, err := s.signer.Verify(accessToken, true)
	if err != nil {
		return ErrUnauthorized
	}
	if s.adminOnly {
		return nil
	}
	if err := s.refresh.Revoke(ctx, p.SubjectID, p.AppID); err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("signed out",
		slog.String("user_id", p.SubjectID),
		slog.String("app_id", p.AppID),
	)
	return nil
}

// Authenticate verifies a live access token.
func (s *SignInService) Authenticate(accessToken string) (domain.Principal, error) {
	p, err := s.signer.Verify(accessToken, false)
	if err != nil {
		return domain.Principal{}, ErrUnauthorized
	}
	return p, nil
}

func (s *SignInService) verifyExternal(ctx context.Context, cred domain.ProviderCredential) (domain.ExternalIdentity, error) {
	if s.external == nil {
		return domain.ExternalIdentity{}, fmt.Errorf("%w: no external providers configured", ErrUnauthorized)
	}
	ident, err := s.external.Verify(ctx, cred)
	if err != nil {
		// The verifier has already logged provider detail.
		return domain.ExternalIdentity{}, err
	}
	if ident.Provider == "" {
		ident.Provider = cred.Provider
	}
	return ident, nil
}

func (s *SignInService) signUser(
	ctx context.Context,
	users store.Users,
	u domain.User,
	appID string,
	transient []domain.Claim,
) (domain.AccessToken, error) {
	roles, err := users.GetRoles(ctx, u.ID)
	if err != nil {
		return domain.AccessToken{}, fmt.Errorf("load roles: %w", err)
	}
	stored, err := users.GetClaims(ctx, u.ID)
	if err != nil {
		return domain.AccessToken{}, fmt.Errorf("load claims: %w", err)
	}

	p := AssembleClaims(domain.Principal{
		SubjectID: u.ID,
		AppID:     appID,
		UserName:  u.UserName,
		Email:     u.Email,
	}, roles, stored, transient)

	return s.signer.Issue(p)
}

func (s *SignInService) issueForUser(
	ctx context.Context,
	users store.Users,
	u domain.User,
	appID string,
	refreshable bool,
	transient []domain.Claim,
) (SignInResult, error) {
	tok, err := s.signUser(ctx, users, u, appID, transient)
	if err != nil {
		return SignInResult{}, err
	}

	if refreshable {
		rt, err := s.refresh.IssueOrRotate(ctx, u.ID, tok.AppID)
		if err != nil {
			return SignInResult{}, err
		}
		tok.RefreshToken = &rt
	}

	slogx.FromContext(ctx).Info("signed in",
		slog.String("user_id", u.ID),
		slog.String("app_id", tok.AppID),
		slog.Bool("refreshable", refreshable),
	)
	return SignInResult{State: StateAuthenticated, Token: tok}, nil
}

// callerClaims drops claims whose type only the issuer may set, so a caller
// cannot name its own roles or subject.
func callerClaims(ctx context.Context, in []domain.Claim) []domain.Claim {
	out := make([]domain.Claim, 0, len(in))
	for _, c := range in {
		if domain.IsReservedClaimType(c.Type) {
			slogx.FromContext(ctx).Warn("dropped reserved caller claim", slog.String("claim_type", c.Type))
			continue
		}
		out = append(out, c)
	}
	return out
}

func rejected() (SignInResult, error) {
	return SignInResult{State: StateRejected}, ErrUnauthorized
}

// matchTOTPStep validates code within one step either side of now and
// returns the time step it was generated for.
func matchTOTPStep(code, secret string, now time.Time) (int64, bool) {
	code = strings.TrimSpace(code)
	opts := totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
	for _, offset := range []int64{0, -1, 1} {
		at := now.Add(time.Duration(offset*totpPeriod) * time.Second)
		ok, err := totp.ValidateCustom(code, secret, at, opts)
		if err == nil && ok {
			return at.Unix() / totpPeriod, true
		}
	}
	return 0, false
}

func appIDOrDefault(appID string) string {
	if appID == "" {
		return domain.DefaultAppID
	}
	return appID
}

func isRefreshDiscriminant(err error) bool {
	return errors.Is(err, ErrRefreshTokenInvalid) ||
		errors.Is(err, ErrRefreshTokenMismatch) ||
		errors.Is(err, ErrRefreshTokenExpired)
}
