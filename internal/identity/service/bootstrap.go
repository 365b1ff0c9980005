package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/identity/domain"
	"github.com/aussiebroadwan/tollgate/internal/identity/store"
	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
	"github.com/pquerna/otp/totp"
)

// BootstrapUser describes a password user seeded into the store at startup.
type BootstrapUser struct {
	UserName string
	Email    string
	Password string
	Roles    []string

	// Claims are stored with the user, keyed by claim type.
	Claims map[string]string

	// TwoFactorSecret enrolls the user in TOTP when set (base32).
	TwoFactorSecret string
}

// BootstrapService provisions password users. Passwords are hashed with the
// same Hasher the store verifies with.
type BootstrapService struct {
	Store  store.Store
	Hasher *cryptox.Hasher
}

// Bootstrap creates u with its roles, claims and second factor in one
// transaction. ErrUserNameTaken is returned when the user already exists,
// which callers seeding at every startup can treat as done.
func (s *BootstrapService) Bootstrap(ctx context.Context, u BootstrapUser) (domain.User, error) {
	l := slogx.FromContext(ctx)

	// 1. Validate
	name := strings.TrimSpace(u.UserName)
	if name == "" || u.Password == "" {
		return domain.User{}, fmt.Errorf("%w: user name and password are required", ErrInvalidRequest)
	}
	claims := make([]domain.Claim, 0, len(u.Claims))
	for _, typ := range slices.Sorted(maps.Keys(u.Claims)) {
		if domain.IsReservedClaimType(typ) {
			return domain.User{}, fmt.Errorf("%w: claim type %q is reserved", ErrInvalidRequest, typ)
		}
		claims = append(claims, domain.Claim{Type: typ, Value: u.Claims[typ]})
	}
	if u.TwoFactorSecret != "" {
		if _, err := totp.GenerateCode(u.TwoFactorSecret, time.Now()); err != nil {
			return domain.User{}, fmt.Errorf("%w: two-factor secret: %v", ErrInvalidRequest, err)
		}
	}

	// 2. Hash password
	hash, err := s.Hasher.Hash(u.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	// 3. Create user, roles, claims and second factor together
	var created domain.User
	err = s.Store.WithTx(ctx, func(tx store.Store) error {
		users := tx.Users()
		if err := users.CreateUser(ctx, domain.User{
			UserName:     name,
			Email:        u.Email,
			PasswordHash: hash,
		}); err != nil {
			return err
		}
		found, err := users.FindByUserName(ctx, name)
		if err != nil {
			return err
		}
		created = found

		if len(u.Roles) > 0 {
			if err := users.AddToRoles(ctx, created.ID, u.Roles...); err != nil {
				return err
			}
		}
		if len(claims) > 0 {
			if err := users.AddClaims(ctx, created.ID, claims...); err != nil {
				return err
			}
		}
		if u.TwoFactorSecret != "" {
			if err := users.EnableTwoFactor(ctx, created.ID, u.TwoFactorSecret); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrUserNameTaken
		}
		return domain.User{}, err
	}

	l.Info("bootstrap user created",
		slog.String("user_id", created.ID),
		slog.Int("roles", len(u.Roles)),
		slog.Bool("two_factor", u.TwoFactorSecret != ""),
	)
	return created, nil
}
