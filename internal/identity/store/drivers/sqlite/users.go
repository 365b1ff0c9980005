package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/tollgate/internal/identity/domain"
	"github.com/aussiebroadwan/tollgate/internal/identity/store"
	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
	"github.com/aussiebroadwan/tollgate/pkg/idx"
)

const userColumns = `u.id, u.user_name, u.email, u.password_hash, u.phone_number, u.security_stamp,
	u.two_factor_enabled, u.two_factor_secret, u.lockout_end, u.access_failed_count,
	u.created_at, u.updated_at`

type usersRepo struct {
	q    dbtx
	opts *options
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u                    domain.User
		phone                sql.NullString
		lockoutEnd           sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&u.ID, &u.UserName, &u.Email, &u.PasswordHash, &phone, &u.SecurityStamp,
		&u.TwoFactorEnabled, &u.TwoFactorSecret, &lockoutEnd, &u.AccessFailedCount,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.PhoneNumber = phone.String
	if lockoutEnd.Valid {
		t := fromMillis(lockoutEnd.Int64)
		u.LockoutEnd = &t
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

func (r *usersRepo) FindByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.id = ?`, id))
}

func (r *usersRepo) FindByUserName(ctx context.Context, userName string) (domain.User, error) {
	return scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.user_name = ?`, userName))
}

func (r *usersRepo) FindByExternalLogin(ctx context.Context, provider, providerKey string) (domain.User, error) {
	return scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users u
		 JOIN user_logins l ON l.user_id = u.id
		 WHERE l.provider = ? AND l.provider_key = ?`, provider, providerKey))
}

func (r *usersRepo) FindByPhoneNumber(ctx context.Context, phone string) (domain.User, error) {
	return scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.phone_number = ?`, phone))
}

func (r *usersRepo) CheckPassword(_ context.Context, u domain.User, password string) (bool, error) {
	if u.PasswordHash == "" {
		return false, nil
	}
	err := r.opts.hasher.Verify(password, u.PasswordHash)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, cryptox.ErrPasswordMismatch):
		return false, nil
	default:
		return false, fmt.Errorf("sqlite: check password for %s: %w", u.ID, err)
	}
}

func (r *usersRepo) GetRoles(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT role FROM user_roles WHERE user_id = ? ORDER BY role`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *usersRepo) GetClaims(ctx context.Context, userID string) ([]domain.Claim, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT claim_type, claim_value FROM user_claims WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []domain.Claim
	for rows.Next() {
		var c domain.Claim
		if err := rows.Scan(&c.Type, &c.Value); err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

func (r *usersRepo) IsLockedOut(_ context.Context, u domain.User) (bool, error) {
	return u.IsLockedOut(r.opts.now()), nil
}

func (r *usersRepo) RequiresTwoFactor(_ context.Context, u domain.User) (bool, error) {
	return u.RequiresTwoFactor(), nil
}

// AccessFailed increments the failure counter. Reaching the threshold sets
// lockout_end and resets the counter in the same statement.
func (r *usersRepo) AccessFailed(ctx context.Context, userID string) error {
	now := r.opts.now()
	limit := r.opts.lockout.MaxFailedAttempts
	if limit <= 0 {
		return nil
	}

	res, err := r.q.ExecContext(ctx, `
		UPDATE users SET
			lockout_end = CASE WHEN access_failed_count + 1 >= ? THEN ? ELSE lockout_end END,
			access_failed_count = CASE WHEN access_failed_count + 1 >= ? THEN 0 ELSE access_failed_count + 1 END,
			updated_at = ?
		WHERE id = ?`,
		limit, toMillis(now.Add(r.opts.lockout.Duration)), limit, toMillis(now), userID)
	return expectOne(res, err)
}

func (r *usersRepo) ResetAccessFailedCount(ctx context.Context, userID string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET access_failed_count = 0, updated_at = ? WHERE id = ?`,
		toMillis(r.opts.now()), userID)
	return expectOne(res, err)
}

// CreateUser inserts u. ID and SecurityStamp are generated when empty.
func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := r.opts.now()
	if u.ID == "" {
		u.ID = idx.New().String()
	}
	if u.SecurityStamp == "" {
		u.SecurityStamp = idx.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (
			id, user_name, email, password_hash, phone_number, security_stamp,
			two_factor_enabled, two_factor_secret, lockout_end, access_failed_count,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.UserName, u.Email, u.PasswordHash, nullString(u.PhoneNumber), u.SecurityStamp,
		u.TwoFactorEnabled, u.TwoFactorSecret, nullMillis(u.LockoutEnd), u.AccessFailedCount,
		toMillis(u.CreatedAt), toMillis(now),
	)
	return mapConstraint(err)
}

func (r *usersRepo) AddLogin(ctx context.Context, userID string, login domain.ExternalLogin) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO user_logins (provider, provider_key, user_id, display_name) VALUES (?, ?, ?, ?)`,
		login.Provider, login.ProviderKey, userID, login.DisplayName)
	return mapConstraint(err)
}

func (r *usersRepo) AddToRoles(ctx context.Context, userID string, roles ...string) error {
	for _, role := range roles {
		if _, err := r.q.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_roles (user_id, role) VALUES (?, ?)`, userID, role); err != nil {
			return err
		}
	}
	return nil
}

func (r *usersRepo) AddClaims(ctx context.Context, userID string, claims ...domain.Claim) error {
	for _, c := range claims {
		if _, err := r.q.ExecContext(ctx,
			`INSERT INTO user_claims (user_id, claim_type, claim_value) VALUES (?, ?, ?)`,
			userID, c.Type, c.Value); err != nil {
			return err
		}
	}
	return nil
}

func (r *usersRepo) SetPhoneNumber(ctx context.Context, userID, phone string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET phone_number = ?, security_stamp = ?, updated_at = ? WHERE id = ?`,
		nullString(phone), idx.New().String(), toMillis(r.opts.now()), userID)
	return expectOne(res, mapConstraint(err))
}

func (r *usersRepo) EnableTwoFactor(ctx context.Context, userID, secret string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET two_factor_enabled = 1, two_factor_secret = ?, updated_at = ? WHERE id = ?`,
		secret, toMillis(r.opts.now()), userID)
	return expectOne(res, err)
}

func (r *usersRepo) UseTwoFactorStep(ctx context.Context, userID string, step int64) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET two_factor_last_step = ?, updated_at = ? WHERE id = ? AND two_factor_last_step < ?`,
		step, toMillis(r.opts.now()), userID, step)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
