package service

import (
	"context"
	"crypto/sha256"
	"encoding/base32"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/identity/store"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
	"github.com/nyaruka/phonenumbers"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// PhoneCodePeriod is how long one change-phone-number code stays current.
	PhoneCodePeriod = 3 * time.Minute

	changePhonePurpose = "ChangePhoneNumber"
)

// PhoneNumberService issues and redeems change-phone-number codes. Codes are
// derived from the user's security stamp, so changing the number (which
// rotates the stamp) invalidates every outstanding code.
type PhoneNumberService struct {
	Users store.Users

	// Region is the ISO 3166 code assumed for numbers without a +prefix.
	Region string

	Now func() time.Time
}

func (s *PhoneNumberService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Normalize returns number in E.164 form.
func (s *PhoneNumberService) Normalize(number string) (string, error) {
	region := s.Region
	if region == "" {
		region = "US"
	}
	num, err := phonenumbers.Parse(strings.TrimSpace(number), region)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPhoneNumber, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalidPhoneNumber
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// GenerateChangePhoneNumberToken returns a code the user must echo back to
// ChangePhoneNumber, together with the normalised number it is bound to. A
// number already held by another user is rejected up front.
func (s *PhoneNumberService) GenerateChangePhoneNumberToken(ctx context.Context, userID, number string) (code, normalized string, err error) {
	normalized, err = s.Normalize(number)
	if err != nil {
		return "", "", err
	}
	if err := s.ensureAvailable(ctx, userID, normalized); err != nil {
		return "", "", err
	}

	u, err := s.Users.FindByID(ctx, userID)
	if err != nil {
		return "", "", err
	}

	code, err = totp.GenerateCodeCustom(phoneSecret(u.SecurityStamp, normalized), s.now(), phoneOpts())
	if err != nil {
		return "", "", fmt.Errorf("generate phone code: %w", err)
	}

	slogx.FromContext(ctx).Info("change phone number code issued", slog.String("user_id", userID))
	return code, normalized, nil
}

// ChangePhoneNumber stores number once code has been verified.
func (s *PhoneNumberService) ChangePhoneNumber(ctx context.Context, userID, number, code string) error {
	normalized, err := s.Normalize(number)
	if err != nil {
		return err
	}

	u, err := s.Users.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := totp.ValidateCustom(strings.TrimSpace(code), phoneSecret(u.SecurityStamp, normalized), s.now(), phoneOpts())
	if err != nil || !ok {
		slogx.FromContext(ctx).Info("change phone number code rejected", slog.String("user_id", userID))
		return ErrInvalidCode
	}

	if err := s.ensureAvailable(ctx, userID, normalized); err != nil {
		return err
	}
	if err := s.Users.SetPhoneNumber(ctx, userID, normalized); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return ErrPhoneNumberTaken
		}
		return err
	}
	return nil
}

func (s *PhoneNumberService) ensureAvailable(ctx context.Context, userID, normalized string) error {
	owner, err := s.Users.FindByPhoneNumber(ctx, normalized)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return err
	case owner.ID != userID:
		return ErrPhoneNumberTaken
	default:
		return nil
	}
}

func phoneOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(PhoneCodePeriod / time.Second),
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// phoneSecret keys the code to the stamp, the purpose and the number.
func phoneSecret(stamp, number string) string {
	sum := sha256.Sum256([]byte(stamp + ":" + changePhonePurpose + ":" + number))
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum[:])
}
