// Package external verifies credentials issued by third-party identity
// providers and normalises them into domain.ExternalIdentity.
package external

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/identity/domain"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

// ErrRejected is the only error Registry.Verify returns. Provider detail is
// logged, never returned.
var ErrRejected = errors.New("external: credential rejected")

// DefaultTimeout bounds one verification including every provider round trip.
const DefaultTimeout = 10 * time.Second

// maxBody caps provider response bodies.
const maxBody = 1 << 20

// Verifier checks one provider's credentials.
type Verifier interface {
	Name() string
	Verify(ctx context.Context, cred domain.ProviderCredential) (domain.ExternalIdentity, error)
}

// Registry dispatches on the credential's provider name.
type Registry struct {
	verifiers map[string]Verifier
	timeout   time.Duration
}

func NewRegistry(timeout time.Duration, verifiers ...Verifier) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r := &Registry{verifiers: make(map[string]Verifier, len(verifiers)), timeout: timeout}
	for _, v := range verifiers {
		r.Register(v)
	}
	return r
}

// Register adds v, replacing any verifier with the same name.
func (r *Registry) Register(v Verifier) {
	r.verifiers[strings.ToLower(v.Name())] = v
}

// Providers lists registered provider names, sorted.
func (r *Registry) Providers() []string {
	out := make([]string, 0, len(r.verifiers))
	for _, v := range r.verifiers {
		out = append(out, v.Name())
	}
	slices.Sort(out)
	return out
}

func (r *Registry) Verify(ctx context.Context, cred domain.ProviderCredential) (domain.ExternalIdentity, error) {
	l := slogx.FromContext(ctx).With(
		slog.String("provider", cred.Provider),
		slog.String("kind", cred.Kind.String()),
	)

	v, ok := r.verifiers[strings.ToLower(cred.Provider)]
	if !ok {
		l.Warn("external sign-in with unknown provider")
		return domain.ExternalIdentity{}, ErrRejected
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ident, err := v.Verify(ctx, cred)
	if err != nil {
		l.Warn("external credential rejected", slogx.Err(err))
		return domain.ExternalIdentity{}, ErrRejected
	}
	if ident.ProviderSubjectID == "" {
		l.Warn("external credential verified without a subject")
		return domain.ExternalIdentity{}, ErrRejected
	}
	ident.Provider = v.Name()
	return ident, nil
}

// Close releases background resources held by verifiers.
func (r *Registry) Close() error {
	var errs []error
	for _, v := range r.verifiers {
		if c, ok := v.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

func defaultHTTPClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: DefaultTimeout}
}
