package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/identity/external"
	httpapi "github.com/aussiebroadwan/tollgate/internal/identity/http"
	"github.com/aussiebroadwan/tollgate/internal/identity/service"
	"github.com/aussiebroadwan/tollgate/internal/identity/store"
	"github.com/aussiebroadwan/tollgate/internal/identity/store/drivers/postgres"
	"github.com/aussiebroadwan/tollgate/internal/identity/store/drivers/redis"
	"github.com/aussiebroadwan/tollgate/internal/identity/store/drivers/sqlite"
	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
	"github.com/aussiebroadwan/tollgate/pkg/httpx"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags.
var BuildVersion = "v0.1.0"

// refreshDriver is a refresh-token backend that owns its own connection.
type refreshDriver interface {
	store.RefreshTokens
	Ping(ctx context.Context) error
	Close() error
}

// Application owns every long-lived dependency of the service.
type Application struct {
	cfg    Config
	logger *slog.Logger

	users     store.Store // nil in admin-only mode
	hasher    *cryptox.Hasher
	refreshDB refreshDriver
	registry  *external.Registry

	signIn       *service.SignInService
	phone        *service.PhoneNumberService
	housekeeping *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

func New(ctx context.Context, cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "tollgate",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.Log.Level,
			Format:  cfg.Log.Format,
		}),
	}

	if err := app.initStores(ctx); err != nil {
		_ = app.closeStores()
		return nil, err
	}
	if err := app.seedUsers(ctx); err != nil {
		_ = app.closeStores()
		return nil, err
	}
	if err := app.initProviders(ctx); err != nil {
		_ = app.closeStores()
		return nil, err
	}
	if err := app.initServices(); err != nil {
		_ = app.closeStores()
		_ = app.registry.Close()
		return nil, err
	}
	if err := app.initHTTP(); err != nil {
		_ = app.closeStores()
		_ = app.registry.Close()
		return nil, err
	}

	return app, nil
}

// Handler exposes the router, mainly for tests.
func (app *Application) Handler() http.Handler { return app.router }

// Run serves until SIGINT or SIGTERM, then shuts down gracefully.
func (app *Application) Run() error {
	if app.housekeeping != nil {
		app.housekeeping.Start()
	}

	app.logger.Info("tollgate starting",
		slog.Int("port", app.cfg.Port),
		slog.String("version", BuildVersion),
		slog.Bool("admin_only", app.signIn.AdminOnly()),
		slog.Any("providers", app.registry.Providers()),
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}
	return nil
}

// Shutdown drains the server, stops background work and closes stores.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down tollgate...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", slogx.Err(err))
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", slogx.Err(err))
		}
	}

	if app.housekeeping != nil {
		app.housekeeping.Stop()
	}

	err := errors.Join(app.registry.Close(), app.closeStores())
	if err != nil {
		app.logger.Error("error releasing resources", slogx.Err(err))
		return err
	}

	app.logger.Info("tollgate stopped")
	return nil
}

func (app *Application) initStores(ctx context.Context) error {
	if app.cfg.Store.Mode == StoreNone {
		app.logger.Warn("running without a user store, only the administrator can sign in")
		return nil
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.Store.SQLiteFile)
	app.hasher = cryptox.NewHasher(app.cfg.Pepper)
	st, err := sqlite.NewStore(dsn,
		sqlite.WithHasher(app.hasher),
		sqlite.WithLockoutPolicy(store.LockoutPolicy{
			MaxFailedAttempts: app.cfg.Lockout.MaxFailedAttempts,
			Duration:          app.cfg.Lockout.Duration,
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to open user store: %w", err)
	}
	app.users = st

	if err := st.ApplyMigrations(); err != nil {
		return fmt.Errorf("failed to apply user store migrations: %w", err)
	}
	app.logger.Info("user store migrations applied")

	switch app.cfg.Refresh.Driver {
	case RefreshPostgres:
		pg, err := postgres.Open(ctx, app.cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("failed to open refresh token store: %w", err)
		}
		app.refreshDB = pg
		if err := pg.ApplyMigrations(); err != nil {
			return fmt.Errorf("failed to apply refresh token migrations: %w", err)
		}
	case RefreshRedis:
		rdb, err := redis.Open(ctx, app.cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to open refresh token store: %w", err)
		}
		app.refreshDB = rdb
	}
	app.logger.Info("refresh token store ready", slog.String("driver", app.cfg.Refresh.Driver))
	return nil
}

// seedUsers provisions the configured bootstrap user, once.
func (app *Application) seedUsers(ctx context.Context) error {
	b := app.cfg.Bootstrap
	if app.users == nil || b.UserName == "" {
		return nil
	}

	boot := &service.BootstrapService{Store: app.users, Hasher: app.hasher}
	_, err := boot.Bootstrap(slogx.WithContext(ctx, app.logger), service.BootstrapUser{
		UserName:        b.UserName,
		Email:           b.Email,
		Password:        b.Password,
		Roles:           b.Roles,
		Claims:          b.Claims,
		TwoFactorSecret: b.TwoFactorSecret,
	})
	if errors.Is(err, service.ErrUserNameTaken) {
		app.logger.Info("bootstrap user already exists", slog.String("user_name", b.UserName))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to bootstrap user: %w", err)
	}
	return nil
}

func (app *Application) refreshTokens() store.RefreshTokens {
	if app.refreshDB != nil {
		return app.refreshDB
	}
	return app.users.RefreshTokens()
}

func (app *Application) initProviders(ctx context.Context) error {
	var verifiers []external.Verifier
	p := app.cfg.Providers

	if p.Facebook.Enabled() {
		v, err := external.NewFacebookVerifier(external.FacebookConfig{
			ClientID:     p.Facebook.ClientID,
			ClientSecret: p.Facebook.ClientSecret,
		})
		if err != nil {
			return err
		}
		verifiers = append(verifiers, v)
	}
	if p.Google.Enabled() {
		v, err := external.NewGoogleVerifier(ctx, external.GoogleConfig{
			ClientID:     p.Google.ClientID,
			ClientSecret: p.Google.ClientSecret,
			Scopes:       p.Google.Scopes,
		})
		if err != nil {
			return err
		}
		verifiers = append(verifiers, v)
	}
	if p.Microsoft.Enabled() {
		v, err := external.NewMicrosoftVerifier(external.MicrosoftConfig{
			ClientID:       p.Microsoft.ClientID,
			ClientSecret:   p.Microsoft.ClientSecret,
			Scopes:         p.Microsoft.Scopes,
			Tenant:         p.Microsoft.Tenant,
			ValidateIssuer: p.Microsoft.ValidateIssuer,
		})
		if err != nil {
			return err
		}
		verifiers = append(verifiers, v)
	}

	app.registry = external.NewRegistry(app.cfg.ProviderTimeout, verifiers...)
	return nil
}

func (app *Application) initServices() error {
	signer, err := service.NewTokenSigner(service.TokenSignerOptions{
		Issuer:    app.cfg.Issuer,
		Audience:  app.cfg.Audience,
		Secret:    []byte(app.cfg.Secret),
		AccessTTL: app.cfg.AccessTTL(),
	})
	if err != nil {
		return err
	}

	opts := service.SignInOptions{
		Signer:   signer,
		External: app.registry,
		Admin: service.AdminCredentials{
			UserName: app.cfg.Admin.UserName,
			Password: app.cfg.Admin.Password,
		},
		DefaultRoles: app.cfg.Signup.DefaultRoles,
	}

	if app.users != nil {
		tokens := app.refreshTokens()
		opts.Store = app.users
		opts.Refresh = &service.RefreshTokenStore{Tokens: tokens, TTL: app.cfg.RefreshTTL()}

		app.phone = &service.PhoneNumberService{Users: app.users.Users(), Region: app.cfg.Phone.Region}

		if purger, ok := tokens.(store.ExpiredRefreshTokenPurger); ok {
			app.housekeeping = service.NewHousekeepingService(purger, app.logger, app.cfg.HousekeepingInterval)
		}
	}

	app.signIn, err = service.NewSignInService(opts)
	return err
}

func (app *Application) initHTTP() error {
	clientIP, err := httpx.TrustedProxyKeyExtractor(app.cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	router := httpapi.NewRouter(BuildVersion, app.cfg.RateLimits, app.logger)
	router.ClientIP = clientIP
	router.SignIn = app.signIn
	router.TransientRoles = app.cfg.Transient.Roles
	router.Checks = map[string]httpapi.ReadinessCheck{}

	if app.users != nil {
		router.Phone = app.phone
		router.PhoneCodes = httpapi.LogCodeSender{}
		router.Checks["user_store"] = app.users.Ping
	}
	if app.refreshDB != nil {
		router.Checks["refresh_store"] = app.refreshDB.Ping
	}
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
	return nil
}

func (app *Application) closeStores() error {
	var errs []error
	if app.refreshDB != nil {
		errs = append(errs, app.refreshDB.Close())
	}
	if app.users != nil {
		errs = append(errs, app.users.Close())
	}
	return errors.Join(errs...)
}
