package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	httpapp "jwtauth/internal/app/http"
	"jwtauth/internal/config"
	"jwtauth/internal/lib/password"
	"jwtauth/internal/lib/sl"
	"jwtauth/internal/services/auth"
	"jwtauth/internal/services/keys"
	"jwtauth/internal/services/refreshtokens"
	"jwtauth/internal/storage/mongodb"
	"jwtauth/internal/storage/sqlite"
)

// Storage is what a persistence backend has to provide to run the service.
type Storage interface {
	auth.UserProvider
	auth.ClientProvider
	keys.KeyStorage
	refreshtokens.TokenStorage
	Ping(ctx context.Context) error
}

var (
	_ Storage = (*sqlite.Storage)(nil)
	_ Storage = (*mongodb.Storage)(nil)
)

type App struct {
	HTTPSrv *httpapp.App
	Keys    *keys.Provider

	log          *slog.Logger
	closeStorage func() error
}

func New(log *slog.Logger, cfg *config.Config) *App {
	storage, closeStorage, err := openStorage(cfg)
	if err != nil {
		panic(err)
	}

	return NewWithStorage(log, cfg, storage, closeStorage)
}

func NewWithStorage(log *slog.Logger, cfg *config.Config, storage Storage, closeStorage func() error) *App {
	keyProvider := keys.New(log, storage, cfg.Keys.CacheTTL)
	tokenStore := refreshtokens.New(storage, time.Now)

	authService := auth.New(
		log,
		storage,
		storage,
		password.New(0),
		keyProvider,
		tokenStore,
		cfg.Tokens.Issuer,
	)

	httpApp := httpapp.New(log, cfg.HTTP, cfg.Tokens.Issuer, authService, keyProvider, storage)

	return &App{
		HTTPSrv:      httpApp,
		Keys:         keyProvider,
		log:          log,
		closeStorage: closeStorage,
	}
}

// Stop shuts the HTTP server down and then releases the storage.
func (a *App) Stop() {
	a.HTTPSrv.Stop()

	if a.closeStorage == nil {
		return
	}
	if err := a.closeStorage(); err != nil {
		a.log.Error("failed to close storage", sl.Err(err))
	}
}

func openStorage(cfg *config.Config) (Storage, func() error, error) {
	const op = "app.openStorage"

	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		s, err := sqlite.New(cfg.Storage.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		return s, s.Close, nil

	case config.DriverMongoDB:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Storage.Timeout)
		defer cancel()

		s, err := mongodb.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}

		closeFn := func() error {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Storage.Timeout)
			defer cancel()
			return s.Close(ctx)
		}
		return s, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("%s: unknown storage driver %q", op, cfg.Storage.Driver)
	}
}
