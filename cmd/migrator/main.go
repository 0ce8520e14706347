package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"jwtauth/internal/config"
	"jwtauth/internal/lib/logger/handlers/slogpretty"
	"jwtauth/internal/lib/password"
	"jwtauth/internal/lib/sl"
	"jwtauth/internal/services/refreshtokens"
	"jwtauth/internal/storage/mongodb"
	"jwtauth/internal/storage/sqlite"

	"github.com/joho/godotenv"
)

func main() {
	var (
		configPath   string
		seedData     bool
		rotateKey    bool
		demoEmail    string
		demoPassword string
		revokeUser   string
	)

	flag.StringVar(&configPath, "config", "", "path to config file (or use CONFIG_PATH env)")
	flag.BoolVar(&seedData, "seed", false, "seed roles, clients and an initial signing key")
	flag.BoolVar(&rotateKey, "rotate-key", false, "generate a new active signing key and retire the current one")
	flag.StringVar(&demoEmail, "demo-email", "demo@reading.local", "email of the seeded demo user")
	flag.StringVar(&demoPassword, "demo-password", "", "password of the seeded demo user; no user is seeded when empty")
	flag.StringVar(&revokeUser, "revoke-user", "", "revoke every active refresh token of the user with this email")
	flag.Parse()

	_ = godotenv.Load()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		panic("config path is empty")
	}

	cfg := config.LoadConfig(configPath)

	log := slog.New(slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{Level: slog.LevelDebug},
	}.NewPrettyHandler(os.Stdout))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, closeStore, err := prepare(ctx, log, cfg)
	if err != nil {
		log.Error("failed to prepare storage", sl.Err(err))
		os.Exit(1)
	}
	defer closeStore()

	s := &seeder{
		log:       log,
		storage:   store,
		tokens:    refreshtokens.New(store, time.Now),
		passwords: password.New(0),
		now:       time.Now,
	}

	if seedData {
		if err := s.seed(ctx, demoEmail, demoPassword); err != nil {
			log.Error("failed to seed", sl.Err(err))
			os.Exit(1)
		}
	}

	if rotateKey {
		kid, err := s.rotateKey(ctx)
		if err != nil {
			log.Error("failed to rotate signing key", sl.Err(err))
			os.Exit(1)
		}
		log.Info("signing key rotated", slog.String("kid", kid))
	}

	if revokeUser != "" {
		n, err := s.revokeUser(ctx, revokeUser)
		if err != nil {
			log.Error("failed to revoke refresh tokens", sl.Err(err))
			os.Exit(1)
		}
		log.Info("refresh tokens revoked", slog.String("email", revokeUser), slog.Int64("count", n))
	}

	log.Info("storage is ready", slog.String("driver", cfg.Storage.Driver))
}

// prepare brings the schema up to date: migrations for sqlite, indexes for mongo.
func prepare(ctx context.Context, log *slog.Logger, cfg *config.Config) (seedStorage, func(), error) {
	const op = "migrator.prepare"

	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}

		s, err := sqlite.New(cfg.Storage.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := s.Migrate(); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}

		log.Info("migrations applied", slog.String("path", cfg.Storage.Path))

		return s, func() { _ = s.Close() }, nil

	case config.DriverMongoDB:
		s, err := mongodb.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}

		log.Info("mongodb connected, indexes created", slog.String("database", cfg.Mongo.Database))

		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Storage.Timeout)
			defer cancel()
			_ = s.Close(ctx)
		}
		return s, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("%s: unknown storage driver %q", op, cfg.Storage.Driver)
	}
}
