package httpapp

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"jwtauth/internal/config"
	authhandlers "jwtauth/internal/http/handlers/auth"
	"jwtauth/internal/http/handlers/profile"
	"jwtauth/internal/http/handlers/wellknown"
	"jwtauth/internal/http/middleware/authn"
	mwlogger "jwtauth/internal/http/middleware/logger"
	"jwtauth/internal/lib/api/response"
	"jwtauth/internal/lib/jwt"
	"jwtauth/internal/lib/sl"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Keys interface {
	VerificationKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
	KeySet(ctx context.Context) (jwt.JWKSet, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	log             *slog.Logger
	server          *http.Server
	shutdownTimeout time.Duration
}

func New(
	log *slog.Logger,
	cfg config.HTTPConfig,
	issuer string,
	authService authhandlers.Service,
	keys Keys,
	storage Pinger,
) *App {
	return &App{
		log: log,
		server: &http.Server{
			Addr:         cfg.Address,
			Handler:      NewRouter(log, cfg.RequestTimeout, issuer, authService, keys, storage),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

func NewRouter(
	log *slog.Logger,
	requestTimeout time.Duration,
	issuer string,
	authService authhandlers.Service,
	keys Keys,
	storage Pinger,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(mwlogger.New(log))
	router.Use(middleware.Recoverer)
	if requestTimeout > 0 {
		router.Use(middleware.Timeout(requestTimeout))
	}

	router.Get("/healthz", health(log, storage))
	router.Get("/.well-known/jwks.json", wellknown.JWKS(log, keys))

	router.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", authhandlers.Login(log, authService))
		r.Post("/auth/refresh", authhandlers.Refresh(log, authService))

		r.Group(func(r chi.Router) {
			r.Use(authn.New(log, issuer, keys))

			r.Post("/auth/logout", authhandlers.Logout(log, authService))
			r.Get("/profile", profile.New())
		})
	})

	return router
}

func health(log *slog.Logger, storage Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := storage.Ping(r.Context()); err != nil {
			log.Warn("health check failed", sl.Err(err))
			response.Error(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
		response.OK(w, "ok")
	}
}

// Handler exposes the router, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

func (a *App) Run() error {
	const op = "httpapp.Run"

	log := a.log.With(
		slog.String("op", op),
		slog.String("address", a.server.Addr),
	)

	listener, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("http server is running", slog.String("address", listener.Addr().String()))

	if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (a *App) Stop() {
	const op = "httpapp.Stop"

	log := a.log.With(slog.String("op", op))
	log.Info("stopping http server", slog.String("address", a.server.Addr))

	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		log.Error("failed to stop http server gracefully", sl.Err(err))
	}
}
