package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"jwtauth/internal/domain/models"
	"jwtauth/internal/lib/jwt"
	"jwtauth/internal/services/refreshtokens"
	"jwtauth/internal/storage"

	"github.com/google/uuid"
)

type seedStorage interface {
	SaveRole(ctx context.Context, name, description string) (int64, error)
	SaveClient(ctx context.Context, clientID, name, url string) (int64, error)
	SaveUser(ctx context.Context, email, fullName string, passHash []byte) (int64, error)
	User(ctx context.Context, email string) (*models.User, error)
	AssignRole(ctx context.Context, userID int64, roleName string) error
	ActiveSigningKeys(ctx context.Context) ([]models.SigningKey, error)
	SaveSigningKey(ctx context.Context, key models.SigningKey) error
	RotateSigningKey(ctx context.Context, key models.SigningKey) error
	refreshtokens.TokenStorage
}

type tokenRevoker interface {
	RevokeAllActiveForUser(ctx context.Context, userID int64) (int64, error)
}

type passwordHasher interface {
	Hash(password string) ([]byte, error)
}

var defaultRoles = []models.Role{
	{Name: "Admin", Description: "Full access"},
	{Name: "Editor", Description: "Manages the catalogue"},
	{Name: "User", Description: "Regular reader"},
}

var defaultClients = []models.Client{
	{ClientID: "Mobile", Name: "Mobile", URL: "https://reading_mobile.com"},
	{ClientID: "Web", Name: "Web", URL: "https://reading_web.com"},
}

type seeder struct {
	log       *slog.Logger
	storage   seedStorage
	tokens    tokenRevoker
	passwords passwordHasher
	now       func() time.Time
}

// seed is idempotent: rows that already exist are left untouched.
func (s *seeder) seed(ctx context.Context, demoEmail, demoPassword string) error {
	const op = "migrator.seed"

	for _, role := range defaultRoles {
		if _, err := s.storage.SaveRole(ctx, role.Name, role.Description); err != nil && !errors.Is(err, storage.ErrRoleExists) {
			return fmt.Errorf("%s: role %s: %w", op, role.Name, err)
		}
	}

	for _, c := range defaultClients {
		if _, err := s.storage.SaveClient(ctx, c.ClientID, c.Name, c.URL); err != nil && !errors.Is(err, storage.ErrClientExists) {
			return fmt.Errorf("%s: client %s: %w", op, c.ClientID, err)
		}
	}

	if demoPassword != "" {
		if err := s.seedUser(ctx, demoEmail, demoPassword); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	_, err := s.storage.ActiveSigningKeys(ctx)
	switch {
	case err == nil:
		s.log.Info("active signing key already present")
	case errors.Is(err, storage.ErrNoActiveKey):
		key, err := s.newSigningKey()
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := s.storage.SaveSigningKey(ctx, key); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		s.log.Info("signing key created", slog.String("kid", key.KeyID))
	default:
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("seed completed")

	return nil
}

func (s *seeder) seedUser(ctx context.Context, email, pass string) error {
	hash, err := s.passwords.Hash(pass)
	if err != nil {
		return err
	}

	userID, err := s.storage.SaveUser(ctx, email, "Demo User", hash)
	if errors.Is(err, storage.ErrUserExists) {
		user, err := s.storage.User(ctx, email)
		if err != nil {
			return err
		}
		userID = user.ID
	} else if err != nil {
		return err
	}

	if err := s.storage.AssignRole(ctx, userID, "User"); err != nil {
		return err
	}

	s.log.Info("demo user seeded", slog.String("email", email))

	return nil
}

func (s *seeder) rotateKey(ctx context.Context) (string, error) {
	const op = "migrator.rotateKey"

	key, err := s.newSigningKey()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.RotateSigningKey(ctx, key); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return key.KeyID, nil
}

// revokeUser signs the user out of every client.
func (s *seeder) revokeUser(ctx context.Context, email string) (int64, error) {
	const op = "migrator.revokeUser"

	user, err := s.storage.User(ctx, email)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	n, err := s.tokens.RevokeAllActiveForUser(ctx, user.ID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func (s *seeder) newSigningKey() (models.SigningKey, error) {
	_, priv, pub, err := jwt.GenerateRSAKey()
	if err != nil {
		return models.SigningKey{}, err
	}

	return models.SigningKey{
		KeyID:      uuid.NewString(),
		PrivateKey: priv,
		PublicKey:  pub,
		Active:     true,
		CreatedAt:  s.now().UTC(),
	}, nil
}
