package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"jwtauth/internal/domain/models"
	"jwtauth/internal/storage"
)

const signingKeyColumns = "kid, private_key, public_key, active, created_at"

func (s *Storage) SaveSigningKey(ctx context.Context, key models.SigningKey) error {
	const op = "storage.sqlite.SaveSigningKey"

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO signing_keys ("+signingKeyColumns+") VALUES (?, ?, ?, ?, ?)",
		key.KeyID, key.PrivateKey, key.PublicKey, key.Active, key.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrKeyExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RotateSigningKey deactivates every key and stores key as the only active one.
func (s *Storage) RotateSigningKey(ctx context.Context, key models.SigningKey) error {
	const op = "storage.sqlite.RotateSigningKey"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "UPDATE signing_keys SET active = 0 WHERE active = 1"); err != nil {
		return fmt.Errorf("%s: deactivate: %w", op, err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO signing_keys ("+signingKeyColumns+") VALUES (?, ?, ?, 1, ?)",
		key.KeyID, key.PrivateKey, key.PublicKey, key.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrKeyExists)
		}
		return fmt.Errorf("%s: insert: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}

// ActiveSigningKeys returns every key flagged active. More than one row is a
// configuration error the caller has to report.
func (s *Storage) ActiveSigningKeys(ctx context.Context) ([]models.SigningKey, error) {
	const op = "storage.sqlite.ActiveSigningKeys"

	keys, err := s.querySigningKeys(ctx, "SELECT "+signingKeyColumns+" FROM signing_keys WHERE active = 1 ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNoActiveKey)
	}

	return keys, nil
}

// SigningKeys returns all stored keys, active and retired.
func (s *Storage) SigningKeys(ctx context.Context) ([]models.SigningKey, error) {
	const op = "storage.sqlite.SigningKeys"

	keys, err := s.querySigningKeys(ctx, "SELECT "+signingKeyColumns+" FROM signing_keys ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return keys, nil
}

func (s *Storage) SigningKey(ctx context.Context, kid string) (*models.SigningKey, error) {
	const op = "storage.sqlite.SigningKey"

	var k models.SigningKey
	err := s.db.QueryRowContext(ctx, "SELECT "+signingKeyColumns+" FROM signing_keys WHERE kid = ?", kid).
		Scan(&k.KeyID, &k.PrivateKey, &k.PublicKey, &k.Active, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrKeyNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &k, nil
}

func (s *Storage) querySigningKeys(ctx context.Context, query string) ([]models.SigningKey, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []models.SigningKey
	for rows.Next() {
		var k models.SigningKey
		if err := rows.Scan(&k.KeyID, &k.PrivateKey, &k.PublicKey, &k.Active, &k.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}
