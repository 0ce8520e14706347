package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jwtauth/internal/domain/models"
	"jwtauth/internal/storage"
)

const refreshTokenColumns = "t.id, t.token_hash, t.user_id, t.client_id, t.expires_at, t.revoked, t.created_at, t.revoked_at"

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Storage) SaveRefreshToken(ctx context.Context, token models.RefreshToken) (int64, error) {
	const op = "storage.sqlite.SaveRefreshToken"

	id, err := insertRefreshToken(ctx, s.db, token)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// RefreshToken looks a token up by digest under the client's public
// identifier. A digest issued to another client is reported as not found.
func (s *Storage) RefreshToken(ctx context.Context, tokenHash, clientID string) (*models.RefreshToken, error) {
	const op = "storage.sqlite.RefreshToken"

	row := s.db.QueryRowContext(ctx, `
		SELECT `+refreshTokenColumns+`
		FROM refresh_tokens t
		JOIN clients c ON c.id = t.client_id
		WHERE t.token_hash = ? AND c.client_id = ?`,
		tokenHash, clientID,
	)

	token, err := scanRefreshToken(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

// UserRefreshToken is RefreshToken additionally scoped to the owning user.
func (s *Storage) UserRefreshToken(ctx context.Context, tokenHash, clientID string, userID int64) (*models.RefreshToken, error) {
	const op = "storage.sqlite.UserRefreshToken"

	row := s.db.QueryRowContext(ctx, `
		SELECT `+refreshTokenColumns+`
		FROM refresh_tokens t
		JOIN clients c ON c.id = t.client_id
		WHERE t.token_hash = ? AND c.client_id = ? AND t.user_id = ?`,
		tokenHash, clientID, userID,
	)

	token, err := scanRefreshToken(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

// RotateRefreshToken revokes oldID and stores next in one transaction.
// If oldID was already revoked nothing is written and storage.ErrTokenRevoked
// is returned.
func (s *Storage) RotateRefreshToken(ctx context.Context, oldID int64, revokedAt time.Time, next models.RefreshToken) (int64, error) {
	const op = "storage.sqlite.RotateRefreshToken"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback()

	if err := revokeActive(ctx, tx, oldID, revokedAt); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	id, err := insertRefreshToken(ctx, tx, next)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: commit: %w", op, err)
	}

	return id, nil
}

// RevokeRefreshToken revokes id. With allForUser every other active token of
// userID is revoked in the same transaction.
func (s *Storage) RevokeRefreshToken(ctx context.Context, id, userID int64, allForUser bool, revokedAt time.Time) error {
	const op = "storage.sqlite.RevokeRefreshToken"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback()

	if err := revokeActive(ctx, tx, id, revokedAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if allForUser {
		if _, err := revokeUserTokens(ctx, tx, userID, revokedAt); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}

// RevokeUserRefreshTokens revokes every active token of userID and returns
// how many rows changed. Already revoked rows keep their revoked_at.
func (s *Storage) RevokeUserRefreshTokens(ctx context.Context, userID int64, revokedAt time.Time) (int64, error) {
	const op = "storage.sqlite.RevokeUserRefreshTokens"

	n, err := revokeUserTokens(ctx, s.db, userID, revokedAt)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func insertRefreshToken(ctx context.Context, e execer, t models.RefreshToken) (int64, error) {
	res, err := e.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token_hash, user_id, client_id, expires_at, revoked, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		t.TokenHash, t.UserID, t.ClientID, t.ExpiresAt.UTC(), t.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, storage.ErrTokenExists
		}
		if isForeignKeyViolation(err) {
			return 0, storage.ErrUserNotFound
		}
		return 0, err
	}

	return res.LastInsertId()
}

func revokeActive(ctx context.Context, e execer, id int64, revokedAt time.Time) error {
	res, err := e.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = 1, revoked_at = ? WHERE id = ? AND revoked = 0",
		revokedAt.UTC(), id,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrTokenRevoked
	}

	return nil
}

func revokeUserTokens(ctx context.Context, e execer, userID int64, revokedAt time.Time) (int64, error) {
	res, err := e.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = 1, revoked_at = ? WHERE user_id = ? AND revoked = 0",
		revokedAt.UTC(), userID,
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func scanRefreshToken(row *sql.Row) (*models.RefreshToken, error) {
	var (
		t         models.RefreshToken
		revokedAt sql.NullTime
	)

	err := row.Scan(&t.ID, &t.TokenHash, &t.UserID, &t.ClientID, &t.ExpiresAt, &t.Revoked, &t.CreatedAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, err
	}

	if revokedAt.Valid {
		at := revokedAt.Time
		t.RevokedAt = &at
	}

	return &t, nil
}
