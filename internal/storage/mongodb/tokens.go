package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jwtauth/internal/domain/models"
	"jwtauth/internal/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type refreshTokenDoc struct {
	ID        int64      `bson:"_id"`
	TokenHash string     `bson:"token_hash"`
	UserID    int64      `bson:"user_id"`
	ClientID  int64      `bson:"client_id"`
	ExpiresAt time.Time  `bson:"expires_at"`
	Revoked   bool       `bson:"revoked"`
	CreatedAt time.Time  `bson:"created_at"`
	RevokedAt *time.Time `bson:"revoked_at,omitempty"`
}

func (d refreshTokenDoc) model() *models.RefreshToken {
	return &models.RefreshToken{
		ID:        d.ID,
		TokenHash: d.TokenHash,
		UserID:    d.UserID,
		ClientID:  d.ClientID,
		ExpiresAt: d.ExpiresAt,
		Revoked:   d.Revoked,
		CreatedAt: d.CreatedAt,
		RevokedAt: d.RevokedAt,
	}
}

// SaveRefreshToken stores a new refresh token digest.
func (s *Storage) SaveRefreshToken(ctx context.Context, token models.RefreshToken) (int64, error) {
	const op = "storage.mongodb.SaveRefreshToken"

	id, err := s.insertRefreshToken(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// RefreshToken retrieves a token by digest, scoped to the client's public
// identifier. A digest of another client is reported as not found.
func (s *Storage) RefreshToken(ctx context.Context, tokenHash, clientID string) (*models.RefreshToken, error) {
	const op = "storage.mongodb.RefreshToken"

	token, err := s.findRefreshToken(ctx, tokenHash, clientID, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

func (s *Storage) UserRefreshToken(ctx context.Context, tokenHash, clientID string, userID int64) (*models.RefreshToken, error) {
	const op = "storage.mongodb.UserRefreshToken"

	token, err := s.findRefreshToken(ctx, tokenHash, clientID, &userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

func (s *Storage) findRefreshToken(ctx context.Context, tokenHash, clientID string, userID *int64) (*models.RefreshToken, error) {
	client, err := s.findClient(ctx, bson.D{{Key: "client_id", Value: clientID}})
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, err
	}

	filter := bson.D{
		{Key: "token_hash", Value: tokenHash},
		{Key: "client_id", Value: client.ID},
	}
	if userID != nil {
		filter = append(filter, bson.E{Key: "user_id", Value: *userID})
	}

	var doc refreshTokenDoc
	if err := s.tokens.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, err
	}

	return doc.model(), nil
}

// RotateRefreshToken revokes the old token and inserts a new one atomically.
func (s *Storage) RotateRefreshToken(ctx context.Context, oldID int64, revokedAt time.Time, next models.RefreshToken) (int64, error) {
	const op = "storage.mongodb.RotateRefreshToken"

	var id int64
	err := s.inTransaction(ctx, func(ctx context.Context) error {
		if err := s.revokeActive(ctx, oldID, revokedAt); err != nil {
			return err
		}

		var err error
		id, err = s.insertRefreshToken(ctx, next)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) RevokeRefreshToken(ctx context.Context, id, userID int64, allForUser bool, revokedAt time.Time) error {
	const op = "storage.mongodb.RevokeRefreshToken"

	err := s.inTransaction(ctx, func(ctx context.Context) error {
		if err := s.revokeActive(ctx, id, revokedAt); err != nil {
			return err
		}

		if allForUser {
			if _, err := s.revokeUserTokens(ctx, userID, revokedAt); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) RevokeUserRefreshTokens(ctx context.Context, userID int64, revokedAt time.Time) (int64, error) {
	const op = "storage.mongodb.RevokeUserRefreshTokens"

	n, err := s.revokeUserTokens(ctx, userID, revokedAt)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func (s *Storage) insertRefreshToken(ctx context.Context, t models.RefreshToken) (int64, error) {
	id, err := s.nextID(ctx, "refresh_tokens")
	if err != nil {
		return 0, fmt.Errorf("nextID: %w", err)
	}

	doc := refreshTokenDoc{
		ID:        id,
		TokenHash: t.TokenHash,
		UserID:    t.UserID,
		ClientID:  t.ClientID,
		ExpiresAt: t.ExpiresAt.UTC(),
		CreatedAt: t.CreatedAt.UTC(),
	}

	if _, err := s.tokens.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, storage.ErrTokenExists
		}
		return 0, err
	}

	return id, nil
}

func (s *Storage) revokeActive(ctx context.Context, id int64, revokedAt time.Time) error {
	res, err := s.tokens.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "revoked", Value: false}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "revoked", Value: true},
			{Key: "revoked_at", Value: revokedAt.UTC()},
		}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return storage.ErrTokenRevoked
	}

	return nil
}

func (s *Storage) revokeUserTokens(ctx context.Context, userID int64, revokedAt time.Time) (int64, error) {
	res, err := s.tokens.UpdateMany(ctx,
		bson.D{{Key: "user_id", Value: userID}, {Key: "revoked", Value: false}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "revoked", Value: true},
			{Key: "revoked_at", Value: revokedAt.UTC()},
		}}},
	)
	if err != nil {
		return 0, err
	}

	return res.ModifiedCount, nil
}
