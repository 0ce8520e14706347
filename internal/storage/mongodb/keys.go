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
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type signingKeyDoc struct {
	KeyID      string    `bson:"_id"`
	PrivateKey []byte    `bson:"private_key"`
	PublicKey  []byte    `bson:"public_key"`
	Active     bool      `bson:"active"`
	CreatedAt  time.Time `bson:"created_at"`
}

func toSigningKeyDoc(k models.SigningKey) signingKeyDoc {
	return signingKeyDoc{
		KeyID:      k.KeyID,
		PrivateKey: k.PrivateKey,
		PublicKey:  k.PublicKey,
		Active:     k.Active,
		CreatedAt:  k.CreatedAt.UTC(),
	}
}

func (d signingKeyDoc) model() models.SigningKey {
	return models.SigningKey{
		KeyID:      d.KeyID,
		PrivateKey: d.PrivateKey,
		PublicKey:  d.PublicKey,
		Active:     d.Active,
		CreatedAt:  d.CreatedAt,
	}
}

func (s *Storage) SaveSigningKey(ctx context.Context, key models.SigningKey) error {
	const op = "storage.mongodb.SaveSigningKey"

	if _, err := s.signingKeys.InsertOne(ctx, toSigningKeyDoc(key)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrKeyExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RotateSigningKey deactivates every key and stores key as the only active one.
func (s *Storage) RotateSigningKey(ctx context.Context, key models.SigningKey) error {
	const op = "storage.mongodb.RotateSigningKey"

	key.Active = true

	err := s.inTransaction(ctx, func(ctx context.Context) error {
		_, err := s.signingKeys.UpdateMany(ctx,
			bson.D{{Key: "active", Value: true}},
			bson.D{{Key: "$set", Value: bson.D{{Key: "active", Value: false}}}},
		)
		if err != nil {
			return fmt.Errorf("deactivate: %w", err)
		}

		if _, err := s.signingKeys.InsertOne(ctx, toSigningKeyDoc(key)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return storage.ErrKeyExists
			}
			return fmt.Errorf("insert: %w", err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) ActiveSigningKeys(ctx context.Context) ([]models.SigningKey, error) {
	const op = "storage.mongodb.ActiveSigningKeys"

	keys, err := s.findSigningKeys(ctx, bson.D{{Key: "active", Value: true}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNoActiveKey)
	}

	return keys, nil
}

func (s *Storage) SigningKeys(ctx context.Context) ([]models.SigningKey, error) {
	const op = "storage.mongodb.SigningKeys"

	keys, err := s.findSigningKeys(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return keys, nil
}

func (s *Storage) SigningKey(ctx context.Context, kid string) (*models.SigningKey, error) {
	const op = "storage.mongodb.SigningKey"

	var doc signingKeyDoc
	if err := s.signingKeys.FindOne(ctx, bson.D{{Key: "_id", Value: kid}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrKeyNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	key := doc.model()
	return &key, nil
}

func (s *Storage) findSigningKeys(ctx context.Context, filter bson.D) ([]models.SigningKey, error) {
	cur, err := s.signingKeys.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}

	var docs []signingKeyDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	keys := make([]models.SigningKey, 0, len(docs))
	for _, d := range docs {
		keys = append(keys, d.model())
	}

	return keys, nil
}
