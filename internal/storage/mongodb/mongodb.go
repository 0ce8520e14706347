package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"jwtauth/internal/domain/models"
	"jwtauth/internal/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Storage keeps the same data as the sqlite backend in MongoDB.
// Multi-document changes run in transactions, which need a replica set.
type Storage struct {
	client      *mongo.Client
	database    *mongo.Database
	users       *mongo.Collection
	roles       *mongo.Collection
	clients     *mongo.Collection
	signingKeys *mongo.Collection
	counters    *mongo.Collection
	tokens      *mongo.Collection
}

type userDoc struct {
	ID        int64     `bson:"_id"`
	Email     string    `bson:"email"`
	FullName  string    `bson:"full_name"`
	PassHash  []byte    `bson:"pass_hash"`
	RoleIDs   []int64   `bson:"role_ids"`
	CreatedAt time.Time `bson:"created_at"`
}

type roleDoc struct {
	ID          int64  `bson:"_id"`
	Name        string `bson:"name"`
	Description string `bson:"description"`
}

type clientDoc struct {
	ID       int64  `bson:"_id"`
	ClientID string `bson:"client_id"`
	Name     string `bson:"name"`
	URL      string `bson:"url"`
}

type counterDoc struct {
	ID    string `bson:"_id"`
	Value int64  `bson:"value"`
}

// New creates a new MongoDB storage instance and sets up indexes.
func New(ctx context.Context, uri, database string) (*Storage, error) {
	const op = "storage.mongodb.New"

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	db := client.Database(database)
	s := &Storage{
		client:      client,
		database:    db,
		users:       db.Collection("users"),
		roles:       db.Collection("roles"),
		clients:     db.Collection("clients"),
		signingKeys: db.Collection("signing_keys"),
		counters:    db.Collection("counters"),
		tokens:      db.Collection("refresh_tokens"),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: indexes: %w", op, err)
	}

	return s, nil
}

// Expired and revoked refresh tokens are kept, so there is no TTL index.
func (s *Storage) ensureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll  *mongo.Collection
		name  string
		model mongo.IndexModel
	}{
		{s.users, "users.email", mongo.IndexModel{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{s.roles, "roles.name", mongo.IndexModel{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{s.clients, "clients.client_id", mongo.IndexModel{
			Keys:    bson.D{{Key: "client_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{s.signingKeys, "signing_keys.active", mongo.IndexModel{
			Keys: bson.D{{Key: "active", Value: 1}},
		}},
		{s.tokens, "refresh_tokens.token_hash", mongo.IndexModel{
			Keys:    bson.D{{Key: "token_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{s.tokens, "refresh_tokens.user_id_revoked", mongo.IndexModel{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "revoked", Value: 1}},
		}},
	}

	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("%s index: %w", idx.name, err)
		}
	}

	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects from MongoDB.
func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// nextID atomically increments and returns the next ID for a given collection.
func (s *Storage) nextID(ctx context.Context, collectionName string) (int64, error) {
	filter := bson.D{{Key: "_id", Value: collectionName}}
	update := bson.D{{Key: "$inc", Value: bson.D{{Key: "value", Value: int64(1)}}}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var counter counterDoc
	err := s.counters.FindOneAndUpdate(ctx, filter, update, opts).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Value, nil
}

// inTransaction runs fn in a transaction. The driver retries fn on
// transient errors such as write conflicts.
func (s *Storage) inTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// SaveUser saves a new user and returns the generated user ID.
// Emails are stored lowercased so the unique index is case-insensitive.
func (s *Storage) SaveUser(ctx context.Context, email, fullName string, passHash []byte) (int64, error) {
	const op = "storage.mongodb.SaveUser"

	id, err := s.nextID(ctx, "users")
	if err != nil {
		return 0, fmt.Errorf("%s: nextID: %w", op, err)
	}

	doc := userDoc{
		ID:        id,
		Email:     strings.ToLower(email),
		FullName:  fullName,
		PassHash:  passHash,
		RoleIDs:   []int64{},
		CreatedAt: time.Now().UTC(),
	}

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrUserExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// User retrieves a user by email, case-insensitively, with roles.
func (s *Storage) User(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.mongodb.User"

	user, err := s.findUser(ctx, bson.D{{Key: "email", Value: strings.ToLower(email)}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UserByID retrieves a user by ID.
func (s *Storage) UserByID(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.mongodb.UserByID"

	user, err := s.findUser(ctx, bson.D{{Key: "_id", Value: userID}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *Storage) findUser(ctx context.Context, filter bson.D) (*models.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}

	user := &models.User{
		ID:        doc.ID,
		Email:     doc.Email,
		FullName:  doc.FullName,
		PassHash:  doc.PassHash,
		CreatedAt: doc.CreatedAt,
	}

	if len(doc.RoleIDs) == 0 {
		return user, nil
	}

	cur, err := s.roles.Find(ctx,
		bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: doc.RoleIDs}}}},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("roles: %w", err)
	}

	var roles []roleDoc
	if err := cur.All(ctx, &roles); err != nil {
		return nil, fmt.Errorf("roles: %w", err)
	}

	for _, r := range roles {
		user.Roles = append(user.Roles, models.Role{ID: r.ID, Name: r.Name, Description: r.Description})
	}

	return user, nil
}

func (s *Storage) SaveRole(ctx context.Context, name, description string) (int64, error) {
	const op = "storage.mongodb.SaveRole"

	id, err := s.nextID(ctx, "roles")
	if err != nil {
		return 0, fmt.Errorf("%s: nextID: %w", op, err)
	}

	if _, err := s.roles.InsertOne(ctx, roleDoc{ID: id, Name: name, Description: description}); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrRoleExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// AssignRole adds the named role to the user's role set. Assigning twice is a no-op.
func (s *Storage) AssignRole(ctx context.Context, userID int64, roleName string) error {
	const op = "storage.mongodb.AssignRole"

	var role roleDoc
	if err := s.roles.FindOne(ctx, bson.D{{Key: "name", Value: roleName}}).Decode(&role); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("%s: %w", op, storage.ErrRoleNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	res, err := s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: userID}},
		bson.D{{Key: "$addToSet", Value: bson.D{{Key: "role_ids", Value: role.ID}}}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return nil
}

func (s *Storage) SaveClient(ctx context.Context, clientID, name, url string) (int64, error) {
	const op = "storage.mongodb.SaveClient"

	id, err := s.nextID(ctx, "clients")
	if err != nil {
		return 0, fmt.Errorf("%s: nextID: %w", op, err)
	}

	doc := clientDoc{ID: id, ClientID: clientID, Name: name, URL: url}
	if _, err := s.clients.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrClientExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// Client retrieves a client by its public identifier.
func (s *Storage) Client(ctx context.Context, clientID string) (*models.Client, error) {
	const op = "storage.mongodb.Client"

	client, err := s.findClient(ctx, bson.D{{Key: "client_id", Value: clientID}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return client, nil
}

func (s *Storage) ClientByID(ctx context.Context, id int64) (*models.Client, error) {
	const op = "storage.mongodb.ClientByID"

	client, err := s.findClient(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return client, nil
}

func (s *Storage) findClient(ctx context.Context, filter bson.D) (*models.Client, error) {
	var doc clientDoc
	if err := s.clients.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrClientNotFound
		}
		return nil, err
	}

	return &models.Client{ID: doc.ID, ClientID: doc.ClientID, Name: doc.Name, URL: doc.URL}, nil
}
