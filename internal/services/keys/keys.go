package keys

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"jwtauth/internal/domain/models"
	"jwtauth/internal/lib/jwt"
	"jwtauth/internal/lib/sl"
	"jwtauth/internal/storage"
)

var (
	ErrNoActiveKey        = errors.New("no active signing key")
	ErrAmbiguousActiveKey = errors.New("more than one active signing key")
	ErrInvalidKey         = errors.New("invalid signing key material")
	ErrKeyNotFound        = errors.New("signing key not found")
)

type KeyStorage interface {
	ActiveSigningKeys(ctx context.Context) ([]models.SigningKey, error)
	SigningKeys(ctx context.Context) ([]models.SigningKey, error)
	SigningKey(ctx context.Context, kid string) (*models.SigningKey, error)
}

// Provider resolves the active signing key and the public keys used to verify
// tokens. The active key may be cached for cacheTTL; zero disables caching.
type Provider struct {
	log      *slog.Logger
	storage  KeyStorage
	cacheTTL time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	active   *jwt.Key
	cachedAt time.Time

	pubMu  sync.RWMutex
	public map[string]*rsa.PublicKey
}

func New(log *slog.Logger, storage KeyStorage, cacheTTL time.Duration) *Provider {
	return &Provider{
		log:      log,
		storage:  storage,
		cacheTTL: cacheTTL,
		now:      time.Now,
		public:   make(map[string]*rsa.PublicKey),
	}
}

// ActiveKey returns the key new tokens must be signed with.
func (p *Provider) ActiveKey(ctx context.Context) (jwt.Key, error) {
	const op = "keys.ActiveKey"

	if key, ok := p.cached(); ok {
		return key, nil
	}

	log := p.log.With(slog.String("op", op))

	records, err := p.storage.ActiveSigningKeys(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNoActiveKey) {
			log.Error("no active signing key configured")
			return jwt.Key{}, fmt.Errorf("%s: %w", op, ErrNoActiveKey)
		}
		return jwt.Key{}, fmt.Errorf("%s: %w", op, err)
	}

	if len(records) > 1 {
		kids := make([]string, 0, len(records))
		for _, r := range records {
			kids = append(kids, r.KeyID)
		}
		log.Error("several signing keys flagged active", slog.Any("kids", kids))
		return jwt.Key{}, fmt.Errorf("%s: %w", op, ErrAmbiguousActiveKey)
	}

	priv, err := jwt.ParsePrivateKey(records[0].PrivateKey)
	if err != nil {
		log.Error("failed to parse active signing key", slog.String("kid", records[0].KeyID), sl.Err(err))
		return jwt.Key{}, fmt.Errorf("%s: %w: %w", op, ErrInvalidKey, err)
	}

	key := jwt.Key{ID: records[0].KeyID, PrivateKey: priv}
	p.store(key)

	return key, nil
}

// Invalidate drops the cached active key. Call it after a rotation.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.active = nil
}

func (p *Provider) cached() (jwt.Key, bool) {
	if p.cacheTTL <= 0 {
		return jwt.Key{}, false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.active == nil || p.now().Sub(p.cachedAt) >= p.cacheTTL {
		return jwt.Key{}, false
	}

	return *p.active, true
}

func (p *Provider) store(key jwt.Key) {
	if p.cacheTTL <= 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.active = &key
	p.cachedAt = p.now()
}

// VerificationKey returns the public key registered under kid, active or not.
func (p *Provider) VerificationKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	const op = "keys.VerificationKey"

	p.pubMu.RLock()
	pub, ok := p.public[kid]
	p.pubMu.RUnlock()
	if ok {
		return pub, nil
	}

	record, err := p.storage.SigningKey(ctx, kid)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrKeyNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pub, err = jwt.ParsePublicKey(record.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidKey, err)
	}

	p.pubMu.Lock()
	p.public[kid] = pub
	p.pubMu.Unlock()

	return pub, nil
}

// KeySet renders every stored public key as a JWK set.
func (p *Provider) KeySet(ctx context.Context) (jwt.JWKSet, error) {
	const op = "keys.KeySet"

	records, err := p.storage.SigningKeys(ctx)
	if err != nil {
		return jwt.JWKSet{}, fmt.Errorf("%s: %w", op, err)
	}

	set := jwt.JWKSet{Keys: make([]jwt.JWK, 0, len(records))}
	for _, r := range records {
		pub, err := jwt.ParsePublicKey(r.PublicKey)
		if err != nil {
			p.log.Warn("skipping unreadable public key",
				slog.String("op", op),
				slog.String("kid", r.KeyID),
				sl.Err(err),
			)
			continue
		}
		set.Keys = append(set.Keys, jwt.NewJWK(r.KeyID, pub))
	}

	return set, nil
}
