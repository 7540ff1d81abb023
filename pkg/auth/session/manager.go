// Package session tracks refresh sessions in Redis. A session is keyed by the
// access token's jti and stores only a digest of its refresh token.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sapira-ai/pharo-backend/pkg/config"
	redisclient "github.com/sapira-ai/pharo-backend/pkg/redis"
	"github.com/sapira-ai/pharo-backend/pkg/security"
)

const refreshTokenBytes = 32

var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	errMissingAccessID     = errors.New("session: access id is required")
)

// Store is the key/value surface the manager needs.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	AccessSessionKey(accessID string) string
}

// AccessSessionChecker is the read side used by the auth middleware.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

type record struct {
	UserID    uuid.UUID `json:"user_id"`
	TokenHash string    `json:"token_hash"`
	IssuedAt  time.Time `json:"issued_at"`
}

type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager requires the refresh TTL to outlive the access TTL, otherwise a
// refresh could never happen.
func NewManager(store Store, cfg config.JWTConfig) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session: store is required")
	}
	ttl, accessTTL := cfg.RefreshTokenTTL(), cfg.AccessTokenTTL()
	if ttl <= accessTTL {
		return nil, fmt.Errorf("session: refresh ttl %s must exceed access ttl %s", ttl, accessTTL)
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// NewAccessID returns a fresh jti.
func NewAccessID() string {
	return uuid.NewString()
}

// Generate opens a session for accessID and returns its refresh token.
func (m *Manager) Generate(ctx context.Context, accessID string, userID uuid.UUID) (string, error) {
	if accessID == "" {
		return "", errMissingAccessID
	}
	if userID == uuid.Nil {
		return "", errors.New("session: user id is required")
	}
	token, err := security.RandomToken(refreshTokenBytes)
	if err != nil {
		return "", fmt.Errorf("session: refresh token: %w", err)
	}
	payload, err := json.Marshal(record{UserID: userID, TokenHash: digest(token), IssuedAt: m.now().UTC()})
	if err != nil {
		return "", err
	}
	if err := m.store.Set(ctx, m.store.AccessSessionKey(accessID), string(payload), m.ttl); err != nil {
		return "", fmt.Errorf("session: store: %w", err)
	}
	return token, nil
}

// Rotate trades a valid refresh token for a new session. The old session is
// removed only after the new one is stored.
func (m *Manager) Rotate(ctx context.Context, oldAccessID string, userID uuid.UUID, refreshToken string) (string, string, error) {
	if oldAccessID == "" || refreshToken == "" {
		return "", "", ErrInvalidRefreshToken
	}
	rec, err := m.load(ctx, oldAccessID)
	if err != nil {
		return "", "", err
	}
	if rec == nil || rec.UserID != userID || !security.EqualSecrets(rec.TokenHash, digest(refreshToken)) {
		return "", "", ErrInvalidRefreshToken
	}

	accessID := NewAccessID()
	token, err := m.Generate(ctx, accessID, userID)
	if err != nil {
		return "", "", err
	}
	if err := m.store.Del(ctx, m.store.AccessSessionKey(oldAccessID)); err != nil {
		return "", "", fmt.Errorf("session: drop previous: %w", err)
	}
	return accessID, token, nil
}

// Revoke ends the session. Revoking an unknown session is not an error.
func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	if accessID == "" {
		return errMissingAccessID
	}
	return m.store.Del(ctx, m.store.AccessSessionKey(accessID))
}

func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if accessID == "" {
		return false, errMissingAccessID
	}
	rec, err := m.load(ctx, accessID)
	return rec != nil, err
}

// load returns nil without error when the session does not exist or is
// unreadable.
func (m *Manager) load(ctx context.Context, accessID string) (*record, error) {
	raw, err := m.store.Get(ctx, m.store.AccessSessionKey(accessID))
	if redisclient.IsNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}
	var rec record
	if json.Unmarshal([]byte(raw), &rec) != nil || rec.UserID == uuid.Nil {
		return nil, nil
	}
	return &rec, nil
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
