// Package authcode issues single-use codes that are exchanged for a session on
// the auth callback.
package authcode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/sapira-ai/pharo-backend/pkg/redis"
	"github.com/sapira-ai/pharo-backend/pkg/security"
)

const codeBytes = 32

// ErrInvalidCode is returned for unknown, expired, or already used codes.
var ErrInvalidCode = errors.New("invalid or expired auth code")

// Grant is what a code is exchanged for.
type Grant struct {
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	Purpose  string    `json:"purpose"`
	IssuedAt time.Time `json:"issued_at"`
}

const PurposeInvite = "invite"

type codeStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	GetDel(ctx context.Context, key string) (string, error)
	AuthCodeKey(code string) string
}

// Store persists grants in Redis until they are exchanged or expire.
type Store struct {
	redis codeStore
	now   func() time.Time
}

func NewStore(client *redisclient.Client) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &Store{redis: client, now: time.Now}, nil
}

// Issue stores the grant and returns the opaque code.
func (s *Store) Issue(ctx context.Context, grant Grant, ttl time.Duration) (string, error) {
	if grant.UserID == uuid.Nil {
		return "", fmt.Errorf("user id is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("auth code ttl must be positive")
	}
	code, err := security.RandomToken(codeBytes)
	if err != nil {
		return "", fmt.Errorf("generating auth code: %w", err)
	}
	grant.IssuedAt = s.now().UTC()
	payload, err := json.Marshal(grant)
	if err != nil {
		return "", fmt.Errorf("encoding auth code: %w", err)
	}
	if err := s.redis.Set(ctx, s.redis.AuthCodeKey(code), string(payload), ttl); err != nil {
		return "", fmt.Errorf("storing auth code: %w", err)
	}
	return code, nil
}

// Exchange consumes code. A code can be exchanged at most once.
func (s *Store) Exchange(ctx context.Context, code string) (Grant, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Grant{}, ErrInvalidCode
	}
	raw, err := s.redis.GetDel(ctx, s.redis.AuthCodeKey(code))
	if err != nil {
		if redisclient.IsNil(err) {
			return Grant{}, ErrInvalidCode
		}
		return Grant{}, err
	}
	var grant Grant
	if err := json.Unmarshal([]byte(raw), &grant); err != nil {
		return Grant{}, ErrInvalidCode
	}
	return grant, nil
}
