package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"

	"github.com/sapira-ai/pharo-backend/pkg/config"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redislib.Nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) AccessSessionKey(accessID string) string {
	return "sess:" + accessID
}

func newTestManager(t *testing.T) (*Manager, *memoryStore) {
	t.Helper()
	store := newMemoryStore()
	m, err := NewManager(store, config.JWTConfig{ExpirationMinutes: 15, RefreshTokenTTLMinutes: 30 * 24 * 60})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m, store
}

func TestNewManagerRejectsShortRefreshTTL(t *testing.T) {
	if _, err := NewManager(newMemoryStore(), config.JWTConfig{ExpirationMinutes: 120, RefreshTokenTTLMinutes: 60}); err == nil {
		t.Fatal("expected error when refresh ttl does not exceed access ttl")
	}
}

func TestGenerateStoresDigestOnly(t *testing.T) {
	m, store := newTestManager(t)
	token, err := m.Generate(context.Background(), "access-1", uuid.New())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	raw := store.data["sess:access-1"]
	if raw == "" || strings.Contains(raw, token) {
		t.Fatalf("expected stored record without the raw token, got %q", raw)
	}
	if store.ttls["sess:access-1"] != 30*24*time.Hour {
		t.Fatalf("unexpected ttl %s", store.ttls["sess:access-1"])
	}
}

func TestRotate(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()
	userID := uuid.New()

	token, err := m.Generate(ctx, "access-1", userID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	cases := []struct {
		name    string
		access  string
		user    uuid.UUID
		refresh string
	}{
		{"wrong token", "access-1", userID, "nope"},
		{"other user", "access-1", uuid.New(), token},
		{"unknown session", "access-2", userID, token},
		{"empty token", "access-1", userID, ""},
	}
	for _, tc := range cases {
		if _, _, err := m.Rotate(ctx, tc.access, tc.user, tc.refresh); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Fatalf("%s: expected ErrInvalidRefreshToken, got %v", tc.name, err)
		}
	}

	nextAccess, nextToken, err := m.Rotate(ctx, "access-1", userID, token)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if nextToken == token || nextAccess == "access-1" {
		t.Fatal("expected a fresh session")
	}
	if _, ok := store.data["sess:access-1"]; ok {
		t.Fatal("previous session left behind")
	}
	if _, _, err := m.Rotate(ctx, "access-1", userID, token); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected replayed refresh to fail, got %v", err)
	}
	if ok, err := m.HasSession(ctx, nextAccess); err != nil || !ok {
		t.Fatalf("expected new session, ok=%v err=%v", ok, err)
	}
}

func TestRevokeAndCorruptRecords(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Generate(ctx, "access-9", uuid.New()); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := m.Revoke(ctx, "access-9"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ok, _ := m.HasSession(ctx, "access-9"); ok {
		t.Fatal("expected session to be gone")
	}

	store.data["sess:garbage"] = "not-json"
	if ok, err := m.HasSession(ctx, "garbage"); ok || err != nil {
		t.Fatalf("expected corrupt record to read as absent, ok=%v err=%v", ok, err)
	}
	if err := m.Revoke(ctx, ""); err == nil {
		t.Fatal("expected error for empty access id")
	}
}
