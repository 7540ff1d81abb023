package authcode

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
)

type memoryStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryStore) GetDel(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	delete(m.data, key)
	return v, nil
}

func (m *memoryStore) AuthCodeKey(code string) string {
	return "code:" + code
}

func TestIssueAndExchangeOnce(t *testing.T) {
	mem := newMemoryStore()
	store := &Store{redis: mem, now: time.Now}
	userID := uuid.New()

	code, err := store.Issue(context.Background(), Grant{UserID: userID, Email: "ana@acme.com", Purpose: PurposeInvite}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if mem.ttls["code:"+code] != time.Hour {
		t.Fatalf("expected ttl to be applied, got %v", mem.ttls["code:"+code])
	}

	grant, err := store.Exchange(context.Background(), code)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if grant.UserID != userID || grant.Email != "ana@acme.com" || grant.Purpose != PurposeInvite {
		t.Fatalf("unexpected grant %+v", grant)
	}
	if grant.IssuedAt.IsZero() {
		t.Fatal("expected issued_at to be stamped")
	}

	if _, err := store.Exchange(context.Background(), code); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected second exchange to fail, got %v", err)
	}
}

func TestExchangeRejectsBlankAndUnknown(t *testing.T) {
	store := &Store{redis: newMemoryStore(), now: time.Now}
	if _, err := store.Exchange(context.Background(), "  "); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected invalid code for blank input, got %v", err)
	}
	if _, err := store.Exchange(context.Background(), "nope"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected invalid code for unknown code, got %v", err)
	}
}

func TestIssueValidatesInput(t *testing.T) {
	store := &Store{redis: newMemoryStore(), now: time.Now}
	if _, err := store.Issue(context.Background(), Grant{}, time.Hour); err == nil {
		t.Fatal("expected missing user error")
	}
	if _, err := store.Issue(context.Background(), Grant{UserID: uuid.New()}, 0); err == nil {
		t.Fatal("expected ttl error")
	}
}
