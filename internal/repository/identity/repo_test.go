package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tuexperto/taxsearch/internal/db"
	"github.com/tuexperto/taxsearch/internal/domain"
	"github.com/tuexperto/taxsearch/internal/domain/identity"
)

// memStore is an in-memory store implementing the consumer interface.
type memStore struct {
	mu     sync.Mutex
	kv     map[string][]byte
	hashes map[string]map[string]string
	lists  map[string][]string
	ttls   map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		kv:     make(map[string][]byte),
		hashes: make(map[string]map[string]string),
		lists:  make(map[string][]string),
		ttls:   make(map[string]time.Duration),
	}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.kv[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) SetNX(_ context.Context, key string, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.kv[key]; ok {
		return false, nil
	}
	m.kv[key] = value
	return true, nil
}

func (m *memStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) HSet(_ context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *memStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.hashes[key]))
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) RPush(_ context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = append(m.lists[key], values...)
	return nil
}

func (m *memStore) LRange(_ context.Context, key string, _, _ int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lists[key]...), nil
}

func TestClaimExternalID_FirstWins(t *testing.T) {
	ms := newMemStore()
	repo := New(ms, "test:", time.Hour)
	ctx := context.Background()

	owner, created, err := repo.ClaimExternalID(ctx, "telegram", "42", "user-a")
	if err != nil {
		t.Fatalf("ClaimExternalID failed: %v", err)
	}
	if !created || owner != "user-a" {
		t.Errorf("first claim: owner=%q created=%v", owner, created)
	}

	owner, created, err = repo.ClaimExternalID(ctx, "telegram", "42", "user-b")
	if err != nil {
		t.Fatalf("second ClaimExternalID failed: %v", err)
	}
	if created {
		t.Error("second claim must not create")
	}
	if owner != "user-a" {
		t.Errorf("second claim returned %q, want user-a", owner)
	}
}

func TestClaimExternalID_Concurrent(t *testing.T) {
	ms := newMemStore()
	repo := New(ms, "test:", time.Hour)
	ctx := context.Background()

	const n = 16
	owners := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner, _, err := repo.ClaimExternalID(ctx, "telegram", "42", string(rune('a'+i)))
			if err != nil {
				t.Errorf("claim %d: %v", i, err)
				return
			}
			owners[i] = owner
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if owners[i] != owners[0] {
			t.Fatalf("divergent owners: %q vs %q", owners[i], owners[0])
		}
	}
}

func TestUserRoundTrip(t *testing.T) {
	ms := newMemStore()
	repo := New(ms, "test:", time.Hour)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	u := &identity.User{
		ID:          "u-1",
		ChannelType: "telegram",
		ExternalID:  "42",
		Metadata:    map[string]string{"username": "pepe"},
		CreatedAt:   now,
		LastSeenAt:  now,
	}
	if err := repo.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}

	got, err := repo.GetUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.ChannelType != "telegram" || got.ExternalID != "42" {
		t.Errorf("got %+v", got)
	}
	if got.Metadata["username"] != "pepe" {
		t.Errorf("metadata = %v", got.Metadata)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, now)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	repo := New(newMemStore(), "test:", time.Hour)

	_, err := repo.GetUser(context.Background(), "missing")
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSessionTTL(t *testing.T) {
	ms := newMemStore()
	repo := New(ms, "test:", 2*time.Hour)
	ctx := context.Background()

	now := time.Now().UTC()
	s := &identity.Session{ID: "s-1", UserID: "u-1", CreatedAt: now, UpdatedAt: now}
	if err := repo.SaveSession(ctx, s); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	if got := ms.ttls["test:session:s-1"]; got != 2*time.Hour {
		t.Errorf("session TTL = %v, want 2h", got)
	}

	got, err := repo.GetSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.UserID != "u-1" {
		t.Errorf("user_id = %q", got.UserID)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	repo := New(newMemStore(), "test:", time.Hour)

	_, err := repo.GetSession(context.Background(), "expired")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestInteractionLog(t *testing.T) {
	ms := newMemStore()
	repo := New(ms, "test:", time.Hour)
	ctx := context.Background()

	first := &identity.Interaction{
		Query:      "modelo 303",
		Success:    true,
		HitCounts:  map[string]int{"calendar": 2},
		DurationMS: 120,
		Timestamp:  time.Now().UTC(),
	}
	second := &identity.Interaction{Query: "IRPF", Success: false, Timestamp: time.Now().UTC()}

	if err := repo.AppendInteraction(ctx, "s-1", first); err != nil {
		t.Fatalf("AppendInteraction failed: %v", err)
	}
	if err := repo.AppendInteraction(ctx, "s-1", second); err != nil {
		t.Fatalf("AppendInteraction failed: %v", err)
	}

	log, err := repo.Interactions(ctx, "s-1")
	if err != nil {
		t.Fatalf("Interactions failed: %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(log))
	}
	if log[0].Query != "modelo 303" || log[1].Query != "IRPF" {
		t.Errorf("order broken: %+v", log)
	}
	if log[0].HitCounts["calendar"] != 2 {
		t.Errorf("hit counts = %v", log[0].HitCounts)
	}
}
