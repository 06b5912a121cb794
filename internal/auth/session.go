package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrUnauthenticated is returned when no valid session accompanies a request.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when the session role does not permit an action.
	ErrForbidden = errors.New("forbidden")
	// ErrNoSession is returned by a SessionStore when the id is unknown or expired.
	ErrNoSession = errors.New("session not found")
)

// Session is the server-side record behind a login cookie. Deleting the
// record revokes the login immediately, before the token would expire.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CSRFToken string    `json:"csrf_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionStore persists sessions for their lifetime only. Nothing outlives
// ExpiresAt and nothing survives Delete.
type SessionStore interface {
	Put(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
}

// NewSession creates a session for the user with fresh CSRF material.
func NewSession(userID, username, role string, ttl time.Duration) (Session, error) {
	csrf, err := randomToken()
	if err != nil {
		return Session{}, err
	}
	return Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Username:  username,
		Role:      role,
		CSRFToken: csrf,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// MemoryStore keeps sessions in process memory. Suits single-node runs and tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

// Put stores or replaces the session.
func (m *MemoryStore) Put(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

// Get returns the session, dropping it when past expiry.
func (m *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNoSession
	}
	if time.Now().After(s.ExpiresAt) {
		delete(m.sessions, id)
		return Session{}, ErrNoSession
	}
	return s, nil
}

// Delete removes the session if present.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

const sessionPrefix = "academy:session:"

// RedisStore keeps sessions in redis with a TTL matching their expiry, so
// revocation works across api instances and stale records clean themselves up.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a redis-backed session store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Put stores the session under its id with the remaining lifetime as TTL.
func (r *RedisStore) Put(ctx context.Context, s Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, sessionPrefix+s.ID, payload, ttl).Err()
}

// Get returns the session or ErrNoSession once redis has expired the key.
func (r *RedisStore) Get(ctx context.Context, id string) (Session, error) {
	raw, err := r.client.Get(ctx, sessionPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Delete removes the session key.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, sessionPrefix+id).Err()
}
