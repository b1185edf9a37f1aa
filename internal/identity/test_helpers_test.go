package identity

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/verdantlabs/footprint/internal/api"
)

// fakeProvider scripts the identity authority per test.
type fakeProvider struct {
	signUpFunc  func(ctx context.Context, email, password string) (Session, error)
	signInFunc  func(ctx context.Context, email, password string) (Session, error)
	signOutFunc func(ctx context.Context, accessToken string) error
}

func (f *fakeProvider) SignUp(ctx context.Context, email, password string) (Session, error) {
	return f.signUpFunc(ctx, email, password)
}

func (f *fakeProvider) SignIn(ctx context.Context, email, password string) (Session, error) {
	return f.signInFunc(ctx, email, password)
}

func (f *fakeProvider) SignOut(ctx context.Context, accessToken string) error {
	if f.signOutFunc == nil {
		return nil
	}
	return f.signOutFunc(ctx, accessToken)
}

// memStore holds the identity record in memory.
type memStore struct {
	mu     sync.Mutex
	record Record
	found  bool
	saves  int
}

func (s *memStore) Load(context.Context) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record, s.found, nil
}

func (s *memStore) Save(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = record
	s.found = true
	s.saves++
	return nil
}

func (s *memStore) snapshot() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

// sequenceIDs issues session-1, session-2, ... in order.
type sequenceIDs struct {
	mu   sync.Mutex
	next int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("session-%d", s.next), nil
}

// recordingMigrator delivers every migrated session id on a channel.
type recordingMigrator struct {
	calls chan string
}

func newRecordingMigrator() *recordingMigrator {
	return &recordingMigrator{calls: make(chan string, 4)}
}

func (m *recordingMigrator) MigrateSession(_ context.Context, sessionID string) (api.MigrationResult, error) {
	m.calls <- sessionID
	return api.MigrationResult{MigratedCount: 1}, nil
}

func (m *recordingMigrator) waitForCall(t *testing.T) string {
	t.Helper()
	select {
	case sessionID := <-m.calls:
		return sessionID
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for migration call")
		return ""
	}
}

func (m *recordingMigrator) expectNoCall(t *testing.T) {
	t.Helper()
	select {
	case sessionID := <-m.calls:
		t.Fatalf("unexpected migration of session %q", sessionID)
	case <-time.After(100 * time.Millisecond):
	}
}

func mustManager(t *testing.T, cfg ManagerConfig) *Manager {
	t.Helper()
	manager, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("unexpected manager error: %v", err)
	}
	return manager
}

func mustInitialize(t *testing.T, manager *Manager) {
	t.Helper()
	if err := manager.Initialize(context.Background()); err != nil {
		t.Fatalf("unexpected initialize error: %v", err)
	}
}

func mustSignedToken(t *testing.T, subject, email string, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   subject,
		"email": email,
		"exp":   expiresAt.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("unexpected token error: %v", err)
	}
	return token
}

func sessionFor(t *testing.T, userID, email string, expiresAt time.Time) Session {
	t.Helper()
	return Session{
		AccessToken:  mustSignedToken(t, userID, email, expiresAt),
		RefreshToken: "refresh-" + userID,
		ExpiresAt:    expiresAt,
		User:         User{ID: userID, Email: email, CreatedAt: time.Now().UTC()},
	}
}
