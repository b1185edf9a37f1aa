package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestInitializeGeneratesSessionIDOnlyOnce(t *testing.T) {
	store := &memStore{}
	ids := &sequenceIDs{}

	first := mustManager(t, ManagerConfig{
		Provider:   &fakeProvider{},
		Store:      store,
		IDProvider: ids,
	})
	mustInitialize(t, first)
	if first.SessionID() != "session-1" {
		t.Fatalf("expected a fresh session id, got %q", first.SessionID())
	}
	if first.Phase() != PhaseGuest {
		t.Fatalf("expected guest phase, got %q", first.Phase())
	}

	// A process restart loads the same record: the id must survive.
	second := mustManager(t, ManagerConfig{
		Provider:   &fakeProvider{},
		Store:      store,
		IDProvider: ids,
	})
	mustInitialize(t, second)
	if second.SessionID() != "session-1" {
		t.Fatalf("reload must keep the persisted session id, got %q", second.SessionID())
	}

	// Repeated Initialize on the same manager is idempotent too.
	mustInitialize(t, second)
	if second.SessionID() != "session-1" {
		t.Fatalf("repeated initialize must not rotate the session id")
	}
}

func TestInitializeRestoresLiveSession(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	store := &memStore{
		found: true,
		record: Record{
			SessionID:        "session-7",
			AccessToken:      "opaque-token",
			ExpiresAtSeconds: now.Add(time.Hour).Unix(),
			UserID:           "user-1",
			UserEmail:        "ada@example.com",
		},
	}
	manager := mustManager(t, ManagerConfig{
		Provider:   &fakeProvider{},
		Store:      store,
		IDProvider: &sequenceIDs{},
		Clock:      fixedClock(now),
	})
	mustInitialize(t, manager)

	if manager.Phase() != PhaseAuthenticated {
		t.Fatalf("expected authenticated phase, got %q", manager.Phase())
	}
	token, sessionID := manager.Credentials()
	if token != "opaque-token" || sessionID != "" {
		t.Fatalf("expected bearer attribution, got token=%q session=%q", token, sessionID)
	}
	if manager.ContextKey() != "user:user-1" {
		t.Fatalf("unexpected context key %q", manager.ContextKey())
	}
}

func TestInitializeDiscardsExpiredSession(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	store := &memStore{
		found: true,
		record: Record{
			SessionID:        "session-7",
			AccessToken:      "opaque-token",
			ExpiresAtSeconds: now.Add(-time.Minute).Unix(),
			UserID:           "user-1",
		},
	}
	manager := mustManager(t, ManagerConfig{
		Provider:   &fakeProvider{},
		Store:      store,
		IDProvider: &sequenceIDs{},
		Clock:      fixedClock(now),
	})
	mustInitialize(t, manager)

	if manager.Phase() != PhaseGuest {
		t.Fatalf("expected guest phase after expiry, got %q", manager.Phase())
	}
	if manager.SessionID() != "session-7" {
		t.Fatalf("expiry must not rotate the session id, got %q", manager.SessionID())
	}
	persisted := store.snapshot()
	if persisted.AccessToken != "" || persisted.UserID != "" {
		t.Fatalf("expired credentials must be cleared from storage: %#v", persisted)
	}
}

func TestSignInMigratesThePriorSessionID(t *testing.T) {
	expiry := time.Now().Add(time.Hour).UTC()
	provider := &fakeProvider{
		signInFunc: func(_ context.Context, email, _ string) (Session, error) {
			return sessionFor(t, "user-1", email, expiry), nil
		},
	}
	migrator := newRecordingMigrator()
	manager := mustManager(t, ManagerConfig{
		Provider:   provider,
		Store:      &memStore{},
		IDProvider: &sequenceIDs{},
	})
	manager.SetMigrator(migrator)
	mustInitialize(t, manager)
	guestSessionID := manager.SessionID()

	if err := manager.SignIn(context.Background(), "Ada@Example.com", "pw"); err != nil {
		t.Fatalf("unexpected sign-in error: %v", err)
	}

	if migrated := migrator.waitForCall(t); migrated != guestSessionID {
		t.Fatalf("migration must use the pre-auth session id %q, got %q", guestSessionID, migrated)
	}
	if manager.Phase() != PhaseAuthenticated {
		t.Fatalf("expected authenticated phase, got %q", manager.Phase())
	}
	if manager.SessionID() != guestSessionID {
		t.Fatalf("sign-in must not rotate the session id")
	}
	if user, ok := manager.CurrentUser(); !ok || user.Email != "ada@example.com" {
		t.Fatalf("expected normalized account email, got %#v", user)
	}
}

func TestSignUpDoesNotMigrate(t *testing.T) {
	provider := &fakeProvider{
		signUpFunc: func(_ context.Context, email, _ string) (Session, error) {
			return sessionFor(t, "user-1", email, time.Now().Add(time.Hour)), nil
		},
	}
	migrator := newRecordingMigrator()
	manager := mustManager(t, ManagerConfig{
		Provider:   provider,
		Store:      &memStore{},
		IDProvider: &sequenceIDs{},
	})
	manager.SetMigrator(migrator)
	mustInitialize(t, manager)

	if err := manager.SignUp(context.Background(), "ada@example.com", "pw"); err != nil {
		t.Fatalf("unexpected sign-up error: %v", err)
	}
	migrator.expectNoCall(t)
	if manager.Phase() != PhaseAuthenticated {
		t.Fatalf("expected authenticated phase, got %q", manager.Phase())
	}
}

func TestSignOutIssuesAFreshSessionID(t *testing.T) {
	signOutCalls := 0
	provider := &fakeProvider{
		signInFunc: func(_ context.Context, email, _ string) (Session, error) {
			return sessionFor(t, "user-1", email, time.Now().Add(time.Hour)), nil
		},
		signOutFunc: func(context.Context, string) error {
			signOutCalls++
			return errors.New("provider unavailable")
		},
	}
	store := &memStore{}
	manager := mustManager(t, ManagerConfig{
		Provider:   provider,
		Store:      store,
		IDProvider: &sequenceIDs{},
	})
	mustInitialize(t, manager)
	before := manager.SessionID()

	if err := manager.SignIn(context.Background(), "ada@example.com", "pw"); err != nil {
		t.Fatalf("unexpected sign-in error: %v", err)
	}
	// Provider failure must not block local sign-out.
	if err := manager.SignOut(context.Background()); err != nil {
		t.Fatalf("unexpected sign-out error: %v", err)
	}

	if signOutCalls != 1 {
		t.Fatalf("expected one provider sign-out attempt, got %d", signOutCalls)
	}
	if manager.Phase() != PhaseGuest {
		t.Fatalf("expected guest phase, got %q", manager.Phase())
	}
	after := manager.SessionID()
	if after == before || after == "" {
		t.Fatalf("sign-out must rotate the session id: before=%q after=%q", before, after)
	}
	token, sessionID := manager.Credentials()
	if token != "" || sessionID != after {
		t.Fatalf("expected guest attribution after sign-out, got token=%q session=%q", token, sessionID)
	}
	if persisted := store.snapshot(); persisted.SessionID != after || persisted.AccessToken != "" {
		t.Fatalf("unexpected persisted record: %#v", persisted)
	}
}

func TestSignInFailureRestoresGuestPhase(t *testing.T) {
	providerErr := errors.New("invalid login credentials")
	provider := &fakeProvider{
		signInFunc: func(context.Context, string, string) (Session, error) {
			return Session{}, providerErr
		},
	}
	migrator := newRecordingMigrator()
	manager := mustManager(t, ManagerConfig{
		Provider:   provider,
		Store:      &memStore{},
		IDProvider: &sequenceIDs{},
	})
	manager.SetMigrator(migrator)
	mustInitialize(t, manager)

	if err := manager.SignIn(context.Background(), "ada@example.com", "wrong"); !errors.Is(err, providerErr) {
		t.Fatalf("expected provider error verbatim, got %v", err)
	}
	if manager.Phase() != PhaseGuest {
		t.Fatalf("expected guest phase restored, got %q", manager.Phase())
	}
	migrator.expectNoCall(t)
}

func TestSignInRejectsConcurrentAttempt(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	provider := &fakeProvider{
		signInFunc: func(_ context.Context, email, _ string) (Session, error) {
			close(started)
			<-release
			return sessionFor(t, "user-1", email, time.Now().Add(time.Hour)), nil
		},
	}
	manager := mustManager(t, ManagerConfig{
		Provider:   provider,
		Store:      &memStore{},
		IDProvider: &sequenceIDs{},
	})
	mustInitialize(t, manager)

	done := make(chan error, 1)
	go func() { done <- manager.SignIn(context.Background(), "ada@example.com", "pw") }()
	<-started

	if err := manager.SignIn(context.Background(), "ada@example.com", "pw"); !errors.Is(err, ErrAuthInProgress) {
		t.Fatalf("expected ErrAuthInProgress, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected sign-in error: %v", err)
	}
}

func TestAuthenticateValidatesCredentials(t *testing.T) {
	manager := mustManager(t, ManagerConfig{
		Provider:   &fakeProvider{},
		Store:      &memStore{},
		IDProvider: &sequenceIDs{},
	})
	mustInitialize(t, manager)

	if err := manager.SignIn(context.Background(), "not-an-email", "pw"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if err := manager.SignIn(context.Background(), "ada@example.com", ""); !errors.Is(err, ErrMissingPassword) {
		t.Fatalf("expected ErrMissingPassword, got %v", err)
	}
}

func TestOperationsRequireInitialize(t *testing.T) {
	manager := mustManager(t, ManagerConfig{
		Provider:   &fakeProvider{},
		Store:      &memStore{},
		IDProvider: &sequenceIDs{},
	})
	if err := manager.SignIn(context.Background(), "ada@example.com", "pw"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := manager.SignOut(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestAuthenticateBackfillsExpiryFromToken(t *testing.T) {
	expiry := time.Now().Add(45 * time.Minute).UTC().Truncate(time.Second)
	provider := &fakeProvider{
		signInFunc: func(_ context.Context, email, _ string) (Session, error) {
			// Provider response without expires_in; the token itself carries exp.
			return Session{
				AccessToken: mustSignedToken(t, "user-1", email, expiry),
				User:        User{ID: "user-1", Email: email},
			}, nil
		},
	}
	store := &memStore{}
	manager := mustManager(t, ManagerConfig{
		Provider:   provider,
		Store:      store,
		IDProvider: &sequenceIDs{},
	})
	mustInitialize(t, manager)

	if err := manager.SignIn(context.Background(), "ada@example.com", "pw"); err != nil {
		t.Fatalf("unexpected sign-in error: %v", err)
	}
	persisted := store.snapshot()
	if persisted.ExpiresAtSeconds != expiry.Unix() {
		t.Fatalf("expected expiry %d persisted, got %d", expiry.Unix(), persisted.ExpiresAtSeconds)
	}
}
