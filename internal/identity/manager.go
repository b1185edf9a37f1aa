package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/verdantlabs/footprint/internal/api"
)

const migrationTimeout = 30 * time.Second

var (
	errMissingProvider   = errors.New("identity: auth provider is required")
	errMissingStore      = errors.New("identity: state store is required")
	errMissingIDProvider = errors.New("identity: id provider is required")

	// ErrInvalidEmail indicates a malformed or empty email address.
	ErrInvalidEmail = errors.New("identity: invalid email")
	// ErrMissingPassword indicates an empty password.
	ErrMissingPassword = errors.New("identity: password required")
	// ErrAuthInProgress indicates another sign-in or sign-up call has not resolved.
	ErrAuthInProgress = errors.New("identity: authentication already in progress")
	// ErrNotInitialized indicates Initialize has not been called.
	ErrNotInitialized = errors.New("identity: manager not initialized")

	noOpLogger = zap.NewNop()
)

// Provider is the external identity authority. Sign-in and sign-up return a
// live session; errors are surfaced to callers verbatim.
type Provider interface {
	SignUp(ctx context.Context, email, password string) (Session, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Store persists the identity record across process restarts.
type Store interface {
	Load(ctx context.Context) (Record, bool, error)
	Save(ctx context.Context, record Record) error
}

// Migrator re-attributes guest activities to the authenticated account.
type Migrator interface {
	MigrateSession(ctx context.Context, sessionID string) (api.MigrationResult, error)
}

// IDProvider issues fresh session identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// ManagerConfig bundles dependencies for the identity manager.
type ManagerConfig struct {
	Provider   Provider
	Store      Store
	Migrator   Migrator
	IDProvider IDProvider
	Logger     *zap.Logger
	Clock      func() time.Time
}

// Manager is the single source of truth for who is making requests. It owns
// the anonymous session id, the authenticated session if any, and the
// guest-to-account transition including the one-shot migration trigger.
type Manager struct {
	mu          sync.Mutex
	phase       Phase
	sessionID   string
	session     *Session
	initialized bool

	provider Provider
	store    Store
	migrator Migrator
	ids      IDProvider
	logger   *zap.Logger
	clock    func() time.Time
}

// NewManager constructs an identity manager with validated configuration.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Provider == nil {
		return nil, errMissingProvider
	}
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Manager{
		phase:    PhaseGuest,
		provider: cfg.Provider,
		store:    cfg.Store,
		migrator: cfg.Migrator,
		ids:      cfg.IDProvider,
		logger:   logger,
		clock:    clock,
	}, nil
}

// Initialize loads persisted identity state. An existing session id is kept
// as-is; one is generated only when no record was ever persisted. A stored
// session whose token has expired is discarded and the manager starts as
// guest. Repeated calls are idempotent.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, found, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("identity: load state: %w", err)
	}

	if !found || strings.TrimSpace(record.SessionID) == "" {
		freshID, err := m.ids.NewID()
		if err != nil {
			return fmt.Errorf("identity: generate session id: %w", err)
		}
		record.SessionID = freshID
	}
	m.sessionID = record.SessionID

	if record.AccessToken != "" {
		session := sessionFromRecord(record)
		if session.Expired(m.clock()) {
			m.logger.Info("stored session expired, starting as guest",
				zap.String("user_id", record.UserID))
			record = Record{SessionID: record.SessionID}
		} else {
			m.session = &session
			m.phase = PhaseAuthenticated
		}
	}
	if m.session == nil {
		m.phase = PhaseGuest
	}

	if err := m.store.Save(ctx, record); err != nil {
		return fmt.Errorf("identity: persist state: %w", err)
	}

	m.initialized = true
	return nil
}

// SignUp creates a new account and transitions to authenticated. The prior
// session id is retained and no migration is triggered.
func (m *Manager) SignUp(ctx context.Context, email, password string) error {
	_, err := m.authenticate(ctx, email, password, m.provider.SignUp, false)
	return err
}

// SignIn authenticates an existing account. On success the session id that
// was active before the call is handed to the migrator on a detached
// goroutine; migration failure never affects the authenticated state.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	priorSessionID, err := m.authenticate(ctx, email, password, m.provider.SignIn, true)
	if err != nil {
		return err
	}
	m.mu.Lock()
	migrator := m.migrator
	m.mu.Unlock()
	if migrator != nil && priorSessionID != "" {
		go m.migrate(migrator, priorSessionID)
	}
	return nil
}

// SetMigrator wires the migration backend after construction. The API client
// attributes its requests through this manager, so it cannot exist before the
// manager does; this closes that cycle.
func (m *Manager) SetMigrator(migrator Migrator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.migrator = migrator
}

func (m *Manager) authenticate(
	ctx context.Context,
	email, password string,
	call func(context.Context, string, string) (Session, error),
	captureSessionID bool,
) (string, error) {
	normalizedEmail := strings.ToLower(strings.TrimSpace(email))
	if normalizedEmail == "" || !strings.Contains(normalizedEmail, "@") {
		return "", ErrInvalidEmail
	}
	if password == "" {
		return "", ErrMissingPassword
	}

	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return "", ErrNotInitialized
	}
	if m.phase == PhaseAuthenticating {
		m.mu.Unlock()
		return "", ErrAuthInProgress
	}
	previousPhase := m.phase
	m.phase = PhaseAuthenticating
	priorSessionID := ""
	if captureSessionID {
		priorSessionID = m.sessionID
	}
	m.mu.Unlock()

	session, err := call(ctx, normalizedEmail, password)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.phase = previousPhase
		return "", err
	}

	if session.ExpiresAt.IsZero() {
		if claims, claimsErr := ParseTokenClaims(session.AccessToken); claimsErr == nil {
			session.ExpiresAt = claims.ExpiresAt
		}
	}

	m.session = &session
	m.phase = PhaseAuthenticated
	if err := m.persistLocked(ctx); err != nil {
		m.logger.Warn("failed to persist authenticated state", zap.Error(err))
	}
	return priorSessionID, nil
}

// SignOut invalidates the provider session on a best-effort basis, then
// unconditionally clears auth state and issues a fresh session id so the
// returning guest starts with an empty attribution.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return ErrNotInitialized
	}
	var token string
	if m.session != nil {
		token = m.session.AccessToken
	}
	m.mu.Unlock()

	if token != "" {
		if err := m.provider.SignOut(ctx, token); err != nil {
			m.logger.Warn("provider sign-out failed", zap.Error(err))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	freshID, err := m.ids.NewID()
	if err != nil {
		return fmt.Errorf("identity: generate session id: %w", err)
	}
	m.session = nil
	m.sessionID = freshID
	m.phase = PhaseGuest
	if err := m.persistLocked(ctx); err != nil {
		return err
	}
	return nil
}

// Credentials implements api.CredentialSource. Exactly one attribution key is
// ever active: the bearer token while authenticated, the session id otherwise.
func (m *Manager) Credentials() (string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		return m.session.AccessToken, ""
	}
	return "", m.sessionID
}

// ContextKey returns the cache partition key for the current identity.
// Switching identity addresses a logically distinct cache entry.
func (m *Manager) ContextKey() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		return "user:" + m.session.User.ID
	}
	return "guest:" + m.sessionID
}

// SessionID returns the current anonymous session identifier.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Phase returns the current lifecycle phase.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// IsAuthenticated reports whether a session token is held.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// CurrentUser returns the authenticated account profile, if any.
func (m *Manager) CurrentUser() (User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return User{}, false
	}
	return m.session.User, true
}

// migrate hands the pre-auth session id to the server for re-attribution.
// Best effort: the result is logged and discarded, and the call is detached
// from the sign-in context so navigation cannot cancel it.
func (m *Manager) migrate(migrator Migrator, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), migrationTimeout)
	defer cancel()

	result, err := migrator.MigrateSession(ctx, sessionID)
	if err != nil {
		m.logger.Warn("activity migration failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return
	}
	m.logger.Info("activity migration complete",
		zap.String("session_id", sessionID),
		zap.Int("migrated_count", result.MigratedCount))
}

func (m *Manager) persistLocked(ctx context.Context) error {
	record := Record{SessionID: m.sessionID}
	if m.session != nil {
		record.AccessToken = m.session.AccessToken
		record.RefreshToken = m.session.RefreshToken
		if !m.session.ExpiresAt.IsZero() {
			record.ExpiresAtSeconds = m.session.ExpiresAt.Unix()
		}
		record.UserID = m.session.User.ID
		record.UserEmail = m.session.User.Email
		record.UserCreatedAt = m.session.User.CreatedAt
	}
	if err := m.store.Save(ctx, record); err != nil {
		return fmt.Errorf("identity: persist state: %w", err)
	}
	return nil
}

func sessionFromRecord(record Record) Session {
	session := Session{
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		User: User{
			ID:        record.UserID,
			Email:     record.UserEmail,
			CreatedAt: record.UserCreatedAt,
		},
	}
	if record.ExpiresAtSeconds > 0 {
		session.ExpiresAt = time.Unix(record.ExpiresAtSeconds, 0).UTC()
	} else if claims, err := ParseTokenClaims(record.AccessToken); err == nil {
		session.ExpiresAt = claims.ExpiresAt
	}
	return session
}
