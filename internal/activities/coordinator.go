package activities

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/verdantlabs/footprint/internal/api"
)

var (
	errMissingBackend  = errors.New("backend client is required")
	errMissingIdentity = errors.New("identity context is required")

	noOpLogger = zap.NewNop()
)

// ServiceError carries an operation code alongside its cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation code for the failure.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opCoordinatorNew = "activities.coordinator.new"
	opList           = "activities.list"
	opCreate         = "activities.create"
	opUpdate         = "activities.update"
	opDelete         = "activities.delete"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Backend is the server surface the coordinator mutates against. Satisfied by
// *api.Client.
type Backend interface {
	ListActivities(ctx context.Context, limit int) ([]api.Activity, error)
	CreateActivity(ctx context.Context, input api.ActivityInput) (api.Activity, error)
	UpdateActivity(ctx context.Context, id string, patch api.ActivityUpdate) (api.Activity, error)
	DeleteActivity(ctx context.Context, id string) error
}

// IdentityContext scopes the cache to the current attribution key. Satisfied
// by *identity.Manager.
type IdentityContext interface {
	ContextKey() string
	Credentials() (token string, sessionID string)
}

// ViewInvalidator drops dependent aggregate views (summary, breakdown, trend,
// comparison) after a successful mutation.
type ViewInvalidator interface {
	InvalidateFootprint()
	InvalidateComparison()
}

// CoordinatorConfig bundles dependencies for the cache coordinator.
type CoordinatorConfig struct {
	Backend     Backend
	Identity    IdentityContext
	Invalidator ViewInvalidator
	Logger      *zap.Logger
	ListLimit   int
}

// Coordinator presents a consistent, low-latency view of the current
// identity's activities. Mutations are applied optimistically ahead of server
// confirmation and rolled back to an exact pre-mutation snapshot on failure.
// Each entry is keyed by identity context, so switching identity addresses a
// logically distinct collection.
type Coordinator struct {
	// state serializes cache access internally; network calls never run
	// under its lock, so reads observe optimistic values while a mutation
	// is in flight.
	state *coordinatorState

	backend     Backend
	identity    IdentityContext
	invalidator ViewInvalidator
	logger      *zap.Logger
	listLimit   int
}

// NewCoordinator constructs a cache coordinator with validated configuration.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Backend == nil {
		return nil, newServiceError(opCoordinatorNew, "missing_backend", errMissingBackend)
	}
	if cfg.Identity == nil {
		return nil, newServiceError(opCoordinatorNew, "missing_identity", errMissingIdentity)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	listLimit := cfg.ListLimit
	if listLimit <= 0 {
		listLimit = 50
	}

	return &Coordinator{
		state:       newCoordinatorState(),
		backend:     cfg.Backend,
		identity:    cfg.Identity,
		invalidator: cfg.Invalidator,
		logger:      logger,
		listLimit:   listLimit,
	}, nil
}

// List returns the cached collection for the current identity, fetching it
// from the server on first use. It returns api.ErrNoAttribution when neither
// a bearer token nor a session id is available.
func (c *Coordinator) List(ctx context.Context) ([]api.Activity, error) {
	if !c.attributable() {
		return nil, api.ErrNoAttribution
	}
	key := c.identity.ContextKey()

	if cached, ok := c.state.snapshotIfLoaded(key); ok {
		return cached, nil
	}

	fetched, err := c.backend.ListActivities(ctx, c.listLimit)
	if err != nil {
		c.logError(opList, "fetch_failed", err, key)
		return nil, newServiceError(opList, "fetch_failed", err)
	}

	c.state.replace(key, fetched)
	snapshot, _ := c.state.snapshotIfLoaded(key)
	return snapshot, nil
}

// Refresh drops the cached collection for the current identity and fetches it
// again.
func (c *Coordinator) Refresh(ctx context.Context) ([]api.Activity, error) {
	c.state.invalidate(c.identity.ContextKey())
	return c.List(ctx)
}

// Create sends the new activity to the server. The local collection is not
// modified ahead of the response: the server computes the authoritative id
// and emissions. On success the cached collection and dependent aggregates
// are invalidated.
func (c *Coordinator) Create(ctx context.Context, input api.ActivityInput) (api.Activity, error) {
	if err := ValidateInput(input); err != nil {
		return api.Activity{}, err
	}
	if !c.attributable() {
		return api.Activity{}, api.ErrNoAttribution
	}
	key := c.identity.ContextKey()

	created, err := c.backend.CreateActivity(ctx, input)
	if err != nil {
		c.logError(opCreate, "request_failed", err, key)
		return api.Activity{}, newServiceError(opCreate, "request_failed", err)
	}

	c.state.invalidate(key)
	c.invalidateAggregates()
	return created, nil
}

// Update optimistically patches the cached entry ahead of the server call,
// leaving server-authoritative fields at their prior value. On success the
// entry is replaced with the server echo; on failure the exact pre-mutation
// snapshot is restored. A resolution arriving after a later mutation to the
// same id is discarded.
func (c *Coordinator) Update(ctx context.Context, id string, patch api.ActivityUpdate) (api.Activity, error) {
	if err := ValidateUpdate(patch); err != nil {
		return api.Activity{}, err
	}
	if _, err := c.List(ctx); err != nil {
		return api.Activity{}, err
	}
	key := c.identity.ContextKey()

	snapshot, version, ok := c.state.beginMutation(key, id, func(entry *api.Activity) {
		entry.Type = patch.Type
		entry.Value = patch.Value
		entry.Date = patch.Date
		entry.Notes = patch.Notes
	})
	if !ok {
		return api.Activity{}, fmt.Errorf("%w: %s", ErrUnknownActivity, id)
	}

	updated, err := c.backend.UpdateActivity(ctx, id, patch)
	if err != nil {
		if c.state.rollback(key, id, version, snapshot) {
			c.logError(opUpdate, "rolled_back", err, key)
		} else {
			c.logger.Debug("discarding stale update failure",
				zap.String("activity_id", id),
				zap.String("context_key", key))
		}
		return api.Activity{}, newServiceError(opUpdate, "request_failed", err)
	}

	if c.state.commitReplace(key, id, version, updated) {
		c.invalidateAggregates()
	} else {
		c.logger.Debug("discarding stale update success",
			zap.String("activity_id", id),
			zap.String("context_key", key))
	}
	return updated, nil
}

// Delete optimistically removes the entry from the cached collection. On
// failure the full pre-deletion snapshot is restored, guarding against
// interleaved mutations; on success dependent aggregates are invalidated.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	if _, err := c.List(ctx); err != nil {
		return err
	}
	key := c.identity.ContextKey()

	snapshot, version, ok := c.state.beginRemoval(key, id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownActivity, id)
	}

	if err := c.backend.DeleteActivity(ctx, id); err != nil {
		if c.state.rollback(key, id, version, snapshot) {
			c.logError(opDelete, "rolled_back", err, key)
		} else {
			c.logger.Debug("discarding stale delete failure",
				zap.String("activity_id", id),
				zap.String("context_key", key))
		}
		return newServiceError(opDelete, "request_failed", err)
	}

	c.invalidateAggregates()
	return nil
}

func (c *Coordinator) attributable() bool {
	token, sessionID := c.identity.Credentials()
	return token != "" || sessionID != ""
}

func (c *Coordinator) invalidateAggregates() {
	if c.invalidator == nil {
		return
	}
	c.invalidator.InvalidateFootprint()
	c.invalidator.InvalidateComparison()
}

func (c *Coordinator) logError(operation, reason string, err error, contextKey string) {
	c.logger.Error("activity cache error",
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.String("context_key", contextKey),
		zap.Error(err))
}
