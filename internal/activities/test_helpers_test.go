package activities

import (
	"context"
	"testing"

	"github.com/verdantlabs/footprint/internal/api"
)

// fakeBackend lets each test script the server surface. Unset hooks fail the
// test on use so accidental calls are caught.
type fakeBackend struct {
	t *testing.T

	listFunc   func(ctx context.Context, limit int) ([]api.Activity, error)
	createFunc func(ctx context.Context, input api.ActivityInput) (api.Activity, error)
	updateFunc func(ctx context.Context, id string, patch api.ActivityUpdate) (api.Activity, error)
	deleteFunc func(ctx context.Context, id string) error

	listCalls   int
	createCalls int
	updateCalls int
	deleteCalls int
}

func (f *fakeBackend) ListActivities(ctx context.Context, limit int) ([]api.Activity, error) {
	f.listCalls++
	if f.listFunc == nil {
		f.t.Fatalf("unexpected ListActivities call")
	}
	return f.listFunc(ctx, limit)
}

func (f *fakeBackend) CreateActivity(ctx context.Context, input api.ActivityInput) (api.Activity, error) {
	f.createCalls++
	if f.createFunc == nil {
		f.t.Fatalf("unexpected CreateActivity call")
	}
	return f.createFunc(ctx, input)
}

func (f *fakeBackend) UpdateActivity(ctx context.Context, id string, patch api.ActivityUpdate) (api.Activity, error) {
	f.updateCalls++
	if f.updateFunc == nil {
		f.t.Fatalf("unexpected UpdateActivity call")
	}
	return f.updateFunc(ctx, id, patch)
}

func (f *fakeBackend) DeleteActivity(ctx context.Context, id string) error {
	f.deleteCalls++
	if f.deleteFunc == nil {
		f.t.Fatalf("unexpected DeleteActivity call")
	}
	return f.deleteFunc(ctx, id)
}

// fakeIdentity is a switchable identity context.
type fakeIdentity struct {
	key       string
	token     string
	sessionID string
}

func (f *fakeIdentity) ContextKey() string { return f.key }

func (f *fakeIdentity) Credentials() (string, string) { return f.token, f.sessionID }

type recordingInvalidator struct {
	footprintCalls  int
	comparisonCalls int
}

func (r *recordingInvalidator) InvalidateFootprint() { r.footprintCalls++ }

func (r *recordingInvalidator) InvalidateComparison() { r.comparisonCalls++ }

func guestIdentity() *fakeIdentity {
	return &fakeIdentity{key: "guest:session-1", sessionID: "session-1"}
}

func mustCoordinator(t *testing.T, backend Backend, identity IdentityContext, invalidator ViewInvalidator) *Coordinator {
	t.Helper()
	coordinator, err := NewCoordinator(CoordinatorConfig{
		Backend:     backend,
		Identity:    identity,
		Invalidator: invalidator,
	})
	if err != nil {
		t.Fatalf("unexpected coordinator error: %v", err)
	}
	return coordinator
}

func sampleActivity(id string, value, co2e float64) api.Activity {
	return api.Activity{
		ID:       id,
		Category: "transport",
		Type:     "bus",
		Value:    value,
		CO2eKg:   co2e,
		Date:     "2026-08-15",
	}
}

func staticList(collection []api.Activity) func(context.Context, int) ([]api.Activity, error) {
	return func(context.Context, int) ([]api.Activity, error) {
		duplicate := make([]api.Activity, len(collection))
		copy(duplicate, collection)
		return duplicate, nil
	}
}
