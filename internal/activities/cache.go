package activities

import (
	"sync"

	"github.com/verdantlabs/footprint/internal/api"
)

// coordinatorState is the single shared mutable resource: per-identity cached
// collections plus a monotonic mutation version per activity id. The version
// lets late-arriving resolutions detect that a newer mutation has superseded
// them, so a slow update can no longer resurrect a deleted entry.
type coordinatorState struct {
	mu       sync.Mutex
	entries  map[string][]api.Activity
	loaded   map[string]bool
	versions map[string]uint64
}

func newCoordinatorState() *coordinatorState {
	return &coordinatorState{
		entries:  make(map[string][]api.Activity),
		loaded:   make(map[string]bool),
		versions: make(map[string]uint64),
	}
}

func (s *coordinatorState) versionKey(contextKey, id string) string {
	return contextKey + "\x00" + id
}

// snapshotIfLoaded returns a copy of the cached collection for the key.
func (s *coordinatorState) snapshotIfLoaded(contextKey string) ([]api.Activity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded[contextKey] {
		return nil, false
	}
	return copyActivities(s.entries[contextKey]), true
}

// replace installs a freshly fetched collection for the key.
func (s *coordinatorState) replace(contextKey string, collection []api.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[contextKey] = copyActivities(collection)
	s.loaded[contextKey] = true
}

// invalidate drops the cached collection so the next List refetches.
func (s *coordinatorState) invalidate(contextKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, contextKey)
	delete(s.loaded, contextKey)
}

// beginMutation snapshots the collection, applies the optimistic patch to the
// entry with the given id, and bumps its mutation version. It reports false
// when the id is not present in the cached collection.
func (s *coordinatorState) beginMutation(contextKey, id string, patch func(*api.Activity)) ([]api.Activity, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded[contextKey] {
		return nil, 0, false
	}

	collection := s.entries[contextKey]
	index := indexOf(collection, id)
	if index < 0 {
		return nil, 0, false
	}

	snapshot := copyActivities(collection)
	patch(&collection[index])

	version := s.bumpLocked(contextKey, id)
	return snapshot, version, true
}

// beginRemoval snapshots the collection, removes the entry with the given id,
// and bumps its mutation version.
func (s *coordinatorState) beginRemoval(contextKey, id string) ([]api.Activity, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded[contextKey] {
		return nil, 0, false
	}

	collection := s.entries[contextKey]
	index := indexOf(collection, id)
	if index < 0 {
		return nil, 0, false
	}

	snapshot := copyActivities(collection)
	s.entries[contextKey] = append(collection[:index:index], collection[index+1:]...)

	version := s.bumpLocked(contextKey, id)
	return snapshot, version, true
}

// rollback restores the exact pre-mutation snapshot unless a newer mutation
// to the same id has superseded this one. It reports whether the restore was
// applied.
func (s *coordinatorState) rollback(contextKey, id string, version uint64, snapshot []api.Activity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versions[s.versionKey(contextKey, id)] != version {
		return false
	}
	if !s.loaded[contextKey] {
		return true
	}
	s.entries[contextKey] = copyActivities(snapshot)
	return true
}

// commitReplace swaps the optimistic entry for the server echo unless a newer
// mutation to the same id has superseded this one.
func (s *coordinatorState) commitReplace(contextKey, id string, version uint64, authoritative api.Activity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versions[s.versionKey(contextKey, id)] != version {
		return false
	}
	if !s.loaded[contextKey] {
		return true
	}
	collection := s.entries[contextKey]
	if index := indexOf(collection, id); index >= 0 {
		collection[index] = authoritative
	}
	return true
}

func (s *coordinatorState) bumpLocked(contextKey, id string) uint64 {
	key := s.versionKey(contextKey, id)
	s.versions[key]++
	return s.versions[key]
}

func indexOf(collection []api.Activity, id string) int {
	for i := range collection {
		if collection[i].ID == id {
			return i
		}
	}
	return -1
}

func copyActivities(collection []api.Activity) []api.Activity {
	duplicate := make([]api.Activity, len(collection))
	copy(duplicate, collection)
	return duplicate
}
