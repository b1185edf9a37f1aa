package stubserver

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/verdantlabs/footprint/internal/api"
)

var (
	errEmailTaken         = errors.New("user already registered")
	errInvalidCredentials = errors.New("invalid login credentials")
	errActivityNotFound   = errors.New("activity not found")
	errNotOwner           = errors.New("not the owner of this activity")
)

type userAccount struct {
	ID        string
	Email     string
	Password  string
	CreatedAt time.Time
}

type storedActivity struct {
	ownerKey string
	activity api.Activity
}

// memoryStore holds the stub's users and activities. Attribution is a single
// owner key per activity: "user:<id>" or "session:<session id>"; migration
// rewrites the latter to the former.
type memoryStore struct {
	mu           sync.Mutex
	usersByEmail map[string]*userAccount
	usersByID    map[string]*userAccount
	activities   []*storedActivity
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		usersByEmail: make(map[string]*userAccount),
		usersByID:    make(map[string]*userAccount),
	}
}

func userOwnerKey(userID string) string { return "user:" + userID }

func sessionOwnerKey(sessionID string) string { return "session:" + sessionID }

func (s *memoryStore) createUser(id, email, password string, now time.Time) (*userAccount, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByEmail[normalized]; exists {
		return nil, errEmailTaken
	}
	account := &userAccount{ID: id, Email: normalized, Password: password, CreatedAt: now}
	s.usersByEmail[normalized] = account
	s.usersByID[id] = account
	return account, nil
}

func (s *memoryStore) authenticate(email, password string) (*userAccount, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	account, exists := s.usersByEmail[normalized]
	if !exists || account.Password != password {
		return nil, errInvalidCredentials
	}
	return account, nil
}

func (s *memoryStore) userByID(id string) (*userAccount, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, exists := s.usersByID[id]
	return account, exists
}

func (s *memoryStore) insertActivity(ownerKey string, activity api.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, &storedActivity{ownerKey: ownerKey, activity: activity})
}

// listByOwner returns the owner's activities ordered by date, most recent
// first, ties broken by creation time.
func (s *memoryStore) listByOwner(ownerKey string, limit int) []api.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := make([]api.Activity, 0)
	for _, stored := range s.activities {
		if stored.ownerKey == ownerKey {
			owned = append(owned, stored.activity)
		}
	}
	sort.SliceStable(owned, func(i, j int) bool {
		if owned[i].Date != owned[j].Date {
			return owned[i].Date > owned[j].Date
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})
	if limit > 0 && len(owned) > limit {
		owned = owned[:limit]
	}
	return owned
}

func (s *memoryStore) updateActivity(ownerKey, id string, mutate func(*api.Activity)) (api.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stored := range s.activities {
		if stored.activity.ID != id {
			continue
		}
		if stored.ownerKey != ownerKey {
			return api.Activity{}, errNotOwner
		}
		mutate(&stored.activity)
		return stored.activity, nil
	}
	return api.Activity{}, errActivityNotFound
}

func (s *memoryStore) deleteActivity(ownerKey, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for index, stored := range s.activities {
		if stored.activity.ID != id {
			continue
		}
		if stored.ownerKey != ownerKey {
			return errNotOwner
		}
		s.activities = append(s.activities[:index], s.activities[index+1:]...)
		return nil
	}
	return errActivityNotFound
}

// migrate re-attributes every activity of the guest session to the user.
// Repeating the call is harmless: once rewritten, no rows match the session.
func (s *memoryStore) migrate(sessionID, userID string) int {
	from := sessionOwnerKey(sessionID)
	to := userOwnerKey(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, stored := range s.activities {
		if stored.ownerKey == from {
			stored.ownerKey = to
			count++
		}
	}
	return count
}
