package session

import (
	"context"
	"sync"
	"time"

	"predixa/cmd/security/token"
)

// MemoryStore is an in-process RefreshStore.
//
// Each principal owns a tokenSet with its own mutex. Empty sets are dropped from the
// index; a set marked dead has been dropped and callers that raced on it re-resolve.
type MemoryStore struct {
	mu   sync.Mutex
	sets map[string]*tokenSet
}

type tokenSet struct {
	mu      sync.Mutex
	dead    bool
	entries map[string]time.Time // token digest -> expiry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sets: make(map[string]*tokenSet)}
}

// acquire returns the principal's set with its mutex held, or nil if absent and !create.
func (s *MemoryStore) acquire(principalID string, create bool) *tokenSet {
	for {
		s.mu.Lock()
		set := s.sets[principalID]
		if set == nil && create {
			set = &tokenSet{entries: make(map[string]time.Time)}
			s.sets[principalID] = set
		}
		s.mu.Unlock()

		if set == nil {
			return nil
		}

		set.mu.Lock()
		if !set.dead {
			return set
		}
		set.mu.Unlock()
	}
}

// release unlocks set, dropping it from the index first if it became empty.
func (s *MemoryStore) release(principalID string, set *tokenSet) {
	if len(set.entries) == 0 {
		set.dead = true
		s.mu.Lock()
		if s.sets[principalID] == set {
			delete(s.sets, principalID)
		}
		s.mu.Unlock()
	}
	set.mu.Unlock()
}

func (set *tokenSet) prune(now time.Time) int {
	n := 0
	for k, exp := range set.entries {
		if !exp.After(now) {
			delete(set.entries, k)
			n++
		}
	}
	return n
}

// Add implements RefreshStore.
func (s *MemoryStore) Add(ctx context.Context, principalID, tok string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := token.HashRefreshTokenHex(tok)

	set := s.acquire(principalID, true)
	set.entries[key] = expiresAt
	s.release(principalID, set)
	return nil
}

// Remove implements RefreshStore.
func (s *MemoryStore) Remove(ctx context.Context, principalID, tok string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := token.HashRefreshTokenHex(tok)

	set := s.acquire(principalID, false)
	if set == nil {
		return nil
	}
	delete(set.entries, key)
	s.release(principalID, set)
	return nil
}

// Contains implements RefreshStore.
func (s *MemoryStore) Contains(ctx context.Context, principalID, tok string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	key := token.HashRefreshTokenHex(tok)

	set := s.acquire(principalID, false)
	if set == nil {
		return false, nil
	}
	set.prune(now)
	_, ok := set.entries[key]
	s.release(principalID, set)
	return ok, nil
}

// Prune implements RefreshStore.
func (s *MemoryStore) Prune(ctx context.Context, principalID string, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	set := s.acquire(principalID, false)
	if set == nil {
		return 0, nil
	}
	n := set.prune(now)
	s.release(principalID, set)
	return n, nil
}

// Rotate implements RefreshStore.
func (s *MemoryStore) Rotate(ctx context.Context, principalID, oldTok, newTok string, newExpiresAt, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	oldKey := token.HashRefreshTokenHex(oldTok)
	newKey := token.HashRefreshTokenHex(newTok)

	set := s.acquire(principalID, false)
	if set == nil {
		return ErrRefreshNotLive
	}
	defer s.release(principalID, set)

	set.prune(now)
	if _, ok := set.entries[oldKey]; !ok {
		return ErrRefreshNotLive
	}
	delete(set.entries, oldKey)
	set.entries[newKey] = newExpiresAt
	return nil
}

// Len returns the number of stored entries for principalID, expired or not.
func (s *MemoryStore) Len(principalID string) int {
	set := s.acquire(principalID, false)
	if set == nil {
		return 0
	}
	n := len(set.entries)
	s.release(principalID, set)
	return n
}

// Principals returns the number of principals with at least one stored entry.
func (s *MemoryStore) Principals() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sets)
}

var _ RefreshStore = (*MemoryStore)(nil)
