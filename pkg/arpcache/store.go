package arpcache

import (
	"sort"
	"sync"
	"time"
)

// Entry is a hardware address together with the last time it was seen.
type Entry struct {
	Address  string    `json:"address"`
	LastSeen time.Time `json:"last_seen"`
}

// Store maps normalized hardware addresses to the time they were last seen.
// All methods are safe for concurrent use.
type Store struct {
	mutex   sync.RWMutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time // injectable for deterministic tests
}

// NewStore creates an empty store whose entries expire after ttl.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// TTL returns how long an entry stays active after it was last seen.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Upsert records address as seen at ts, replacing any previous timestamp.
func (s *Store) Upsert(address string, ts time.Time) error {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.entries[addr] = ts
	return nil
}

// Get returns the last time address was seen.
func (s *Store) Get(address string) (time.Time, bool) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return time.Time{}, false
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ts, ok := s.entries[addr]
	return ts, ok
}

// Remove forgets address.
func (s *Store) Remove(address string) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.entries, addr)
}

// IsActive reports whether address was seen less than TTL ago. Unknown and
// malformed addresses are not active.
func (s *Store) IsActive(address string) bool {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return false
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ts, ok := s.entries[addr]
	if !ok {
		return false
	}
	return !s.expired(ts, s.now())
}

// ActiveCount returns the number of entries that have not expired yet.
// Expired entries are counted out but left in place until PurgeExpired.
func (s *Store) ActiveCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	now := s.now()
	count := 0
	for _, ts := range s.entries {
		if !s.expired(ts, now) {
			count++
		}
	}
	return count
}

// Len returns the number of entries, expired or not.
func (s *Store) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.entries)
}

// PurgeExpired removes every expired entry and returns the removed addresses.
func (s *Store) PurgeExpired() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.purgeExpiredLocked()
}

// Entries returns all entries sorted by address.
func (s *Store) Entries() []Entry {
	s.mutex.RLock()
	entries := make([]Entry, 0, len(s.entries))
	for addr, ts := range s.entries {
		entries = append(entries, Entry{Address: addr, LastSeen: ts})
	}
	s.mutex.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Address < entries[j].Address
	})
	return entries
}

// purgeExpiredLocked must be called with the write lock held.
func (s *Store) purgeExpiredLocked() []string {
	now := s.now()

	// collect first, then delete
	var expired []string
	for addr, ts := range s.entries {
		if s.expired(ts, now) {
			expired = append(expired, addr)
		}
	}

	for _, addr := range expired {
		delete(s.entries, addr)
	}
	return expired
}

// expired does no locking.
func (s *Store) expired(ts, now time.Time) bool {
	return now.Sub(ts) >= s.ttl
}
