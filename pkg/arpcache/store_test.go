package arpcache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(ttl time.Duration) (*Store, *fakeClock) {
	clock := newFakeClock()
	s := NewStore(ttl)
	s.now = clock.Now
	return s, clock
}

func TestStoreUnknownAddress(t *testing.T) {
	s, _ := newTestStore(time.Minute)

	assert.False(t, s.IsActive("00:00:00:00:00:00"))
	assert.False(t, s.IsActive("garbage"))
	assert.Equal(t, 0, s.Len(), "queries must not create entries")

	_, ok := s.Get("00:00:00:00:00:00")
	assert.False(t, ok)
}

func TestStoreUpsertNormalizes(t *testing.T) {
	s, clock := newTestStore(time.Minute)

	require.NoError(t, s.Upsert("0:2A:43:4:B:51", clock.Now()))
	require.NoError(t, s.Upsert("00:2a:43:04:0b:51", clock.Now()))
	assert.Equal(t, 1, s.Len())

	ts, ok := s.Get("00:2A:43:04:0B:51")
	require.True(t, ok)
	assert.Equal(t, clock.Now(), ts)
	assert.True(t, s.IsActive("0:2a:43:4:b:51"))

	require.ErrorIs(t, s.Upsert("not-an-address", clock.Now()), ErrInvalidAddress)
	assert.Equal(t, 1, s.Len())
}

func TestStoreUpsertOverwrites(t *testing.T) {
	s, clock := newTestStore(time.Minute)

	first := clock.Now()
	require.NoError(t, s.Upsert("aa:bb:cc:dd:ee:ff", first))
	clock.Advance(time.Second)
	second := clock.Now()
	require.NoError(t, s.Upsert("aa:bb:cc:dd:ee:ff", second))

	ts, _ := s.Get("aa:bb:cc:dd:ee:ff")
	assert.True(t, ts.After(first))
	assert.Equal(t, second, ts)
}

func TestStoreRemove(t *testing.T) {
	s, clock := newTestStore(time.Minute)

	require.NoError(t, s.Upsert("aa:bb:cc:dd:ee:ff", clock.Now()))
	s.Remove("AA:BB:CC:DD:EE:FF")
	assert.False(t, s.IsActive("aa:bb:cc:dd:ee:ff"))
	assert.Equal(t, 0, s.Len())

	// removing unknown or malformed addresses is a no-op
	s.Remove("11:22:33:44:55:66")
	s.Remove("junk")
}

func TestStoreTTLBoundary(t *testing.T) {
	tests := []struct {
		age    time.Duration
		active bool
	}{
		{age: 0, active: true},
		{age: 59 * time.Second, active: true},
		{age: 60 * time.Second, active: false},
		{age: 61 * time.Second, active: false},
	}

	for _, tt := range tests {
		t.Run(tt.age.String(), func(t *testing.T) {
			s, clock := newTestStore(time.Minute)
			require.NoError(t, s.Upsert("aa:bb:cc:dd:ee:ff", clock.Now().Add(-tt.age)))

			assert.Equal(t, tt.active, s.IsActive("aa:bb:cc:dd:ee:ff"))
			if tt.active {
				assert.Equal(t, 1, s.ActiveCount())
			} else {
				assert.Equal(t, 0, s.ActiveCount())
			}
			// counting never purges
			assert.Equal(t, 1, s.Len())
		})
	}
}

func TestStorePurgeExpired(t *testing.T) {
	s, clock := newTestStore(time.Minute)
	now := clock.Now()

	require.NoError(t, s.Upsert("00:00:00:00:00:01", now))
	require.NoError(t, s.Upsert("00:00:00:00:00:02", now.Add(-30*time.Second)))
	require.NoError(t, s.Upsert("00:00:00:00:00:03", now.Add(-61*time.Second)))

	removed := s.PurgeExpired()
	assert.Equal(t, []string{"00:00:00:00:00:03"}, removed)
	assert.Equal(t, 2, s.Len())

	_, ok := s.Get("00:00:00:00:00:01")
	assert.True(t, ok)
	_, ok = s.Get("00:00:00:00:00:02")
	assert.True(t, ok)
	_, ok = s.Get("00:00:00:00:00:03")
	assert.False(t, ok)

	assert.Empty(t, s.PurgeExpired())
}

func TestStoreEntriesSorted(t *testing.T) {
	s, clock := newTestStore(time.Minute)

	require.NoError(t, s.Upsert("cc:00:00:00:00:00", clock.Now()))
	require.NoError(t, s.Upsert("aa:00:00:00:00:00", clock.Now()))
	require.NoError(t, s.Upsert("bb:00:00:00:00:00", clock.Now()))

	entries := s.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "aa:00:00:00:00:00", entries[0].Address)
	assert.Equal(t, "bb:00:00:00:00:00", entries[1].Address)
	assert.Equal(t, "cc:00:00:00:00:00", entries[2].Address)
}

func TestStoreConcurrentAccess(t *testing.T) {
	s, clock := newTestStore(time.Minute)
	addrs := []string{"00:00:00:00:00:01", "00:00:00:00:00:02", "00:00:00:00:00:03"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = s.Upsert(addrs[j%len(addrs)], clock.Now())
				if j%50 == 0 {
					s.PurgeExpired()
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s.IsActive(addrs[j%len(addrs)])
				s.ActiveCount()
				s.Entries()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, len(addrs), s.ActiveCount())
}
