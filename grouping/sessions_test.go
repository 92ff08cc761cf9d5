package grouping

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessions(t *testing.T) {
	r := NewSessions(0)
	s := r.Open(NewEditor(testMeta, fixedGroups(), seeded(1)))
	require.NotEmpty(t, s.ID)

	got, ok := r.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Close(s.ID))
	assert.False(t, r.Close(s.ID))
	_, ok = r.Get(s.ID)
	assert.False(t, ok)
}

func TestSessions_ConcurrentMovesOnOneSession(t *testing.T) {
	r := NewSessions(0)
	s := r.Open(NewEditor(testMeta, fixedGroups(), seeded(1)))
	ids := []string{"group-1", "group-2", "group-3"}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s.Lock()
				groups := s.Editor.Groups()
				from := (w + i) % 3
				if len(groups[from].Members) > 0 {
					s.Editor.Move(groups[from].Members[0].ID, ids[from], ids[(from+1)%3])
				}
				s.Unlock()
			}
		}(w)
	}
	wg.Wait()

	s.Lock()
	defer s.Unlock()
	groups := s.Editor.Groups()
	assert.Equal(t, 10, totalMembers(groups))
	assert.Equal(t, rosterIDs(makeRoster(10)), memberIDs(groups))
}

func TestSessions_EvictsIdle(t *testing.T) {
	clock := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	r := NewSessions(30 * time.Minute)
	r.now = func() time.Time { return clock }

	abandoned := r.Open(NewEditor(testMeta, fixedGroups(), seeded(1)))
	active := r.Open(NewEditor(testMeta, fixedGroups(), seeded(2)))

	clock = clock.Add(20 * time.Minute)
	_, ok := r.Get(active.ID)
	require.True(t, ok)

	clock = clock.Add(20 * time.Minute)
	_, ok = r.Get(abandoned.ID)
	assert.False(t, ok, "session idle for 40m should be dropped")
	got, ok := r.Get(active.ID)
	require.True(t, ok)
	assert.Same(t, active, got)
	assert.Equal(t, 1, r.Len())

	// Opening a session also sweeps.
	clock = clock.Add(time.Hour)
	r.Open(NewEditor(testMeta, fixedGroups(), seeded(3)))
	assert.Equal(t, 1, r.Len())
	_, ok = r.Get(active.ID)
	assert.False(t, ok)
}

func TestNewSessions_DefaultIdle(t *testing.T) {
	assert.Equal(t, DefaultSessionIdle, NewSessions(0).idle)
	assert.Equal(t, DefaultSessionIdle, NewSessions(-time.Second).idle)
	assert.Equal(t, time.Minute, NewSessions(time.Minute).idle)
}
