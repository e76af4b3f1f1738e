package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Create(Job{ID: "a", Status: StatusQueued, Warnings: []string{"w1"}}))

	got, err := s.Get("a")
	require.NoError(t, err)
	got.Status = StatusError
	got.Warnings[0] = "changed"

	again, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, again.Status)
	assert.Equal(t, []string{"w1"}, again.Warnings)
}

func TestMemoryStore_CreateDuplicate(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Create(Job{ID: "a"}))
	assert.Error(t, s.Create(Job{ID: "a"}))
}

func TestMemoryStore_UpdateUnknown(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Update("missing", func(j *Job) {})
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryStore_UpdateStampsTime(t *testing.T) {
	s := NewMemoryStore()
	created := time.Now().Add(-time.Hour)
	require.NoError(t, s.Create(Job{ID: "a", CreatedAt: created, UpdatedAt: created}))

	got, err := s.Update("a", func(j *Job) { j.Progress = 12 })
	require.NoError(t, err)
	assert.Equal(t, 12.0, got.Progress)
	assert.True(t, got.UpdatedAt.After(created))
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now()
	require.NoError(t, s.Create(Job{ID: "old", CreatedAt: base.Add(-2 * time.Minute)}))
	require.NoError(t, s.Create(Job{ID: "new", CreatedAt: base}))
	require.NoError(t, s.Create(Job{ID: "mid", CreatedAt: base.Add(-time.Minute)}))

	var ids []string
	for _, j := range s.List() {
		ids = append(ids, j.ID)
	}
	assert.Equal(t, []string{"new", "mid", "old"}, ids)
}

func TestMemoryStore_PruneKeepsActiveJobs(t *testing.T) {
	s := NewMemoryStore()
	old := time.Now().Add(-time.Hour)
	for id, st := range map[string]Status{
		"q": StatusQueued,
		"p": StatusProcessing,
		"c": StatusComplete,
		"e": StatusError,
	} {
		require.NoError(t, s.Create(Job{ID: id, Status: st, CreatedAt: old, UpdatedAt: old}))
	}

	assert.Equal(t, 2, s.Prune(time.Now().Add(-time.Minute)))
	assert.Len(t, s.List(), 2)
	_, err := s.Get("c")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = s.Get("q")
	assert.NoError(t, err)
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusComplete.Terminal())
	assert.True(t, StatusError.Terminal())
}
