package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartUpdateFinish(t *testing.T) {
	s := NewStore(time.Minute)
	key := RunKey("run-1")

	s.Start(key, 40)
	s.Update(key, 10)

	rec, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, StatusComputing, rec.Status)
	assert.Equal(t, 25, rec.Percentage)

	s.Finish(key, StatusCompleted, "")
	rec, ok = s.Get(key)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, 40, rec.Processed)
	assert.Equal(t, 100, rec.Percentage)
}

func TestExpiry(t *testing.T) {
	s := NewStore(time.Minute)
	base := time.Now()
	s.now = func() time.Time { return base }

	key := ImportKey("sess-1")
	s.Start(key, 5)

	_, ok := s.Get(key)
	assert.True(t, ok)

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, ok = s.Get(key)
	assert.False(t, ok)

	s.Sweep()
	s.mu.RLock()
	assert.Empty(t, s.m)
	s.mu.RUnlock()
}

func TestCancelFlag(t *testing.T) {
	s := NewStore(time.Minute)
	key := RunKey("run-2")
	s.Start(key, 3)

	assert.False(t, s.Cancelled(key))
	s.Cancel(key)
	assert.True(t, s.Cancelled(key))
}

func TestKeyFormats(t *testing.T) {
	assert.Equal(t, "payroll_progress_abc", RunKey("abc"))
	assert.Equal(t, "import_progress_xyz", ImportKey("xyz"))
}
