package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache_GetSet(t *testing.T) {
	c := NewLRUCache[string](2, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	// "b" is now least recently used and goes first.
	c.Set("c", "3")
	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Size())

	c.Set("a", "updated")
	v, _ = c.Get("a")
	assert.Equal(t, "updated", v)
}

func TestLRUCache_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewLRUCache[int](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k1", 1)
	c.Set("k2", 2)
	now = now.Add(30 * time.Second)
	c.Set("k3", 3)

	now = now.Add(45 * time.Second)
	assert.Equal(t, 2, c.CleanExpired())
	_, ok := c.Get("k3")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok = c.Get("k3")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestLRUCache_DeletePrefix(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	c.Set("s1|cash-flow", 1)
	c.Set("s1|balance", 2)
	c.Set("s10|balance", 3)
	c.Set("s2|balance", 4)

	assert.Equal(t, 2, c.DeletePrefix("s1|"))
	assert.Equal(t, 2, c.Size())
	_, ok := c.Get("s10|balance")
	assert.True(t, ok)

	c.Delete("s2|balance")
	assert.Equal(t, 1, c.Size())
}

func TestLRUCache_MinimumSize(t *testing.T) {
	c := NewLRUCache[int](0, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	assert.Equal(t, 1, c.Size())
}

func TestManager_CleanNowAndStop(t *testing.T) {
	now := time.Now()
	c := NewLRUCache[int](10, time.Second)
	c.now = func() time.Time { return now }
	c.Set("k", 1)

	m := NewManager()
	m.Register(c)
	m.StartCleanup(time.Hour)

	now = now.Add(2 * time.Second)
	assert.Equal(t, 1, m.CleanNow())
	m.Stop()
	m.Stop()
}
