package utils

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheExpiry(t *testing.T) {
	c, err := NewMemoryCache(16)
	require.NoError(t, err)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.SetJSON("cache:leaderboard:global", []int{1, 2}, time.Minute)
	b, ok := c.GetBytes("cache:leaderboard:global")
	assert.True(t, ok)
	assert.JSONEq(t, `[1,2]`, string(b))

	now = now.Add(2 * time.Minute)
	_, ok = c.GetBytes("cache:leaderboard:global")
	assert.False(t, ok)
}

func TestMemoryCacheInvalidatePrefix(t *testing.T) {
	c, err := NewMemoryCache(16)
	require.NoError(t, err)
	c.SetJSON("cache:leaderboard:a", 1, time.Minute)
	c.SetJSON("cache:leaderboard:b", 2, time.Minute)
	c.SetJSON("cache:other", 3, time.Minute)

	c.InvalidatePrefix("cache:leaderboard:")

	_, ok := c.GetBytes("cache:leaderboard:a")
	assert.False(t, ok)
	_, ok = c.GetBytes("cache:leaderboard:b")
	assert.False(t, ok)
	_, ok = c.GetBytes("cache:other")
	assert.True(t, ok)
}

func TestMemoryCacheRejectsNonPositiveSize(t *testing.T) {
	_, err := NewMemoryCache(0)
	assert.Error(t, err)
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	c, err := NewMemoryCache(8)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("cache:leaderboard:%d", (i+j)%12)
				c.SetJSON(key, j, time.Minute)
				c.GetBytes(key)
				if j%50 == 0 {
					c.InvalidatePrefix("cache:leaderboard:")
				}
			}
		}(i)
	}
	wg.Wait()

	c.SetJSON("cache:leaderboard:last", 1, time.Minute)
	_, ok := c.GetBytes("cache:leaderboard:last")
	assert.True(t, ok)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "Gold star", SanitizeText("  <b>Gold</b> star<script>alert(1)</script> "))
	assert.Equal(t, `<b>bold</b>`, Sanitize(`<b onclick="x()">bold</b>`))
}
