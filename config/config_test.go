package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults(t *testing.T) {
	var c AppConfig
	applyDefaults(&c)

	assert.Equal(t, "8080", c.AppPort)
	assert.Equal(t, 10, c.SigninRewardPoints)
	assert.Equal(t, 100, c.LevelBasePoints)
	assert.Equal(t, 3, c.FeaturedBadgeLimit)
	assert.Equal(t, "UTC", c.TimeZone)
	assert.Equal(t, []string{"*"}, c.AllowedOrigins)
	assert.Empty(t, c.RedisHost)
}

func TestIsAdmin(t *testing.T) {
	c := AppConfig{AdminUsernames: []string{"root", "Parent"}}

	assert.True(t, c.IsAdmin("root"))
	assert.True(t, c.IsAdmin("parent"))
	assert.False(t, c.IsAdmin("kid"))
	assert.False(t, AppConfig{}.IsAdmin("root"))
}

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a , ,b "))
}

func TestOverrideAppliesDefaults(t *testing.T) {
	Override(AppConfig{JWTSecret: "s", SigninRewardPoints: 25})
	c := Get()

	assert.Equal(t, 25, c.SigninRewardPoints)
	assert.Equal(t, 100, c.LeaderboardMaxLimit)
}
