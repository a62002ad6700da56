package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThresholdForLevel(t *testing.T) {
	cases := map[int]int64{0: 0, 1: 0, 2: 100, 3: 300, 4: 600, 5: 1000}
	for level, want := range cases {
		assert.Equal(t, want, ThresholdForLevel(level, 100), "level %d", level)
	}
}

func TestLevelForPoints(t *testing.T) {
	cases := []struct {
		total int64
		want  int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{299, 2},
		{300, 3},
		{600, 4},
		{1000, 5},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, LevelForPoints(c.total, 100), "total %d", c.total)
	}
}

func TestLevelCurveIsMonotonic(t *testing.T) {
	prev := 1
	for total := int64(0); total <= 5000; total += 7 {
		level := LevelForPoints(total, 100)
		assert.GreaterOrEqual(t, level, prev)
		prev = level
	}
}
