package services

// ThresholdForLevel is the total points needed to reach level. Each level costs
// base points more than the previous one: 0, base, 3*base, 6*base, ...
func ThresholdForLevel(level int, base int64) int64 {
	if level <= 1 {
		return 0
	}
	l := int64(level)
	return base * l * (l - 1) / 2
}

// LevelForPoints returns the highest level whose threshold is covered by total.
func LevelForPoints(total, base int64) int {
	if base <= 0 {
		base = 1
	}
	level := 1
	for ThresholdForLevel(level+1, base) <= total {
		level++
	}
	return level
}
