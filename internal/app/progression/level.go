package progression

import (
	"math"

	"github.com/heritagescan/heritage/internal/domain"
)

// levelBands is the explicit part of the level table. Past the last band
// each threshold is the previous one times 1.5, floored.
var levelBands = [...]domain.LevelBand{
	{Level: 1, MinPoints: 0, MaxPoints: 100},
	{Level: 2, MinPoints: 100, MaxPoints: 250},
	{Level: 3, MinPoints: 250, MaxPoints: 500},
	{Level: 4, MinPoints: 500, MaxPoints: 1000},
	{Level: 5, MinPoints: 1000, MaxPoints: 1500},
	{Level: 6, MinPoints: 1500, MaxPoints: 2250},
	{Level: 7, MinPoints: 2250, MaxPoints: 3375},
	{Level: 8, MinPoints: 3375, MaxPoints: 5062},
	{Level: 9, MinPoints: 5062, MaxPoints: 7593},
	{Level: 10, MinPoints: 7593, MaxPoints: 11389},
}

// LevelBands returns a copy of the explicit level table.
func LevelBands() []domain.LevelBand {
	out := make([]domain.LevelBand, len(levelBands))
	copy(out, levelBands[:])
	return out
}

// nextThreshold grows an extended band boundary by 1.5x (t + t/2 is the exact
// floor), saturating at math.MaxInt64.
func nextThreshold(t int64) int64 {
	if t > math.MaxInt64-t/2 {
		return math.MaxInt64
	}
	return t + t/2
}

// bandFor returns the band containing points. Negative points count as 0.
func bandFor(points int64) domain.LevelBand {
	if points < 0 {
		points = 0
	}
	for _, b := range levelBands {
		if points < b.MaxPoints {
			return b
		}
	}

	last := levelBands[len(levelBands)-1]
	band := domain.LevelBand{
		Level:     last.Level + 1,
		MinPoints: last.MaxPoints,
		MaxPoints: nextThreshold(last.MaxPoints),
	}
	// The band ending at math.MaxInt64 is open-ended.
	for points >= band.MaxPoints && band.MaxPoints < math.MaxInt64 {
		band.Level++
		band.MinPoints = band.MaxPoints
		band.MaxPoints = nextThreshold(band.MaxPoints)
	}
	return band
}

// CalculateLevel maps accumulated points to a level (>= 1).
func CalculateLevel(points int64) int {
	return bandFor(points).Level
}

// NextLevelPoints returns the band boundaries around points and the
// percentage of the way to the next level, clamped to [0, 100].
func NextLevelPoints(points int64) domain.LevelProgress {
	b := bandFor(points)
	p := points
	if p < 0 {
		p = 0
	}

	progress := float64(p-b.MinPoints) * 100 / float64(b.MaxPoints-b.MinPoints)
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	return domain.LevelProgress{
		Level:    b.Level,
		Points:   points,
		Current:  b.MinPoints,
		Next:     b.MaxPoints,
		Progress: progress,
	}
}

// MinPointsForLevel returns the lowest points total that reaches level.
func MinPointsForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	if level <= len(levelBands) {
		return levelBands[level-1].MinPoints
	}
	t := levelBands[len(levelBands)-1].MaxPoints
	for l := len(levelBands) + 1; l < level && t < math.MaxInt64; l++ {
		t = nextThreshold(t)
	}
	return t
}
