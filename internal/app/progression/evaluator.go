package progression

import (
	"fmt"

	"github.com/heritagescan/heritage/internal/domain"
)

const (
	earlyBirdID      = "early_bird"
	nightOwlID       = "night_owl"
	weekendWarriorID = "weekend_warrior"

	earlyBirdBeforeHour = 7
	nightOwlFromHour    = 22
)

// customLevelTargets maps the level-gated custom achievements to the level
// they need.
var customLevelTargets = map[string]int{
	"rising_star":        5,
	"heritage_hero":      10,
	"legendary_guardian": 20,
}

// Evaluate returns the catalog entries the action newly satisfies for stats,
// in catalog order. Entries already in stats.AchievementsUnlocked are never
// returned. Time-based entries read the action timestamp as given, so callers
// convert it to the wanted location first.
func Evaluate(cat *Catalog, stats domain.UserStats, action domain.UserAction) ([]domain.Achievement, error) {
	switch action.(type) {
	case domain.ScanCompleted, domain.ReportSubmitted, domain.StreakUpdated,
		domain.RankAchieved, domain.LevelReached:
	default:
		return nil, fmt.Errorf("%w: unsupported action %T", domain.ErrInvalidInput, action)
	}

	var unlocked []domain.Achievement
	for _, a := range cat.entries {
		if stats.HasAchievement(a.ID) {
			continue
		}
		if satisfies(a, stats, action) {
			unlocked = append(unlocked, a)
		}
	}
	return unlocked, nil
}

func satisfies(a domain.Achievement, stats domain.UserStats, action domain.UserAction) bool {
	switch a.Criteria.Type {
	case domain.CriteriaScanCount:
		_, ok := action.(domain.ScanCompleted)
		return ok && stats.TotalScans >= a.Criteria.Target

	case domain.CriteriaReportCount:
		_, ok := action.(domain.ReportSubmitted)
		return ok && stats.TotalReports >= a.Criteria.Target

	case domain.CriteriaStreak:
		ev, ok := action.(domain.StreakUpdated)
		return ok && ev.StreakCount >= a.Criteria.Target

	case domain.CriteriaRank:
		ev, ok := action.(domain.RankAchieved)
		return ok && ev.Rank >= 1 && ev.Rank <= a.Criteria.Target

	case domain.CriteriaTimeBased:
		ev, ok := action.(domain.ScanCompleted)
		if !ok || ev.Timestamp.IsZero() {
			return false
		}
		hour := ev.Timestamp.Hour()
		switch a.ID {
		case earlyBirdID:
			return hour < earlyBirdBeforeHour
		case nightOwlID:
			return hour >= nightOwlFromHour
		}
		return false

	case domain.CriteriaCustom:
		if lvl, ok := customLevelTargets[a.ID]; ok {
			return stats.Level >= lvl
		}
		if a.ID == weekendWarriorID {
			_, ok := action.(domain.ScanCompleted)
			return ok && stats.WeekendScans >= a.Criteria.Target
		}
		return false
	}
	return false
}

// progressValue is the counter an achievement measures against its target.
func progressValue(a domain.Achievement, stats domain.UserStats) (current, target int) {
	target = a.Criteria.Target
	switch a.Criteria.Type {
	case domain.CriteriaScanCount:
		current = stats.TotalScans
	case domain.CriteriaReportCount:
		current = stats.TotalReports
	case domain.CriteriaStreak:
		current = stats.CurrentStreak
	case domain.CriteriaCustom:
		if lvl, ok := customLevelTargets[a.ID]; ok {
			current, target = stats.Level, lvl
		} else if a.ID == weekendWarriorID {
			current = stats.WeekendScans
		}
	}
	if target <= 0 {
		// one-shot entries (time-based, rank) have no counter
		target = 1
	}
	return current, target
}

// ProgressFor builds the per-entry progress view for stats.
func ProgressFor(cat *Catalog, stats domain.UserStats) []domain.AchievementProgress {
	out := make([]domain.AchievementProgress, 0, len(cat.entries))
	for _, a := range cat.entries {
		p := domain.AchievementProgress{Achievement: a}
		p.CurrentValue, p.TargetValue = progressValue(a, stats)
		if stats.HasAchievement(a.ID) {
			p.IsUnlocked = true
			p.ProgressPercent = 100
			if p.CurrentValue < p.TargetValue {
				p.CurrentValue = p.TargetValue
			}
		} else {
			p.ProgressPercent = min(100, float64(p.CurrentValue)*100/float64(p.TargetValue))
		}
		out = append(out, p)
	}
	return out
}
