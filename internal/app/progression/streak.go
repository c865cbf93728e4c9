package progression

import "time"

// DefaultStreakBonusPerDay is the bonus multiplier for a continued streak.
const DefaultStreakBonusPerDay = 10

const day = 24 * time.Hour

// StreakOutcome is the result of applying one scan to a streak.
type StreakOutcome struct {
	Current  int
	Longest  int
	Bonus    int64
	Extended bool
}

// NextStreak applies a scan at now to a streak last touched at last.
// A "day" is a rolling 24h window measured from the previous scan, not a
// calendar boundary. Same window: unchanged. Next window: +1 with a bonus of
// perDay × the new length. Anything later: reset to 1.
func NextStreak(current, longest int, last, now time.Time, perDay int64) StreakOutcome {
	out := StreakOutcome{Current: current, Longest: longest}

	switch diff := streakDays(last, now); {
	case last.IsZero():
		out.Current = 1
	case diff == 0:
		// already counted in this window
		if out.Current < 1 {
			out.Current = 1
		}
	case diff == 1:
		out.Current = current + 1
		out.Bonus = perDay * int64(out.Current)
		out.Extended = true
	default:
		out.Current = 1
	}

	if out.Current > out.Longest {
		out.Longest = out.Current
	}
	return out
}

// streakDays is floor((now-last)/24h). A clock running backwards counts as
// the same day.
func streakDays(last, now time.Time) int64 {
	if last.IsZero() {
		return 0
	}
	d := now.Sub(last)
	if d < 0 {
		return 0
	}
	return int64(d / day)
}
