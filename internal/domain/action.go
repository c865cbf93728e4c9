package domain

import "time"

// UserAction is the closed set of events the achievement evaluator reacts to.
// The unexported marker keeps the set closed to this package.
type UserAction interface {
	isUserAction()
}

// ScanCompleted fires after a heritage site scan is recorded.
type ScanCompleted struct {
	SiteID    string
	Timestamp time.Time
}

// ReportSubmitted fires after a detailed conservation report is recorded.
type ReportSubmitted struct {
	ReportID  string
	Timestamp time.Time
}

// StreakUpdated carries the streak length computed for the current scan.
type StreakUpdated struct {
	StreakCount int
}

// RankAchieved carries a leaderboard position (1-based).
type RankAchieved struct {
	Rank int
}

// LevelReached is emitted by the level-up pass after points push a user
// into a higher level.
type LevelReached struct {
	Level int
}

func (ScanCompleted) isUserAction()   {}
func (ReportSubmitted) isUserAction() {}
func (StreakUpdated) isUserAction()   {}
func (RankAchieved) isUserAction()    {}
func (LevelReached) isUserAction()    {}
