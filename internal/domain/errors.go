package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure: no infrastructure dependency.

var (
	// Persistence errors
	ErrStoreUnavailable = errors.New("progression store unavailable")
	ErrStatsNotFound    = errors.New("user stats not found")

	// Input errors
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnknownAchievement = errors.New("achievement not in catalog")
)
