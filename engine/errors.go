/*
errors.go - Centralized error types for the engine

ERROR CATEGORIES:
  1. Input errors - malformed dates, negative targets, unknown goal ids
  2. Rule outcomes - claim window closed, goal not reached, club closed
  3. Store errors - missing rows, duplicate keys

Persistence failures from a store are wrapped with %w and propagated as-is.
Nothing in this package retries.
*/
package engine

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is the root of every InvalidInputError.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAthleteNotFound is returned when a referenced athlete doesn't exist.
	ErrAthleteNotFound = errors.New("athlete not found")

	// ErrPlanNotFound is returned when a referenced training plan doesn't exist.
	ErrPlanNotFound = errors.New("training plan not found")

	// ErrAlreadyClaimed is returned when a goal was already redeemed in the
	// current period.
	ErrAlreadyClaimed = errors.New("goal already redeemed this period")

	// ErrGoalNotComplete is returned when redeeming a goal whose target isn't met.
	ErrGoalNotComplete = errors.New("goal not complete")

	// ErrClubClosed is returned for check-ins on a day the club doesn't open.
	ErrClubClosed = errors.New("club is closed on this day")

	// ErrDuplicateIdempotencyKey is returned when a coin transaction with the
	// same idempotency key already exists. Expected for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrDuplicateAthlete is returned when registering an existing athlete id.
	ErrDuplicateAthlete = errors.New("athlete already exists")

	// ErrNotCoach is returned when a coach-only action is attempted by someone else.
	ErrNotCoach = errors.New("action requires a coach")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InvalidInputError names the offending field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// BatchError reports a batch balance change that stopped partway. Applied
// lists the athletes already credited; they are not rolled back.
type BatchError struct {
	Applied []AthleteID
	Failed  AthleteID
	Err     error
}

func (e *BatchError) Error() string {
	ids := make([]string, len(e.Applied))
	for i, id := range e.Applied {
		ids[i] = string(id)
	}
	return fmt.Sprintf("batch stopped at %s after [%s]: %v", e.Failed, strings.Join(ids, ", "), e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrNotCoach)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAthleteNotFound) || errors.Is(err, ErrPlanNotFound)
}

// IsConflict returns true if the request is valid but the current state
// refuses it.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyClaimed) ||
		errors.Is(err, ErrGoalNotComplete) ||
		errors.Is(err, ErrClubClosed) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrDuplicateAthlete)
}
