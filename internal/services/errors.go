package services

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to handlers. Handlers translate them to HTTP
// status codes; services only ever wrap them with context.
var (
	// Not found
	ErrSeriesNotFound   = errors.New("test series not found")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrQuestionNotFound = errors.New("question not found")

	// Start
	ErrAttemptLimitExceeded = errors.New("maximum attempts for this series reached")
	ErrAttemptInProgress    = errors.New("an attempt is already in progress for this series")
	ErrSeriesWindowClosed   = errors.New("series is outside its live window")

	// Save / submit
	ErrAttemptNotInProgress = errors.New("attempt is not in progress")
	ErrAttemptTerminated    = errors.New("attempt was terminated")
	ErrUnknownQuestion      = errors.New("question is not part of this attempt")
	ErrConcurrencyConflict  = errors.New("attempt was modified concurrently, retry the save")

	// Grading / review
	ErrAttemptAlreadyGraded = errors.New("attempt is already graded")
	ErrAttemptNotGraded     = errors.New("attempt is not graded yet")

	// Anti-cheat
	ErrStrictModeDisabled = errors.New("strict mode is not enabled for this attempt")
)

// PermissionError reports an authorization failure on a specific resource.
type PermissionError struct {
	UserID   string
	Action   string
	Resource string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s is not allowed to %s %s", e.UserID, e.Action, e.Resource)
}

func NewPermissionError(userID, action, resource string) *PermissionError {
	return &PermissionError{UserID: userID, Action: action, Resource: resource}
}

// BusinessRuleError reports a domain rule violation that is neither a
// malformed payload nor a missing resource.
type BusinessRuleError struct {
	Rule    string
	Message string
}

func (e *BusinessRuleError) Error() string {
	return e.Message
}

func NewBusinessRuleError(rule, message string) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Message: message}
}

// InsufficientPoolError is returned by the pool selector when a section asks
// for more questions than its pool holds.
type InsufficientPoolError struct {
	SectionTitle string
	PoolSize     int
	Requested    int
}

func (e *InsufficientPoolError) Error() string {
	return fmt.Sprintf("section %q: cannot select %d questions from a pool of %d",
		e.SectionTitle, e.Requested, e.PoolSize)
}
