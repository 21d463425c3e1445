package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Tally error code.
type ErrorCode string

const (
	// Validation errors: reported immediately to the caller, never persisted.
	ErrInvalidWorkItem     ErrorCode = "INVALID_WORK_ITEM"     // 422
	ErrNonPositiveDuration ErrorCode = "NON_POSITIVE_DURATION" // 422
	ErrCommentTooLong      ErrorCode = "COMMENT_TOO_LONG"      // 422
	ErrDailyLimitExceeded  ErrorCode = "DAILY_LIMIT_EXCEEDED"  // 422

	// Sync errors.
	ErrTransient    ErrorCode = "TRANSIENT"     // 503, retried with backoff
	ErrConflict     ErrorCode = "CONFLICT"      // 409, clamped and persisted
	ErrTypeMismatch ErrorCode = "TYPE_MISMATCH" // 422, terminal
	ErrNotFound     ErrorCode = "NOT_FOUND"     // 404, terminal

	// Search.
	ErrSearchUnavailable ErrorCode = "SEARCH_UNAVAILABLE" // 503

	// General.
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// TallyError represents a structured error with code, status, and details.
type TallyError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *TallyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidWorkItem creates a validation error for an unknown or non-Task/Bug work item.
func NewInvalidWorkItem(workItemID int) *TallyError {
	return &TallyError{
		Code:    ErrInvalidWorkItem,
		Status:  422,
		Message: fmt.Sprintf("work item %d is not a known Task or Bug", workItemID),
		Details: map[string]any{"work_item_id": workItemID},
	}
}

// NewNonPositiveDuration creates a validation error for zero or negative durations.
func NewNonPositiveDuration(minutes int) *TallyError {
	return &TallyError{
		Code:    ErrNonPositiveDuration,
		Status:  422,
		Message: fmt.Sprintf("duration must be positive, got %d minutes", minutes),
		Details: map[string]any{"duration_minutes": minutes},
	}
}

// NewCommentTooLong creates a validation error when a comment exceeds the limit.
func NewCommentTooLong(max, actual int) *TallyError {
	return &TallyError{
		Code:    ErrCommentTooLong,
		Status:  422,
		Message: fmt.Sprintf("comment exceeds maximum length: %d chars (max %d)", actual, max),
		Details: map[string]any{"max_chars": max, "actual_chars": actual},
	}
}

// NewDailyLimitExceeded creates a validation error when a save would push a day past the limit.
func NewDailyLimitExceeded(limitMinutes, wouldBe int) *TallyError {
	return &TallyError{
		Code:    ErrDailyLimitExceeded,
		Status:  422,
		Message: fmt.Sprintf("daily total would reach %d minutes (limit %d)", wouldBe, limitMinutes),
		Details: map[string]any{"limit_minutes": limitMinutes, "total_minutes": wouldBe},
	}
}

// NewTransient creates a retryable sync error (timeout, 5xx).
func NewTransient(err error) *TallyError {
	msg := "transient remote failure"
	if err != nil {
		msg = err.Error()
	}
	return &TallyError{
		Code:    ErrTransient,
		Status:  503,
		Message: msg,
	}
}

// NewConflict creates a 409 error for a remaining-work update that had to be clamped.
func NewConflict(workItemID int, clampedHours float64) *TallyError {
	return &TallyError{
		Code:    ErrConflict,
		Status:  409,
		Message: fmt.Sprintf("remaining work on work item %d clamped to zero (%.2fh over)", workItemID, clampedHours),
		Details: map[string]any{"work_item_id": workItemID, "clamped_hours": clampedHours},
	}
}

// NewTypeMismatch creates a terminal error for a work item that is no longer a Task or Bug.
func NewTypeMismatch(workItemID int, itemType string) *TallyError {
	return &TallyError{
		Code:    ErrTypeMismatch,
		Status:  422,
		Message: fmt.Sprintf("work item %d has type %q; only Task and Bug can receive time", workItemID, itemType),
		Details: map[string]any{"work_item_id": workItemID, "type": itemType},
	}
}

// NewNotFound creates a 404 error.
func NewNotFound(identifier string) *TallyError {
	return &TallyError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewSearchUnavailable creates a degraded-search error. The caller falls back to
// the last cached page if one exists.
func NewSearchUnavailable(err error) *TallyError {
	msg := "work item search unavailable"
	if err != nil {
		msg = err.Error()
	}
	return &TallyError{
		Code:    ErrSearchUnavailable,
		Status:  503,
		Message: msg,
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *TallyError {
	return &TallyError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message is generic; the original error is kept in Details for logging.
func NewInternal(err error) *TallyError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &TallyError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// Is checks if an error (or any error it wraps) is a TallyError with the given code.
func Is(err error, code ErrorCode) bool {
	var tErr *TallyError
	if stderrors.As(err, &tErr) {
		return tErr.Code == code
	}
	return false
}
