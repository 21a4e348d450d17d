package models

import "errors"

// Engine error taxonomy. Handlers map these onto HTTP statuses; the store's
// own failures (connection loss, constraint violations outside this list)
// propagate unchanged.
var (
	// ErrAuthenticationRequired is returned when no operator identity could
	// be resolved for a mutating call.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrDuplicateMapping is returned when a template step create collides
	// with an existing (product, process type) mapping.
	ErrDuplicateMapping = errors.New("duplicate template mapping")

	// ErrCrossProductMismatch is returned when a reorder names a step that
	// belongs to a different product template.
	ErrCrossProductMismatch = errors.New("step does not belong to product template")

	// ErrStepAlreadyStarted guards the at-most-one-active-window invariant:
	// a second start must never overwrite a persisted start time.
	ErrStepAlreadyStarted = errors.New("process step already started")

	// ErrStepAlreadyStopped guards a recorded end time the same way.
	ErrStepAlreadyStopped = errors.New("process step already stopped")

	// ErrStepNotStarted is returned by a strict-mode stop on a step with no
	// recorded start time.
	ErrStepNotStarted = errors.New("process step not started")

	// ErrAlreadyValidated rejects re-validation of a validated batch without
	// touching the stored verdict.
	ErrAlreadyValidated = errors.New("batch already validated")

	// ErrBatchNotInProgress rejects stopwatch actions on a completed or
	// validated batch.
	ErrBatchNotInProgress = errors.New("batch is not in progress")

	// ErrBatchNotCompleted rejects validation of a batch still in progress.
	ErrBatchNotCompleted = errors.New("batch is not completed")

	// ErrProcessTypeInactive rejects selecting a deactivated process type
	// into a new template mapping.
	ErrProcessTypeInactive = errors.New("process type is inactive")
)
