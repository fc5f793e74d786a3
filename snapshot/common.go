package snapshot

import (
	"errors"
)

// Error categories. Every error returned by this package matches exactly one of them with errors.Is.
var (
	// ErrPrecondition marks programming errors of the caller, e.g. reading un-hydrated intervals.
	ErrPrecondition = errors.New("precondition violated")

	// ErrInvalidInput marks input that can never be processed as given.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDomainAmbiguity marks requests that cannot be answered without further information.
	ErrDomainAmbiguity = errors.New("domain ambiguity")
)

var (
	ErrIntervalsNotHydrated = newCategorizedError(ErrPrecondition, "intervals have not been hydrated")
	ErrNotCategorized       = newCategorizedError(ErrPrecondition, "snapshot has not been categorized yet")
	ErrNotVersioned         = newCategorizedError(ErrPrecondition, "snapshot has not been versioned yet")
	ErrNilModel             = newCategorizedError(ErrPrecondition, "model must not be nil")

	ErrInvalidInterval       = newCategorizedError(ErrInvalidInput, "interval end must be greater than its start")
	ErrUnknownAudit          = newCategorizedError(ErrInvalidInput, "unknown audit name")
	ErrInvalidTTL            = newCategorizedError(ErrInvalidInput, "ttl must resolve to a positive duration")
	ErrDependencyCycle       = newCategorizedError(ErrInvalidInput, "dependency cycle detected")
	ErrUnknownChangeCategory = newCategorizedError(ErrInvalidInput, "unknown change category")
	ErrEmptyHash             = newCategorizedError(ErrInvalidInput, "fingerprint hashes must not be empty")
	ErrEmptySnapshotName     = newCategorizedError(ErrInvalidInput, "snapshot name must not be empty")
	ErrInvalidRecord         = newCategorizedError(ErrInvalidInput, "snapshot record is not valid")
	ErrModelMismatch         = newCategorizedError(ErrInvalidInput, "model does not match the snapshot record")
	ErrUnknownSnapshot       = newCategorizedError(ErrInvalidInput, "snapshot is not part of the given set")
	ErrNonAdvancingSchedule  = newCategorizedError(ErrInvalidInput, "schedule did not advance")
	ErrRenderingFailed       = newCategorizedError(ErrInvalidInput, "model content could not be rendered")

	ErrUndefinedStart = newCategorizedError(ErrDomainAmbiguity, "snapshot must have a start defined if it depends on past")
)

// categorizedError is a sentinel error which also matches its category with errors.Is.
type categorizedError struct {
	category error
	msg      string
}

func newCategorizedError(category error, msg string) error {
	return &categorizedError{category: category, msg: msg}
}

func (e *categorizedError) Error() string {
	return e.msg
}

func (e *categorizedError) Unwrap() error {
	return e.category
}
