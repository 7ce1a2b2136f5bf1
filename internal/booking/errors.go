package booking

import "github.com/pkg/errors"

// Error kinds surfaced by the lifecycle manager. Callers classify with
// errors.Is; messages carry the detail.
var (
	// ErrNotFound marks a missing service, time slot, booking or account.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an unusable slot or a duplicate active booking.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState marks an illegal status transition or review attempt.
	ErrInvalidState = errors.New("invalid state")
	// ErrPersistence marks a storage failure after which nothing was changed.
	ErrPersistence = errors.New("persistence failure")
)

func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool     { return errors.Is(err, ErrConflict) }
func IsInvalidState(err error) bool { return errors.Is(err, ErrInvalidState) }
