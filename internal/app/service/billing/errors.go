package billing

import "errors"

// Domain error set. Handlers map these onto response codes; scheduler tasks
// log and continue on anything that is not fatal for the whole sweep.
var (
	// ErrNotFound: subscription, payment or plan absent.
	ErrNotFound = errors.New("billing: not found")
	// ErrValidation: malformed request; no state was mutated.
	ErrValidation = errors.New("billing: invalid request")
	// ErrConflict: transition not applicable and not an idempotent no-op,
	// e.g. reactivating a cancelled record.
	ErrConflict = errors.New("billing: conflicting state")
)
