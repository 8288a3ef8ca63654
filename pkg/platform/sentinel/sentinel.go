package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Repositories return these (optionally
// wrapped) and the verification service translates them into domain errors.
//
//   - ErrNotFound: entity does not exist for the tenant
//   - ErrConflict: optimistic version check failed, or duplicate key
//   - ErrImmutable: write attempted on an entity whose case is closed
//   - ErrInvalidState: entity in wrong state for requested operation
//   - ErrUnavailable: backing service temporarily unavailable
//   - ErrLockHeld: a per-entity lock could not be acquired in time
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrImmutable    = errors.New("immutable")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrLockHeld     = errors.New("lock held")
)
