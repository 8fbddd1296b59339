package lock

import (
	"context"
	"errors"
)

var (
	// ErrLockTimeout is returned when a lock could not be acquired in time
	ErrLockTimeout = errors.New("timed out waiting for job lock")

	// ErrLockLost is returned when a lease expired or was taken over
	ErrLockLost = errors.New("job lock lost")
)

// Locker hands out exclusive leases keyed by job id
type Locker interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

// Lease is a held lock. Refresh extends it; Release gives it up.
type Lease interface {
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
}
