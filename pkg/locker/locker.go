package locker

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrLockNotAcquired = errors.New("admission scope lock not acquired")

// Locker serializes the admission critical section per (tenant, clinic)
// scope. The duplicate and capacity checks are each a read followed by a
// later insert; without this section two concurrent joiners can both pass
// the checks and break the queue bound.
type Locker interface {
	WithScopeLock(ctx context.Context, tenantID uuid.UUID, clinicID *uuid.UUID, fn func(ctx context.Context) error) error
}

// Noop runs the critical section without any locking. Intended for tests
// and single-process deployments where the store constraint alone is enough.
type Noop struct{}

func (Noop) WithScopeLock(ctx context.Context, _ uuid.UUID, _ *uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
