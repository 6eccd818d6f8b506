// Package lock serializes mutations of the same workflow instance.
package lock

import (
	"context"
	"errors"
)

// ErrNotHeld is returned by a release when the lock expired or was taken over.
var ErrNotHeld = errors.New("lock not held")

// Release gives a lock back. Calling it more than once is safe.
type Release func(ctx context.Context) error

// Locker hands out exclusive locks by key.
type Locker interface {
	// Lock blocks until the key is free or ctx is done.
	Lock(ctx context.Context, key string) (Release, error)
}

// InstanceKey is the lock key guarding a workflow instance.
func InstanceKey(instanceID string) string {
	return "instance:" + instanceID
}
