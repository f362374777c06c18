package persistence

import "context"

// MutateFunc edits a freshly loaded snapshot in place. Returning an error
// aborts the mutation and leaves the stored data untouched.
type MutateFunc func(snapshot *Snapshot) error

// Store is the durable system of record.
type Store interface {
	// Read returns a consistent snapshot without taking the write lock.
	Read(ctx context.Context) (Snapshot, error)
	// Mutate reloads the data under an exclusive lock, applies fn and
	// atomically replaces the stored data when fn succeeds.
	Mutate(ctx context.Context, fn MutateFunc) error
}
