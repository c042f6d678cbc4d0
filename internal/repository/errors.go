package repository

import "errors"

var (
	// ErrNotFound is returned when a lookup by key matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write races another writer for the same key.
	ErrConflict = errors.New("conflict")
	// ErrQueueEmpty is returned by Pop on an empty queue.
	ErrQueueEmpty = errors.New("queue is empty")
	// ErrLockHeld is returned when a lock could not be taken before the context ended.
	ErrLockHeld = errors.New("lock held by another worker")
)
