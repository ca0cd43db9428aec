package clock

import "errors"

// Error taxonomy per spec (§7): nothing here is fatal, callers cycle and
// retry. ErrStoreReplace and ErrEmptyCycle are returned, never panicked.
var (
	// ErrNotFound is returned when a requested tick or entry does not exist.
	ErrNotFound = errors.New("clock: not found")

	// ErrStoreReplace is returned by ChainStore.ReplaceAll when the supplied
	// sequence fails the height/prev_tick linkage invariant. The store is
	// left unchanged.
	ErrStoreReplace = errors.New("clock: replacement chain violates chain invariants")

	// ErrEmptyCycle is returned by Selector.Select when the tick pool is
	// empty; it is a no-op, not a failure.
	ErrEmptyCycle = errors.New("clock: tick pool empty, nothing to select")

	// ErrNoResyncTarget is returned by ForkResolver.Resync when the fork
	// pool holds no alternative prev_tick to resync toward.
	ErrNoResyncTarget = errors.New("clock: no alternative chain reference in fork pool")

	// ErrPlaceholderPrevTick is returned when a non-genesis tick references
	// the genesis placeholder prev_tick outside of bootstrap mode.
	ErrPlaceholderPrevTick = errors.New("clock: non-genesis tick references placeholder prev_tick")
)
