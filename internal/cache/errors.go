package cache

import "errors"

// ErrCancelled is returned to callers of a fetch that was cancelled through
// Store.Cancel before it completed.
var ErrCancelled = errors.New("cache fetch cancelled")
