package cache

import (
	"errors"
	"fmt"
)

// Common errors returned by cache operations.
var (
	// ErrCacheMiss indicates no entry matched, exactly or by similarity.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidKey indicates malformed lookup fields. Caller error,
	// never retried or coerced.
	ErrInvalidKey = errors.New("invalid cache key")

	// ErrInvalidThreshold indicates a similarity threshold outside (0,1].
	ErrInvalidThreshold = errors.New("similarity threshold must be in (0,1]")

	// ErrInstanceFailed indicates the instance detected a capacity
	// invariant violation and refuses further writes.
	ErrInstanceFailed = errors.New("cache instance failed, writes refused")

	// ErrUnknownCache indicates a cache domain name the manager does not own.
	ErrUnknownCache = errors.New("unknown cache domain")
)

// ErrorClass categorizes cache errors for handling and observability.
type ErrorClass string

const (
	// ErrorClassCaller covers malformed lookup fields and invalid
	// thresholds: rejected synchronously, never retried.
	ErrorClassCaller ErrorClass = "caller"

	// ErrorClassBackingStore covers durable mirror failures including
	// timeouts: non-fatal to serving, surfaced via health and logs only.
	ErrorClassBackingStore ErrorClass = "backing_store"

	// ErrorClassCapacityInvariant covers the internal bug class where
	// tracked size and actual collection size disagree: fatal to the
	// instance.
	ErrorClassCapacityInvariant ErrorClass = "capacity_invariant"
)

// CacheError wraps an error with its classification and the operation
// that produced it.
type CacheError struct {
	Class ErrorClass
	Op    string
	Cache string
	Err   error
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s: %s %s error: %v", e.Cache, e.Op, e.Class, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *CacheError) Unwrap() error {
	return e.Err
}

func callerError(cacheName, op string, err error) *CacheError {
	return &CacheError{Class: ErrorClassCaller, Op: op, Cache: cacheName, Err: err}
}

func capacityError(cacheName, op string, err error) *CacheError {
	return &CacheError{Class: ErrorClassCapacityInvariant, Op: op, Cache: cacheName, Err: err}
}
