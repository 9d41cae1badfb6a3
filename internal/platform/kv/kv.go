// Package kv is the portal's string-valued key-value persistence layer.
// Every key carries a revision counter so callers doing full-value
// read-modify-write can detect a concurrent writer.
package kv

import (
	"context"
	"errors"
)

var (
	ErrNotFound         = errors.New("kv: key not found")
	ErrRevisionMismatch = errors.New("kv: revision mismatch")
)

// Store is implemented by the memory, redis and postgres backends.
//
// Revisions start at 1 for the first write of a key. A missing key has
// revision 0, so CompareAndSwap(ctx, key, v, 0) means "create if absent".
type Store interface {
	Get(ctx context.Context, key string) (value string, revision int64, err error)
	Set(ctx context.Context, key, value string) (int64, error)
	CompareAndSwap(ctx context.Context, key, value string, revision int64) (int64, error)
	Delete(ctx context.Context, key string) error
}
