// Package store exposes the tree-keyed data store the bot persists into.
// Paths are "/"-delimited strings (e.g. "users/123/accounts/Account-7").
// No multi-path atomicity is provided; callers doing multi-path updates
// accept partial-failure risk.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when nothing exists at the path.
var ErrNotFound = errors.New("store: path not found")

// Tree is the async tree-structured key/value service. Set and Update are
// atomic for a single path.
type Tree interface {
	// Get decodes the value at path into out. Interior paths decode the
	// whole subtree.
	Get(ctx context.Context, path string, out interface{}) error

	// Set replaces the value (and any subtree) at path.
	Set(ctx context.Context, path string, value interface{}) error

	// Update merges the given child fields into the value at path without
	// touching siblings.
	Update(ctx context.Context, path string, fields map[string]interface{}) error

	// Push stores value under a generated child key and returns the key.
	Push(ctx context.Context, path string, value interface{}) (string, error)

	// Remove deletes the value (and any subtree) at path.
	Remove(ctx context.Context, path string) error

	// Exists reports whether anything is stored at path.
	Exists(ctx context.Context, path string) (bool, error)
}
