// Package repo holds the small Neo4j session abstraction and a generic
// node repository built on it.
package repo

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no node matches the requested ID.
var ErrNotFound = errors.New("repo: not found")

// Repository is a generic read/write interface over keyed nodes.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Merge(ctx context.Context, entity T) error
	Delete(ctx context.Context, id ID) error
}

// ListOpts controls pagination for List operations.
type ListOpts struct {
	Offset int
	Limit  int
}
