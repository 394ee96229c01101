// Package storage is the durable key-value layer the session store persists its
// credentials into. It plays the role a browser's local storage plays for a
// single-page app: values are raw strings and a missing key means "nothing stored".
package storage

import (
	"context"
	"errors"
)

const (
	// KeyToken holds the backend-issued bearer token.
	KeyToken = "auth.token"
	// KeyUserID holds the id of the authenticated user.
	KeyUserID = "auth.id"
)

// ErrUnavailable is returned when the underlying storage cannot be reached.
var ErrUnavailable = errors.New("storage: unavailable")

// Storage is a string key-value store.
type Storage interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

type scoped struct {
	base      Storage
	namespace string
}

// Scope returns a view of base in which every key is prefixed with namespace and a colon.
func Scope(base Storage, namespace string) Storage {
	return &scoped{base: base, namespace: namespace}
}

func (s *scoped) key(key string) string {
	return s.namespace + ":" + key
}

func (s *scoped) Get(ctx context.Context, key string) (string, bool, error) {
	return s.base.Get(ctx, s.key(key))
}

func (s *scoped) Set(ctx context.Context, key, value string) error {
	return s.base.Set(ctx, s.key(key), value)
}

func (s *scoped) Remove(ctx context.Context, key string) error {
	return s.base.Remove(ctx, s.key(key))
}
