// Package hook names the points of the server lifecycle where callbacks can run.
package hook

import "sync"

// Hook is a lifecycle point.
type Hook string

const (
	// Init runs once the instance and its session manager exist, before any route is registered.
	Init Hook = "init"
	// BeforeStart runs after the built-in routes are registered. Register extra routes here.
	BeforeStart Hook = "before_start"
	// Start runs right before the HTTP server starts listening.
	Start Hook = "start"
	// Shutdown runs after the HTTP server stopped accepting requests.
	Shutdown Hook = "shutdown"
)

// Registry holds the callbacks of each hook. The zero value is ready to use.
type Registry[T any] struct {
	mu sync.Mutex
	m  map[Hook][]func(T)
}

// Add registers f to run at h.
func (r *Registry[T]) Add(h Hook, f func(T)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.m == nil {
		r.m = make(map[Hook][]func(T))
	}
	r.m[h] = append(r.m[h], f)
}

// Emit runs the callbacks of h in registration order.
func (r *Registry[T]) Emit(h Hook, v T) {
	r.mu.Lock()
	fs := append(([]func(T))(nil), r.m[h]...)
	r.mu.Unlock()

	for _, f := range fs {
		f(v)
	}
}
