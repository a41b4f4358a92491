package common

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Token identifies a registration in a Registry. The zero Token is never
// handed out.
type Token uint64

// Registry holds listeners of type T in registration order. It is safe for
// concurrent use; Snapshot lets callers invoke listeners without holding the
// registry lock.
type Registry[T any] struct {
	mu    sync.RWMutex
	next  Token
	order []Token
	items map[Token]T
}

// NewRegistry ...
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		items: make(map[Token]T),
	}
}

// Add registers item and returns the Token that removes it.
func (r *Registry[T]) Add(item T) Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	r.items[r.next] = item
	r.order = append(r.order, r.next)

	return r.next
}

// Remove unregisters the item behind tok. It reports whether anything was
// removed; removing twice is a no-op.
func (r *Registry[T]) Remove(tok Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[tok]; !ok {
		return false
	}

	delete(r.items, tok)

	for i, t := range r.order {
		if t == tok {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	return true
}

// Snapshot returns the registered items in registration order.
func (r *Registry[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]T, 0, len(r.order))
	for _, t := range r.order {
		res = append(res, r.items[t])
	}

	return res
}

// Len ...
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// SafeCall runs f and logs, instead of propagating, any panic it raises. It
// returns the recovered value as an error.
func SafeCall(logger *logrus.Entry, what string, f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", what, r)
			if logger != nil {
				logger.WithField("listener", what).Errorf("Listener panic: %v", r)
			}
		}
	}()

	f()

	return nil
}
