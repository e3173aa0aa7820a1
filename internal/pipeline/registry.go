package pipeline

import (
	"errors"
	"slices"
	"strings"
	"sync"
)

// Registry holds the stages of one kind in registration order.
type Registry[T Stage] struct {
	kind Kind

	mu     sync.RWMutex
	stages []T
	ids    map[string]struct{}
}

func NewRegistry[T Stage](kind Kind) *Registry[T] {
	return &Registry[T]{kind: kind, ids: make(map[string]struct{})}
}

func (r *Registry[T]) Kind() Kind { return r.kind }

// Register appends s. It returns *DuplicateStageError when the identifier is
// already taken.
func (r *Registry[T]) Register(s T) error {
	id := strings.TrimSpace(s.Identifier())
	if id == "" {
		return errors.New(string(r.kind) + " stage identifier is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.ids[id]; dup {
		return &DuplicateStageError{Kind: r.kind, Identifier: id}
	}
	r.ids[id] = struct{}{}
	r.stages = append(r.stages, s)
	return nil
}

// MustRegister registers every stage and panics on the first failure.
func (r *Registry[T]) MustRegister(stages ...T) {
	for _, s := range stages {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
}

// Ordered returns the execution order: stable by Order, ties keep
// registration order.
func (r *Registry[T]) Ordered() []T {
	r.mu.RLock()
	out := slices.Clone(r.stages)
	r.mu.RUnlock()
	slices.SortStableFunc(out, func(a, b T) int {
		return int(a.Order()) - int(b.Order())
	})
	return out
}

// Identifiers lists identifiers in execution order.
func (r *Registry[T]) Identifiers() []string {
	ordered := r.Ordered()
	ids := make([]string, len(ordered))
	for i, s := range ordered {
		ids[i] = s.Identifier()
	}
	return ids
}

func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stages)
}
