// Package mock provides a test double for the store.Store interface.
//
// Store records every method call for assertion in tests and keeps saved
// reports in memory so Save followed by Get behaves like a real store.
// Exported *Err fields inject failures. Store is safe for concurrent use.
//
// Typical usage:
//
//	s := &mock.Store{SaveErr: errors.New("disk full")}
//
//	// inject s into the system under test …
//
//	if got := s.CallCount("Save"); got != 1 {
//	    t.Errorf("expected 1 Save call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/nv-mldev/emr/pkg/store"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is a configurable test double for [store.Store].
type Store struct {
	mu sync.Mutex

	calls []Call
	mem   store.MemStore

	// SaveErr is returned by [Store.Save] when non-nil.
	SaveErr error

	// GetErr is returned by [Store.Get] when non-nil.
	GetErr error

	// ListErr is returned by [Store.List] when non-nil.
	ListErr error

	// DeleteErr is returned by [Store.Delete] when non-nil.
	DeleteErr error
}

var _ store.Store = (*Store)(nil)

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls and saved reports without altering error
// configuration.
func (m *Store) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.mem = store.MemStore{}
}

func (m *Store) record(method string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: method, Args: args})
}

// Save implements [store.Store].
func (m *Store) Save(ctx context.Context, r store.Report) error {
	m.record("Save", r)
	if m.SaveErr != nil {
		return m.SaveErr
	}
	return m.mem.Save(ctx, r)
}

// Get implements [store.Store].
func (m *Store) Get(ctx context.Context, id string) (store.Report, error) {
	m.record("Get", id)
	if m.GetErr != nil {
		return store.Report{}, m.GetErr
	}
	return m.mem.Get(ctx, id)
}

// List implements [store.Store].
func (m *Store) List(ctx context.Context, opts store.ListOptions) ([]store.Report, error) {
	m.record("List", opts)
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.mem.List(ctx, opts)
}

// Delete implements [store.Store].
func (m *Store) Delete(ctx context.Context, id string) error {
	m.record("Delete", id)
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	return m.mem.Delete(ctx, id)
}
