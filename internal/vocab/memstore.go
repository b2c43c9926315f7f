package vocab

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// The zero value is ready to use.
type MemStore struct {
	mu    sync.RWMutex
	terms map[string]Term
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{terms: make(map[string]Term)}
}

// Add implements [Store.Add].
func (s *MemStore) Add(_ context.Context, term Term) (Term, error) {
	if err := Validate(term); err != nil {
		return Term{}, fmt.Errorf("vocab: add %q: %w", term.Name, err)
	}
	if term.ID == "" {
		term.ID = uuid.NewString()
	}
	term.Aliases = slices.Clone(term.Aliases)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terms == nil {
		s.terms = make(map[string]Term)
	}
	if _, exists := s.terms[term.ID]; exists {
		return Term{}, ErrDuplicateID
	}
	s.terms[term.ID] = term
	return term, nil
}

// Get implements [Store.Get].
func (s *MemStore) Get(_ context.Context, id string) (Term, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.terms[id]
	if !ok {
		return Term{}, ErrNotFound
	}
	return t, nil
}

// List implements [Store.List].
func (s *MemStore) List(_ context.Context, opts ListOptions) ([]Term, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Term, 0, len(s.terms))
	for _, t := range s.terms {
		if opts.Kind != "" && t.Kind != opts.Kind {
			continue
		}
		result = append(result, t)
	}
	slices.SortFunc(result, func(a, b Term) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return result, nil
}

// Update implements [Store.Update].
func (s *MemStore) Update(_ context.Context, term Term) error {
	if err := Validate(term); err != nil {
		return fmt.Errorf("vocab: update %q: %w", term.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.terms[term.ID]; !ok {
		return ErrNotFound
	}
	s.terms[term.ID] = term
	return nil
}

// Remove implements [Store.Remove].
func (s *MemStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.terms[id]; !ok {
		return ErrNotFound
	}
	delete(s.terms, id)
	return nil
}

// BulkImport implements [Store.BulkImport].
// Terms are added one at a time; the import stops at the first failure.
func (s *MemStore) BulkImport(ctx context.Context, terms []Term) (int, error) {
	count := 0
	for _, t := range terms {
		if _, err := s.Add(ctx, t); err != nil {
			return count, fmt.Errorf("vocab: bulk import at index %d (name %q): %w", count, t.Name, err)
		}
		count++
	}
	return count, nil
}
