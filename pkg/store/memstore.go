package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store]. Records
// are cloned on the way in and out, so callers never share state with the
// store. The zero value is ready to use.
type MemStore struct {
	mu      sync.RWMutex
	reports map[string]Report
	now     func() time.Time
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{reports: make(map[string]Report), now: time.Now}
}

// Save implements [Store.Save].
func (s *MemStore) Save(_ context.Context, r Report) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.Record = r.Record.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reports == nil {
		s.reports = make(map[string]Report)
	}
	if r.CreatedAt.IsZero() {
		if prev, ok := s.reports[r.ID]; ok {
			r.CreatedAt = prev.CreatedAt
		} else {
			r.CreatedAt = s.clock()
		}
	}
	s.reports[r.ID] = r
	return nil
}

// Get implements [Store.Get].
func (s *MemStore) Get(_ context.Context, id string) (Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[id]
	if !ok {
		return Report{}, ErrNotFound
	}
	r.Record = r.Record.Clone()
	return r, nil
}

// List implements [Store.List]. Reports with equal CreatedAt are ordered
// by ID.
func (s *MemStore) List(_ context.Context, opts ListOptions) ([]Report, error) {
	s.mu.RLock()
	all := make([]Report, 0, len(s.reports))
	for _, r := range s.reports {
		all = append(all, r)
	}
	s.mu.RUnlock()

	slices.SortFunc(all, func(a, b Report) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	start := min(max(opts.Offset, 0), len(all))
	end := min(start+opts.EffectiveLimit(), len(all))
	out := make([]Report, 0, end-start)
	for _, r := range all[start:end] {
		r.Record = r.Record.Clone()
		out = append(out, r)
	}
	return out, nil
}

// Delete implements [Store.Delete].
func (s *MemStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reports[id]; !ok {
		return ErrNotFound
	}
	delete(s.reports, id)
	return nil
}

// Len returns the number of stored reports.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}

func (s *MemStore) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
