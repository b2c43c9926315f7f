package vocab

import (
	"context"
	"errors"
	"slices"
	"strings"
)

// ErrNotFound is returned by Get, Update and Remove when the term does not exist.
var ErrNotFound = errors.New("vocab: term not found")

// ErrDuplicateID is returned by Add when a term with the same ID already exists.
var ErrDuplicateID = errors.New("vocab: term with that ID already exists")

// Store manages vocabulary terms.
//
// All implementations must be safe for concurrent use.
type Store interface {
	// Add creates a new term. A term with an empty ID gets a generated one.
	// Returns [ErrDuplicateID] if a term with the same non-empty ID exists.
	Add(ctx context.Context, term Term) (Term, error)

	// Get retrieves a term by ID.
	// Returns [ErrNotFound] when no term with that ID exists.
	Get(ctx context.Context, id string) (Term, error)

	// List returns all terms matching opts, ordered by name.
	List(ctx context.Context, opts ListOptions) ([]Term, error)

	// Update replaces an existing term.
	// Returns [ErrNotFound] when no term with that ID exists.
	Update(ctx context.Context, term Term) error

	// Remove deletes a term by ID.
	// Returns [ErrNotFound] when no term with that ID exists.
	Remove(ctx context.Context, id string) error

	// BulkImport adds multiple terms, returning the number added before the
	// first error.
	BulkImport(ctx context.Context, terms []Term) (int, error)
}

// ListOptions narrows the result set of [Store.List].
type ListOptions struct {
	// Kind restricts results to terms of this kind.
	// An empty value matches all kinds.
	Kind Kind
}

// Names returns the canonical names and aliases of every term of the given
// kind in s (all kinds when kind is empty), deduplicated case-insensitively
// and sorted longest first so that regular expression alternations prefer
// the most specific spelling.
func Names(ctx context.Context, s Store, kind Kind) ([]string, error) {
	terms, err := s.List(ctx, ListOptions{Kind: kind})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var names []string
	add := func(n string) {
		n = strings.TrimSpace(n)
		key := strings.ToLower(n)
		if n == "" || seen[key] {
			return
		}
		seen[key] = true
		names = append(names, n)
	}
	for _, t := range terms {
		add(t.Name)
		for _, a := range t.Aliases {
			add(a)
		}
	}

	slices.SortStableFunc(names, func(a, b string) int {
		if d := len(b) - len(a); d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})
	return names, nil
}
