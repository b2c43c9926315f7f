package vocab

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the top-level structure of a vocabulary YAML file.
//
// Example:
//
//	terms:
//	  - name: Cefoperazone
//	    kind: drug
//	    aliases: [Magnex]
//	  - name: Febrile neutropenia
//	    kind: diagnosis
type File struct {
	Terms []Term `yaml:"terms"`
}

// LoadFile reads and parses a vocabulary YAML file from disk.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: open %q: %w", path, err)
	}
	defer f.Close()

	vf, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("vocab: parse %q: %w", path, err)
	}
	return vf, nil
}

// LoadFromReader parses vocabulary YAML from an [io.Reader].
// Unknown keys are rejected to catch typos.
func LoadFromReader(r io.Reader) (*File, error) {
	var vf File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&vf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("vocab: decode yaml: %w", err)
	}
	return &vf, nil
}

// Import adds every term of f to store and returns the number imported.
func Import(ctx context.Context, store Store, f *File) (int, error) {
	if f == nil {
		return 0, fmt.Errorf("vocab: file must not be nil")
	}
	return store.BulkImport(ctx, f.Terms)
}

// NewDefaultStore returns a [MemStore] seeded with [Builtin] and, when path
// is non-empty, the terms of the vocabulary file at path.
func NewDefaultStore(ctx context.Context, path string) (*MemStore, error) {
	s := NewMemStore()
	if _, err := s.BulkImport(ctx, Builtin()); err != nil {
		return nil, err
	}
	if path == "" {
		return s, nil
	}
	f, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if _, err := Import(ctx, s, f); err != nil {
		return nil, fmt.Errorf("vocab: import %q: %w", path, err)
	}
	return s, nil
}
