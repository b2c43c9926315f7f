package vocab_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nv-mldev/emr/internal/vocab"
)

const validVocabYAML = `
terms:
  - name: Blinatumomab
    kind: drug
    aliases: [Blincyto]
  - name: Tumour lysis syndrome
    kind: diagnosis
`

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		wantErr   bool
		wantCount int
	}{
		{name: "valid", input: validVocabYAML, wantCount: 2},
		{name: "empty document", input: "", wantCount: 0},
		{name: "unknown key", input: "terms:\n  - name: X\n    kind: drug\n    dose: 5\n", wantErr: true},
		{name: "malformed", input: "terms: [", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f, err := vocab.LoadFromReader(strings.NewReader(tc.input))
			if tc.wantErr {
				if err == nil {
					t.Fatal("LoadFromReader: expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFromReader: unexpected error: %v", err)
			}
			if len(f.Terms) != tc.wantCount {
				t.Fatalf("LoadFromReader: got %d terms, want %d", len(f.Terms), tc.wantCount)
			}
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	t.Parallel()
	if _, err := vocab.LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("LoadFile: expected error for missing file")
	}
}

func TestNewDefaultStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	if err := os.WriteFile(path, []byte(validVocabYAML), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s, err := vocab.NewDefaultStore(ctx, path)
	if err != nil {
		t.Fatalf("NewDefaultStore: %v", err)
	}
	names, err := vocab.Names(ctx, s, vocab.KindDrug)
	if err != nil {
		t.Fatalf("Names: %v", err)
	}

	var haveBuiltin, haveFile bool
	for _, n := range names {
		switch n {
		case "Cefoperazone":
			haveBuiltin = true
		case "Blincyto":
			haveFile = true
		}
	}
	if !haveBuiltin || !haveFile {
		t.Errorf("merged vocabulary missing entries: builtin=%v file=%v", haveBuiltin, haveFile)
	}

	if _, err := vocab.NewDefaultStore(ctx, ""); err != nil {
		t.Fatalf("NewDefaultStore without file: %v", err)
	}
}

func TestImport_NilFile(t *testing.T) {
	t.Parallel()
	if _, err := vocab.Import(context.Background(), vocab.NewMemStore(), nil); err == nil {
		t.Fatal("Import(nil): expected error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	if err := vocab.Validate(vocab.Term{Name: "X", Kind: vocab.KindLab}); err != nil {
		t.Errorf("Validate valid: %v", err)
	}
	err := vocab.Validate(vocab.Term{Kind: "bogus", Aliases: []string{" "}})
	if err == nil {
		t.Fatal("Validate invalid: expected error")
	}
	for _, want := range []string{"name", "kind", "alias[0]"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate error %q missing %q", err, want)
		}
	}
}
