package lexicon

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTier(t *testing.T) {
	t.Parallel()

	lex := Default()
	tests := map[string]CategoryTier{
		"Tax":        TierPriority,
		"tax":        TierPriority,
		"Accounting": TierStandard,
		"Sports":     TierOther,
		"":           TierOther,
	}
	for category, want := range tests {
		if got := lex.Tier(category); got != want {
			t.Errorf("Tier(%q) = %d, want %d", category, got, want)
		}
	}
}

func TestLoadOverridesOnlyPresentSections(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	content := "negative:\n  - crypto\npriority_categories:\n  - Pensions\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write lexicon: %v", err)
	}

	lex, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(lex.Negative) != 1 || lex.Negative[0] != "crypto" {
		t.Fatalf("negative = %v, want [crypto]", lex.Negative)
	}
	if lex.Tier("Pensions") != TierPriority {
		t.Fatal("Pensions should be a priority category")
	}
	if len(lex.Buckets) != len(Default().Buckets) {
		t.Fatal("buckets should keep their defaults")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestBucketNamesSorted(t *testing.T) {
	t.Parallel()

	names := Default().BucketNames()
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("bucket names not sorted: %v", names)
		}
	}
}
