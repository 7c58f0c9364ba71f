package closet_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/classpulse/clo-analysis/internal/analysis"
	"github.com/classpulse/clo-analysis/internal/closet"
)

const validSet = `name: CS101 Databases
clos:
  - code: CLO-1
    description: Design relational database schemas using normalization
    bloom: create
  - code: CLO-2
    description: Write SQL queries over multiple tables
    bloom: apply
`

func writeSet(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeSet(t, dir, "cs101.yaml", validSet)
	writeSet(t, dir, "notes.txt", "not yaml, ignored")

	sets, err := closet.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("got %d sets, want 1", len(sets))
	}
	if sets[0].Name != "CS101 Databases" {
		t.Errorf("Name = %q", sets[0].Name)
	}
	if len(sets[0].CLOs) != 2 {
		t.Fatalf("got %d CLOs, want 2", len(sets[0].CLOs))
	}
	if sets[0].CLOs[0].Bloom != "create" {
		t.Errorf("Bloom = %q, want create", sets[0].CLOs[0].Bloom)
	}
}

func TestLoadDir_SkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	writeSet(t, dir, "good.yaml", validSet)
	writeSet(t, dir, "broken.yaml", "{{{ not yaml")
	writeSet(t, dir, "nameless.yaml", "clos:\n  - code: CLO-1\n    description: x\n")
	writeSet(t, dir, "badbloom.yaml", `name: Bad
clos:
  - code: CLO-1
    description: something
    bloom: memorize
`)
	writeSet(t, dir, "dupe.yaml", `name: Dupe
clos:
  - code: CLO-1
    description: first
  - code: CLO-1
    description: second
`)

	sets, err := closet.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("got %d sets, want only the valid one", len(sets))
	}
	if sets[0].Name != "CS101 Databases" {
		t.Errorf("Name = %q", sets[0].Name)
	}
}

func TestLoadDir_OptionalBloom(t *testing.T) {
	dir := t.TempDir()
	writeSet(t, dir, "nobloom.yaml", `name: No Bloom
clos:
  - code: CLO-1
    description: something measurable
`)

	sets, err := closet.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("got %d sets, want 1 (Bloom is optional)", len(sets))
	}
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeSet(t, dir, "cs101.yaml", validSet)

	sets, err := closet.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}

	store := analysis.NewMemoryStore()
	created, err := closet.Import(ctx, store, sets)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	rec, ok := created["CS101 Databases"]
	if !ok {
		t.Fatal("imported set not returned")
	}
	clos, err := store.ListCLOs(ctx, rec.ID)
	if err != nil {
		t.Fatalf("ListCLOs: %v", err)
	}
	if len(clos) != 2 {
		t.Fatalf("got %d CLOs, want 2", len(clos))
	}
	if clos[0].Code != "CLO-1" || clos[0].Bloom != analysis.BloomCreate {
		t.Errorf("first CLO = %+v", clos[0])
	}
}
