package engine

import (
	"errors"
	"testing"

	"github.com/spf13/afero"

	"github.com/treefork/treefork/internal/plan"
	"github.com/treefork/treefork/internal/state"
)

func guardFixture(t *testing.T) (afero.Fs, string, *state.Set) {
	t.Helper()
	fs := afero.NewMemMapFs()
	root := "/dest"

	files := []string{
		"/dest/lib/core.go",
		"/dest/lib/sub/extra.go",
		"/dest/docs/guide.md",
		"/dest/toplevel.txt",
	}
	for _, f := range files {
		if err := afero.WriteFile(fs, f, []byte("x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	records := state.NewSet()
	records.Put(state.Record{Path: "lib/core.go", Type: state.TypeFile})
	records.Put(state.Record{Path: "lib/sub/extra.go", Type: state.TypeFile})
	records.Put(state.Record{Path: "docs/guide.md", Type: state.TypeFile})
	records.Put(state.Record{Path: "toplevel.txt", Type: state.TypeFile})
	return fs, root, records
}

func TestGuardCleanTree(t *testing.T) {
	fs, root, records := guardFixture(t)

	if errs := Guard(fs, root, records, GuardConfig{}); len(errs) != 0 {
		t.Fatalf("unexpected guard errors: %v", errs)
	}
}

func TestGuardFlagsStrayFiles(t *testing.T) {
	fs, root, records := guardFixture(t)
	if err := afero.WriteFile(fs, "/dest/lib/stray.go", []byte("work\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	errs := Guard(fs, root, records, GuardConfig{})
	if len(errs) != 1 {
		t.Fatalf("expected 1 guard error, got %v", errs)
	}
	var gerr *plan.GuardError
	if !errors.As(errs[0], &gerr) || gerr.Path != "lib/stray.go" {
		t.Errorf("guard error = %v", errs[0])
	}
}

func TestGuardSkipsCarveOuts(t *testing.T) {
	fs, root, records := guardFixture(t)
	extras := []string{
		"/dest/lib/notes/todo.md",       // unchecked
		"/dest/docs/mirror/external.md", // mirrored
		"/dest/lib/.treefork-state.yaml",
	}
	for _, f := range extras {
		if err := afero.WriteFile(fs, f, []byte("x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := GuardConfig{
		Unchecked: func(p string) bool { return p == "lib/notes/todo.md" },
		Mirrored:  func(p string) bool { return p == "docs/mirror/external.md" },
		SkipPaths: map[string]bool{"lib/.treefork-state.yaml": true},
	}
	if errs := Guard(fs, root, records, cfg); len(errs) != 0 {
		t.Fatalf("unexpected guard errors: %v", errs)
	}
}

func TestGuardSkipPathsMatchExactly(t *testing.T) {
	// Only the configured path is exempt; a file that merely shares its
	// name elsewhere inside a managed directory is still foreign.
	fs, root, records := guardFixture(t)
	if err := afero.WriteFile(fs, "/dest/lib/sub/.gitignore", []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := GuardConfig{SkipPaths: map[string]bool{".gitignore": true}}
	errs := Guard(fs, root, records, cfg)
	if len(errs) != 1 {
		t.Fatalf("expected 1 guard error, got %v", errs)
	}
	var gerr *plan.GuardError
	if !errors.As(errs[0], &gerr) || gerr.Path != "lib/sub/.gitignore" {
		t.Errorf("guard error = %v", errs[0])
	}
}

func TestGuardForceSuppresses(t *testing.T) {
	fs, root, records := guardFixture(t)
	if err := afero.WriteFile(fs, "/dest/lib/stray.go", []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if errs := Guard(fs, root, records, GuardConfig{Force: true}); errs != nil {
		t.Fatalf("force did not suppress guard errors: %v", errs)
	}
}

func TestGuardNeverManagesRoot(t *testing.T) {
	// A root-level record must not turn the whole destination into a
	// managed directory; the root holds the project's own files too.
	fs, root, records := guardFixture(t)
	if err := afero.WriteFile(fs, "/dest/README.md", []byte("project readme\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if errs := Guard(fs, root, records, GuardConfig{}); len(errs) != 0 {
		t.Fatalf("root-level files flagged: %v", errs)
	}
}

func TestGuardExcludesExternalDirs(t *testing.T) {
	fs, root, records := guardFixture(t)
	records.Put(state.Record{Path: "deploy/chart.yaml", Type: state.TypeFile})
	if err := afero.WriteFile(fs, "/dest/deploy/local-patch.yaml", []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := GuardConfig{External: func(p string) bool { return p == "deploy" || p == "deploy/local-patch.yaml" }}
	if errs := Guard(fs, root, records, cfg); len(errs) != 0 {
		t.Fatalf("external directory inspected: %v", errs)
	}
}

func TestManagedDirsTopMost(t *testing.T) {
	records := state.NewSet()
	records.Put(state.Record{Path: "a/b/c/file.go"})
	records.Put(state.Record{Path: "a/b/file.go"})
	records.Put(state.Record{Path: "a/file.go"})
	records.Put(state.Record{Path: "z/file.go"})
	records.Put(state.Record{Path: "root.go"})

	dirs := managedDirs(records, func(string) bool { return false })
	want := []string{"a", "z"}
	if len(dirs) != len(want) {
		t.Fatalf("managedDirs = %v, want %v", dirs, want)
	}
	for i := range want {
		if dirs[i] != want[i] {
			t.Fatalf("managedDirs = %v, want %v", dirs, want)
		}
	}
}
