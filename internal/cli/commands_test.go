package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// project is a committed source repository and a configured destination.
type project struct {
	srcRoot  string
	destRoot string
	cfgPath  string
}

func setupProject(t *testing.T) *project {
	t.Helper()

	srcRoot := t.TempDir()
	destRoot := t.TempDir()

	sources := map[string]string{
		"lib/origproj.go": "package origproj\n",
		"docs/guide.md":   "# Origproj Guide\n",
		"assets/data.bin": "raw payload",
	}
	for rel, content := range sources {
		abs := filepath.Join(srcRoot, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	repo, err := git.PlainInit(srcRoot, false)
	if err != nil {
		t.Fatalf("git init: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wt.Add("."); err != nil {
		t.Fatalf("git add: %v", err)
	}
	if _, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	}); err != nil {
		t.Fatalf("git commit: %v", err)
	}

	cfgPath := filepath.Join(destRoot, "treefork.toml")
	cfg := fmt.Sprintf(`
source_root = %q

[rename]
old = "origproj"
new = "forkproj"

[filter]
allow_exts = [".go", ".md"]
deny_exts = [".bin"]
`, srcRoot)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	return &project{srcRoot: srcRoot, destRoot: destRoot, cfgPath: cfgPath}
}

// run executes a treefork command against the project, capturing stdout.
func (p *project) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w

	full := append([]string{"treefork", "--config", p.cfgPath}, args...)
	runErr := Run(context.Background(), full)

	_ = w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatal(err)
	}
	return buf.String(), runErr
}

func (p *project) readDest(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(p.destRoot, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

func (p *project) writeDest(t *testing.T, rel, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(p.destRoot, filepath.FromSlash(rel)), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateWorkflow(t *testing.T) {
	p := setupProject(t)

	out, err := p.run(t, "update")
	if err != nil {
		t.Fatalf("update failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "copied 3") {
		t.Errorf("update output:\n%s", out)
	}

	// Paths and filterable content pass through the rename; excluded
	// extensions are copied verbatim.
	if got := p.readDest(t, "lib/forkproj.go"); got != "package forkproj\n" {
		t.Errorf("lib/forkproj.go = %q", got)
	}
	if got := p.readDest(t, "docs/guide.md"); got != "# Forkproj Guide\n" {
		t.Errorf("docs/guide.md = %q", got)
	}
	if got := p.readDest(t, "assets/data.bin"); got != "raw payload" {
		t.Errorf("assets/data.bin = %q", got)
	}

	if _, err := os.Stat(filepath.Join(p.destRoot, ".treefork-state.yaml")); err != nil {
		t.Error("state document missing after update")
	}
	ignores := p.readDest(t, ".gitignore")
	for _, want := range []string{"/lib/", "/docs/", "/assets/", "/.treefork-state.yaml"} {
		if !strings.Contains(ignores, want) {
			t.Errorf("ignore file missing %q:\n%s", want, ignores)
		}
	}

	// A second run finds nothing to do.
	out, err = p.run(t, "status")
	if err != nil {
		t.Fatalf("status failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "0 to copy") || !strings.Contains(out, "3 unchanged") {
		t.Errorf("status after update:\n%s", out)
	}
}

func TestStatusReportsConflict(t *testing.T) {
	p := setupProject(t)
	if _, err := p.run(t, "update"); err != nil {
		t.Fatal(err)
	}

	p.writeDest(t, "lib/forkproj.go", "package forkproj // local edit\n")

	out, err := p.run(t, "status")
	if err == nil {
		t.Fatalf("status reported no problems:\n%s", out)
	}
	if !strings.Contains(out, "destination modified after sync") {
		t.Errorf("status output:\n%s", out)
	}

	// Force resolves the conflict in the source's favor.
	if out, err := p.run(t, "--force", "update"); err != nil {
		t.Fatalf("forced update failed: %v\n%s", err, out)
	}
	if got := p.readDest(t, "lib/forkproj.go"); got != "package forkproj\n" {
		t.Errorf("forced update left %q", got)
	}
}

func TestStatusFlagsForeignFiles(t *testing.T) {
	p := setupProject(t)
	if _, err := p.run(t, "update"); err != nil {
		t.Fatal(err)
	}

	p.writeDest(t, "lib/stray.go", "package stray\n")

	out, err := p.run(t, "status")
	if err == nil {
		t.Fatalf("status ignored a foreign file:\n%s", out)
	}
	if !strings.Contains(out, "foreign file lib/stray.go") {
		t.Errorf("status output:\n%s", out)
	}
}

func TestCleanWorkflow(t *testing.T) {
	p := setupProject(t)
	if _, err := p.run(t, "update"); err != nil {
		t.Fatal(err)
	}

	if _, err := p.run(t, "clean", "--check"); err == nil {
		t.Error("clean --check passed with managed files present")
	}

	out, err := p.run(t, "clean", "--list")
	if err != nil {
		t.Fatalf("clean --list failed: %v", err)
	}
	if !strings.Contains(out, "lib/forkproj.go") {
		t.Errorf("clean --list output:\n%s", out)
	}

	out, err = p.run(t, "clean")
	if err != nil {
		t.Fatalf("clean failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "purged 3") {
		t.Errorf("clean output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(p.destRoot, "lib")); !os.IsNotExist(err) {
		t.Error("managed directory survived clean")
	}
	// The project's own files stay.
	if _, err := os.Stat(p.cfgPath); err != nil {
		t.Error("config file removed by clean")
	}

	if _, err := p.run(t, "clean", "--check"); err != nil {
		t.Errorf("clean --check failed on a clean destination: %v", err)
	}
}

func TestOverrideCommand(t *testing.T) {
	p := setupProject(t)
	if _, err := p.run(t, "update"); err != nil {
		t.Fatal(err)
	}

	out, err := p.run(t, "override", "docs/guide.md")
	if err != nil {
		t.Fatalf("override failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "no longer managed") {
		t.Errorf("override output:\n%s", out)
	}
	// The content stays in place.
	if got := p.readDest(t, "docs/guide.md"); got != "# Forkproj Guide\n" {
		t.Errorf("override changed content: %q", got)
	}

	out, err = p.run(t, "clean", "--list")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "docs/guide.md") {
		t.Error("overridden path still listed as managed")
	}

	if _, err := p.run(t, "override", "docs/guide.md"); err == nil {
		t.Error("override accepted an unmanaged path")
	}
}

func TestDescribeCommand(t *testing.T) {
	p := setupProject(t)
	if _, err := p.run(t, "update"); err != nil {
		t.Fatal(err)
	}

	out, err := p.run(t, "describe", "lib/forkproj.go")
	if err != nil {
		t.Fatalf("describe failed: %v", err)
	}
	for _, want := range []string{
		"managed: yes",
		"from lib/origproj.go",
		"filterable: yes",
		"env-hash: current",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("describe output missing %q:\n%s", want, out)
		}
	}

	out, err = p.run(t, "describe", "not/managed.go")
	if err != nil {
		t.Fatalf("describe failed: %v", err)
	}
	if !strings.Contains(out, "managed: no") {
		t.Errorf("describe output:\n%s", out)
	}
}

func TestBackportAutoAdoptsUnfiltered(t *testing.T) {
	p := setupProject(t)
	if _, err := p.run(t, "update"); err != nil {
		t.Fatal(err)
	}

	p.writeDest(t, "assets/data.bin", "payload fixed in destination")

	out, err := p.run(t, "backport", "--auto", "assets/data.bin")
	if err != nil {
		t.Fatalf("backport failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "adopted") {
		t.Errorf("backport output:\n%s", out)
	}

	got, err := os.ReadFile(filepath.Join(p.srcRoot, "assets/data.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "payload fixed in destination" {
		t.Errorf("source after backport = %q", got)
	}
}

func TestBackportAutoRefusesFiltered(t *testing.T) {
	p := setupProject(t)
	if _, err := p.run(t, "update"); err != nil {
		t.Fatal(err)
	}

	p.writeDest(t, "lib/forkproj.go", "package forkproj // local fix\n")

	if _, err := p.run(t, "backport", "--auto", "lib/forkproj.go"); err == nil {
		t.Error("backport --auto accepted a filtered path")
	}
}

func TestDiffCommand(t *testing.T) {
	p := setupProject(t)
	if _, err := p.run(t, "update"); err != nil {
		t.Fatal(err)
	}

	out, err := p.run(t, "diff")
	if err != nil {
		t.Fatalf("diff failed: %v", err)
	}
	if !strings.Contains(out, "nothing to copy") {
		t.Errorf("diff output:\n%s", out)
	}

	// A modified tracked source becomes a pending copy.
	if err := os.WriteFile(filepath.Join(p.srcRoot, "lib/origproj.go"), []byte("package origproj // v2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err = p.run(t, "diff")
	if err != nil {
		t.Fatalf("diff failed: %v", err)
	}
	for _, want := range []string{"--- lib/forkproj.go", "-package forkproj", "+package forkproj // v2"} {
		if !strings.Contains(out, want) {
			t.Errorf("diff output missing %q:\n%s", want, out)
		}
	}
}

func TestUpdateRefusesUntrackedSource(t *testing.T) {
	p := setupProject(t)
	if err := os.WriteFile(filepath.Join(p.srcRoot, "scratch.go"), []byte("wip\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := p.run(t, "update")
	if err == nil || !strings.Contains(err.Error(), "untracked") {
		t.Fatalf("expected an untracked-files error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(p.destRoot, "lib")); !os.IsNotExist(statErr) {
		t.Error("update wrote files despite refusing to run")
	}
}
