package backport

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/treefork/treefork/internal/ui"
)

func init() {
	ui.DisableColors()
}

func newAssistant(t *testing.T, mergeTool []string, out *bytes.Buffer) (*Assistant, string, string) {
	t.Helper()
	srcRoot := t.TempDir()
	destRoot := t.TempDir()
	a := New(afero.NewOsFs(), srcRoot, destRoot, nil, mergeTool, out)
	return a, srcRoot, destRoot
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return abs
}

func TestResolveAutoAdoptsUnfiltered(t *testing.T) {
	var out bytes.Buffer
	a, srcRoot, destRoot := newAssistant(t, nil, &out)

	srcAbs := writeFile(t, srcRoot, "assets/data.bin", "original")
	writeFile(t, destRoot, "assets/data.bin", "edited in destination")

	c := Conflict{DestPath: "assets/data.bin", SourcePath: "assets/data.bin"}
	outcome, err := a.Resolve(c, true)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if outcome != StopAfterOne {
		t.Errorf("outcome = %v, want StopAfterOne", outcome)
	}

	got, err := os.ReadFile(srcAbs)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "edited in destination" {
		t.Errorf("source = %q after adoption", got)
	}
	if !strings.Contains(out.String(), "adopted") {
		t.Errorf("output missing adoption notice: %q", out.String())
	}
}

func TestResolveAutoRefusesFiltered(t *testing.T) {
	var out bytes.Buffer
	a, srcRoot, destRoot := newAssistant(t, nil, &out)

	srcAbs := writeFile(t, srcRoot, "lib/core.go", "package core\n")
	writeFile(t, destRoot, "lib/core.go", "package core // edited\n")

	c := Conflict{DestPath: "lib/core.go", SourcePath: "lib/core.go", Filtered: true}
	outcome, err := a.Resolve(c, true)
	if err == nil {
		t.Fatal("expected an error for automatic adoption of a filtered path")
	}
	if outcome != Continue {
		t.Errorf("outcome = %v, want Continue", outcome)
	}

	got, _ := os.ReadFile(srcAbs)
	if string(got) != "package core\n" {
		t.Error("source modified despite refusal")
	}
}

func TestResolveManualPrintsPreview(t *testing.T) {
	var out bytes.Buffer
	a, srcRoot, destRoot := newAssistant(t, nil, &out)

	writeFile(t, srcRoot, "notes.txt", "shared\nsource only\n")
	writeFile(t, destRoot, "notes.txt", "shared\ndest only\n")

	c := Conflict{DestPath: "notes.txt", SourcePath: "notes.txt", Double: true}
	outcome, err := a.Resolve(c, false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if outcome != StopAfterOne {
		t.Errorf("outcome = %v, want StopAfterOne", outcome)
	}

	text := out.String()
	for _, want := range []string{"double conflict", "-source only", "+dest only", "no merge tool"} {
		if !strings.Contains(text, want) {
			t.Errorf("preview missing %q:\n%s", want, text)
		}
	}
}

func TestResolveMissingDestination(t *testing.T) {
	var out bytes.Buffer
	a, srcRoot, _ := newAssistant(t, nil, &out)
	writeFile(t, srcRoot, "a.txt", "x\n")

	c := Conflict{DestPath: "a.txt", SourcePath: "a.txt"}
	outcome, err := a.Resolve(c, false)
	if err == nil {
		t.Fatal("expected an error")
	}
	if outcome != Continue {
		t.Errorf("outcome = %v, want Continue", outcome)
	}
}

func TestRenderDiff(t *testing.T) {
	got := RenderDiff("a\nb\nc\n", "a\nB\nc\n")

	for _, want := range []string{" a", "-b", "+B", " c"} {
		if !strings.Contains(got, want+"\n") {
			t.Errorf("diff missing %q:\n%s", want, got)
		}
	}
}
