package pathmap

import (
	"strings"
	"testing"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		oldName string
		newName string
		remaps  []Remap
		wantErr string
	}{
		{name: "empty old name", oldName: "", newName: "fork", wantErr: "non-empty"},
		{name: "empty new name", oldName: "orig", newName: "", wantErr: "non-empty"},
		{name: "case-only rename", oldName: "orig", newName: "ORIG", wantErr: "differ only in case"},
		{
			name: "remap depth mismatch", oldName: "orig", newName: "fork",
			remaps:  []Remap{{From: "a/b", To: "a2"}},
			wantErr: "mismatched depth",
		},
		{
			name: "remap empty side", oldName: "orig", newName: "fork",
			remaps:  []Remap{{From: "a", To: ""}},
			wantErr: "empty side",
		},
		{
			name: "conflicting prefixes", oldName: "orig", newName: "fork",
			remaps:  []Remap{{From: "a/b", To: "x/y"}, {From: "a/c", To: "z/c"}},
			wantErr: "conflicting remaps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.oldName, tt.newName, tt.remaps)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestMapPathRename(t *testing.T) {
	m, err := New("origproj", "forkproj", nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	tests := []struct {
		in   string
		want string
	}{
		{"lib/origproj/core.go", "lib/forkproj/core.go"},
		{"lib/ORIGPROJ/core.go", "lib/FORKPROJ/core.go"},
		{"docs/Origproj.md", "docs/Forkproj.md"},
		{"unrelated/path.go", "unrelated/path.go"},
		{"origproj", "forkproj"},
	}

	for _, tt := range tests {
		if got := m.MapPath(tt.in); got != tt.want {
			t.Errorf("MapPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMapPathRemaps(t *testing.T) {
	m, err := New("origproj", "forkproj", []Remap{
		{From: "a/b/c", To: "a2/b2/c2"},
		{From: "tools", To: "scripts"},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	tests := []struct {
		in   string
		want string
	}{
		// The deepest remap applies to the named subtree.
		{"a/b/c/x.go", "a2/b2/c2/x.go"},
		{"a/b/c", "a2/b2/c2"},
		// Ancestors renamed component-wise carry their other children.
		{"a/b/other.go", "a2/b2/other.go"},
		{"a/top.go", "a2/top.go"},
		{"tools/gen.sh", "scripts/gen.sh"},
		// Remap applies before the name substitution.
		{"a/b/origproj.go", "a2/b2/forkproj.go"},
		{"elsewhere/x.go", "elsewhere/x.go"},
	}

	for _, tt := range tests {
		if got := m.MapPath(tt.in); got != tt.want {
			t.Errorf("MapPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSubstituteText(t *testing.T) {
	m, err := New("origproj", "forkproj", nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	in := "import ORIGPROJ from origproj; see Origproj docs"
	want := "import FORKPROJ from forkproj; see Forkproj docs"
	if got := m.Substitute(in); got != want {
		t.Errorf("Substitute = %q, want %q", got, want)
	}
}
