package engine

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/treefork/treefork/internal/pathmap"
	"github.com/treefork/treefork/internal/state"
)

const ignoreBannerBegin = "# --- treefork managed paths (autogenerated, do not edit below) ---"
const ignoreBannerEnd = "# --- end treefork managed paths ---"

// WriteIgnoreFile emits version-control ignore rules covering everything
// the engine owns: one rule per managed directory (the same set the guard
// walks) plus explicit rules for managed files not inside any of them,
// appended beneath a rename-filtered copy of the source project's own
// ignore rules. A directory rule wider than the guarded set would hide
// user files the guard never inspects.
func WriteIgnoreFile(fsys afero.Fs, srcRoot, destRoot, ignoreName, stateName string, records *state.Set, mapper *pathmap.Mapper, external func(destPath string) bool) error {
	var b strings.Builder

	if src, err := os.ReadFile(filepath.Join(srcRoot, ignoreName)); err == nil {
		for _, line := range strings.Split(strings.TrimRight(string(src), "\n"), "\n") {
			b.WriteString(mapper.Substitute(line))
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	b.WriteString(ignoreBannerBegin)
	b.WriteByte('\n')
	for _, rule := range ignoreRules(records, stateName, external) {
		b.WriteString(rule)
		b.WriteByte('\n')
	}
	b.WriteString(ignoreBannerEnd)
	b.WriteByte('\n')

	abs := filepath.Join(destRoot, ignoreName)
	tmp := abs + ".tmp"
	if err := afero.WriteFile(fsys, tmp, []byte(b.String()), 0o644); err != nil {
		return err
	}
	if err := fsys.Rename(tmp, abs); err != nil {
		_ = fsys.Remove(tmp)
		return err
	}
	return nil
}

// ignoreRules computes the rule list: the guard's managed directories,
// then managed files not covered by any of them, then the state document
// itself.
func ignoreRules(records *state.Set, stateName string, external func(string) bool) []string {
	if external == nil {
		external = func(string) bool { return false }
	}
	dirs := managedDirs(records, external)

	var rules []string
	for _, d := range dirs {
		rules = append(rules, "/"+d+"/")
	}

	var files []string
	for _, p := range records.Paths() {
		if coveredByDir(p, dirs) {
			continue
		}
		files = append(files, p)
	}
	sort.Strings(files)
	for _, f := range files {
		rules = append(rules, "/"+f)
	}

	rules = append(rules, "/"+stateName)
	return rules
}

func coveredByDir(p string, dirs []string) bool {
	for _, d := range dirs {
		if strings.HasPrefix(p, d+"/") {
			return true
		}
	}
	return false
}
