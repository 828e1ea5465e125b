package engine

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/treefork/treefork/internal/plan"
	"github.com/treefork/treefork/internal/state"
)

// GuardConfig carves exceptions out of the managed-directory check.
type GuardConfig struct {
	// Unchecked paths are never inspected.
	Unchecked func(destPath string) bool
	// Mirrored paths hold externally mirrored content and are skipped.
	Mirrored func(destPath string) bool
	// External marks directories carved out as externally writable; they
	// are excluded from the managed set entirely.
	External func(destPath string) bool
	// SkipPaths are engine-owned root-relative paths (state document,
	// ignore file) that may legitimately sit inside a managed directory.
	SkipPaths map[string]bool
	// Force suppresses guard errors.
	Force bool
}

// Guard verifies that every managed destination directory contains nothing
// the engine did not put there. Managed directories are excluded from the
// destination's own version control, so nothing else protects work
// accidentally placed in them from being silently purged.
func Guard(fsys afero.Fs, destRoot string, records *state.Set, cfg GuardConfig) []error {
	if cfg.Force {
		return nil
	}
	if cfg.Unchecked == nil {
		cfg.Unchecked = func(string) bool { return false }
	}
	if cfg.Mirrored == nil {
		cfg.Mirrored = func(string) bool { return false }
	}
	if cfg.External == nil {
		cfg.External = func(string) bool { return false }
	}

	var errs []error
	for _, dir := range managedDirs(records, cfg.External) {
		errs = append(errs, walkManaged(fsys, destRoot, dir, records, cfg)...)
	}
	return errs
}

// managedDirs returns the top-most directories containing at least one
// recorded file, minus externally writable carve-outs. The destination
// root itself is never managed: the engine shares it with the
// destination's own project files.
func managedDirs(records *state.Set, external func(string) bool) []string {
	seen := make(map[string]bool)
	for _, p := range records.Paths() {
		dir := filepath.ToSlash(filepath.Dir(p))
		if dir == "." || external(dir) {
			continue
		}
		seen[dir] = true
	}

	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	// Keep only top-most dirs; walking a parent covers its children.
	var top []string
	for _, d := range dirs {
		if len(top) > 0 && strings.HasPrefix(d, top[len(top)-1]+"/") {
			continue
		}
		top = append(top, d)
	}
	return top
}

func walkManaged(fsys afero.Fs, destRoot, dir string, records *state.Set, cfg GuardConfig) []error {
	var errs []error
	abs := filepath.Join(destRoot, filepath.FromSlash(dir))

	_ = afero.Walk(fsys, abs, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(destRoot, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if _, ok := records.Get(rel); ok {
			return nil
		}
		if cfg.SkipPaths[rel] {
			return nil
		}
		if cfg.Unchecked(rel) || cfg.Mirrored(rel) || cfg.External(rel) {
			return nil
		}
		errs = append(errs, &plan.GuardError{Dir: dir, Path: rel})
		return nil
	})

	return errs
}
