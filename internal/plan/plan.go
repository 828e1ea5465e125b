// Package plan classifies every synced path into an action.
//
// Build is a pure function over the current source entities, the persisted
// records and a filesystem snapshot; it touches no filesystem itself. The
// executor applies the resulting Plan in a separate step.
package plan

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/treefork/treefork/internal/state"
)

// Entity is one tracked source file or symlink, keyed by its mapped
// destination path. Rebuilt fresh every run; never persisted.
type Entity struct {
	DestPath   string
	SourcePath string
	Symlink    bool
}

// Type returns the state entity type for this entity.
func (e Entity) Type() state.EntityType {
	if e.Symlink {
		return state.TypeSymlink
	}
	return state.TypeFile
}

// FileInfo is the stat result the planner consumes. Mtime is in unix
// nanoseconds so comparisons against records are exact.
type FileInfo struct {
	Exists  bool
	Dir     bool
	Symlink bool
	Size    int64
	Mtime   int64
}

// Snapshot supplies the planner with filesystem facts. Content methods are
// only consulted when the stat fast path fails, so unchanged files never
// get read.
type Snapshot interface {
	// SourceStat lstats a source-relative path.
	SourceStat(sourcePath string) (FileInfo, error)
	// DestStat lstats a destination-relative path.
	DestStat(destPath string) (FileInfo, error)
	// FilteredSource returns the bytes the engine would write for an
	// entity: filtered file content, or the link target for symlinks.
	FilteredSource(e Entity) ([]byte, error)
	// DestContent returns the current destination bytes (or link target).
	DestContent(destPath string, symlink bool) ([]byte, error)
}

// Options tunes classification.
type Options struct {
	// Force overwrites conflicting or foreign destination files.
	Force bool
	// EnvHash is the current environment hash; records carrying a
	// different hash never take the unchanged fast path.
	EnvHash string
	// External reports membership in the externally-version-controlled
	// exception set (destination edits there are overwritten freely).
	External func(destPath string) bool
	// Generated reports dynamically generated outputs, which are never
	// eligible for recache and are written after everything else.
	Generated func(destPath string) bool
}

// Plan is the classified outcome of one run. Copy, Recache and Purge are
// pairwise disjoint.
type Plan struct {
	Copy    []Entity
	Recache []Entity
	Purge   []state.Record

	// SourceErrors and DestErrors accumulate per-path problems instead of
	// aborting, so one run reports the full problem set.
	SourceErrors map[string]error
	DestErrors   map[string]error

	Unchanged int
}

// HasErrors reports whether any path-level error accumulated.
func (p *Plan) HasErrors() bool {
	return len(p.SourceErrors) > 0 || len(p.DestErrors) > 0
}

// Errors returns all accumulated errors sorted by path.
func (p *Plan) Errors() []error {
	paths := make([]string, 0, len(p.SourceErrors)+len(p.DestErrors))
	for path := range p.SourceErrors {
		paths = append(paths, path)
	}
	for path := range p.DestErrors {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	errs := make([]error, 0, len(paths))
	for _, path := range paths {
		if err, ok := p.SourceErrors[path]; ok {
			errs = append(errs, err)
		}
		if err, ok := p.DestErrors[path]; ok {
			errs = append(errs, err)
		}
	}
	return errs
}

// Conflicts returns the destination paths classified as conflicts, sorted.
// Double conflicts are flagged.
func (p *Plan) Conflicts() []ConflictPath {
	var out []ConflictPath
	for path, err := range p.DestErrors {
		switch err.(type) {
		case *ConflictError:
			out = append(out, ConflictPath{DestPath: path})
		case *DoubleConflictError:
			out = append(out, ConflictPath{DestPath: path, Double: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DestPath < out[j].DestPath })
	return out
}

// ConflictPath identifies one conflicting destination path.
type ConflictPath struct {
	DestPath string
	Double   bool
}

// Build classifies every entity and every stale record. See the package
// comment: this is pure decision logic; all I/O happens behind snap.
func Build(entities map[string]Entity, records *state.Set, snap Snapshot, opts Options) *Plan {
	if opts.External == nil {
		opts.External = func(string) bool { return false }
	}
	if opts.Generated == nil {
		opts.Generated = func(string) bool { return false }
	}

	p := &Plan{
		SourceErrors: make(map[string]error),
		DestErrors:   make(map[string]error),
	}

	dests := make([]string, 0, len(entities))
	for d := range entities {
		dests = append(dests, d)
	}
	sort.Strings(dests)

	for _, dest := range dests {
		classify(p, entities[dest], records, snap, opts)
	}

	// Any recorded path no current entity claims is a purge candidate.
	for _, rec := range records.Records() {
		if _, claimed := entities[rec.Path]; !claimed {
			p.Purge = append(p.Purge, rec)
		}
	}

	return p
}

func classify(p *Plan, e Entity, records *state.Set, snap Snapshot, opts Options) {
	dest := e.DestPath

	sstat, err := snap.SourceStat(e.SourcePath)
	if err != nil {
		p.SourceErrors[dest] = fmt.Errorf("stat source %s: %w", e.SourcePath, err)
		return
	}
	if !sstat.Exists {
		p.SourceErrors[dest] = &PlanError{Path: dest, Reason: "tracked source file missing from disk: " + e.SourcePath}
		return
	}

	dstat, err := snap.DestStat(dest)
	if err != nil {
		p.DestErrors[dest] = fmt.Errorf("stat destination %s: %w", dest, err)
		return
	}

	rec, hasRec := records.Get(dest)

	if !hasRec {
		classifyNew(p, e, sstat, dstat, snap, opts)
		return
	}

	if rec.Type != e.Type() {
		p.SourceErrors[dest] = &PlanError{
			Path:   dest,
			Reason: fmt.Sprintf("recorded type %s but source is now a %s", rec.Type, e.Type()),
		}
		return
	}

	if !dstat.Exists {
		p.Copy = append(p.Copy, e)
		return
	}

	if dstat.Dir {
		p.DestErrors[dest] = &PlanError{Path: dest, Reason: "expected a " + string(e.Type()) + " but found a directory"}
		return
	}

	destStatsMatch := dstat.Size == rec.DestSize && dstat.Mtime == rec.DestMtime
	sourceStatsMatch := sstat.Size == rec.SourceSize && sstat.Mtime == rec.SourceMtime

	// Fast path: nothing observable changed and the filtering environment
	// is the one that produced the record. No content read happens here.
	if rec.EnvHash == opts.EnvHash && destStatsMatch && sourceStatsMatch {
		p.Unchanged++
		return
	}

	filtered, err := snap.FilteredSource(e)
	if err != nil {
		p.SourceErrors[dest] = err
		return
	}
	current, err := snap.DestContent(dest, e.Symlink)
	if err != nil {
		p.DestErrors[dest] = fmt.Errorf("read destination %s: %w", dest, err)
		return
	}

	if bytes.Equal(filtered, current) {
		if opts.Generated(dest) {
			// Byte-identical output is not proof a generated file is
			// current; regenerate it.
			p.Copy = append(p.Copy, e)
			return
		}
		p.Recache = append(p.Recache, e)
		return
	}

	switch {
	case destStatsMatch:
		// Only the source moved.
		p.Copy = append(p.Copy, e)
	case opts.External(dest) || opts.Force:
		p.Copy = append(p.Copy, e)
	case sourceStatsMatch:
		p.DestErrors[dest] = &ConflictError{Path: dest}
	default:
		p.DestErrors[dest] = &DoubleConflictError{Path: dest}
	}
}

// classifyNew handles entities with no persisted record.
func classifyNew(p *Plan, e Entity, sstat, dstat FileInfo, snap Snapshot, opts Options) {
	dest := e.DestPath

	if !dstat.Exists {
		p.Copy = append(p.Copy, e)
		return
	}

	if dstat.Dir {
		p.DestErrors[dest] = &PlanError{Path: dest, Reason: "expected a " + string(e.Type()) + " but found a directory"}
		return
	}

	// Something already occupies the path. Re-adopting is safe when it is
	// exactly what we would write (a lost state file, say); anything else
	// is a foreign file we must not clobber without force.
	if dstat.Symlink == e.Symlink {
		filtered, err := snap.FilteredSource(e)
		if err != nil {
			p.SourceErrors[dest] = err
			return
		}
		current, err := snap.DestContent(dest, e.Symlink)
		if err != nil {
			p.DestErrors[dest] = fmt.Errorf("read destination %s: %w", dest, err)
			return
		}
		if bytes.Equal(filtered, current) {
			p.Copy = append(p.Copy, e)
			return
		}
	}

	if opts.Force {
		p.Copy = append(p.Copy, e)
		return
	}
	p.SourceErrors[dest] = &PlanError{Path: dest, Reason: "would overwrite a file the engine does not manage (use --force to take it over)"}
}
