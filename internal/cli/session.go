package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"

	"github.com/treefork/treefork/internal/backport"
	"github.com/treefork/treefork/internal/config"
	"github.com/treefork/treefork/internal/engine"
	"github.com/treefork/treefork/internal/filter"
	"github.com/treefork/treefork/internal/logging"
	"github.com/treefork/treefork/internal/pathmap"
	"github.com/treefork/treefork/internal/plan"
	"github.com/treefork/treefork/internal/scan"
	"github.com/treefork/treefork/internal/state"
	"github.com/treefork/treefork/internal/vcs"
)

// session wires the collaborators one invocation needs: config, mapper,
// filter, state store and (for commands that look at the source) the
// scanned entity set.
type session struct {
	cfg      *config.Config
	fs       afero.Fs
	mapper   *pathmap.Mapper
	filter   *filter.Filter
	store    *state.Store
	records  *state.Set
	snap     *engine.Snapshot
	entities map[string]plan.Entity
	envHash  string
	force    bool
}

// newSession loads config and state. With scanSource set it also opens the
// source repository and scans the tracked set, which fails fatally on
// untracked source files.
func newSession(cmd *cli.Command, scanSource bool) (*session, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	mapper, err := cfg.Mapper()
	if err != nil {
		return nil, err
	}
	filt, err := filter.New(cfg, mapper)
	if err != nil {
		return nil, err
	}

	fs := afero.NewOsFs()
	store := state.NewStore(fs, cfg.StatePath())
	records, err := store.Load()
	if err != nil {
		return nil, err
	}

	// A path cannot be engine-managed and externally writable at once.
	for _, p := range records.Paths() {
		if cfg.IsMirrored(p) {
			return nil, &plan.ConfigError{Path: p, Reason: "recorded as engine-managed but configured as externally mirrored"}
		}
	}

	s := &session{
		cfg:     cfg,
		fs:      fs,
		mapper:  mapper,
		filter:  filt,
		store:   store,
		records: records,
		snap:    engine.NewSnapshot(fs, cfg.AbsSourceRoot(), cfg.DestRoot(), filt),
		envHash: cfg.EnvHash(),
		force:   cmd.Bool("force"),
	}

	if !scanSource {
		return s, nil
	}

	git, err := vcs.OpenGit(cfg.AbsSourceRoot())
	if err != nil {
		return nil, err
	}
	scanner, err := scan.New(git, mapper, cfg.Scanner.Omit, cfg.Scanner.IgnoreNames)
	if err != nil {
		return nil, err
	}
	entities, err := scanner.Scan()
	if err != nil {
		return nil, err
	}
	for dest := range entities {
		if cfg.IsMirrored(dest) {
			return nil, &plan.ConfigError{Path: dest, Reason: "source maps onto an externally mirrored path"}
		}
	}
	s.entities = entities

	logging.Debug("session ready",
		logging.Op("scan"),
		logging.Count(len(entities)),
	)
	return s, nil
}

// buildPlan runs the planner over the scanned entities.
func (s *session) buildPlan() *plan.Plan {
	return plan.Build(s.entities, s.records, s.snap, plan.Options{
		Force:     s.force,
		EnvHash:   s.envHash,
		External:  s.cfg.IsExternal,
		Generated: s.cfg.IsGenerated,
	})
}

// guardErrors checks every managed directory for foreign files.
func (s *session) guardErrors() []error {
	return engine.Guard(s.fs, s.cfg.DestRoot(), s.records, engine.GuardConfig{
		Unchecked: s.cfg.IsUnchecked,
		Mirrored:  s.cfg.IsMirrored,
		External:  s.cfg.IsExternal,
		SkipPaths: map[string]bool{
			filepath.ToSlash(s.cfg.Output.StateFile):  true,
			filepath.ToSlash(s.cfg.Output.IgnoreFile): true,
		},
		Force: s.force,
	})
}

// saveState persists the record set. Called at session end regardless of
// run outcome so partial failures still leave an accurate record.
func (s *session) saveState() error {
	return s.store.Save(s.records)
}

// writeIgnores regenerates the version-control ignore rules covering
// everything the engine owns.
func (s *session) writeIgnores() error {
	return engine.WriteIgnoreFile(
		s.fs,
		s.cfg.AbsSourceRoot(),
		s.cfg.DestRoot(),
		s.cfg.Output.IgnoreFile,
		s.cfg.Output.StateFile,
		s.records,
		s.mapper,
		s.cfg.IsExternal,
	)
}

// executor builds the plan executor for this session.
func (s *session) executor() *engine.Executor {
	return engine.NewExecutor(s.fs, s.cfg.DestRoot(), s.snap, s.records, s.envHash)
}

// toBackportConflict resolves a planner conflict into the backport
// assistant's input, deciding whether the path is filtered.
func (s *session) toBackportConflict(c plan.ConflictPath) (*backport.Conflict, error) {
	e, ok := s.entities[c.DestPath]
	if !ok {
		return nil, fmt.Errorf("%s has no current source entity", c.DestPath)
	}
	filtered, err := s.filter.Filterable(e.SourcePath)
	if err != nil {
		return nil, err
	}
	return &backport.Conflict{
		DestPath:   c.DestPath,
		SourcePath: e.SourcePath,
		Filtered:   filtered,
		Double:     c.Double,
	}, nil
}

// conflictPreview renders the diff shown in the interactive picker; an
// empty string when content cannot be read.
func (s *session) conflictPreview(c plan.ConflictPath) string {
	e, ok := s.entities[c.DestPath]
	if !ok {
		return ""
	}
	reference, err := s.snap.FilteredSource(e)
	if err != nil {
		return ""
	}
	current, err := s.snap.DestContent(c.DestPath, e.Symlink)
	if err != nil {
		return ""
	}
	return backport.RenderDiff(string(reference), string(current))
}
