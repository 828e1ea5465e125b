// Package scan enumerates the source entities that participate in a run.
package scan

import (
	"fmt"
	"path"

	"github.com/treefork/treefork/internal/config"
	"github.com/treefork/treefork/internal/pathmap"
	"github.com/treefork/treefork/internal/plan"
	"github.com/treefork/treefork/internal/vcs"
)

// Scanner builds the authoritative source entity map for one run from the
// version-control tracked set.
type Scanner struct {
	client      vcs.Client
	mapper      *pathmap.Mapper
	omit        config.PathMatcher
	ignoreNames map[string]bool
}

// New builds a Scanner. Omit patterns are exact source paths, directory
// prefixes, or globs; ignoreNames are base names excluded everywhere.
func New(client vcs.Client, mapper *pathmap.Mapper, omitPatterns, ignoreNames []string) (*Scanner, error) {
	omit, err := config.CompilePathMatcher(omitPatterns)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(ignoreNames))
	for _, n := range ignoreNames {
		names[n] = true
	}
	return &Scanner{
		client:      client,
		mapper:      mapper,
		omit:        omit,
		ignoreNames: names,
	}, nil
}

// Scan returns the entity map keyed by mapped destination path. It fails
// fatally when the source tree has untracked files: the engine refuses to
// run against a tree where the tracked-file list cannot be trusted.
func (s *Scanner) Scan() (map[string]plan.Entity, error) {
	untracked, err := s.client.Untracked()
	if err != nil {
		return nil, err
	}
	if len(untracked) > 0 {
		return nil, &plan.ScanError{Untracked: untracked}
	}

	tracked, err := s.client.ListTracked()
	if err != nil {
		return nil, err
	}

	entities := make(map[string]plan.Entity, len(tracked))
	for _, entry := range tracked {
		if s.ignoreNames[path.Base(entry.Path)] {
			continue
		}
		if !s.omit.Empty() && s.omit.Match(entry.Path) {
			continue
		}

		dest := s.mapper.MapPath(entry.Path)
		if prev, dup := entities[dest]; dup {
			return nil, &plan.ConfigError{
				Path:   dest,
				Reason: fmt.Sprintf("both %s and %s map to this destination path", prev.SourcePath, entry.Path),
			}
		}
		entities[dest] = plan.Entity{
			DestPath:   dest,
			SourcePath: entry.Path,
			Symlink:    entry.Symlink,
		}
	}
	return entities, nil
}
