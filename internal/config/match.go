package config

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// PathMatcher matches slash-separated relative paths against a pattern
// list. A pattern matches a path exactly, as a directory prefix, or as a
// glob (with '/' as the separator).
type PathMatcher struct {
	exact []string
	globs []glob.Glob
}

// CompilePathMatcher builds a PathMatcher from patterns.
func CompilePathMatcher(patterns []string) (PathMatcher, error) {
	var m PathMatcher
	for _, p := range patterns {
		p = strings.Trim(p, "/")
		if p == "" {
			return PathMatcher{}, fmt.Errorf("config: empty path pattern")
		}
		if strings.ContainsAny(p, "*?[{") {
			g, err := glob.Compile(p, '/')
			if err != nil {
				return PathMatcher{}, fmt.Errorf("config: bad pattern %q: %w", p, err)
			}
			m.globs = append(m.globs, g)
			continue
		}
		m.exact = append(m.exact, p)
	}
	return m, nil
}

// Match reports whether path matches any pattern.
func (m PathMatcher) Match(path string) bool {
	path = strings.Trim(path, "/")
	for _, e := range m.exact {
		if path == e || strings.HasPrefix(path, e+"/") {
			return true
		}
	}
	for _, g := range m.globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// Empty reports whether the matcher has no patterns.
func (m PathMatcher) Empty() bool {
	return len(m.exact) == 0 && len(m.globs) == 0
}

type matcherSet struct {
	unchecked PathMatcher
	mirrored  PathMatcher
	external  PathMatcher
	generated PathMatcher
}

func compileMatchers(c *Config) (matcherSet, error) {
	var (
		ms  matcherSet
		err error
	)
	if ms.unchecked, err = CompilePathMatcher(c.Paths.Unchecked); err != nil {
		return ms, err
	}
	if ms.mirrored, err = CompilePathMatcher(c.Paths.Mirrored); err != nil {
		return ms, err
	}
	if ms.external, err = CompilePathMatcher(c.Paths.External); err != nil {
		return ms, err
	}
	if ms.generated, err = CompilePathMatcher(c.Paths.Generated); err != nil {
		return ms, err
	}
	return ms, nil
}
