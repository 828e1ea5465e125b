// Package pathmap maps source tree paths to destination tree paths.
//
// Mapping is a pure function of the configuration: a case-preserving
// rename of the project name plus optional explicit hierarchy remaps.
// The same name substitution is also applied to file contents by the
// content filter, so both live here.
package pathmap

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Remap relocates one source subtree to a different destination subtree.
// A remap of a/b/c -> a2/b2/c2 aligns component-wise, so siblings under
// the renamed ancestors follow along: a/b/foo -> a2/b2/foo.
type Remap struct {
	From string
	To   string
}

// Mapper performs deterministic path and text renaming.
type Mapper struct {
	replacer *strings.Replacer
	prefixes []Remap // expanded prefix mappings, longest From first
}

// New builds a Mapper that rewrites every case variant of oldName into the
// matching case variant of newName, then applies the given hierarchy remaps.
func New(oldName, newName string, remaps []Remap) (*Mapper, error) {
	if oldName == "" || newName == "" {
		return nil, fmt.Errorf("pathmap: old and new names must be non-empty")
	}
	if strings.EqualFold(oldName, newName) {
		return nil, fmt.Errorf("pathmap: old name %q and new name %q differ only in case", oldName, newName)
	}

	prefixes, err := expandRemaps(remaps)
	if err != nil {
		return nil, err
	}

	return &Mapper{
		replacer: strings.NewReplacer(renamePairs(oldName, newName)...),
		prefixes: prefixes,
	}, nil
}

// renamePairs produces old->new substitution pairs for the lower, UPPER,
// Capitalized and as-written spellings of the configured name.
func renamePairs(oldName, newName string) []string {
	title := cases.Title(language.Und)

	variants := [][2]string{
		{strings.ToLower(oldName), strings.ToLower(newName)},
		{strings.ToUpper(oldName), strings.ToUpper(newName)},
		{title.String(strings.ToLower(oldName)), title.String(strings.ToLower(newName))},
		{oldName, newName},
	}

	var pairs []string
	used := make(map[string]bool, len(variants))
	for _, v := range variants {
		if used[v[0]] {
			continue
		}
		used[v[0]] = true
		pairs = append(pairs, v[0], v[1])
	}
	return pairs
}

// expandRemaps turns each configured remap into prefix mappings at every
// component depth so that descendants of renamed ancestors relocate too.
func expandRemaps(remaps []Remap) ([]Remap, error) {
	var prefixes []Remap
	seen := make(map[string]string)

	for _, r := range remaps {
		from := strings.Trim(r.From, "/")
		to := strings.Trim(r.To, "/")
		if from == "" || to == "" {
			return nil, fmt.Errorf("pathmap: remap %q -> %q has an empty side", r.From, r.To)
		}

		fromParts := strings.Split(from, "/")
		toParts := strings.Split(to, "/")
		if len(fromParts) != len(toParts) {
			return nil, fmt.Errorf("pathmap: remap %q -> %q has mismatched depth", r.From, r.To)
		}

		for depth := 1; depth <= len(fromParts); depth++ {
			f := strings.Join(fromParts[:depth], "/")
			t := strings.Join(toParts[:depth], "/")
			if prev, ok := seen[f]; ok {
				if prev != t {
					return nil, fmt.Errorf("pathmap: conflicting remaps for prefix %q: %q vs %q", f, prev, t)
				}
				continue
			}
			seen[f] = t
			prefixes = append(prefixes, Remap{From: f, To: t})
		}
	}

	sort.Slice(prefixes, func(i, j int) bool {
		return len(prefixes[i].From) > len(prefixes[j].From)
	})
	return prefixes, nil
}

// MapPath returns the destination path for a source path. Hierarchy remaps
// take effect first (longest prefix wins), then the name substitution is
// applied to the whole remaining path.
func (m *Mapper) MapPath(sourcePath string) string {
	p := strings.Trim(sourcePath, "/")

	for _, r := range m.prefixes {
		if p == r.From {
			p = r.To
			break
		}
		if strings.HasPrefix(p, r.From+"/") {
			p = r.To + p[len(r.From):]
			break
		}
	}

	return m.Substitute(p)
}

// Substitute applies the case-preserving name substitution to arbitrary
// text. Used for both paths and file contents.
func (m *Mapper) Substitute(text string) string {
	return m.replacer.Replace(text)
}
