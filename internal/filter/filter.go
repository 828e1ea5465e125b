// Package filter transforms file content during sync.
//
// The pipeline for filterable text files: strip marked blocks, insert the
// generated-file banner where configured, apply the rename substitution,
// and optionally run an external formatter. Binary files and symlinks
// bypass the pipeline entirely.
package filter

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	"github.com/treefork/treefork/internal/config"
	"github.com/treefork/treefork/internal/pathmap"
	"github.com/treefork/treefork/internal/plan"
)

// Filter applies the content transformation pipeline.
type Filter struct {
	mapper    *pathmap.Mapper
	rules     Rules
	beginTok  string
	endTok    string
	caps      map[string]bool
	banner    string
	bannerFor config.PathMatcher
	formatter []string
}

// New assembles a Filter from configuration.
func New(cfg *config.Config, mapper *pathmap.Mapper) (*Filter, error) {
	bannerFor, err := config.CompilePathMatcher(cfg.Filter.BannerPaths)
	if err != nil {
		return nil, err
	}
	return &Filter{
		mapper:   mapper,
		rules: Rules{
			AllowDirs:  cfg.Filter.AllowDirs,
			DenyDirs:   cfg.Filter.DenyDirs,
			AllowFiles: cfg.Filter.AllowFiles,
			DenyFiles:  cfg.Filter.DenyFiles,
			AllowExts:  cfg.Filter.AllowExts,
			DenyExts:   cfg.Filter.DenyExts,
		},
		beginTok:  cfg.Filter.StripBegin,
		endTok:    cfg.Filter.StripEnd,
		caps:      cfg.EnabledCapabilities(),
		banner:    cfg.Filter.Banner,
		bannerFor: bannerFor,
		formatter: cfg.Filter.Formatter,
	}, nil
}

// Filterable reports whether the pipeline applies to a source path.
func (f *Filter) Filterable(sourcePath string) (bool, error) {
	return f.rules.Filterable(sourcePath)
}

// Apply transforms content for one source path. Content that looks binary
// is returned untouched regardless of the filterability verdict.
func (f *Filter) Apply(sourcePath string, content []byte) ([]byte, error) {
	filterable, err := f.Filterable(sourcePath)
	if err != nil {
		return nil, err
	}
	if !filterable || bytes.IndexByte(content, 0) >= 0 {
		return content, nil
	}

	text, err := f.stripBlocks(sourcePath, string(content))
	if err != nil {
		return nil, err
	}

	if f.banner != "" && f.bannerFor.Match(f.mapper.MapPath(sourcePath)) {
		text = f.banner + "\n" + text
	}

	text = f.mapper.Substitute(text)

	out := []byte(text)
	if len(f.formatter) > 0 && !bytes.Equal(out, content) {
		out, err = f.runFormatter(sourcePath, out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// stripBlocks removes begin/end marker pairs and, when the block applies,
// their enclosed text. A marker tagged with a capability keeps its content
// if the destination enables that capability; the marker lines themselves
// are always removed. Nested or unbalanced pairs are invalid input.
func (f *Filter) stripBlocks(sourcePath, text string) (string, error) {
	if !strings.Contains(text, f.beginTok) && !strings.Contains(text, f.endTok) {
		return text, nil
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	inBlock := false
	dropping := false

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		hasBegin := strings.Contains(line, f.beginTok)
		hasEnd := strings.Contains(line, f.endTok)

		switch {
		case hasBegin && hasEnd:
			return "", &plan.ConfigError{Path: sourcePath, Reason: "strip markers may not share a line"}
		case hasBegin:
			if inBlock {
				return "", &plan.ConfigError{Path: sourcePath, Reason: fmt.Sprintf("nested %s marker on line %d", f.beginTok, i+1)}
			}
			inBlock = true
			dropping = f.blockApplies(line)
		case hasEnd:
			if !inBlock {
				return "", &plan.ConfigError{Path: sourcePath, Reason: fmt.Sprintf("unmatched %s marker on line %d", f.endTok, i+1)}
			}
			inBlock = false
			if dropping {
				// A lone blank line left behind by the removed block goes
				// with it.
				if i+1 < len(lines) && lines[i+1] == "" && !followedByBlank(lines, i+1) {
					i++
				}
			}
			dropping = false
		case inBlock && dropping:
			// enclosed text of an applicable block
		default:
			out = append(out, line)
		}
	}

	if inBlock {
		return "", &plan.ConfigError{Path: sourcePath, Reason: "unterminated " + f.beginTok + " marker"}
	}

	return strings.Join(out, "\n"), nil
}

// blockApplies decides whether a begin-marker line's block gets removed.
// An untagged block is always removed; a block tagged "requires X" stays
// only when capability X is enabled for the destination.
func (f *Filter) blockApplies(line string) bool {
	rest := line[strings.Index(line, f.beginTok)+len(f.beginTok):]
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return true
	}
	capName := strings.Trim(fields[0], "()")
	return !f.caps[capName]
}

func followedByBlank(lines []string, i int) bool {
	return i+1 < len(lines) && lines[i+1] == ""
}

// runFormatter pipes content through the configured external formatter.
// Formatter failure is fatal for the file, never silently swallowed.
func (f *Filter) runFormatter(sourcePath string, content []byte) ([]byte, error) {
	cmd := exec.Command(f.formatter[0], f.formatter[1:]...)
	cmd.Stdin = bytes.NewReader(content)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("formatter %s failed for %s: %w (%s)",
			f.formatter[0], sourcePath, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
