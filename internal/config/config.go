// Package config loads and validates the treefork project configuration.
//
// Configuration is a declarative TOML file (treefork.toml) at the
// destination root. Loading is a pure function returning a *Config; there
// is no process-wide configuration singleton.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/treefork/treefork/internal/pathmap"
)

// DefaultFileName is the config file treefork looks for at the
// destination root.
const DefaultFileName = "treefork.toml"

// Config is the complete treefork configuration.
type Config struct {
	// SourceRoot locates the upstream project tree, relative to the
	// destination root (the config file's directory) when not absolute.
	SourceRoot string `toml:"source_root"`

	Rename       RenameConfig  `toml:"rename"`
	Scanner      ScannerConfig `toml:"scanner"`
	Capabilities []string      `toml:"capabilities"`
	Filter       FilterConfig  `toml:"filter"`
	Paths        PathsConfig   `toml:"paths"`
	Output       OutputConfig  `toml:"output"`
	Tools        ToolsConfig   `toml:"tools"`

	destRoot string
	matchers matcherSet
}

// RenameConfig drives the Path Mapper.
type RenameConfig struct {
	// Old and New are the project names substituted case-preservingly in
	// paths and file contents.
	Old string `toml:"old"`
	New string `toml:"new"`
	// Remap relocates whole subtrees; descendants follow their ancestors.
	Remap []RemapRule `toml:"remap"`
}

// RemapRule is one explicit hierarchy remap.
type RemapRule struct {
	From string `toml:"from"`
	To   string `toml:"to"`
}

// ScannerConfig controls which tracked source paths participate in sync.
type ScannerConfig struct {
	// Omit lists source paths to exclude: exact paths, directory prefixes
	// or glob patterns.
	Omit []string `toml:"omit"`
	// IgnoreNames lists base names excluded wherever they appear.
	IgnoreNames []string `toml:"ignore_names"`
}

// FilterConfig controls the content transformation pipeline.
type FilterConfig struct {
	// StripBegin/StripEnd are the paired block markers removed during
	// filtering, together with their enclosed text.
	StripBegin string `toml:"strip_begin"`
	StripEnd   string `toml:"strip_end"`

	// Filterability rules, evaluated dir -> file -> ext. A path matching
	// none of them is a configuration error.
	AllowDirs  []string `toml:"allow_dirs"`
	DenyDirs   []string `toml:"deny_dirs"`
	AllowFiles []string `toml:"allow_files"`
	DenyFiles  []string `toml:"deny_files"`
	AllowExts  []string `toml:"allow_exts"`
	DenyExts   []string `toml:"deny_exts"`

	// Formatter is an optional external formatter command reading the file
	// on stdin and writing the result to stdout.
	Formatter []string `toml:"formatter"`

	// Banner is inserted at the top of files matching BannerPaths.
	Banner      string   `toml:"banner"`
	BannerPaths []string `toml:"banner_paths"`
}

// PathsConfig classifies special destination paths.
type PathsConfig struct {
	// Unchecked paths inside managed directories are skipped by the guard.
	Unchecked []string `toml:"unchecked"`
	// Mirrored paths hold externally mirrored content; the guard skips
	// them and the engine must never claim them.
	Mirrored []string `toml:"mirrored"`
	// External paths are tracked by the destination's own version control;
	// destination-side edits to them are overwritten without conflict.
	External []string `toml:"external"`
	// Generated paths are dynamically generated outputs: they are written
	// after everything else and are never eligible for recache.
	Generated []string `toml:"generated"`
}

// OutputConfig names the files the engine itself writes.
type OutputConfig struct {
	StateFile  string `toml:"state_file"`
	IgnoreFile string `toml:"ignore_file"`
}

// ToolsConfig configures optional external viewers.
type ToolsConfig struct {
	// Diff is invoked as `diff <theirs> <ours>` by the diff command when set.
	Diff []string `toml:"diff"`
	// Merge is invoked as `merge <source> <dest>` during backport when set.
	Merge []string `toml:"merge"`
}

// Load reads and validates the config file at path. The destination root
// is the directory containing the file.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}

	cfg := defaults()
	meta, err := toml.DecodeFile(abs, cfg)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config: %s not found (run from the destination root or pass --config)", path)
		}
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if undec := meta.Undecoded(); len(undec) > 0 {
		return nil, fmt.Errorf("config: unknown key %q in %s", undec[0].String(), path)
	}

	cfg.destRoot = filepath.Dir(abs)
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Filter: FilterConfig{
			StripBegin: "treefork:begin",
			StripEnd:   "treefork:end",
		},
		Output: OutputConfig{
			StateFile:  ".treefork-state.yaml",
			IgnoreFile: ".gitignore",
		},
	}
}

// finish validates the decoded config and compiles derived matchers.
func (c *Config) finish() error {
	if c.SourceRoot == "" {
		return fmt.Errorf("config: source_root is required")
	}
	if c.Rename.Old == "" || c.Rename.New == "" {
		return fmt.Errorf("config: rename.old and rename.new are required")
	}
	if c.Filter.StripBegin == "" || c.Filter.StripEnd == "" {
		return fmt.Errorf("config: filter.strip_begin and filter.strip_end must be non-empty")
	}
	if c.Filter.StripBegin == c.Filter.StripEnd {
		return fmt.Errorf("config: strip markers must differ")
	}
	if len(c.Filter.BannerPaths) > 0 && c.Filter.Banner == "" {
		return fmt.Errorf("config: banner_paths set without a banner")
	}
	if (len(c.Tools.Diff) > 0 && c.Tools.Diff[0] == "") || (len(c.Tools.Merge) > 0 && c.Tools.Merge[0] == "") {
		return fmt.Errorf("config: tool commands must start with an executable name")
	}

	var err error
	if c.matchers, err = compileMatchers(c); err != nil {
		return err
	}
	return nil
}

// DestRoot returns the absolute destination root.
func (c *Config) DestRoot() string {
	return c.destRoot
}

// AbsSourceRoot returns the absolute source root.
func (c *Config) AbsSourceRoot() string {
	if filepath.IsAbs(c.SourceRoot) {
		return filepath.Clean(c.SourceRoot)
	}
	return filepath.Join(c.destRoot, c.SourceRoot)
}

// StatePath returns the absolute path of the state document.
func (c *Config) StatePath() string {
	return filepath.Join(c.destRoot, c.Output.StateFile)
}

// Mapper builds the path mapper from the rename configuration.
func (c *Config) Mapper() (*pathmap.Mapper, error) {
	remaps := make([]pathmap.Remap, 0, len(c.Rename.Remap))
	for _, r := range c.Rename.Remap {
		remaps = append(remaps, pathmap.Remap{From: r.From, To: r.To})
	}
	return pathmap.New(c.Rename.Old, c.Rename.New, remaps)
}

// EnabledCapabilities returns the destination's capability set.
func (c *Config) EnabledCapabilities() map[string]bool {
	caps := make(map[string]bool, len(c.Capabilities))
	for _, cap := range c.Capabilities {
		caps[strings.TrimSpace(cap)] = true
	}
	return caps
}

// IsUnchecked reports whether a destination path is inside an unchecked
// exception path.
func (c *Config) IsUnchecked(destPath string) bool {
	return c.matchers.unchecked.Match(destPath)
}

// IsMirrored reports whether a destination path is inside an externally
// mirrored exception path.
func (c *Config) IsMirrored(destPath string) bool {
	return c.matchers.mirrored.Match(destPath)
}

// IsExternal reports whether a destination path is in the
// externally-version-controlled exception set.
func (c *Config) IsExternal(destPath string) bool {
	return c.matchers.external.Match(destPath)
}

// IsGenerated reports whether a destination path is a dynamically
// generated output.
func (c *Config) IsGenerated(destPath string) bool {
	return c.matchers.generated.Match(destPath)
}
