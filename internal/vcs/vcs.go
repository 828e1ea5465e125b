// Package vcs abstracts the version-control queries the engine needs.
//
// The engine only ever asks two things of version control: which paths are
// tracked (with their entry kind) and whether any untracked files exist.
// Nothing here assumes a particular product beyond the git implementation.
package vcs

// Entry is one tracked path in the source tree.
type Entry struct {
	// Path is slash-separated and relative to the repository root.
	Path string
	// Symlink marks entries tracked as symbolic links.
	Symlink bool
}

// Client answers the engine's version-control queries.
type Client interface {
	// ListTracked enumerates every tracked file and symlink.
	ListTracked() ([]Entry, error)
	// Untracked returns the paths of files present on disk but unknown to
	// version control. A non-empty result makes the source tree unsafe to
	// sync from.
	Untracked() ([]string, error)
}
