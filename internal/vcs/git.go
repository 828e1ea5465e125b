package vcs

import (
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/filemode"
)

// GitClient implements Client on top of a git worktree.
type GitClient struct {
	repo *git.Repository
}

// OpenGit opens the git repository containing root.
func OpenGit(root string) (*GitClient, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("vcs: open git repository at %s: %w", root, err)
	}
	return &GitClient{repo: repo}, nil
}

// ListTracked reads the index: everything staged or committed, with the
// symlink file mode preserved.
func (c *GitClient) ListTracked() ([]Entry, error) {
	idx, err := c.repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("vcs: read index: %w", err)
	}

	entries := make([]Entry, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		entries = append(entries, Entry{
			Path:    e.Name,
			Symlink: e.Mode == filemode.Symlink,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Untracked reports worktree files git does not know about.
func (c *GitClient) Untracked() ([]string, error) {
	wt, err := c.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("vcs: open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("vcs: worktree status: %w", err)
	}

	var untracked []string
	for path, st := range status {
		if st.Staging == git.Untracked && st.Worktree == git.Untracked {
			untracked = append(untracked, path)
		}
	}
	sort.Strings(untracked)
	return untracked, nil
}
