package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// engineFingerprint is bumped whenever the filtering logic itself changes
// behavior, invalidating every "unchanged" fast-path verdict so files are
// re-evaluated against the new pipeline.
const engineFingerprint = "treefork-filter/1"

// EnvHash returns a stable hash over everything that affects the bytes the
// engine produces: the rename rules, filter configuration, capability set
// and the engine fingerprint. Scanner and tool settings are excluded; they
// change which files are visited, not what is written.
func (c *Config) EnvHash() string {
	var b strings.Builder

	line := func(key string, values ...string) {
		b.WriteString(key)
		for _, v := range values {
			b.WriteByte('\x00')
			b.WriteString(v)
		}
		b.WriteByte('\n')
	}

	line("fingerprint", engineFingerprint)
	line("rename", c.Rename.Old, c.Rename.New)
	for _, r := range c.Rename.Remap {
		line("remap", r.From, r.To)
	}
	line("strip", c.Filter.StripBegin, c.Filter.StripEnd)
	line("allow_dirs", c.Filter.AllowDirs...)
	line("deny_dirs", c.Filter.DenyDirs...)
	line("allow_files", c.Filter.AllowFiles...)
	line("deny_files", c.Filter.DenyFiles...)
	line("allow_exts", c.Filter.AllowExts...)
	line("deny_exts", c.Filter.DenyExts...)
	line("formatter", c.Filter.Formatter...)
	line("banner", c.Filter.Banner)
	line("banner_paths", c.Filter.BannerPaths...)
	line("capabilities", c.Capabilities...)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Describe returns a short diagnostic rendering of the hash inputs, used
// by the describe command.
func (c *Config) Describe() string {
	return fmt.Sprintf("env-hash %s (rename %s -> %s, %d capabilities)",
		c.EnvHash()[:12], c.Rename.Old, c.Rename.New, len(c.Capabilities))
}
