package filter

import (
	"path"
	"strings"

	"github.com/treefork/treefork/internal/plan"
)

// Rules decides whether a file's content goes through the filtering
// pipeline or is copied verbatim. Evaluation order is strict: directory
// rules, then file-name rules, then extension rules. A path no rule
// matches is a configuration error, never a silent default.
type Rules struct {
	AllowDirs  []string
	DenyDirs   []string
	AllowFiles []string
	DenyFiles  []string
	AllowExts  []string
	DenyExts   []string
}

// Filterable classifies a source-relative path. Within each stage a deny
// rule wins over an allow rule.
func (r Rules) Filterable(sourcePath string) (bool, error) {
	p := strings.Trim(sourcePath, "/")

	if underAny(p, r.DenyDirs) {
		return false, nil
	}
	if underAny(p, r.AllowDirs) {
		return true, nil
	}

	base := path.Base(p)
	if contains(r.DenyFiles, base) {
		return false, nil
	}
	if contains(r.AllowFiles, base) {
		return true, nil
	}

	ext := path.Ext(base)
	if ext != "" {
		if contains(r.DenyExts, ext) {
			return false, nil
		}
		if contains(r.AllowExts, ext) {
			return true, nil
		}
	}

	return false, &plan.ConfigError{
		Path:   sourcePath,
		Reason: "no filter rule decides this path; add it to an allow or deny list",
	}
}

func underAny(p string, dirs []string) bool {
	for _, d := range dirs {
		d = strings.Trim(d, "/")
		if d == "" {
			continue
		}
		if p == d || strings.HasPrefix(p, d+"/") {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
