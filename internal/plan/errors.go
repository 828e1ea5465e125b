package plan

import (
	"fmt"
	"strings"
)

// ScanError means the source tree cannot be trusted: it contains files the
// version control system does not track. Fatal; the run aborts immediately.
type ScanError struct {
	Untracked []string
}

func (e *ScanError) Error() string {
	const show = 5
	names := e.Untracked
	suffix := ""
	if len(names) > show {
		suffix = fmt.Sprintf(" (and %d more)", len(names)-show)
		names = names[:show]
	}
	return fmt.Sprintf("source tree has untracked files: %s%s", strings.Join(names, ", "), suffix)
}

// ConfigError reports ambiguous or invalid filter/path rules. Fatal.
type ConfigError struct {
	Path   string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "config error: " + e.Reason
	}
	return fmt.Sprintf("config error for %s: %s", e.Path, e.Reason)
}

// PlanError reports a shape mismatch at one path: recorded type differs
// from the required type, or a file was expected where a directory sits.
type PlanError struct {
	Path   string
	Reason string
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// ConflictError means the destination copy was modified after the last
// sync while the source stayed unchanged. Requires backport or force.
type ConflictError struct {
	Path string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: destination modified after sync", e.Path)
}

// DoubleConflictError means both the source and the previously synced
// destination copy changed independently since the last sync.
type DoubleConflictError struct {
	Path string
}

func (e *DoubleConflictError) Error() string {
	return fmt.Sprintf("%s: both source and destination changed since last sync", e.Path)
}

// GuardError reports a foreign file inside a managed directory. Managed
// directories are excluded from the destination's own version control, so
// nothing else protects such a file from being silently lost.
type GuardError struct {
	Dir  string
	Path string
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("foreign file %s in managed directory %s", e.Path, e.Dir)
}

// ExecutionError reports an I/O failure while applying the plan to one
// path. It is isolated to that path but fails the run as a whole.
type ExecutionError struct {
	Path string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
