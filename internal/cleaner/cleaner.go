// Package cleaner finds environments that no longer belong to a project and
// removes them.
package cleaner

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jenian/envpilot/internal/scanner"
	"github.com/jenian/envpilot/internal/venv"
)

// Heuristic decides whether an environment is orphaned
type Heuristic func(env scanner.Environment) bool

// ProjectLinkMissing treats an environment as orphaned when it has no
// .project file pointing back at its project. Provisional: few tools write
// that file, so most environments qualify.
func ProjectLinkMissing(env scanner.Environment) bool {
	_, err := os.Stat(filepath.Join(env.Path, venv.ProjectLinkFile))
	return err != nil
}

// Orphaned returns the environments h flags, in input order. A nil h uses
// ProjectLinkMissing.
func Orphaned(envs []scanner.Environment, h Heuristic) []scanner.Environment {
	if h == nil {
		h = ProjectLinkMissing
	}
	var out []scanner.Environment
	for _, env := range envs {
		if h(env) {
			out = append(out, env)
		}
	}
	return out
}

// Remove deletes each environment directory. Failures do not stop the
// loop; every path is reported either as removed or in errs.
func Remove(envs []scanner.Environment) (removed []string, errs []error) {
	for _, env := range envs {
		if err := os.RemoveAll(env.Path); err != nil {
			errs = append(errs, fmt.Errorf("could not remove %s: %w", env.Path, err))
			continue
		}
		removed = append(removed, env.Path)
	}
	return removed, errs
}

// TotalSize sums the size of envs in bytes
func TotalSize(envs []scanner.Environment) int64 {
	var total int64
	for _, env := range envs {
		total += env.SizeBytes
	}
	return total
}
