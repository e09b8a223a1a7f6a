// Package inventory reads what is installed inside a Python environment by
// asking the environment's own pip and interpreter.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jenian/envpilot/internal/venv"
)

// headerLines is the number of lines pip list prints before the first package
const headerLines = 2

// UnknownVersion is reported when the interpreter version cannot be read
const UnknownVersion = "N/A"

var (
	// ErrExecutableMissing means the interpreter path does not exist
	ErrExecutableMissing = errors.New("python executable not found")
	// ErrManagerMissing means there is no pip next to the interpreter
	ErrManagerMissing = errors.New("pip not found")
)

// Reader lists the packages installed in an environment
type Reader interface {
	ListPackages(ctx context.Context, executable string) (map[string]string, error)
	CountPackages(ctx context.Context, executable string) (int, error)
}

// VersionSource reports the interpreter version of an environment
type VersionSource interface {
	PythonVersion(ctx context.Context, executable string) (string, error)
}

// Pip implements Reader and VersionSource by running pip and python
type Pip struct {
	// OS selects the executable naming convention (GOOS value)
	OS     string
	Runner venv.Runner
	// VersionRunner runs `python --version`; Python 2 prints the version on
	// stderr, so this one should combine output. Falls back to Runner.
	VersionRunner venv.Runner
}

// NewPip creates a Pip backed by runner
func NewPip(goos string, runner venv.Runner) *Pip {
	return &Pip{OS: goos, Runner: runner}
}

// ListPackages returns lowercase package name -> version
func (p *Pip) ListPackages(ctx context.Context, executable string) (map[string]string, error) {
	out, err := p.pipList(ctx, executable)
	if err != nil {
		return map[string]string{}, err
	}
	return ParseList(out), nil
}

// CountPackages returns the number of rows pip list printed after its header
func (p *Pip) CountPackages(ctx context.Context, executable string) (int, error) {
	out, err := p.pipList(ctx, executable)
	if err != nil {
		return 0, err
	}
	return CountRows(out), nil
}

// PythonVersion runs `python --version` and returns the version token
func (p *Pip) PythonVersion(ctx context.Context, executable string) (string, error) {
	if !venv.Exists(executable) {
		return UnknownVersion, fmt.Errorf("%w: %s", ErrExecutableMissing, executable)
	}
	runner := p.VersionRunner
	if runner == nil {
		runner = p.Runner
	}
	out, err := runner.Run(ctx, executable, "--version")
	if err != nil {
		return UnknownVersion, fmt.Errorf("failed to query version of %s: %w", executable, err)
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return UnknownVersion, fmt.Errorf("empty version output from %s", executable)
	}
	return fields[len(fields)-1], nil
}

func (p *Pip) pipList(ctx context.Context, executable string) (string, error) {
	if !venv.Exists(executable) {
		return "", fmt.Errorf("%w: %s", ErrExecutableMissing, executable)
	}
	pip := venv.PipPath(executable, p.OS)
	if !venv.Exists(pip) {
		return "", fmt.Errorf("%w: %s", ErrManagerMissing, pip)
	}
	out, err := p.Runner.Run(ctx, pip, "list", "--disable-pip-version-check")
	if err != nil {
		return "", fmt.Errorf("pip list failed for %s: %w", executable, err)
	}
	return string(out), nil
}

// ParseList parses `pip list` output. The two header lines are skipped and
// rows that do not split into exactly name and version (editable installs
// print a third column) are ignored.
func ParseList(output string) map[string]string {
	packages := make(map[string]string)
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) <= headerLines {
		return packages
	}
	for _, line := range lines[headerLines:] {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		packages[strings.ToLower(fields[0])] = fields[1]
	}
	return packages
}

// CountRows returns the number of lines after the header, never negative
func CountRows(output string) int {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if n := len(lines) - headerLines; n > 0 {
		return n
	}
	return 0
}
