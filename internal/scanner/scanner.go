package scanner

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/jenian/envpilot/internal/inventory"
	"github.com/jenian/envpilot/internal/venv"
)

// DefaultMaxDepth is how many levels below the search root are inspected
const DefaultMaxDepth = 5

// ErrNotFound is returned when no environment matches a name or path
var ErrNotFound = errors.New("environment not found")

// Environment is a discovered virtual environment root
type Environment struct {
	Name          string `json:"name"`
	Path          string `json:"path"`
	PythonVersion string `json:"python_version"`
	PackageCount  int    `json:"package_count"`
	SizeBytes     int64  `json:"size_bytes"`
	Executable    string `json:"python_executable"`
}

// Options configures a Scanner. Everything host-specific is passed in here.
type Options struct {
	OS            string   // GOOS value selecting bin/ or Scripts/
	WorkDir       string   // Checked first by FindByName
	LegacyDir     string   // Checked second by FindByName
	SearchRoot    string   // Scanned by FindByName and Resolve
	MaxDepth      int      // 0 means DefaultMaxDepth
	ExcludeDirs   []string // Added to the built-in exclusion set
	NestedMarkers []string // Added to the built-in nested-environment markers
}

// Scanner discovers environments on disk
type Scanner struct {
	opts          Options
	excludeDirs   map[string]bool // Directory names never descended into
	nestedMarkers map[string]bool // Path segments that mark tool-managed environments
	versions      inventory.VersionSource
	packages      inventory.Reader
	logger        *log.Logger

	// OnIssue, when set, receives every filesystem or command error that was
	// degraded to a default value
	OnIssue func(Issue)
}

// NewScanner creates a scanner with the default exclusions
func NewScanner(opts Options, versions inventory.VersionSource, packages inventory.Reader, logger *log.Logger) *Scanner {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	s := &Scanner{
		opts: opts,
		excludeDirs: map[string]bool{
			".git":         true,
			".svn":         true,
			".hg":          true,
			"$Recycle.Bin": true,
			"node_modules": true,
			".vscode":      true,
			".idea":        true,
			"__pycache__":  true,
		},
		nestedMarkers: map[string]bool{
			"site-packages": true,
			".tox":          true,
		},
		versions: versions,
		packages: packages,
		logger:   logger,
	}
	s.AddExcludeDirs(opts.ExcludeDirs)
	for _, marker := range opts.NestedMarkers {
		s.nestedMarkers[marker] = true
	}
	return s
}

// AddExcludeDirs adds directory names that are never descended into
func (s *Scanner) AddExcludeDirs(dirs []string) {
	for _, dir := range dirs {
		if dir = strings.TrimSpace(dir); dir != "" {
			s.excludeDirs[dir] = true
		}
	}
}

// isNested checks whether any segment of path marks an environment that
// belongs to another tool (tox, an installed package's own venv, ...)
func (s *Scanner) isNested(path string) bool {
	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		if s.nestedMarkers[segment] {
			return true
		}
	}
	return false
}

// depth returns how many levels path lies below root
func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(filepath.ToSlash(rel), "/") + 1
}

// Discover walks rootPath and returns every environment found, in
// traversal order. Errors never abort the walk; they are reported through
// OnIssue and the debug log and degrade to defaults.
func (s *Scanner) Discover(ctx context.Context, rootPath string) []Environment {
	var envs []Environment

	root, err := filepath.Abs(rootPath)
	if err != nil {
		s.report(rootPath, err)
		return envs
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			s.report(path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		if path != root && s.excludeDirs[d.Name()] {
			return filepath.SkipDir
		}
		if depth(root, path) > s.opts.MaxDepth {
			return filepath.SkipDir
		}
		if !venv.HasMarker(path) {
			return nil
		}

		// Candidate root: whatever the outcome, its subtree is not searched
		if s.isNested(path) {
			s.logger.Debug("skipping nested environment", "path", path)
			return filepath.SkipDir
		}
		env, ok := s.inspect(ctx, path)
		if ok {
			envs = append(envs, env)
		}
		return filepath.SkipDir
	})
	if walkErr != nil && !errors.Is(walkErr, filepath.SkipDir) {
		s.report(root, walkErr)
	}

	return envs
}

// inspect builds an Environment for a marker-bearing directory. It returns
// false when the interpreter is missing, since such a directory is not a
// usable environment.
func (s *Scanner) inspect(ctx context.Context, path string) (Environment, bool) {
	python := venv.PythonPath(path, s.opts.OS)
	info, err := os.Stat(python)
	if err != nil || info.IsDir() {
		s.logger.Debug("skipping environment without interpreter", "path", path, "python", python)
		return Environment{}, false
	}

	env := Environment{
		Name:          filepath.Base(path),
		Path:          path,
		Executable:    python,
		PythonVersion: inventory.UnknownVersion,
	}

	if s.versions != nil {
		if v, err := s.versions.PythonVersion(ctx, python); err == nil {
			env.PythonVersion = v
		} else {
			s.report(python, err)
		}
	}
	if s.packages != nil {
		if n, err := s.packages.CountPackages(ctx, python); err == nil {
			env.PackageCount = n
		} else {
			s.report(python, err)
		}
	}
	env.SizeBytes = s.dirSize(path)

	s.logger.Debug("found environment", "name", env.Name, "path", path, "python", env.PythonVersion)
	return env, true
}

// dirSize sums regular file sizes below path. Symlinks are not followed or
// counted; unreadable entries count as zero.
func (s *Scanner) dirSize(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			s.report(p, err)
			if d != nil && d.IsDir() && p != path {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			s.report(p, err)
			return nil
		}
		total += info.Size()
		return nil
	})
	return total
}

// FindByName looks for an environment called name: first in the working
// directory, then in the legacy directory, then by a full scan.
func (s *Scanner) FindByName(ctx context.Context, name string) (string, bool) {
	for _, base := range []string{s.opts.WorkDir, s.opts.LegacyDir} {
		if base == "" {
			continue
		}
		candidate := filepath.Join(base, name)
		if venv.HasMarker(candidate) {
			return candidate, true
		}
	}
	if s.opts.SearchRoot == "" {
		return "", false
	}
	for _, env := range s.Discover(ctx, s.opts.SearchRoot) {
		if env.Name == name {
			return env.Path, true
		}
	}
	return "", false
}

// Resolve finds a discovered environment by path (when nameOrPath is an
// existing directory) or by exact name
func (s *Scanner) Resolve(ctx context.Context, nameOrPath string) (Environment, error) {
	envs := s.Discover(ctx, s.opts.SearchRoot)

	if info, err := os.Stat(nameOrPath); err == nil && info.IsDir() {
		abs, err := filepath.Abs(nameOrPath)
		if err == nil {
			for _, env := range envs {
				if env.Path == abs {
					return env, nil
				}
			}
			// Outside the search root: inspect it directly
			if venv.HasMarker(abs) {
				if env, ok := s.inspect(ctx, abs); ok {
					return env, nil
				}
			}
		}
		return Environment{}, ErrNotFound
	}

	for _, env := range envs {
		if env.Name == nameOrPath {
			return env, nil
		}
	}
	return Environment{}, ErrNotFound
}
