// Package manager creates virtual environments and starts shells with one
// activated.
package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/jenian/envpilot/internal/venv"
)

// DefaultName is used when create is called without a name
const DefaultName = "venv"

var (
	// ErrPathExists is returned when the target directory is already present
	ErrPathExists = errors.New("an environment already exists at the target path")
	// ErrScriptMissing is returned when an environment has no activation script
	ErrScriptMissing = errors.New("activation script not found")
)

// PartialError means the environment was created but installing packages
// into it failed. Path is usable and may be reported to the user.
type PartialError struct {
	Path string
	Err  error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("environment created at %s but package installation failed: %v", e.Path, e.Err)
}

func (e *PartialError) Unwrap() error {
	return e.Err
}

// Request describes an environment to create
type Request struct {
	Name string
	// BasePath is the parent directory; empty means the working directory
	BasePath string
	// RequirementsPath is installed with `pip install -r` when set
	RequirementsPath string
	// Dependencies are installed with a single `pip install` when set
	Dependencies []string
}

// Creator builds environments
type Creator interface {
	Create(ctx context.Context, req Request) (string, error)
}

// Options configures a Manager
type Options struct {
	OS      string // GOOS value
	WorkDir string
	Python  string   // interpreter that runs `-m venv`
	Shell   string   // POSIX shell started by Activate
	Environ []string // environment of the activated shell
}

// Manager creates and activates environments
type Manager struct {
	opts   Options
	runner venv.Runner
	logger *log.Logger
}

// NewManager creates a manager that runs subprocesses through runner
func NewManager(opts Options, runner venv.Runner, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Manager{opts: opts, runner: runner, logger: logger}
}

// targetPath returns the absolute location for req, creating BasePath when
// it is given
func (m *Manager) targetPath(req Request) (string, error) {
	name := req.Name
	if name == "" {
		name = DefaultName
	}
	base := m.opts.WorkDir
	if req.BasePath != "" {
		if err := os.MkdirAll(req.BasePath, 0755); err != nil {
			return "", fmt.Errorf("failed to create base directory %s: %w", req.BasePath, err)
		}
		base = req.BasePath
	}
	path, err := filepath.Abs(filepath.Join(base, name))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", name, err)
	}
	return path, nil
}

// Create builds a new environment and installs the requested packages.
// The returned path is empty on total failure. When only the installs fail
// the path is returned together with a *PartialError.
func (m *Manager) Create(ctx context.Context, req Request) (string, error) {
	path, err := m.targetPath(req)
	if err != nil {
		return "", err
	}
	if _, err := os.Lstat(path); err == nil {
		return "", fmt.Errorf("%w: %s", ErrPathExists, path)
	}

	m.logger.Debug("creating environment", "path", path, "python", m.opts.Python)
	if _, err := m.runner.Run(ctx, m.opts.Python, "-m", "venv", path); err != nil {
		return "", fmt.Errorf("failed to create environment at %s: %w", path, err)
	}

	pip := venv.PipPath(venv.PythonPath(path, m.opts.OS), m.opts.OS)
	if req.RequirementsPath != "" {
		m.logger.Debug("installing requirements", "file", req.RequirementsPath)
		if _, err := m.runner.Run(ctx, pip, "install", "-r", req.RequirementsPath); err != nil {
			return path, &PartialError{Path: path, Err: err}
		}
	}
	if len(req.Dependencies) > 0 {
		m.logger.Debug("installing dependencies", "deps", req.Dependencies)
		args := append([]string{"install"}, req.Dependencies...)
		if _, err := m.runner.Run(ctx, pip, args...); err != nil {
			return path, &PartialError{Path: path, Err: err}
		}
	}
	return path, nil
}
