package manager

import (
	"context"
	"fmt"

	"github.com/jenian/envpilot/internal/scanner"
	"github.com/jenian/envpilot/internal/venv"
)

// Finder locates an environment by name
type Finder interface {
	FindByName(ctx context.Context, name string) (string, bool)
}

// Shell is an interactive shell invocation with an environment activated
type Shell struct {
	Path   string   // executable
	Args   []string // full argv, Args[0] included
	Script string   // activation script being sourced
	Env    []string // environment the shell starts with
}

// ShellFor builds the shell invocation for the environment at envPath
func (m *Manager) ShellFor(envPath string) (Shell, error) {
	script := venv.ActivateScript(envPath, m.opts.OS)
	if !venv.Exists(script) {
		return Shell{}, fmt.Errorf("%w at %s", ErrScriptMissing, script)
	}
	if m.opts.OS == venv.Windows {
		return Shell{
			Path:   "powershell",
			Args:   []string{"powershell", "-NoExit", "-Command", fmt.Sprintf("& '%s'", script)},
			Script: script,
			Env:    m.opts.Environ,
		}, nil
	}
	shell := m.opts.Shell
	if shell == "" {
		shell = "/bin/bash"
	}
	return Shell{
		Path:   shell,
		Args:   []string{shell, "--rcfile", script},
		Script: script,
		Env:    m.opts.Environ,
	}, nil
}

// Activate finds the environment called name and starts an activated shell.
// On POSIX systems the current process is replaced and Activate only
// returns on error.
func (m *Manager) Activate(ctx context.Context, finder Finder, name string) error {
	path, ok := finder.FindByName(ctx, name)
	if !ok {
		return fmt.Errorf("%w: %s", scanner.ErrNotFound, name)
	}
	shell, err := m.ShellFor(path)
	if err != nil {
		return err
	}
	m.logger.Debug("launching shell", "shell", shell.Path, "script", shell.Script)
	if err := launch(ctx, shell); err != nil {
		return fmt.Errorf("failed to launch shell: %w", err)
	}
	return nil
}
