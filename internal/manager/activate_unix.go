//go:build !windows

package manager

import (
	"context"
	"os/exec"
	"syscall"
)

// launch replaces the current process with the shell
func launch(_ context.Context, shell Shell) error {
	path, err := exec.LookPath(shell.Path)
	if err != nil {
		return err
	}
	return syscall.Exec(path, shell.Args, shell.Env)
}
