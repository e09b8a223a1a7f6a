//go:build windows

package manager

import (
	"context"
	"os"
	"os/exec"
)

// launch runs the shell attached to the console until the user exits it
func launch(ctx context.Context, shell Shell) error {
	cmd := exec.CommandContext(ctx, shell.Path, shell.Args[1:]...)
	cmd.Env = shell.Env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
