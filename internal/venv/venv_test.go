package venv

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestLayout(t *testing.T) {
	tests := []struct {
		goos     string
		python   string
		pip      string
		activate string
	}{
		{"linux", "/envs/a/bin/python", "/envs/a/bin/pip", "/envs/a/bin/activate"},
		{"darwin", "/envs/a/bin/python", "/envs/a/bin/pip", "/envs/a/bin/activate"},
		{Windows, "/envs/a/Scripts/python.exe", "/envs/a/Scripts/pip.exe", "/envs/a/Scripts/Activate.ps1"},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			root := filepath.FromSlash("/envs/a")
			python := PythonPath(root, tt.goos)
			if python != filepath.FromSlash(tt.python) {
				t.Errorf("PythonPath = %s, want %s", python, tt.python)
			}
			if pip := PipPath(python, tt.goos); pip != filepath.FromSlash(tt.pip) {
				t.Errorf("PipPath = %s, want %s", pip, tt.pip)
			}
			if script := ActivateScript(root, tt.goos); script != filepath.FromSlash(tt.activate) {
				t.Errorf("ActivateScript = %s, want %s", script, tt.activate)
			}
		})
	}
}

func TestHasMarker(t *testing.T) {
	dir := t.TempDir()
	if HasMarker(dir) {
		t.Error("empty directory must not have a marker")
	}

	// A directory named like the marker does not count
	if err := os.Mkdir(filepath.Join(dir, MarkerFile), 0755); err != nil {
		t.Fatal(err)
	}
	if HasMarker(dir) {
		t.Error("marker directory must be ignored")
	}

	other := t.TempDir()
	if err := os.WriteFile(filepath.Join(other, MarkerFile), []byte("home = /usr/bin\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if !HasMarker(other) {
		t.Error("expected marker to be detected")
	}
	if !Exists(other) || Exists(filepath.Join(other, "missing")) {
		t.Error("Exists reported the wrong result")
	}
}

func TestExecRunner(t *testing.T) {
	if runtime.GOOS == Windows {
		t.Skip("uses /bin/sh")
	}
	ctx := context.Background()

	out, err := ExecRunner{}.Run(ctx, "/bin/sh", "-c", "echo out; echo err >&2")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if strings.TrimSpace(string(out)) != "out" {
		t.Errorf("stdout = %q", out)
	}

	out, err = ExecRunner{CombineOutput: true}.Run(ctx, "/bin/sh", "-c", "echo 'Python 2.7.18' >&2")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if strings.TrimSpace(string(out)) != "Python 2.7.18" {
		t.Errorf("combined output = %q", out)
	}

	_, err = ExecRunner{}.Run(ctx, "/bin/sh", "-c", "echo broken >&2; exit 3")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected *CommandError, got %v", err)
	}
	if cmdErr.ExitCode != 3 || !strings.Contains(cmdErr.Error(), "broken") {
		t.Errorf("unexpected error: %v", cmdErr)
	}

	_, err = ExecRunner{}.Run(ctx, filepath.Join(t.TempDir(), "nope"))
	if err == nil || errors.As(err, &cmdErr) {
		t.Errorf("missing binary should keep the exec error, got %v", err)
	}

	_, err = ExecRunner{Timeout: 50 * time.Millisecond}.Run(ctx, "/bin/sh", "-c", "sleep 5")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestRunnerFunc(t *testing.T) {
	var got string
	r := RunnerFunc(func(_ context.Context, name string, args ...string) ([]byte, error) {
		got = name + " " + strings.Join(args, " ")
		return []byte("ok"), nil
	})
	out, err := r.Run(context.Background(), "pip", "list")
	if err != nil || string(out) != "ok" || got != "pip list" {
		t.Errorf("RunnerFunc: out=%q err=%v got=%q", out, err, got)
	}
}
