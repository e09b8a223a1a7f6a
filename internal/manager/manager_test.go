package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jenian/envpilot/internal/scanner"
	"github.com/jenian/envpilot/internal/venv"
)

type call struct {
	name string
	args []string
}

// recorder is a venv.Runner that records calls and fails those whose
// joined command line contains failOn
type recorder struct {
	calls  []call
	failOn string
}

func (r *recorder) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, call{name: name, args: args})
	line := name + " " + strings.Join(args, " ")
	if r.failOn != "" && strings.Contains(line, r.failOn) {
		return nil, &venv.CommandError{Name: name, Args: args, ExitCode: 1, Stderr: "boom"}
	}
	return nil, nil
}

func TestCreate_RunsVenvThenInstalls(t *testing.T) {
	work := t.TempDir()
	rec := &recorder{}
	m := NewManager(Options{OS: "linux", WorkDir: work, Python: "python3"}, rec, nil)

	path, err := m.Create(context.Background(), Request{
		Name:             "api",
		RequirementsPath: "/tmp/req.txt",
		Dependencies:     []string{"black", "ruff>=0.1"},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(work, "api"), path)

	pip := filepath.Join(work, "api", "bin", "pip")
	assert.Equal(t, []call{
		{name: "python3", args: []string{"-m", "venv", path}},
		{name: pip, args: []string{"install", "-r", "/tmp/req.txt"}},
		{name: pip, args: []string{"install", "black", "ruff>=0.1"}},
	}, rec.calls)
}

func TestCreate_DefaultNameAndBasePath(t *testing.T) {
	base := filepath.Join(t.TempDir(), "envs", "nested")
	rec := &recorder{}
	m := NewManager(Options{OS: "windows", WorkDir: t.TempDir(), Python: "python"}, rec, nil)

	path, err := m.Create(context.Background(), Request{BasePath: base})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, DefaultName), path)
	assert.DirExists(t, base)
	assert.Len(t, rec.calls, 1, "no installs requested")
}

func TestCreate_PathExists(t *testing.T) {
	work := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(work, "taken"), 0755))
	rec := &recorder{}
	m := NewManager(Options{OS: "linux", WorkDir: work, Python: "python3"}, rec, nil)

	path, err := m.Create(context.Background(), Request{Name: "taken"})
	assert.ErrorIs(t, err, ErrPathExists)
	assert.Empty(t, path)
	assert.Empty(t, rec.calls)
}

func TestCreate_VenvFailureIsTotal(t *testing.T) {
	rec := &recorder{failOn: "-m venv"}
	m := NewManager(Options{OS: "linux", WorkDir: t.TempDir(), Python: "python3"}, rec, nil)

	path, err := m.Create(context.Background(), Request{Name: "x", Dependencies: []string{"flask"}})
	require.Error(t, err)
	assert.Empty(t, path)

	var partial *PartialError
	assert.False(t, errors.As(err, &partial))
	assert.Len(t, rec.calls, 1)
}

func TestCreate_InstallFailureIsPartial(t *testing.T) {
	work := t.TempDir()
	rec := &recorder{failOn: "install -r"}
	m := NewManager(Options{OS: "linux", WorkDir: work, Python: "python3"}, rec, nil)

	path, err := m.Create(context.Background(), Request{Name: "x", RequirementsPath: "req.txt", Dependencies: []string{"flask"}})
	require.Error(t, err)
	assert.Equal(t, filepath.Join(work, "x"), path)

	var partial *PartialError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, path, partial.Path)

	var cmdErr *venv.CommandError
	assert.True(t, errors.As(err, &cmdErr), "PartialError should unwrap to the command error")
	assert.Len(t, rec.calls, 2, "dependencies are not installed after a failed -r")
}

func writeScript(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("# activate\n"), 0644))
}

func TestShellFor(t *testing.T) {
	env := t.TempDir()
	writeScript(t, filepath.Join(env, "bin", "activate"))
	writeScript(t, filepath.Join(env, "Scripts", "Activate.ps1"))

	environ := []string{"HOME=/home/dev", "PATH=/usr/bin"}
	posix := NewManager(Options{OS: "linux", Shell: "/bin/zsh", Environ: environ}, &recorder{}, nil)
	shell, err := posix.ShellFor(env)
	require.NoError(t, err)
	assert.Equal(t, "/bin/zsh", shell.Path)
	assert.Equal(t, []string{"/bin/zsh", "--rcfile", filepath.Join(env, "bin", "activate")}, shell.Args)
	assert.Equal(t, environ, shell.Env)

	windows := NewManager(Options{OS: "windows", Environ: environ}, &recorder{}, nil)
	shell, err = windows.ShellFor(env)
	require.NoError(t, err)
	assert.Equal(t, "powershell", shell.Path)
	assert.Equal(t, environ, shell.Env)
	assert.Equal(t, "-NoExit", shell.Args[1])
	assert.Equal(t, "& '"+filepath.Join(env, "Scripts", "Activate.ps1")+"'", shell.Args[3])

	fallback := NewManager(Options{OS: "darwin"}, &recorder{}, nil)
	shell, err = fallback.ShellFor(env)
	require.NoError(t, err)
	assert.Equal(t, "/bin/bash", shell.Path)
}

func TestShellFor_MissingScript(t *testing.T) {
	m := NewManager(Options{OS: "linux"}, &recorder{}, nil)
	_, err := m.ShellFor(t.TempDir())
	assert.ErrorIs(t, err, ErrScriptMissing)
}

type finderFunc func(ctx context.Context, name string) (string, bool)

func (f finderFunc) FindByName(ctx context.Context, name string) (string, bool) {
	return f(ctx, name)
}

func TestActivate_Errors(t *testing.T) {
	m := NewManager(Options{OS: "linux"}, &recorder{}, nil)

	notFound := finderFunc(func(context.Context, string) (string, bool) { return "", false })
	assert.ErrorIs(t, m.Activate(context.Background(), notFound, "ghost"), scanner.ErrNotFound)

	noScript := t.TempDir()
	found := finderFunc(func(context.Context, string) (string, bool) { return noScript, true })
	assert.ErrorIs(t, m.Activate(context.Background(), found, "bare"), ErrScriptMissing)
}
