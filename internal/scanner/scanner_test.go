package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jenian/envpilot/internal/inventory"
	"github.com/jenian/envpilot/internal/venv"
)

// makeEnv creates a marker file and, when withPython is set, an interpreter
// stub at the POSIX location
func makeEnv(t *testing.T, dir string, withPython bool) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create %s: %v", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, venv.MarkerFile), []byte("home = /usr/bin\n"), 0644); err != nil {
		t.Fatalf("Failed to write marker: %v", err)
	}
	if withPython {
		python := venv.PythonPath(dir, "linux")
		if err := os.MkdirAll(filepath.Dir(python), 0755); err != nil {
			t.Fatalf("Failed to create bin: %v", err)
		}
		if err := os.WriteFile(python, []byte("#!/bin/sh\n"), 0755); err != nil {
			t.Fatalf("Failed to write python: %v", err)
		}
	}
	return dir
}

func newTestScanner(opts Options, fake *inventory.Static) *Scanner {
	if opts.OS == "" {
		opts.OS = "linux"
	}
	return NewScanner(opts, fake, fake, nil)
}

func envNames(envs []Environment) []string {
	names := make([]string, len(envs))
	for i, env := range envs {
		names[i] = env.Name
	}
	return names
}

func TestDiscover_NoMarkers(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, "src", "pkg"), 0755); err != nil {
		t.Fatalf("Failed to create dirs: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "src", "app.py"), []byte("print('hi')"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	envs := newTestScanner(Options{}, &inventory.Static{}).Discover(context.Background(), tmpDir)
	if len(envs) != 0 {
		t.Errorf("Expected no environments, got %v", envNames(envs))
	}
}

func TestDiscover_MissingRoot(t *testing.T) {
	envs := newTestScanner(Options{}, &inventory.Static{}).Discover(context.Background(), filepath.Join(t.TempDir(), "gone"))
	if len(envs) != 0 {
		t.Errorf("Expected no environments, got %v", envNames(envs))
	}
}

func TestDiscover_FindsEnvironmentsWithMetadata(t *testing.T) {
	tmpDir := t.TempDir()
	api := makeEnv(t, filepath.Join(tmpDir, "projects", "api", ".venv"), true)
	makeEnv(t, filepath.Join(tmpDir, "tools"), true)

	apiPython := venv.PythonPath(api, "linux")
	fake := &inventory.Static{
		Versions: map[string]string{apiPython: "3.11.4"},
		Packages: map[string]map[string]string{apiPython: {"flask": "2.1.0", "requests": "2.31.0"}},
	}

	envs := newTestScanner(Options{}, fake).Discover(context.Background(), tmpDir)
	if len(envs) != 2 {
		t.Fatalf("Expected 2 environments, got %v", envNames(envs))
	}

	// Lexical traversal: projects/ before tools/
	got := envs[0]
	if got.Name != ".venv" || got.Path != api {
		t.Errorf("first env = %+v", got)
	}
	if got.Executable != apiPython {
		t.Errorf("Executable = %q, want %q", got.Executable, apiPython)
	}
	if got.PythonVersion != "3.11.4" {
		t.Errorf("PythonVersion = %q", got.PythonVersion)
	}
	if got.PackageCount != 2 {
		t.Errorf("PackageCount = %d, want 2", got.PackageCount)
	}
	if got.SizeBytes <= 0 {
		t.Errorf("SizeBytes = %d, want > 0", got.SizeBytes)
	}

	// The second env has no registered inventory: safe defaults, still listed
	if envs[1].PythonVersion != inventory.UnknownVersion || envs[1].PackageCount != 0 {
		t.Errorf("second env should degrade to defaults, got %+v", envs[1])
	}
}

func TestDiscover_RequiresInterpreter(t *testing.T) {
	tmpDir := t.TempDir()
	makeEnv(t, filepath.Join(tmpDir, "broken"), false)
	makeEnv(t, filepath.Join(tmpDir, "good"), true)

	envs := newTestScanner(Options{}, &inventory.Static{}).Discover(context.Background(), tmpDir)
	if len(envs) != 1 || envs[0].Name != "good" {
		t.Fatalf("Expected only 'good', got %v", envNames(envs))
	}
	if _, err := os.Stat(envs[0].Executable); err != nil {
		t.Errorf("executable of accepted env must exist: %v", err)
	}
}

func TestDiscover_DoesNotDescendIntoEnvironment(t *testing.T) {
	tmpDir := t.TempDir()
	outer := makeEnv(t, filepath.Join(tmpDir, "outer"), true)
	makeEnv(t, filepath.Join(outer, "lib", "inner"), true)

	envs := newTestScanner(Options{}, &inventory.Static{}).Discover(context.Background(), tmpDir)
	if len(envs) != 1 || envs[0].Path != outer {
		t.Fatalf("Expected only the outer env, got %v", envNames(envs))
	}
}

func TestDiscover_NestedMarkers(t *testing.T) {
	tmpDir := t.TempDir()
	makeEnv(t, filepath.Join(tmpDir, "proj", ".tox", "py311"), true)
	makeEnv(t, filepath.Join(tmpDir, "lib", "site-packages", "vendored"), true)
	makeEnv(t, filepath.Join(tmpDir, "proj", ".nox", "tests"), true)
	makeEnv(t, filepath.Join(tmpDir, "proj", "venv"), true)

	s := newTestScanner(Options{NestedMarkers: []string{".nox"}}, &inventory.Static{})
	envs := s.Discover(context.Background(), tmpDir)
	if len(envs) != 1 || envs[0].Name != "venv" {
		t.Fatalf("Expected only 'venv', got %v", envNames(envs))
	}
}

func TestDiscover_ExcludedDirs(t *testing.T) {
	tmpDir := t.TempDir()
	makeEnv(t, filepath.Join(tmpDir, "node_modules", "env"), true)
	makeEnv(t, filepath.Join(tmpDir, ".git", "env"), true)
	makeEnv(t, filepath.Join(tmpDir, "build", "env"), true)
	makeEnv(t, filepath.Join(tmpDir, ".venv"), true)

	s := newTestScanner(Options{ExcludeDirs: []string{"build"}}, &inventory.Static{})
	envs := s.Discover(context.Background(), tmpDir)
	if len(envs) != 1 || envs[0].Name != ".venv" {
		t.Fatalf("Expected only '.venv', got %v", envNames(envs))
	}
}

func TestDiscover_DepthGuard(t *testing.T) {
	tmpDir := t.TempDir()
	// depth 5 is still inspected, depth 6 is not
	makeEnv(t, filepath.Join(tmpDir, "a", "b", "c", "d", "shallow"), true)
	makeEnv(t, filepath.Join(tmpDir, "a", "b", "c", "d", "e", "deep"), true)

	envs := newTestScanner(Options{}, &inventory.Static{}).Discover(context.Background(), tmpDir)
	if len(envs) != 1 || envs[0].Name != "shallow" {
		t.Fatalf("Expected only 'shallow', got %v", envNames(envs))
	}

	envs = newTestScanner(Options{MaxDepth: 6}, &inventory.Static{}).Discover(context.Background(), tmpDir)
	if len(envs) != 2 {
		t.Fatalf("Expected 2 environments with MaxDepth 6, got %v", envNames(envs))
	}
}

func TestDiscover_WindowsLayout(t *testing.T) {
	tmpDir := t.TempDir()
	root := filepath.Join(tmpDir, "winenv")
	if err := os.MkdirAll(filepath.Join(root, "Scripts"), 0755); err != nil {
		t.Fatalf("Failed to create Scripts: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, venv.MarkerFile), nil, 0644); err != nil {
		t.Fatalf("Failed to write marker: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "Scripts", "python.exe"), nil, 0755); err != nil {
		t.Fatalf("Failed to write python.exe: %v", err)
	}

	envs := newTestScanner(Options{OS: "windows"}, &inventory.Static{}).Discover(context.Background(), tmpDir)
	if len(envs) != 1 || !strings.HasSuffix(envs[0].Executable, filepath.Join("Scripts", "python.exe")) {
		t.Fatalf("Expected Scripts/python.exe layout, got %+v", envs)
	}

	envs = newTestScanner(Options{OS: "linux"}, &inventory.Static{}).Discover(context.Background(), tmpDir)
	if len(envs) != 0 {
		t.Errorf("POSIX layout should not accept a Scripts-only env, got %v", envNames(envs))
	}
}

func TestDirSize_SkipsSymlinks(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "a"), make([]byte, 100), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(tmpDir, "sub"), 0755); err != nil {
		t.Fatalf("Failed to create sub: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "sub", "b"), make([]byte, 50), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if err := os.Symlink(filepath.Join(tmpDir, "a"), filepath.Join(tmpDir, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	s := newTestScanner(Options{}, &inventory.Static{})
	if got := s.dirSize(tmpDir); got != 150 {
		t.Errorf("dirSize = %d, want 150", got)
	}
}

func TestDiscover_ReportsIssues(t *testing.T) {
	tmpDir := t.TempDir()
	makeEnv(t, filepath.Join(tmpDir, "env"), true)

	var issues []Issue
	s := newTestScanner(Options{}, &inventory.Static{})
	s.OnIssue = func(issue Issue) { issues = append(issues, issue) }
	s.Discover(context.Background(), tmpDir)

	if len(issues) == 0 {
		t.Fatal("expected version and package failures to be reported")
	}
	for _, issue := range issues {
		if issue.Kind != IssueNotFound {
			t.Errorf("issue kind = %s, want %s (%v)", issue.Kind, IssueNotFound, issue.Err)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want IssueKind
	}{
		{"missing file", fs.ErrNotExist, IssueNotFound},
		{"missing interpreter", inventory.ErrExecutableMissing, IssueNotFound},
		{"permission", fmt.Errorf("read: %w", fs.ErrPermission), IssuePermission},
		{"pip exit", fmt.Errorf("pip list: %w", &venv.CommandError{Name: "pip", ExitCode: 2}), IssueCommand},
		{"other", errors.New("boom"), IssueOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestFindByName_Cascade(t *testing.T) {
	work := t.TempDir()
	legacy := t.TempDir()
	search := t.TempDir()

	makeEnv(t, filepath.Join(work, "shared"), true)
	makeEnv(t, filepath.Join(legacy, "shared"), true)
	makeEnv(t, filepath.Join(legacy, "old"), true)
	makeEnv(t, filepath.Join(search, "deep", "scanned"), true)

	s := newTestScanner(Options{WorkDir: work, LegacyDir: legacy, SearchRoot: search}, &inventory.Static{})
	ctx := context.Background()

	tests := []struct {
		name  string
		want  string
		found bool
	}{
		{"shared", filepath.Join(work, "shared"), true},
		{"old", filepath.Join(legacy, "old"), true},
		{"scanned", filepath.Join(search, "deep", "scanned"), true},
		{"missing", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.FindByName(ctx, tt.name)
			if ok != tt.found || got != tt.want {
				t.Errorf("FindByName(%q) = (%q, %v), want (%q, %v)", tt.name, got, ok, tt.want, tt.found)
			}
		})
	}
}

func TestResolve_ByNameAndPath(t *testing.T) {
	search := t.TempDir()
	env := makeEnv(t, filepath.Join(search, "proj", "venv"), true)
	outside := makeEnv(t, filepath.Join(t.TempDir(), "elsewhere"), true)

	s := newTestScanner(Options{SearchRoot: search}, &inventory.Static{})
	ctx := context.Background()

	got, err := s.Resolve(ctx, "venv")
	if err != nil || got.Path != env {
		t.Errorf("Resolve by name = (%+v, %v)", got, err)
	}
	got, err = s.Resolve(ctx, env)
	if err != nil || got.Path != env {
		t.Errorf("Resolve by path = (%+v, %v)", got, err)
	}
	got, err = s.Resolve(ctx, outside)
	if err != nil || got.Path != outside {
		t.Errorf("Resolve outside root = (%+v, %v)", got, err)
	}
	if _, err := s.Resolve(ctx, "nope"); err != ErrNotFound {
		t.Errorf("Resolve(nope) err = %v, want ErrNotFound", err)
	}
}
