package lockfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jenian/envpilot/internal/config"
	"github.com/jenian/envpilot/internal/inventory"
	"github.com/jenian/envpilot/internal/manager"
	"github.com/jenian/envpilot/internal/scanner"
)

// Resolver finds one environment by name or path
type Resolver interface {
	Resolve(ctx context.Context, nameOrPath string) (scanner.Environment, error)
}

// Exporter captures environments into lock files
type Exporter struct {
	resolver Resolver
	packages inventory.Reader
	host     config.Host
	logger   *log.Logger

	// Now is the clock used for export timestamps
	Now func() time.Time
}

// NewExporter creates an exporter for environments on host
func NewExporter(resolver Resolver, packages inventory.Reader, host config.Host, logger *log.Logger) *Exporter {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Exporter{resolver: resolver, packages: packages, host: host, logger: logger, Now: time.Now}
}

// Timestamp formats t in UTC like Python's isoformat() plus a "Z" suffix;
// the fraction is omitted when there are no microseconds
func Timestamp(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/1000 == 0 {
		return t.Format("2006-01-02T15:04:05") + "Z"
	}
	return t.Format("2006-01-02T15:04:05.000000") + "Z"
}

// Details collects metadata and the installed packages of one environment
func (e *Exporter) Details(ctx context.Context, nameOrPath string) (Details, error) {
	env, err := e.resolver.Resolve(ctx, nameOrPath)
	if err != nil {
		return Details{}, fmt.Errorf("failed to resolve %q: %w", nameOrPath, err)
	}
	packages, err := e.packages.ListPackages(ctx, env.Executable)
	if err != nil {
		e.logger.Warn("could not list packages", "env", env.Path, "err", err)
		packages = map[string]string{}
	}
	return Details{
		Metadata: Metadata{
			SourceHost:      e.host.Hostname,
			Platform:        e.host.PythonPlatform(),
			Architecture:    e.host.Machine(),
			PythonVersion:   env.PythonVersion,
			ExportTimestamp: Timestamp(e.Now()),
		},
		Packages: packages,
	}, nil
}

// Export writes the lock file for nameOrPath to outPath and returns outPath
func (e *Exporter) Export(ctx context.Context, nameOrPath, outPath string) (string, error) {
	details, err := e.Details(ctx, nameOrPath)
	if err != nil {
		return "", err
	}
	f, err := New(details)
	if err != nil {
		return "", err
	}
	if err := Write(f, outPath); err != nil {
		return "", err
	}
	e.logger.Debug("exported lock file", "path", outPath, "packages", len(details.Packages))
	return outPath, nil
}

// Importer recreates environments from lock files
type Importer struct {
	creator manager.Creator
	logger  *log.Logger

	// Strict turns a signature mismatch into an error instead of a warning
	Strict bool
	// TempDir holds the generated requirements file; empty means os.TempDir
	TempDir string
}

// NewImporter creates an importer that builds environments with creator
func NewImporter(creator manager.Creator, strict bool, logger *log.Logger) *Importer {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Importer{creator: creator, logger: logger, Strict: strict}
}

// Import creates newName from the packages pinned in lockPath. When the
// environment is created but installation fails, the path is returned
// together with the error.
func (i *Importer) Import(ctx context.Context, lockPath, newName string) (string, error) {
	f, err := Read(lockPath)
	if err != nil {
		return "", err
	}
	if err := Verify(f); err != nil {
		if i.Strict || !errors.Is(err, ErrSignatureMismatch) {
			return "", err
		}
		i.logger.Warn("lock file signature does not match its contents", "path", lockPath)
	}

	tmp, err := os.CreateTemp(i.TempDir, "envpilot-lock-*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary requirements file: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.WriteString(strings.Join(f.Requirements(), "\n") + "\n")
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("failed to write temporary requirements file: %w", err)
	}

	path, err := i.creator.Create(ctx, manager.Request{Name: newName, RequirementsPath: tmp.Name()})
	if err != nil {
		return path, fmt.Errorf("environment creation from lock file failed: %w", err)
	}
	return path, nil
}
