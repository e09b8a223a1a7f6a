// Package manifest reads dependency manifests (requirements files,
// pyproject.toml and setup.py) into requirement lists.
package manifest

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/jenian/envpilot/internal/pep440"
)

// Kind identifies a manifest format
type Kind string

const (
	KindRequirements Kind = "requirements"
	KindPyProject    Kind = "pyproject"
	KindSetupPy      Kind = "setup.py"
)

// DetectKind picks the format from the file name. Anything that is not
// pyproject.toml or setup.py is read as a requirements file.
func DetectKind(path string) Kind {
	switch strings.ToLower(filepath.Base(path)) {
	case "pyproject.toml":
		return KindPyProject
	case "setup.py":
		return KindSetupPy
	default:
		return KindRequirements
	}
}

// Parser turns manifest files into requirements
type Parser struct {
	logger *log.Logger
}

// NewParser creates a parser. A nil logger discards output.
func NewParser(logger *log.Logger) *Parser {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Parser{logger: logger}
}

// Parse reads path with a discarding logger
func Parse(path string) []pep440.Requirement {
	return NewParser(nil).Parse(path)
}

// Parse reads the manifest at path. A missing or unreadable file yields an
// empty list, and entries that are not valid requirements are dropped.
func (p *Parser) Parse(path string) []pep440.Requirement {
	content, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("failed to read manifest", "path", path, "err", err)
		} else {
			p.logger.Debug("manifest not found", "path", path)
		}
		return []pep440.Requirement{}
	}

	kind := DetectKind(path)
	var entries []string
	switch kind {
	case KindPyProject:
		entries, err = pyprojectEntries(content)
	case KindSetupPy:
		entries, err = setupPyEntries(content)
	default:
		entries = requirementLines(content)
	}
	if err != nil {
		p.logger.Warn("failed to parse manifest", "path", path, "kind", kind, "err", err)
		return []pep440.Requirement{}
	}

	reqs := make([]pep440.Requirement, 0, len(entries))
	for _, entry := range entries {
		req, err := pep440.ParseRequirement(entry)
		if err != nil {
			p.logger.Debug("skipping manifest entry", "path", path, "entry", entry, "err", err)
			continue
		}
		reqs = append(reqs, req)
	}
	p.logger.Debug("parsed manifest", "path", path, "kind", kind, "requirements", len(reqs))
	return reqs
}

// requirementLines returns the candidate lines of a requirements file:
// blanks and comment lines are skipped, inline " #" comments are cut.
func requirementLines(content []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if idx := strings.Index(line, " #"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		lines = append(lines, line)
	}
	return lines
}
