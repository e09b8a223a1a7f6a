// Package pep440 covers the part of Python packaging that envpilot needs to
// compare installed packages against requirements: PEP 508 requirement lines,
// PEP 503 names and PEP 440 specifiers.
package pep440

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	version "github.com/aquasecurity/go-pep440-version"
)

var (
	nameRegex      = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?`)
	extraNameRegex = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?$`)
	canonicalRegex = regexp.MustCompile(`[-_.]+`)
)

// ErrEmptyRequirement is returned for blank input
var ErrEmptyRequirement = errors.New("empty requirement")

// Requirement is one PEP 508 dependency line
type Requirement struct {
	Name      string
	Extras    []string
	Specifier SpecifierSet
	// URL is set for direct references ("pkg @ https://...")
	URL string
	// Marker is the environment marker after ';', kept verbatim and never evaluated
	Marker string
	// Raw is the trimmed input line
	Raw string
}

// CanonicalName normalizes a project name per PEP 503 so that
// "Foo_Bar", "foo-bar" and "foo.bar" compare equal
func CanonicalName(name string) string {
	return canonicalRegex.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// Key is the canonical name used for lookups
func (r Requirement) Key() string {
	return CanonicalName(r.Name)
}

// ParseRequirement parses a requirement such as
// `requests[security]>=2.8.1,==2.8.*; python_version < "2.7"`.
// pip options (-r, -e, --index-url) and bare URLs are rejected.
func ParseRequirement(line string) (Requirement, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return Requirement{}, ErrEmptyRequirement
	}

	name := nameRegex.FindString(s)
	if name == "" {
		return Requirement{}, fmt.Errorf("invalid requirement %q: expected package name", line)
	}
	req := Requirement{Name: name, Raw: s}
	rest := strings.TrimSpace(s[len(name):])

	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return Requirement{}, fmt.Errorf("invalid requirement %q: unclosed extras", line)
		}
		for _, extra := range strings.Split(rest[1:end], ",") {
			extra = strings.TrimSpace(extra)
			if extra == "" {
				continue
			}
			if !extraNameRegex.MatchString(extra) {
				return Requirement{}, fmt.Errorf("invalid requirement %q: bad extra %q", line, extra)
			}
			req.Extras = append(req.Extras, extra)
		}
		rest = strings.TrimSpace(rest[end+1:])
	}

	var marker string
	hasMarker := false
	if idx := strings.Index(rest, ";"); idx >= 0 {
		marker = strings.TrimSpace(rest[idx+1:])
		rest = strings.TrimSpace(rest[:idx])
		hasMarker = true
	}

	switch {
	case strings.HasPrefix(rest, "@"):
		url := strings.TrimSpace(rest[1:])
		if url == "" || strings.ContainsAny(url, " \t") {
			return Requirement{}, fmt.Errorf("invalid requirement %q: bad URL", line)
		}
		req.URL = url
	case strings.HasPrefix(rest, "("):
		if !strings.HasSuffix(rest, ")") {
			return Requirement{}, fmt.Errorf("invalid requirement %q: unclosed specifier", line)
		}
		set, err := ParseSpecifierSet(rest[1 : len(rest)-1])
		if err != nil {
			return Requirement{}, fmt.Errorf("invalid requirement %q: %w", line, err)
		}
		req.Specifier = set
	case rest != "":
		set, err := ParseSpecifierSet(rest)
		if err != nil {
			return Requirement{}, fmt.Errorf("invalid requirement %q: %w", line, err)
		}
		req.Specifier = set
	}

	if hasMarker {
		if marker == "" {
			return Requirement{}, fmt.Errorf("invalid requirement %q: empty marker", line)
		}
		req.Marker = marker
	}
	return req, nil
}

// String renders the requirement in normalized form, e.g. "flask[async]>=2.0"
func (r Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if len(r.Extras) > 0 {
		extras := append([]string(nil), r.Extras...)
		sort.Strings(extras)
		b.WriteString("[" + strings.Join(extras, ",") + "]")
	}
	if r.URL != "" {
		b.WriteString(" @ " + r.URL)
		if r.Marker != "" {
			b.WriteString(" ")
		}
	} else {
		b.WriteString(r.Specifier.String())
	}
	if r.Marker != "" {
		b.WriteString("; " + r.Marker)
	}
	return b.String()
}

// Satisfied reports whether an installed version string meets the
// requirement, along with the normalized version. Versions that do not parse
// (VCS builds, odd local tags) cannot be checked and are accepted with an
// empty normalized form.
func (r Requirement) Satisfied(installed string) (bool, string) {
	v, err := version.Parse(installed)
	if err != nil {
		return true, ""
	}
	return r.Specifier.Contains(v), v.String()
}
