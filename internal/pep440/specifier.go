package pep440

import (
	"fmt"
	"sort"
	"strings"

	version "github.com/aquasecurity/go-pep440-version"
)

// Operators, longest first so prefix matching picks "===" over "==".
var operators = []string{"===", "~=", "==", "!=", "<=", ">=", "<", ">"}

// SpecifierSet is a conjunction of clauses such as ">=1.0,<2". The zero
// value accepts every version.
type SpecifierSet struct {
	clauses []string
	specs   version.Specifiers
}

// ParseSpecifierSet parses a comma separated list such as ">=1.0, <2".
// Every clause needs one of the PEP 440 operators.
func ParseSpecifierSet(s string) (SpecifierSet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SpecifierSet{}, nil
	}
	if strings.Contains(s, "|") {
		return SpecifierSet{}, fmt.Errorf("invalid specifier %q", s)
	}

	var clauses []string
	for _, part := range strings.Split(s, ",") {
		clause, err := normalizeClause(part)
		if err != nil {
			return SpecifierSet{}, err
		}
		clauses = append(clauses, clause)
	}

	specs, err := version.NewSpecifiers(strings.Join(clauses, ","))
	if err != nil {
		return SpecifierSet{}, fmt.Errorf("invalid specifier %q: %w", s, err)
	}
	return SpecifierSet{clauses: clauses, specs: specs}, nil
}

// normalizeClause strips the whitespace between operator and version
func normalizeClause(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, op := range operators {
		if !strings.HasPrefix(s, op) {
			continue
		}
		v := strings.TrimSpace(s[len(op):])
		if v == "" {
			return "", fmt.Errorf("missing version in specifier %q", s)
		}
		if strings.ContainsAny(v, " \t") {
			return "", fmt.Errorf("invalid version in specifier %q", s)
		}
		return op + v, nil
	}
	return "", fmt.Errorf("missing operator in specifier %q", s)
}

// Empty reports whether the set has no clauses
func (set SpecifierSet) Empty() bool {
	return len(set.clauses) == 0
}

// Contains reports whether v satisfies every clause. Pre-releases are
// accepted, but "<2.0" still rejects "2.0rc1" since it belongs to the 2.0
// series.
func (set SpecifierSet) Contains(v version.Version) bool {
	if set.Empty() {
		return true
	}
	return set.specs.Check(v)
}

// String joins the clauses in sorted order, e.g. "<2,>=1.0"
func (set SpecifierSet) String() string {
	parts := append([]string(nil), set.clauses...)
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
