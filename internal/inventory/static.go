package inventory

import (
	"context"
	"fmt"
)

// Static serves inventories and versions from memory, keyed by executable path
type Static struct {
	Packages map[string]map[string]string
	Versions map[string]string
}

// ListPackages returns a copy of the inventory registered for executable
func (s *Static) ListPackages(_ context.Context, executable string) (map[string]string, error) {
	pkgs, ok := s.Packages[executable]
	if !ok {
		return map[string]string{}, fmt.Errorf("%w: %s", ErrManagerMissing, executable)
	}
	out := make(map[string]string, len(pkgs))
	for name, version := range pkgs {
		out[name] = version
	}
	return out, nil
}

// CountPackages returns the size of the registered inventory
func (s *Static) CountPackages(ctx context.Context, executable string) (int, error) {
	pkgs, err := s.ListPackages(ctx, executable)
	return len(pkgs), err
}

// PythonVersion returns the registered version or UnknownVersion
func (s *Static) PythonVersion(_ context.Context, executable string) (string, error) {
	v, ok := s.Versions[executable]
	if !ok {
		return UnknownVersion, fmt.Errorf("%w: %s", ErrExecutableMissing, executable)
	}
	return v, nil
}
