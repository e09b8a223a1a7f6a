package manifest

import (
	"fmt"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

type pyproject struct {
	Project struct {
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
}

// pyprojectEntries returns [project].dependencies followed by every
// optional-dependencies group, groups in name order
func pyprojectEntries(content []byte) ([]string, error) {
	var doc pyproject
	if err := toml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode pyproject.toml: %w", err)
	}

	entries := append([]string(nil), doc.Project.Dependencies...)
	groups := make([]string, 0, len(doc.Project.OptionalDependencies))
	for group := range doc.Project.OptionalDependencies {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	for _, group := range groups {
		entries = append(entries, doc.Project.OptionalDependencies[group]...)
	}
	return entries, nil
}
