// Package matcher scores discovered environments against a manifest's
// requirements and ranks them.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/jenian/envpilot/internal/inventory"
	"github.com/jenian/envpilot/internal/manifest"
	"github.com/jenian/envpilot/internal/pep440"
	"github.com/jenian/envpilot/internal/scanner"
)

// extraPenalty is subtracted from the match percentage per extra package
const extraPenalty = 0.1

var (
	// ErrNoRequirements is returned when a manifest yields nothing to match
	ErrNoRequirements = errors.New("no requirements could be parsed")
	// ErrEnvironmentNotFound is returned when a named environment was not discovered
	ErrEnvironmentNotFound = errors.New("environment not found")
)

// Result is the outcome of matching one environment
type Result struct {
	Environment     scanner.Environment `json:"environment"`
	MatchPercentage float64             `json:"match_percentage"`
	Missing         []string            `json:"missing"`
	ExtraCount      int                 `json:"extra_packages"`
	Score           float64             `json:"score"`
}

// Score compares requirements against an installed inventory (lowercase
// name -> version). It returns the percentage of requirements met, a
// description of each unmet one in requirement order, and the number of
// installed packages no requirement names.
func Score(reqs []pep440.Requirement, installed map[string]string) (float64, []string, int) {
	missing := []string{}
	if len(reqs) == 0 {
		return 100, missing, len(installed)
	}

	byName := make(map[string]string, len(installed))
	for name, version := range installed {
		byName[pep440.CanonicalName(name)] = version
	}

	required := make(map[string]bool, len(reqs))
	matched := 0
	for _, req := range reqs {
		key := req.Key()
		required[key] = true

		version, ok := byName[key]
		if !ok {
			missing = append(missing, describe(req))
			continue
		}
		if ok, v := req.Satisfied(version); ok {
			matched++
		} else {
			missing = append(missing, fmt.Sprintf("%s (found %s, need %s)", req.Name, v, req.Specifier))
		}
	}

	extra := 0
	for name := range byName {
		if !required[name] {
			extra++
		}
	}
	return 100 * float64(matched) / float64(len(reqs)), missing, extra
}

// describe returns the requirement as it was written
func describe(req pep440.Requirement) string {
	if req.Raw != "" {
		return req.Raw
	}
	return req.String()
}

// RankScore is the sort key: percentage first, extra packages as a small penalty
func RankScore(pct float64, extra int) float64 {
	return pct - extraPenalty*float64(extra)
}

// Discoverer finds environments below a root
type Discoverer interface {
	Discover(ctx context.Context, root string) []scanner.Environment
}

// Matcher ranks environments against manifests
type Matcher struct {
	discoverer Discoverer
	packages   inventory.Reader
	manifests  *manifest.Parser
	root       string
	workers    int
	logger     *log.Logger
}

// Options configures a Matcher
type Options struct {
	// Root is the directory searched for environments
	Root string
	// Workers bounds concurrent inventory reads; 1 or less reads sequentially
	Workers int
}

// NewMatcher creates a matcher
func NewMatcher(discoverer Discoverer, packages inventory.Reader, opts Options, logger *log.Logger) *Matcher {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Matcher{
		discoverer: discoverer,
		packages:   packages,
		manifests:  manifest.NewParser(logger),
		root:       opts.Root,
		workers:    opts.Workers,
		logger:     logger,
	}
}

// Rank scores every environment under the search root (or only the one
// named envName) against the manifest and returns them best first. Equal
// scores keep discovery order.
func (m *Matcher) Rank(ctx context.Context, manifestPath, envName string) ([]Result, error) {
	reqs := m.manifests.Parse(manifestPath)
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRequirements, manifestPath)
	}

	envs := m.discoverer.Discover(ctx, m.root)
	if envName != "" {
		envs = filterByName(envs, envName)
		if len(envs) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEnvironmentNotFound, envName)
		}
	}

	inventories, err := m.readInventories(ctx, envs)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(envs))
	for i, env := range envs {
		pct, missing, extra := Score(reqs, inventories[i])
		results[i] = Result{
			Environment:     env,
			MatchPercentage: pct,
			Missing:         missing,
			ExtraCount:      extra,
			Score:           RankScore(pct, extra),
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

// filterByName keeps the first environment with exactly this name
func filterByName(envs []scanner.Environment, name string) []scanner.Environment {
	for _, env := range envs {
		if env.Name == name {
			return []scanner.Environment{env}
		}
	}
	return nil
}

// readInventories lists the packages of each environment. A failed listing
// counts as an empty inventory. Slot i always belongs to envs[i], so the
// parallel and sequential paths produce identical results.
func (m *Matcher) readInventories(ctx context.Context, envs []scanner.Environment) ([]map[string]string, error) {
	inventories := make([]map[string]string, len(envs))
	read := func(ctx context.Context, i int) {
		pkgs, err := m.packages.ListPackages(ctx, envs[i].Executable)
		if err != nil {
			m.logger.Debug("inventory unavailable", "env", envs[i].Path, "err", err)
			pkgs = map[string]string{}
		}
		inventories[i] = pkgs
	}

	if m.workers <= 1 || len(envs) <= 1 {
		for i := range envs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			read(ctx, i)
		}
		return inventories, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i := range envs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			read(gctx, i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return inventories, nil
}
