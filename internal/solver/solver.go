// Package solver implements the backtracking search with forward constraint
// propagation that turns a set of root version constraints into a concrete
// PackageName -> Version assignment. It is deliberately registry-agnostic:
// callers hand it a RegistryView, so tests can run the whole algorithm
// against an in-memory fake without touching HTTP or disk, the same
// separation the teacher's resolver.Resolver keeps from registry.Client.
package solver

import (
	"context"
	"fmt"
	"sort"

	"github.com/zwilias/elm-json-go/internal/constraintstore"
	"github.com/zwilias/elm-json-go/internal/manifest"
	"github.com/zwilias/elm-json-go/internal/resolveerr"
	"github.com/zwilias/elm-json-go/internal/semver"
)

// RegistryView is the subset of registry.Client the solver depends on.
// Shaped after the Source interface in the pubgrub reference implementation
// (GetVersions/GetDependencies), narrowed to this domain's two operations.
type RegistryView interface {
	ListVersions(ctx context.Context, pkg semver.PackageName) ([]semver.Version, error)
	FetchManifest(ctx context.Context, pkg semver.PackageName, v semver.Version) (*manifest.PackageManifest, error)
}

// Policy orders candidate versions for a package: Maximize tries the
// newest first, Minimize the oldest.
type Policy int

const (
	Maximize Policy = iota
	Minimize
)

func (p Policy) order(versions []semver.Version) []semver.Version {
	ordered := make([]semver.Version, len(versions))
	copy(ordered, versions)
	sort.Slice(ordered, func(i, j int) bool {
		if p == Minimize {
			return ordered[i].Less(ordered[j])
		}
		return ordered[j].Less(ordered[i])
	})
	return ordered
}

// Request is the solver's input: the root constraints to satisfy plus the
// policy and, for an application target, the exact elm-version to filter
// candidate packages against.
type Request struct {
	Root        map[semver.PackageName]semver.Range
	Policy      Policy
	Application bool
	ElmVersion  semver.Version
}

// Resolution is the solver's output: one chosen version per package reached
// from the root constraints.
type Resolution map[semver.PackageName]semver.Version

// Solve runs backtracking search with forward propagation to satisfy req
// against reg, returning a complete Resolution or a wrapped
// resolveerr.ErrUnsolvable / resolveerr.ErrNoMatchingVersions.
func Solve(ctx context.Context, reg RegistryView, req Request) (Resolution, error) {
	st := &state{
		reg:        reg,
		store:      constraintstore.New(),
		selections: make(Resolution),
		pending:    map[semver.PackageName]bool{},
		policy:     req.Policy,
		app:        req.Application,
		elmVersion: req.ElmVersion,
	}

	for pkg, r := range req.Root {
		if _, conflict := st.store.Tighten(pkg, r, semver.PackageName{}, semver.Version{}); conflict != nil {
			return nil, conflict
		}
		st.pending[pkg] = true
	}

	if err := st.solve(ctx); err != nil {
		return nil, err
	}
	return st.selections, nil
}

// state is the solver's mutable search state for a single Solve call.
type state struct {
	reg        RegistryView
	store      *constraintstore.Store
	selections Resolution
	pending    map[semver.PackageName]bool
	policy     Policy
	app        bool
	elmVersion semver.Version
}

// pendingSnapshot copies the pending set so a failed decision can restore
// exactly the queue membership it had before recursing. The set is always
// small relative to the registry, so a copy here is not the expensive part
// backtracking needs to avoid — that is the range-accumulation map, which
// constraintstore.Store restores via journal replay instead of copying.
func (s *state) pendingSnapshot() map[semver.PackageName]bool {
	snap := make(map[semver.PackageName]bool, len(s.pending))
	for p := range s.pending {
		snap[p] = true
	}
	return snap
}

// dequeue picks the lexicographically smallest pending package, so solver
// output depends only on accumulated state and never on discovery order.
func (s *state) dequeue() (semver.PackageName, bool) {
	if len(s.pending) == 0 {
		return semver.PackageName{}, false
	}
	var chosen semver.PackageName
	first := true
	for p := range s.pending {
		if first || lessPackage(p, chosen) {
			chosen = p
			first = false
		}
	}
	delete(s.pending, chosen)
	return chosen, true
}

func lessPackage(a, b semver.PackageName) bool {
	if a.Author != b.Author {
		return a.Author < b.Author
	}
	return a.Project < b.Project
}

// solve dequeues one package and tries each candidate version in turn,
// recursing to solve the rest of the queue under that tentative pick. It
// returns nil once the queue empties with every decision consistent, or the
// most recent failure once every candidate (and every candidate of every
// package below it) has been exhausted.
func (s *state) solve(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", resolveerr.ErrCancelled, err)
	}

	pkg, ok := s.dequeue()
	if !ok {
		return nil
	}

	rng, _ := s.store.Get(pkg)

	versions, err := s.reg.ListVersions(ctx, pkg)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %v", resolveerr.ErrCancelled, ctxErr)
		}
		return fmt.Errorf("listing versions for %s: %w", pkg, err)
	}

	var candidates []semver.Version
	for _, v := range versions {
		if rng.Contains(v) {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return fmt.Errorf("%w: %s has no version in %s", resolveerr.ErrNoMatchingVersions, pkg, rng)
	}

	var lastErr error
	for _, v := range s.policy.order(candidates) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", resolveerr.ErrCancelled, err)
		}

		pm, err := s.reg.FetchManifest(ctx, pkg, v)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("%w: %v", resolveerr.ErrCancelled, ctxErr)
			}
			lastErr = fmt.Errorf("fetching manifest for %s@%s: %w", pkg, v, err)
			continue
		}

		if s.app && !pm.ElmVersion.Contains(s.elmVersion) {
			continue
		}

		storeSnap := s.store.Snapshot()
		pendingSnap := s.pendingSnapshot()
		prevSelection, hadPrevSelection := s.selections[pkg]

		s.selections[pkg] = v

		conflict := s.propagate(pkg, v, pm)
		if conflict != nil {
			lastErr = conflict
			s.store.Restore(storeSnap)
			s.pending = pendingSnap
			restoreSelection(s.selections, pkg, prevSelection, hadPrevSelection)
			continue
		}

		if err := s.solve(ctx); err != nil {
			lastErr = err
			s.store.Restore(storeSnap)
			s.pending = pendingSnap
			restoreSelection(s.selections, pkg, prevSelection, hadPrevSelection)
			continue
		}

		return nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%w: %s has no candidate whose elm-version range admits %s", resolveerr.ErrNoMatchingVersions, pkg, s.elmVersion)
	}
	return lastErr
}

func restoreSelection(selections Resolution, pkg semver.PackageName, prev semver.Version, had bool) {
	if had {
		selections[pkg] = prev
	} else {
		delete(selections, pkg)
	}
}

// propagate tightens every dependency pm declares and enqueues any package
// whose accumulated range changed such that its current selection (if any)
// is no longer valid, or that has no selection yet.
func (s *state) propagate(fromPkg semver.PackageName, fromVersion semver.Version, pm *manifest.PackageManifest) *resolveerr.Conflict {
	for dep, depRange := range pm.Dependencies {
		newRange, conflict := s.store.Tighten(dep, depRange, fromPkg, fromVersion)
		if conflict != nil {
			return conflict
		}

		selected, hasSelection := s.selections[dep]
		if !hasSelection || !newRange.Contains(selected) {
			s.pending[dep] = true
		}
	}
	return nil
}
