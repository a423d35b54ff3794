// Package constraintstore holds the solver's mutable per-package accumulated
// ranges. It is the one piece of solver state that must support cheap
// backtracking: rather than deep-cloning the whole map at every decision
// point, it keeps a linear journal of prior values and rewinds by
// reverse-applying it, the way a database undo log restores a checkpoint
// without copying the whole table.
package constraintstore

import (
	"github.com/zwilias/elm-json-go/internal/resolveerr"
	"github.com/zwilias/elm-json-go/internal/semver"
)

// entry records what a package's accumulated range was immediately before a
// Tighten call changed it, so Restore can put it back.
type entry struct {
	pkg      semver.PackageName
	had      bool
	oldRange semver.Range
}

// Snapshot marks a position in the journal. It is only ever obtained from
// Store.Snapshot and passed back to Store.Restore; the zero value is the
// empty store.
type Snapshot int

// Store maps PackageName to an accumulated Range, tightened over the course
// of a solve and rewound on backtrack.
type Store struct {
	ranges  map[semver.PackageName]semver.Range
	journal []entry
}

// New returns an empty Store.
func New() *Store {
	return &Store{ranges: make(map[semver.PackageName]semver.Range)}
}

// Get returns the current accumulated range for pkg, or false if pkg is
// unconstrained.
func (s *Store) Get(pkg semver.PackageName) (semver.Range, bool) {
	r, ok := s.ranges[pkg]
	return r, ok
}

// Tighten intersects pkg's accumulated range with r, recording the prior
// value in the journal so it can be undone. fromPackage/fromVersion name the
// dependency declaration that introduced r, purely for Conflict diagnostics;
// pass the zero PackageName and zero Version for a root constraint.
func (s *Store) Tighten(pkg semver.PackageName, r semver.Range, fromPackage semver.PackageName, fromVersion semver.Version) (semver.Range, *resolveerr.Conflict) {
	existing, had := s.ranges[pkg]

	next := r
	if had {
		intersected, ok := existing.Intersect(r)
		if !ok {
			return semver.Range{}, &resolveerr.Conflict{
				Package:     pkg.String(),
				Existing:    existing.String(),
				Incoming:    r.String(),
				FromPackage: nonZeroPackage(fromPackage),
				FromVersion: nonZeroVersion(fromVersion),
			}
		}
		next = intersected
	}

	s.journal = append(s.journal, entry{pkg: pkg, had: had, oldRange: existing})
	s.ranges[pkg] = next
	return next, nil
}

func nonZeroPackage(p semver.PackageName) string {
	if p == (semver.PackageName{}) {
		return ""
	}
	return p.String()
}

func nonZeroVersion(v semver.Version) string {
	if v == (semver.Version{}) {
		return ""
	}
	return v.String()
}

// Snapshot returns a checkpoint of the current journal position.
func (s *Store) Snapshot() Snapshot {
	return Snapshot(len(s.journal))
}

// Restore rewinds the store to the state it was in when snap was taken,
// reverse-applying every journal entry recorded since. Restoring to a
// snapshot taken after the current journal position, or reused after an
// intervening Restore past it, panics: callers only ever hold the most
// recent snapshot on their own call stack, the way the solver's recursive
// backtracking does.
func (s *Store) Restore(snap Snapshot) {
	if int(snap) > len(s.journal) {
		panic("constraintstore: snapshot is ahead of the current journal")
	}
	for i := len(s.journal) - 1; i >= int(snap); i-- {
		e := s.journal[i]
		if e.had {
			s.ranges[e.pkg] = e.oldRange
		} else {
			delete(s.ranges, e.pkg)
		}
	}
	s.journal = s.journal[:snap]
}

// Packages returns every package with an accumulated range, in no
// particular order; callers that need determinism sort the result
// themselves (the solver sorts lexicographically by author/project).
func (s *Store) Packages() []semver.PackageName {
	out := make([]semver.PackageName, 0, len(s.ranges))
	for pkg := range s.ranges {
		out = append(out, pkg)
	}
	return out
}
