// Package frontend implements the five user-facing operations
// (install/uninstall/upgrade/tree/solve) as thin orchestration over the
// manifest, registry, and solver packages, in the same phase-by-phase style
// the teacher's builder.Builder.Build uses: a human-readable phase header
// paired with a structured log line, timing each phase, summarizing counts
// at the end.
package frontend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zwilias/elm-json-go/internal/logging"
	"github.com/zwilias/elm-json-go/internal/manifest"
	"github.com/zwilias/elm-json-go/internal/resolveerr"
	"github.com/zwilias/elm-json-go/internal/semver"
	"github.com/zwilias/elm-json-go/internal/solver"
)

// Prompter confirms a pending write with an out-of-scope collaborator (a
// terminal, a GUI, a test double). install/uninstall/upgrade call it before
// persisting; tree and solve never do, since they don't write.
type Prompter interface {
	Confirm(message string) (bool, error)
}

// AutoConfirm is the non-interactive Prompter used by --yes and tests, and
// the default when no Prompter is set: it always confirms without asking
// anyone.
type AutoConfirm struct{}

// Confirm always reports true.
func (AutoConfirm) Confirm(string) (bool, error) { return true, nil }

// ChangeKind classifies one entry in a manifest diff.
type ChangeKind int

const (
	Added ChangeKind = iota
	Removed
	Changed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "changed"
	}
}

// Change is one line of a dependency-map diff, rendered by install,
// uninstall, and upgrade before they prompt for confirmation.
type Change struct {
	Package semver.PackageName
	Kind    ChangeKind
	Old     string
	New     string
}

func (c Change) String() string {
	switch c.Kind {
	case Added:
		return fmt.Sprintf("+ %s %s", c.Package, c.New)
	case Removed:
		return fmt.Sprintf("- %s %s", c.Package, c.Old)
	default:
		return fmt.Sprintf("~ %s %s -> %s", c.Package, c.Old, c.New)
	}
}

// diffVersionMaps compares two application-style dependency maps.
func diffVersionMaps(old, next map[semver.PackageName]semver.Version) []Change {
	var changes []Change
	for pkg, newV := range next {
		if oldV, ok := old[pkg]; !ok {
			changes = append(changes, Change{Package: pkg, Kind: Added, New: newV.String()})
		} else if oldV != newV {
			changes = append(changes, Change{Package: pkg, Kind: Changed, Old: oldV.String(), New: newV.String()})
		}
	}
	for pkg, oldV := range old {
		if _, ok := next[pkg]; !ok {
			changes = append(changes, Change{Package: pkg, Kind: Removed, Old: oldV.String()})
		}
	}
	return changes
}

// diffRangeMaps compares two package-style dependency maps.
func diffRangeMaps(old, next map[semver.PackageName]semver.Range) []Change {
	var changes []Change
	for pkg, newR := range next {
		if oldR, ok := old[pkg]; !ok {
			changes = append(changes, Change{Package: pkg, Kind: Added, New: newR.String()})
		} else if oldR != newR {
			changes = append(changes, Change{Package: pkg, Kind: Changed, Old: oldR.String(), New: newR.String()})
		}
	}
	for pkg, oldR := range old {
		if _, ok := next[pkg]; !ok {
			changes = append(changes, Change{Package: pkg, Kind: Removed, Old: oldR.String()})
		}
	}
	return changes
}

// renderChanges prints changes the way the teacher's builder summarizes a
// phase: pretty lines in normal mode, one structured log entry per change
// in verbose/debug/json mode.
func renderChanges(log *logging.Logger, changes []Change) {
	if len(changes) == 0 {
		if log.IsNormal() {
			log.Println("  (no changes)")
		} else {
			log.Info("no changes")
		}
		return
	}
	for _, c := range changes {
		if log.IsNormal() {
			log.Print("  %s\n", c)
		} else {
			log.Info("dependency change", "kind", c.Kind.String(), "package", c.Package.String(), "old", c.Old, "new", c.New)
		}
	}
}

// rootConstraints derives the solver's root constraint set from a
// manifest's current direct (and, for packages, test-direct) dependencies:
// an application's exact pins become [v, bump-major(v)) so indirect
// dependencies can still move within the same major, and a package's
// declared ranges are used unchanged.
func rootConstraints(m *manifest.Manifest) map[semver.PackageName]semver.Range {
	out := map[semver.PackageName]semver.Range{}
	if app, ok := m.Application(); ok {
		for pkg, v := range app.Direct {
			out[pkg] = semver.ExactRange(v)
		}
		return out
	}
	if pkg, ok := m.Package(); ok {
		for name, r := range pkg.Dependencies {
			out[name] = r
		}
		for name, r := range pkg.TestDependencies {
			out[name] = r
		}
	}
	return out
}

// elmVersionOf returns the application's pinned elm-version, used to filter
// solver candidates; package manifests have no exact elm-version to filter
// by, so the second return value is false.
func elmVersionOf(m *manifest.Manifest) (semver.Version, bool) {
	if app, ok := m.Application(); ok {
		return app.ElmVersion, true
	}
	return semver.Version{}, false
}

// applyResolution writes a solver.Resolution back into an application
// manifest's Direct/Indirect maps: direct stays whatever the caller already
// decided (install/upgrade set it before solving), everything else becomes
// indirect.
func applyResolution(app *manifest.ApplicationManifest, resolution solver.Resolution) {
	for pkg, v := range resolution {
		if _, isDirect := app.Direct[pkg]; isDirect {
			continue
		}
		if _, isTestDirect := app.TestDirect[pkg]; isTestDirect {
			continue
		}
		app.Indirect[pkg] = v
	}
	for pkg := range app.Indirect {
		if _, stillNeeded := resolution[pkg]; !stillNeeded {
			delete(app.Indirect, pkg)
		}
	}
}

// saveManifest serializes m and writes it atomically to path, reusing the
// write-temp-then-rename discipline the registry cache writer and the
// teacher's mirror.Writer both use.
func saveManifest(path string, m *manifest.Manifest) error {
	data, err := manifest.Emit(m)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, ".elm.json.tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing temp manifest: %v", resolveerr.ErrIoError, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: renaming temp manifest: %v", resolveerr.ErrIoError, err)
	}
	return nil
}

func phaseHeader(log *logging.Logger, pretty string, msg string, kv ...any) {
	if log.IsNormal() {
		log.Print(pretty)
	} else {
		log.Info(msg, kv...)
	}
}

// solveFor runs the solver against m's current constraints, overridden by
// any entries in overrides, with the given preference policy.
func solveFor(ctx context.Context, reg solver.RegistryView, m *manifest.Manifest, overrides map[semver.PackageName]semver.Range, policy solver.Policy) (solver.Resolution, error) {
	root := rootConstraints(m)
	for pkg, r := range overrides {
		root[pkg] = r
	}

	req := solver.Request{Root: root, Policy: policy}
	if ev, ok := elmVersionOf(m); ok {
		req.Application = true
		req.ElmVersion = ev
	}

	return solver.Solve(ctx, reg, req)
}
