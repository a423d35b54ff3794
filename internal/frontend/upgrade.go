package frontend

import (
	"context"
	"fmt"
	"time"

	"github.com/zwilias/elm-json-go/internal/logging"
	"github.com/zwilias/elm-json-go/internal/manifest"
	"github.com/zwilias/elm-json-go/internal/resolveerr"
	"github.com/zwilias/elm-json-go/internal/semver"
	"github.com/zwilias/elm-json-go/internal/solver"
)

// UpgradeOptions configures Upgrade.
type UpgradeOptions struct {
	ManifestPath string
	Registry     solver.RegistryView
	// Packages restricts the upgrade to these names; empty means every
	// direct dependency.
	Packages []semver.PackageName
	// Unsafe allows a dependency to move to a new major version. Without
	// it, each targeted dependency is pinned to [current, bump-major(current)).
	Unsafe   bool
	Prompter Prompter
	Log      *logging.Logger
}

func (o UpgradeOptions) log() *logging.Logger {
	if o.Log != nil {
		return o.Log
	}
	return logging.Default()
}

func (o UpgradeOptions) prompter() Prompter {
	if o.Prompter != nil {
		return o.Prompter
	}
	return AutoConfirm{}
}

// UpgradeResult is what Upgrade produced.
type UpgradeResult struct {
	Manifest *manifest.Manifest
	Changes  []Change
	Wrote    bool
}

var unboundedHigh = semver.Version{Major: ^uint64(0)}

// Upgrade re-solves the manifest's direct dependencies against a relaxed
// root constraint. Upgrade is only defined for application manifests: a
// package manifest declares ranges already, and spec-level upgrade
// semantics for that variant are deliberately left undefined, so this
// rejects rather than guesses.
func Upgrade(ctx context.Context, opts UpgradeOptions) (*UpgradeResult, error) {
	log := opts.log()
	start := time.Now()

	phaseHeader(log, "→ Loading manifest...\n", "loading manifest", "path", opts.ManifestPath)
	m, err := manifest.Load(opts.ManifestPath)
	if err != nil {
		return nil, err
	}

	app, ok := m.Application()
	if !ok {
		return nil, fmt.Errorf("%w: %s", resolveerr.ErrUnsupportedUpgradeTarget, opts.ManifestPath)
	}

	targets := opts.Packages
	if len(targets) == 0 {
		for pkg := range app.Direct {
			targets = append(targets, pkg)
		}
	}

	beforeDirect, _ := snapshotDependencies(m)

	overrides := make(map[semver.PackageName]semver.Range, len(targets))
	for _, pkg := range targets {
		current, isDirect := app.Direct[pkg]
		if !isDirect {
			return nil, fmt.Errorf("%s is not a direct dependency of %s", pkg, opts.ManifestPath)
		}
		if opts.Unsafe {
			overrides[pkg] = semver.Range{Low: semver.Version{}, High: unboundedHigh}
		} else {
			overrides[pkg] = semver.ExactRange(current)
		}
	}

	phaseHeader(log, "→ Solving dependency graph...\n", "solving")
	resolution, err := solveFor(ctx, opts.Registry, m, overrides, solver.Maximize)
	if err != nil {
		return nil, fmt.Errorf("solving during upgrade: %w", err)
	}

	next := m
	for _, pkg := range targets {
		next = next.WithDirect(pkg, resolution[pkg])
	}
	nextApp, _ := next.Application()
	applyResolution(nextApp, resolution)
	next = manifest.NewApplication(*nextApp)

	afterDirect, _ := snapshotDependencies(next)
	changes := diffVersionMaps(beforeDirect, afterDirect)

	if log.IsNormal() {
		log.Print("  Solved in %s\n", time.Since(start).Round(time.Millisecond))
	} else {
		log.Info("upgrade resolved", "duration", time.Since(start).Round(time.Millisecond))
	}
	renderChanges(log, changes)

	confirmed, err := opts.prompter().Confirm("Write changes to " + opts.ManifestPath + "?")
	if err != nil {
		return nil, err
	}
	if !confirmed {
		return &UpgradeResult{Manifest: next, Changes: changes, Wrote: false}, nil
	}

	if err := saveManifest(opts.ManifestPath, next); err != nil {
		return nil, err
	}
	return &UpgradeResult{Manifest: next, Changes: changes, Wrote: true}, nil
}
