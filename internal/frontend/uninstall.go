package frontend

import (
	"context"
	"fmt"
	"time"

	"github.com/zwilias/elm-json-go/internal/logging"
	"github.com/zwilias/elm-json-go/internal/manifest"
	"github.com/zwilias/elm-json-go/internal/semver"
	"github.com/zwilias/elm-json-go/internal/solver"
)

// UninstallOptions configures Uninstall.
type UninstallOptions struct {
	ManifestPath string
	Registry     solver.RegistryView
	Packages     []semver.PackageName
	Prompter     Prompter
	Log          *logging.Logger
}

func (o UninstallOptions) log() *logging.Logger {
	if o.Log != nil {
		return o.Log
	}
	return logging.Default()
}

func (o UninstallOptions) prompter() Prompter {
	if o.Prompter != nil {
		return o.Prompter
	}
	return AutoConfirm{}
}

// UninstallResult is what Uninstall produced.
type UninstallResult struct {
	Manifest *manifest.Manifest
	Changes  []Change
	Wrote    bool
}

// Uninstall removes the named packages from the manifest's direct maps and
// re-solves, so indirect dependencies that are no longer needed by any
// surviving direct dependency drop out, and any indirect dependency still
// required elsewhere is retained.
func Uninstall(ctx context.Context, opts UninstallOptions) (*UninstallResult, error) {
	log := opts.log()
	start := time.Now()

	phaseHeader(log, "→ Loading manifest...\n", "loading manifest", "path", opts.ManifestPath)
	m, err := manifest.Load(opts.ManifestPath)
	if err != nil {
		return nil, err
	}

	beforeDirect, beforeRanges := snapshotDependencies(m)

	next := m
	for _, pkg := range opts.Packages {
		next = next.Without(pkg)
	}

	phaseHeader(log, "→ Re-solving dependency graph...\n", "solving")
	resolution, err := solveFor(ctx, opts.Registry, next, nil, solver.Maximize)
	if err != nil {
		return nil, fmt.Errorf("solving after uninstall: %w", err)
	}

	if app, ok := next.Application(); ok {
		app.Indirect = map[semver.PackageName]semver.Version{}
		applyResolution(app, resolution)
		next = manifest.NewApplication(*app)
	}

	afterDirect, afterRanges := snapshotDependencies(next)
	changes := append(diffVersionMaps(beforeDirect, afterDirect), diffRangeMaps(beforeRanges, afterRanges)...)

	if log.IsNormal() {
		log.Print("  Re-solved in %s\n", time.Since(start).Round(time.Millisecond))
	} else {
		log.Info("uninstall resolved", "duration", time.Since(start).Round(time.Millisecond))
	}
	renderChanges(log, changes)

	confirmed, err := opts.prompter().Confirm("Write changes to " + opts.ManifestPath + "?")
	if err != nil {
		return nil, err
	}
	if !confirmed {
		return &UninstallResult{Manifest: next, Changes: changes, Wrote: false}, nil
	}

	if err := saveManifest(opts.ManifestPath, next); err != nil {
		return nil, err
	}
	return &UninstallResult{Manifest: next, Changes: changes, Wrote: true}, nil
}
