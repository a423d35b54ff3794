package frontend

import (
	"context"
	"fmt"
	"time"

	"dario.cat/mergo"

	"github.com/zwilias/elm-json-go/internal/logging"
	"github.com/zwilias/elm-json-go/internal/manifest"
	"github.com/zwilias/elm-json-go/internal/resolveerr"
	"github.com/zwilias/elm-json-go/internal/semver"
	"github.com/zwilias/elm-json-go/internal/solver"
)

// PackageRequest is one package named on an install command line. A nil
// Version means "latest available".
type PackageRequest struct {
	Package semver.PackageName
	Version *semver.Version
}

// InstallOptions configures Install.
type InstallOptions struct {
	ManifestPath string
	Registry     solver.RegistryView
	Packages     []PackageRequest
	Test         bool // add as a test-dependency instead of a regular one
	Prompter     Prompter
	Log          *logging.Logger
}

func (o InstallOptions) log() *logging.Logger {
	if o.Log != nil {
		return o.Log
	}
	return logging.Default()
}

func (o InstallOptions) prompter() Prompter {
	if o.Prompter != nil {
		return o.Prompter
	}
	return AutoConfirm{}
}

// InstallResult is what Install produced.
type InstallResult struct {
	Manifest *manifest.Manifest
	Changes  []Change
	Wrote    bool
}

// Install adds the requested packages as direct (or test-direct)
// dependencies and re-solves, persisting the result if the prompter
// confirms. Application targets pin exactly the requested version (or,
// with no version given, the highest published one) and re-solve the rest
// around it; package targets persist the compatibility range
// [v, bump-major(v)) for the requested (or latest) version, per spec-level
// install semantics.
func Install(ctx context.Context, opts InstallOptions) (*InstallResult, error) {
	log := opts.log()
	start := time.Now()

	phaseHeader(log, "→ Loading manifest...\n", "loading manifest", "path", opts.ManifestPath)
	m, err := manifest.Load(opts.ManifestPath)
	if err != nil {
		return nil, err
	}

	beforeDirect, beforeRanges := snapshotDependencies(m)

	phaseHeader(log, "→ Resolving requested package versions...\n", "resolving requested versions")
	overrides, err := resolveRequestOverrides(ctx, opts.Registry, opts.Packages)
	if err != nil {
		return nil, err
	}

	next, err := applyInstallRequests(m, opts.Packages, overrides, opts.Test)
	if err != nil {
		return nil, err
	}

	phaseHeader(log, "→ Solving dependency graph...\n", "solving")
	resolution, err := solveFor(ctx, opts.Registry, next, overrides, solver.Maximize)
	if err != nil {
		return nil, fmt.Errorf("solving after install: %w", err)
	}

	if app, ok := next.Application(); ok {
		applyResolution(app, resolution)
		next = manifest.NewApplication(*app)
	}

	afterDirect, afterRanges := snapshotDependencies(next)
	changes := append(diffVersionMaps(beforeDirect, afterDirect), diffRangeMaps(beforeRanges, afterRanges)...)

	if log.IsNormal() {
		log.Print("  Resolved in %s\n", time.Since(start).Round(time.Millisecond))
	} else {
		log.Info("install resolved", "duration", time.Since(start).Round(time.Millisecond))
	}
	renderChanges(log, changes)

	confirmed, err := opts.prompter().Confirm("Write changes to " + opts.ManifestPath + "?")
	if err != nil {
		return nil, err
	}
	if !confirmed {
		return &InstallResult{Manifest: next, Changes: changes, Wrote: false}, nil
	}

	if err := saveManifest(opts.ManifestPath, next); err != nil {
		return nil, err
	}
	return &InstallResult{Manifest: next, Changes: changes, Wrote: true}, nil
}

// snapshotDependencies captures the maps a diff is computed over: an
// application's flattened Direct+Indirect versions, or a package's
// Dependencies ranges.
func snapshotDependencies(m *manifest.Manifest) (map[semver.PackageName]semver.Version, map[semver.PackageName]semver.Range) {
	if app, ok := m.Application(); ok {
		flat := make(map[semver.PackageName]semver.Version, len(app.Direct)+len(app.Indirect))
		for pkg, v := range app.Direct {
			flat[pkg] = v
		}
		for pkg, v := range app.Indirect {
			flat[pkg] = v
		}
		return flat, nil
	}
	if pkg, ok := m.Package(); ok {
		return nil, pkg.Dependencies
	}
	return nil, nil
}

// resolveRequestOverrides turns each PackageRequest into a root-constraint
// override: an explicit version becomes its exact compatibility range, and
// "latest" is resolved by asking the registry for the highest published
// version.
func resolveRequestOverrides(ctx context.Context, reg solver.RegistryView, requests []PackageRequest) (map[semver.PackageName]semver.Range, error) {
	overrides := make(map[semver.PackageName]semver.Range, len(requests))
	for _, req := range requests {
		if req.Version != nil {
			overrides[req.Package] = semver.ExactRange(*req.Version)
			continue
		}
		versions, err := reg.ListVersions(ctx, req.Package)
		if err != nil {
			return nil, fmt.Errorf("listing versions for %s: %w", req.Package, err)
		}
		if len(versions) == 0 {
			return nil, fmt.Errorf("%w: %s", resolveerr.ErrNoMatchingVersions, req.Package)
		}
		latest := versions[0]
		for _, v := range versions[1:] {
			if latest.Less(v) {
				latest = v
			}
		}
		overrides[req.Package] = semver.ExactRange(latest)
	}
	return overrides, nil
}

// applyInstallRequests merges the requested packages into the manifest's
// direct-dependency map and returns the resulting manifest. The merge goes
// through mergo so a caller handing in a partially-populated override map
// (e.g. only new packages, not ones already direct) composes correctly with
// whatever is already there instead of silently overwriting it.
func applyInstallRequests(m *manifest.Manifest, requests []PackageRequest, overrides map[semver.PackageName]semver.Range, test bool) (*manifest.Manifest, error) {
	out := m
	if app, ok := m.Application(); ok {
		requestedVersions := make(map[semver.PackageName]semver.Version, len(requests))
		for _, req := range requests {
			r := overrides[req.Package]
			requestedVersions[req.Package] = r.Low
		}

		combined := make(map[semver.PackageName]semver.Version, len(app.Direct))
		for pkg, v := range app.Direct {
			combined[pkg] = v
		}
		if err := mergo.Merge(&combined, requestedVersions, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging requested packages: %w", err)
		}

		for pkg, v := range combined {
			if test {
				if _, requested := requestedVersions[pkg]; requested {
					out = out.WithTestDirect(pkg, v)
				}
			} else {
				out = out.WithDirect(pkg, v)
			}
		}
		return out, nil
	}

	if _, ok := m.Package(); ok {
		for _, req := range requests {
			r := overrides[req.Package]
			var err error
			if test {
				out, err = withTestDirectRange(out, req.Package, r)
			} else {
				out, err = out.WithDirectRange(req.Package, r)
			}
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	return nil, fmt.Errorf("%w: manifest has neither variant set", resolveerr.ErrMalformedManifest)
}

// withTestDirectRange mirrors Manifest.WithDirectRange for a package
// manifest's test-dependencies map; Manifest exposes no direct method for
// it because application manifests store test-direct as exact versions, not
// ranges, so the two can't share one signature.
func withTestDirectRange(m *manifest.Manifest, pkg semver.PackageName, r semver.Range) (*manifest.Manifest, error) {
	pm, ok := m.Package()
	if !ok {
		return nil, fmt.Errorf("application manifests cannot declare a test-dependency range for %s", pkg)
	}
	clone := *pm
	clone.Dependencies = cloneRangeMapForFrontend(pm.Dependencies)
	clone.TestDependencies = cloneRangeMapForFrontend(pm.TestDependencies)
	delete(clone.Dependencies, pkg)
	clone.TestDependencies[pkg] = r
	return manifest.NewPackage(clone), nil
}

func cloneRangeMapForFrontend(m map[semver.PackageName]semver.Range) map[semver.PackageName]semver.Range {
	out := make(map[semver.PackageName]semver.Range, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
