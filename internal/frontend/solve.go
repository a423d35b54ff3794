package frontend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/zwilias/elm-json-go/internal/logging"
	"github.com/zwilias/elm-json-go/internal/manifest"
	"github.com/zwilias/elm-json-go/internal/semver"
	"github.com/zwilias/elm-json-go/internal/solver"
)

// SolveOptions configures Solve.
type SolveOptions struct {
	ManifestPath string
	Registry     solver.RegistryView
	Minimize     bool
	// Extra injects additional root constraints on top of whatever the
	// manifest already declares, the same way install merges a requested
	// addition in before solving.
	Extra map[semver.PackageName]semver.Range
	// Fingerprint, when true, hashes the resulting Resolution so two
	// invocations can be compared for determinism without diffing full
	// JSON output.
	Fingerprint bool
	Log         *logging.Logger
	// Stdout receives the emitted resolution in the exchange format; nil
	// defaults to os.Stdout. Tests substitute a buffer.
	Stdout io.Writer
}

func (o SolveOptions) log() *logging.Logger {
	if o.Log != nil {
		return o.Log
	}
	return logging.Default()
}

func (o SolveOptions) stdout() io.Writer {
	if o.Stdout != nil {
		return o.Stdout
	}
	return os.Stdout
}

// SolveResult is what Solve produced.
type SolveResult struct {
	Resolution  solver.Resolution
	Fingerprint uint64
}

// solveOutput is the exchange-format payload solve writes to standard
// output: an author/project -> version map, sorted lexicographically by
// json.Marshal's automatic key-ordering, the same shape a manifest's own
// dependency maps use. Fingerprint is included only when requested.
type solveOutput struct {
	Dependencies map[semver.PackageName]semver.Version `json:"dependencies"`
	Fingerprint  string                                `json:"fingerprint,omitempty"`
}

// Solve resolves the manifest's current root constraints and reports the
// result without writing anything back. Used by `elm-json solve`.
// The resolution itself is written to Stdout in the exchange format, since
// it is meant for machine consumption; phase progress and summaries still
// go through Log, the same as every other frontend operation.
func Solve(ctx context.Context, opts SolveOptions) (*SolveResult, error) {
	log := opts.log()
	start := time.Now()

	phaseHeader(log, "→ Loading manifest...\n", "loading manifest", "path", opts.ManifestPath)
	m, err := manifest.Load(opts.ManifestPath)
	if err != nil {
		return nil, err
	}

	policy := solver.Maximize
	if opts.Minimize {
		policy = solver.Minimize
	}

	phaseHeader(log, "→ Solving dependency graph...\n", "solving")
	resolution, err := solveFor(ctx, opts.Registry, m, opts.Extra, policy)
	if err != nil {
		return nil, fmt.Errorf("solving: %w", err)
	}

	if log.IsNormal() {
		log.Print("  Resolved %d package(s) in %s\n", len(resolution), time.Since(start).Round(time.Millisecond))
	} else {
		log.Info("solve complete", "packages", len(resolution), "duration", time.Since(start).Round(time.Millisecond))
	}

	result := &SolveResult{Resolution: resolution}
	out := solveOutput{Dependencies: resolution}

	if opts.Fingerprint {
		fp, err := hashstructure.Hash(sortedPairs(resolution), hashstructure.FormatV2, nil)
		if err != nil {
			return nil, fmt.Errorf("fingerprinting resolution: %w", err)
		}
		result.Fingerprint = fp
		out.Fingerprint = fmt.Sprintf("%x", fp)
		log.Info("resolution fingerprint", "fingerprint", out.Fingerprint)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding resolution: %w", err)
	}
	if _, err := fmt.Fprintln(opts.stdout(), string(data)); err != nil {
		return nil, fmt.Errorf("writing resolution: %w", err)
	}

	return result, nil
}

// versionPair is a stable, order-independent encoding of a Resolution for
// hashstructure: hashing the map directly is valid too, but a sorted slice
// keeps the hash input legible in debug output and avoids depending on
// hashstructure's own map-ordering behavior.
type versionPair struct {
	Package string
	Version string
}

func sortedPairs(resolution solver.Resolution) []versionPair {
	pairs := make([]versionPair, 0, len(resolution))
	for pkg, v := range resolution {
		pairs = append(pairs, versionPair{Package: pkg.String(), Version: v.String()})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Package < pairs[j].Package })
	return pairs
}
