package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zwilias/elm-json-go/internal/frontend"
	"github.com/zwilias/elm-json-go/internal/logging"
	"github.com/zwilias/elm-json-go/internal/semver"
)

func newSolveCommand() *cobra.Command {
	var manifestPath string
	var minimize bool
	var fingerprint bool
	var extra []string

	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Resolve the manifest's current constraints without writing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withInterruptContext(cmd.Context())
			defer cancel()

			reg, err := newRegistryClient()
			if err != nil {
				return err
			}

			extraConstraints, err := parseExtraConstraints(extra)
			if err != nil {
				return err
			}

			_, err = frontend.Solve(ctx, frontend.SolveOptions{
				ManifestPath: manifestPath,
				Registry:     reg,
				Minimize:     minimize,
				Extra:        extraConstraints,
				Fingerprint:  fingerprint,
				Log:          logging.Default(),
			})
			return err
		},
	}

	addManifestFlag(cmd, &manifestPath)
	cmd.Flags().BoolVar(&minimize, "minimize", false, "Prefer the lowest satisfying version of each package instead of the highest")
	cmd.Flags().BoolVar(&fingerprint, "fingerprint", false, "Print a stable hash of the resolution alongside the package list")
	cmd.Flags().StringArrayVar(&extra, "extra", nil, "Inject an additional root constraint, as author/project@version or author/project@\"L <= v < H\" (repeatable)")
	return cmd
}

// parseExtraConstraints parses each --extra value into a root constraint
// override. "author/project@version" pins an exact compatibility range the
// same way an application's direct dependency does; "author/project@L <= v
// < H" supplies the range directly.
func parseExtraConstraints(values []string) (map[semver.PackageName]semver.Range, error) {
	if len(values) == 0 {
		return nil, nil
	}

	out := make(map[semver.PackageName]semver.Range, len(values))
	for _, arg := range values {
		name, constraint, ok := strings.Cut(arg, "@")
		if !ok {
			return nil, fmt.Errorf("invalid --extra %q: expected author/project@version or author/project@\"L <= v < H\"", arg)
		}

		pkg, err := semver.ParsePackageName(name)
		if err != nil {
			return nil, fmt.Errorf("invalid --extra %q: %w", arg, err)
		}

		if r, err := semver.ParseRange(constraint); err == nil {
			out[pkg] = r
			continue
		}

		v, err := semver.ParseVersion(constraint)
		if err != nil {
			return nil, fmt.Errorf("invalid --extra %q: %q is neither a version nor a range", arg, constraint)
		}
		out[pkg] = semver.ExactRange(v)
	}
	return out, nil
}
