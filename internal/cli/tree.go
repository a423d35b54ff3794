package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zwilias/elm-json-go/internal/frontend"
	"github.com/zwilias/elm-json-go/internal/logging"
	"github.com/zwilias/elm-json-go/internal/semver"
)

func newTreeCommand() *cobra.Command {
	var manifestPath string
	var test bool

	cmd := &cobra.Command{
		Use:   "tree [author/project]",
		Short: "Print the resolved dependency tree",
		Long: `Tree prints the resolved dependency graph. A repeated subtree is
printed once in full and marked with a trailing "*" on every later
occurrence. An optional author/project argument restricts the tree to
paths that lead to that package.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withInterruptContext(cmd.Context())
			defer cancel()

			reg, err := newRegistryClient()
			if err != nil {
				return err
			}

			var filter *semver.PackageName
			if len(args) == 1 {
				pkg, err := semver.ParsePackageName(args[0])
				if err != nil {
					return fmt.Errorf("invalid package %q: %w", args[0], err)
				}
				filter = &pkg
			}

			_, err = frontend.Tree(ctx, frontend.TreeOptions{
				ManifestPath: manifestPath,
				Registry:     reg,
				IncludeTest:  test,
				Filter:       filter,
				Log:          logging.Default(),
			})
			return err
		},
	}

	addManifestFlag(cmd, &manifestPath)
	cmd.Flags().BoolVar(&test, "test", false, "Promote test-dependencies to roots alongside regular dependencies")
	return cmd
}
