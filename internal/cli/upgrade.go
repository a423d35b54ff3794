package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zwilias/elm-json-go/internal/frontend"
	"github.com/zwilias/elm-json-go/internal/logging"
	"github.com/zwilias/elm-json-go/internal/semver"
)

func newUpgradeCommand() *cobra.Command {
	var manifestPath string
	var unsafe bool
	var yes bool

	cmd := &cobra.Command{
		Use:   "upgrade [author/project]...",
		Short: "Re-resolve direct dependencies to their latest compatible versions",
		Long: `Upgrade re-resolves the named direct dependencies (or all of them, if
none are named) to the highest version the solver can still satisfy. Without
--unsafe, each dependency stays within its current major version; --unsafe
lifts that restriction and allows a major version bump.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withInterruptContext(cmd.Context())
			defer cancel()

			reg, err := newRegistryClient()
			if err != nil {
				return err
			}

			packages := make([]semver.PackageName, 0, len(args))
			for _, arg := range args {
				pkg, err := semver.ParsePackageName(arg)
				if err != nil {
					return fmt.Errorf("invalid package %q: %w", arg, err)
				}
				packages = append(packages, pkg)
			}

			_, err = frontend.Upgrade(ctx, frontend.UpgradeOptions{
				ManifestPath: manifestPath,
				Registry:     reg,
				Packages:     packages,
				Unsafe:       unsafe,
				Prompter:     newPrompter(yes),
				Log:          logging.Default(),
			})
			return err
		},
	}

	addManifestFlag(cmd, &manifestPath)
	cmd.Flags().BoolVar(&unsafe, "unsafe", false, "Allow dependencies to cross a major version boundary")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Write without prompting for confirmation")
	return cmd
}
