package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zwilias/elm-json-go/internal/frontend"
	"github.com/zwilias/elm-json-go/internal/logging"
	"github.com/zwilias/elm-json-go/internal/semver"
)

func newUninstallCommand() *cobra.Command {
	var manifestPath string
	var yes bool

	cmd := &cobra.Command{
		Use:   "uninstall <author/project>...",
		Short: "Remove one or more dependencies and re-resolve",
		Args:  cobra.MinimumNArgs(1),
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

			_, err = frontend.Uninstall(ctx, frontend.UninstallOptions{
				ManifestPath: manifestPath,
				Registry:     reg,
				Packages:     packages,
				Prompter:     newPrompter(yes),
				Log:          logging.Default(),
			})
			return err
		},
	}

	addManifestFlag(cmd, &manifestPath)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Write without prompting for confirmation")
	return cmd
}
