package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zwilias/elm-json-go/internal/frontend"
	"github.com/zwilias/elm-json-go/internal/logging"
	"github.com/zwilias/elm-json-go/internal/semver"
)

func newInstallCommand() *cobra.Command {
	var manifestPath string
	var test bool
	var yes bool

	cmd := &cobra.Command{
		Use:   "install <author/project[@version]>...",
		Short: "Add one or more packages as dependencies and resolve",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withInterruptContext(cmd.Context())
			defer cancel()

			reg, err := newRegistryClient()
			if err != nil {
				return err
			}

			requests := make([]frontend.PackageRequest, 0, len(args))
			for _, arg := range args {
				req, err := parsePackageRequest(arg)
				if err != nil {
					return err
				}
				requests = append(requests, req)
			}

			_, err = frontend.Install(ctx, frontend.InstallOptions{
				ManifestPath: manifestPath,
				Registry:     reg,
				Packages:     requests,
				Test:         test,
				Prompter:     newPrompter(yes),
				Log:          logging.Default(),
			})
			return err
		},
	}

	addManifestFlag(cmd, &manifestPath)
	cmd.Flags().BoolVar(&test, "test", false, "Add as a test-dependency instead of a regular dependency")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Write without prompting for confirmation")
	return cmd
}

// parsePackageRequest parses "author/project" or "author/project@version"
// into a frontend.PackageRequest; an absent "@version" means latest.
func parsePackageRequest(arg string) (frontend.PackageRequest, error) {
	name, versionStr, hasVersion := strings.Cut(arg, "@")

	pkg, err := semver.ParsePackageName(name)
	if err != nil {
		return frontend.PackageRequest{}, fmt.Errorf("invalid package %q: %w", arg, err)
	}

	if !hasVersion {
		return frontend.PackageRequest{Package: pkg}, nil
	}

	v, err := semver.ParseVersion(versionStr)
	if err != nil {
		return frontend.PackageRequest{}, fmt.Errorf("invalid version in %q: %w", arg, err)
	}
	return frontend.PackageRequest{Package: pkg, Version: &v}, nil
}
