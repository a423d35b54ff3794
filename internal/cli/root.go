// Package cli wires the cobra command tree to internal/frontend, the same
// way the teacher's cli package is a thin layer over internal/builder: each
// subcommand parses flags, builds a registry.Client, and delegates.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zwilias/elm-json-go/internal/buildinfo"
	"github.com/zwilias/elm-json-go/internal/logging"
	"github.com/zwilias/elm-json-go/internal/registry"
	"github.com/zwilias/elm-json-go/internal/semver"
)

// globalOpts holds the global CLI options.
type globalOpts struct {
	quiet      bool
	verbose    int // 0 = normal, 1 = verbose, 2+ = debug
	logFormat  string
	offline    bool
	elmHome    string
	elmVersion string
}

var gOpts globalOpts

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "elm-json",
		Short: "Manipulate elm.json files with a real dependency solver",
		Long: `elm-json reads and writes elm.json manifests for applications and
packages, resolving dependency ranges against the package registry with a
backtracking solver instead of leaving version selection to hand-editing.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogging()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(
		&gOpts.quiet, "quiet", "q", false,
		"Suppress all output except errors",
	)
	rootCmd.PersistentFlags().CountVarP(
		&gOpts.verbose, "verbose", "v",
		"Increase verbosity (-v for verbose, -vv for debug)",
	)
	rootCmd.PersistentFlags().StringVar(
		&gOpts.logFormat, "log-format", "text",
		"Log output format: text or json",
	)
	rootCmd.PersistentFlags().BoolVar(
		&gOpts.offline, "offline", false,
		"Never touch the network; fail rather than fetch anything not already cached",
	)
	rootCmd.PersistentFlags().StringVar(
		&gOpts.elmHome, "elm-home", "",
		"Override the registry cache root (default: $ELM_HOME or ~/.elm)",
	)
	rootCmd.PersistentFlags().StringVar(
		&gOpts.elmVersion, "elm-version", "0.19.1",
		"Elm compiler version to resolve against",
	)

	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(newInstallCommand())
	rootCmd.AddCommand(newUninstallCommand())
	rootCmd.AddCommand(newUpgradeCommand())
	rootCmd.AddCommand(newTreeCommand())
	rootCmd.AddCommand(newSolveCommand())

	return rootCmd
}

func initLogging() error {
	if gOpts.quiet && gOpts.verbose > 0 {
		return errors.New("--quiet and --verbose are mutually exclusive")
	}

	var format logging.Format
	switch gOpts.logFormat {
	case "text":
		format = logging.FormatText
	case "json":
		format = logging.FormatJSON
	default:
		return fmt.Errorf("invalid log format %q: must be 'text' or 'json'", gOpts.logFormat)
	}

	var level logging.Level
	switch {
	case gOpts.quiet:
		level = logging.LevelQuiet
	case gOpts.verbose >= 2:
		level = logging.LevelDebug
	case gOpts.verbose == 1:
		level = logging.LevelVerbose
	default:
		level = logging.LevelNormal
	}

	logging.Init(logging.Config{
		Level:  level,
		Format: format,
		Output: os.Stderr,
	})

	return nil
}

// newRegistryClient builds the registry.Client shared by every subcommand
// from the resolved global flags.
func newRegistryClient() (*registry.Client, error) {
	elmVersion, err := semver.ParseVersion(gOpts.elmVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid --elm-version %q: %w", gOpts.elmVersion, err)
	}

	return registry.NewClient(registry.Config{
		ElmHome:      gOpts.elmHome,
		ElmVersion:   elmVersion,
		Offline:      gOpts.offline,
		ShowProgress: true,
	})
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("elm-json %s\n", buildinfo.Version)
			fmt.Printf("  commit:       %s\n", buildinfo.Commit)
			fmt.Printf("  built:        %s\n", buildinfo.BuildTime)
		},
	}
}
