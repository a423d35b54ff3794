package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/zwilias/elm-json-go/internal/cli"
	"github.com/zwilias/elm-json-go/internal/resolveerr"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		if errors.Is(err, resolveerr.ErrCancelled) {
			_, _ = fmt.Fprintln(os.Stderr, "\nInterrupted")
			os.Exit(130) // SIGINT
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the documented exit status: 0 is reserved for
// success and never reached here, 1 means the solver found no consistent
// assignment, 2 means a local or remote I/O failure kept the solver from
// even trying, 3 means the manifest itself couldn't be read. A declined
// write prompt is not an error: the command returns nil, this function is
// never called, and the process exits 0.
func exitCode(err error) int {
	switch {
	case errors.Is(err, resolveerr.ErrMalformedManifest):
		return 3
	case errors.Is(err, resolveerr.ErrIoError),
		errors.Is(err, resolveerr.ErrNetworkError),
		errors.Is(err, resolveerr.ErrOfflineCacheMiss),
		errors.Is(err, resolveerr.ErrCacheCorruption):
		return 2
	default:
		// ErrUnsolvable, ErrUnknownPackage and ErrNoMatchingVersions all
		// mean the same thing to the caller: no resolution was produced.
		return 1
	}
}
