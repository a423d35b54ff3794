// Package buildinfo provides tool version information and User-Agent handling.
package buildinfo

import (
	"fmt"
	"net/http"
	"runtime"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/zwilias/elm-json-go/internal/buildinfo.Version=v1.0.0"
var (
	// Version is the semantic version of the elm-json tool itself.
	Version = "dev"
	// Commit is the git commit SHA.
	Commit = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// UserAgent returns the User-Agent string for HTTP requests against the
// package registry.
func UserAgent() string {
	return fmt.Sprintf(
		"elm-json/%s (%s/%s; +https://github.com/zwilias/elm-json-go)",
		Version,
		runtime.GOOS,
		runtime.GOARCH,
	)
}

// Transport wraps an http.RoundTripper to add a User-Agent header.
type Transport struct {
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	if req2.Header.Get("User-Agent") == "" {
		req2.Header.Set("User-Agent", UserAgent())
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req2)
}
