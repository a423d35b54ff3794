package cli

import (
	"testing"

	"github.com/zwilias/elm-json-go/internal/semver"
)

func TestParsePackageRequest_NameOnly(t *testing.T) {
	req, err := parsePackageRequest("elm/core")
	if err != nil {
		t.Fatalf("parsePackageRequest() error = %v", err)
	}
	if req.Package != mustParsePackageName(t, "elm/core") {
		t.Errorf("Package = %v, want elm/core", req.Package)
	}
	if req.Version != nil {
		t.Errorf("Version = %v, want nil (latest)", req.Version)
	}
}

func TestParsePackageRequest_WithVersion(t *testing.T) {
	req, err := parsePackageRequest("elm/core@1.0.5")
	if err != nil {
		t.Fatalf("parsePackageRequest() error = %v", err)
	}
	if req.Version == nil || *req.Version != semver.MustParseVersion("1.0.5") {
		t.Errorf("Version = %v, want 1.0.5", req.Version)
	}
}

func TestParsePackageRequest_InvalidName(t *testing.T) {
	if _, err := parsePackageRequest("not-a-package-name"); err == nil {
		t.Error("parsePackageRequest() error = nil, want an error for a malformed package name")
	}
}

func TestParsePackageRequest_InvalidVersion(t *testing.T) {
	if _, err := parsePackageRequest("elm/core@not-a-version"); err == nil {
		t.Error("parsePackageRequest() error = nil, want an error for a malformed version")
	}
}

func mustParsePackageName(t *testing.T, s string) semver.PackageName {
	t.Helper()
	pkg, err := semver.ParsePackageName(s)
	if err != nil {
		t.Fatalf("ParsePackageName(%q) error = %v", s, err)
	}
	return pkg
}
