// Package semver implements the ecosystem's flavor of semantic versioning:
// a strict (major, minor, patch) triple with a total order, and closed-open
// range constraints "L <= v < H" used throughout manifests and the
// registry's per-version dependency declarations.
//
// Comparison and range-containment delegate to
// github.com/hashicorp/go-version, the same library the teacher used for
// its own provider-version matching, so the numeric parsing and ordering
// rules stay battle-tested while the range algebra above it is
// ecosystem-specific.
package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	hcversion "github.com/hashicorp/go-version"
)

// Version is a non-negative (major, minor, patch) triple.
type Version struct {
	Major, Minor, Patch uint64
}

var versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)$`)

// ParseVersion parses "M.m.p" with strict numeric components. Leading
// zeros are rejected: "1.02.0" is malformed.
func ParseVersion(s string) (Version, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("invalid version %q: expected M.m.p", s)
	}
	for _, part := range m[1:] {
		if len(part) > 1 && part[0] == '0' {
			return Version{}, fmt.Errorf("invalid version %q: leading zero in %q", s, part)
		}
	}

	major, _ := strconv.ParseUint(m[1], 10, 64)
	minor, _ := strconv.ParseUint(m[2], 10, 64)
	patch, _ := strconv.ParseUint(m[3], 10, 64)
	return Version{Major: major, Minor: minor, Patch: patch}, nil
}

// MustParseVersion parses s and panics on error. Intended for constants and
// tests, never for registry or manifest input.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func (v Version) hc() *hcversion.Version {
	hv, err := hcversion.NewVersion(v.String())
	if err != nil {
		// Version is always well-formed by construction: three
		// non-negative integers joined with dots always parses.
		panic(fmt.Sprintf("internal error: %v", err))
	}
	return hv
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater than
// other.
func (v Version) Compare(other Version) int {
	return v.hc().Compare(other.hc())
}

// Less reports whether v sorts strictly before other.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// Equal reports whether v and other are the same version.
func (v Version) Equal(other Version) bool {
	return v.Compare(other) == 0
}

// BumpMajor returns (major+1, 0, 0), the canonical upper bound of a
// compatibility range.
func (v Version) BumpMajor() Version {
	return Version{Major: v.Major + 1}
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// PackageName is an (author, project) pair. Equality is case-sensitive.
type PackageName struct {
	Author  string
	Project string
}

var namePartPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// ParsePackageName parses "author/project".
func ParsePackageName(s string) (PackageName, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return PackageName{}, fmt.Errorf("invalid package name %q: expected author/project", s)
	}
	author, project := parts[0], parts[1]
	if !namePartPattern.MatchString(author) {
		return PackageName{}, fmt.Errorf("invalid package name %q: author %q is not well-formed", s, author)
	}
	if !namePartPattern.MatchString(project) {
		return PackageName{}, fmt.Errorf("invalid package name %q: project %q is not well-formed", s, project)
	}
	return PackageName{Author: author, Project: project}, nil
}

func (p PackageName) String() string {
	return p.Author + "/" + p.Project
}

// MarshalText implements encoding.TextMarshaler so PackageName can be used
// as a JSON object key (encoding/json sorts map keys lexicographically by
// their marshaled text, which is exactly the "sorted lexicographically"
// ordering the manifest exchange format requires).
func (p PackageName) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PackageName) UnmarshalText(text []byte) error {
	parsed, err := ParsePackageName(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Range is a closed-open version interval [Low, High).
type Range struct {
	Low  Version
	High Version
}

// ExactRange returns the compatibility range [v, bump-major(v)) used
// whenever a caller supplies a single exact version where a range is
// expected.
func ExactRange(v Version) Range {
	return Range{Low: v, High: v.BumpMajor()}
}

// NewRange builds an explicit range, rejecting non-monotonic endpoints.
func NewRange(low, high Version) (Range, error) {
	if !low.Less(high) {
		return Range{}, fmt.Errorf("invalid range: low %s must be strictly less than high %s", low, high)
	}
	return Range{Low: low, High: high}, nil
}

var rangePattern = regexp.MustCompile(`^\s*(\d+\.\d+\.\d+)\s*<=\s*v\s*<\s*(\d+\.\d+\.\d+)\s*$`)

// ParseRange parses the canonical exchange form "L <= v < H".
func ParseRange(s string) (Range, error) {
	m := rangePattern.FindStringSubmatch(s)
	if m == nil {
		return Range{}, fmt.Errorf("invalid range %q: expected \"L <= v < H\"", s)
	}
	low, err := ParseVersion(m[1])
	if err != nil {
		return Range{}, fmt.Errorf("invalid range %q: %w", s, err)
	}
	high, err := ParseVersion(m[2])
	if err != nil {
		return Range{}, fmt.Errorf("invalid range %q: %w", s, err)
	}
	return NewRange(low, high)
}

func (r Range) String() string {
	return fmt.Sprintf("%s <= v < %s", r.Low, r.High)
}

// Contains reports whether v lies in [Low, High). Compares endpoints
// directly via Version.Compare rather than building and parsing a
// go-version constraint string per call: the solver calls Contains once per
// candidate version it considers, and re-parsing a freshly formatted
// constraint string on every one of those calls would turn the hot path
// into a string-formatting-and-parsing loop for no benefit over comparing
// the two already-parsed endpoints directly.
func (r Range) Contains(v Version) bool {
	return v.Compare(r.Low) >= 0 && v.Compare(r.High) < 0
}

// Intersect returns the intersection of r and other. The second return
// value is false when the intersection is empty, signaling incompatibility;
// an empty range must never be stored by a caller.
func (r Range) Intersect(other Range) (Range, bool) {
	low := r.Low
	if other.Low.Compare(low) > 0 {
		low = other.Low
	}
	high := r.High
	if other.High.Compare(high) < 0 {
		high = other.High
	}
	if !low.Less(high) {
		return Range{}, false
	}
	return Range{Low: low, High: high}, true
}

// MarshalText implements encoding.TextMarshaler.
func (r Range) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Range) UnmarshalText(text []byte) error {
	parsed, err := ParseRange(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
