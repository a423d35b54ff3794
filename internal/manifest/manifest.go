// Package manifest models the two elm.json variants — application and
// package — and their JSON exchange format. An application manifest pins
// exact versions for every direct and indirect dependency; a package
// manifest declares ranges only and never persists a flattened dependency
// graph.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"

	"github.com/zwilias/elm-json-go/internal/resolveerr"
	"github.com/zwilias/elm-json-go/internal/semver"
)

// Classification answers where (if anywhere) a package name appears in a
// manifest's dependency maps.
type Classification int

const (
	Absent Classification = iota
	Direct
	Indirect
	TestDirect
	TestIndirect
)

func (c Classification) String() string {
	switch c {
	case Direct:
		return "direct"
	case Indirect:
		return "indirect"
	case TestDirect:
		return "test-direct"
	case TestIndirect:
		return "test-indirect"
	default:
		return "absent"
	}
}

// ExposedModules is the package manifest's exposed-modules field, which the
// exchange format allows as either a flat list of module names or a map
// grouping modules under headings. Exactly one of Flat or Grouped is set.
type ExposedModules struct {
	Flat    []string
	Grouped map[string][]string
}

func (e ExposedModules) MarshalJSON() ([]byte, error) {
	if e.Grouped != nil {
		return json.Marshal(e.Grouped)
	}
	if e.Flat == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(e.Flat)
}

func (e *ExposedModules) UnmarshalJSON(data []byte) error {
	var flat []string
	if err := json.Unmarshal(data, &flat); err == nil {
		e.Flat = flat
		e.Grouped = nil
		return nil
	}

	var grouped map[string][]string
	if err := json.Unmarshal(data, &grouped); err == nil {
		e.Grouped = grouped
		e.Flat = nil
		return nil
	}

	return fmt.Errorf("exposed-modules: expected an array of module names or an object grouping them")
}

// dependencyMap is the application manifest's nested {"direct": ...,
// "indirect": ...} shape, factored out since both the normal and test
// dependency sections use it.
type dependencyMap struct {
	Direct   map[semver.PackageName]semver.Version `json:"direct"`
	Indirect map[semver.PackageName]semver.Version `json:"indirect"`
}

func (d dependencyMap) normalized() dependencyMap {
	direct := d.Direct
	if direct == nil {
		direct = map[semver.PackageName]semver.Version{}
	}
	indirect := d.Indirect
	if indirect == nil {
		indirect = map[semver.PackageName]semver.Version{}
	}
	return dependencyMap{Direct: direct, Indirect: indirect}
}

// ApplicationManifest is the "application" manifest variant: every direct
// and indirect dependency is pinned to an exact version.
type ApplicationManifest struct {
	ElmVersion        semver.Version
	SourceDirectories []string
	Direct            map[semver.PackageName]semver.Version
	Indirect          map[semver.PackageName]semver.Version
	TestDirect        map[semver.PackageName]semver.Version
	TestIndirect      map[semver.PackageName]semver.Version
}

type applicationWire struct {
	Type              string         `json:"type"`
	SourceDirectories []string       `json:"source-directories"`
	ElmVersion        semver.Version `json:"elm-version"`
	Dependencies      dependencyMap  `json:"dependencies"`
	TestDependencies  dependencyMap  `json:"test-dependencies"`
}

func (a ApplicationManifest) MarshalJSON() ([]byte, error) {
	return json.Marshal(applicationWire{
		Type:              "application",
		SourceDirectories: a.SourceDirectories,
		ElmVersion:        a.ElmVersion,
		Dependencies:      dependencyMap{Direct: a.Direct, Indirect: a.Indirect}.normalized(),
		TestDependencies:  dependencyMap{Direct: a.TestDirect, Indirect: a.TestIndirect}.normalized(),
	})
}

func (a *ApplicationManifest) UnmarshalJSON(data []byte) error {
	var w applicationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	a.SourceDirectories = w.SourceDirectories
	a.ElmVersion = w.ElmVersion
	a.Direct = w.Dependencies.Direct
	a.Indirect = w.Dependencies.Indirect
	a.TestDirect = w.TestDependencies.Direct
	a.TestIndirect = w.TestDependencies.Indirect
	return nil
}

func (a *ApplicationManifest) clone() *ApplicationManifest {
	return &ApplicationManifest{
		ElmVersion:        a.ElmVersion,
		SourceDirectories: append([]string(nil), a.SourceDirectories...),
		Direct:            cloneVersionMap(a.Direct),
		Indirect:          cloneVersionMap(a.Indirect),
		TestDirect:        cloneVersionMap(a.TestDirect),
		TestIndirect:      cloneVersionMap(a.TestIndirect),
	}
}

// Classify reports which dependency map, if any, holds pkg.
func (a *ApplicationManifest) Classify(pkg semver.PackageName) Classification {
	if _, ok := a.Direct[pkg]; ok {
		return Direct
	}
	if _, ok := a.Indirect[pkg]; ok {
		return Indirect
	}
	if _, ok := a.TestDirect[pkg]; ok {
		return TestDirect
	}
	if _, ok := a.TestIndirect[pkg]; ok {
		return TestIndirect
	}
	return Absent
}

// Validate checks the application manifest's invariants, collecting every
// violation rather than stopping at the first.
func (a *ApplicationManifest) Validate() error {
	var result *multierror.Error

	groups := map[Classification]map[semver.PackageName]semver.Version{
		Direct:       a.Direct,
		Indirect:     a.Indirect,
		TestDirect:   a.TestDirect,
		TestIndirect: a.TestIndirect,
	}
	seen := map[semver.PackageName]Classification{}
	for class, group := range groups {
		for pkg := range group {
			if prior, ok := seen[pkg]; ok {
				result = multierror.Append(result, fmt.Errorf(
					"%w: %s appears in both %s and %s",
					resolveerr.ErrMalformedManifest, pkg, prior, class,
				))
				continue
			}
			seen[pkg] = class
		}
	}

	return result.ErrorOrNil()
}

func cloneVersionMap(m map[semver.PackageName]semver.Version) map[semver.PackageName]semver.Version {
	out := make(map[semver.PackageName]semver.Version, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneRangeMap(m map[semver.PackageName]semver.Range) map[semver.PackageName]semver.Range {
	out := make(map[semver.PackageName]semver.Range, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// PackageManifest is the "package" manifest variant: dependencies are
// declared as ranges, never pinned, and no indirect map is persisted.
type PackageManifest struct {
	Name             semver.PackageName
	Summary          string
	License          string
	Version          semver.Version
	ExposedModules   ExposedModules
	ElmVersion       semver.Range
	Dependencies     map[semver.PackageName]semver.Range
	TestDependencies map[semver.PackageName]semver.Range
}

type packageWire struct {
	Type             string                              `json:"type"`
	Name             semver.PackageName                  `json:"name"`
	Summary          string                              `json:"summary"`
	License          string                              `json:"license"`
	Version          semver.Version                       `json:"version"`
	ExposedModules   ExposedModules                       `json:"exposed-modules"`
	ElmVersion       semver.Range                         `json:"elm-version"`
	Dependencies     map[semver.PackageName]semver.Range `json:"dependencies"`
	TestDependencies map[semver.PackageName]semver.Range `json:"test-dependencies"`
}

func (p PackageManifest) MarshalJSON() ([]byte, error) {
	deps := p.Dependencies
	if deps == nil {
		deps = map[semver.PackageName]semver.Range{}
	}
	testDeps := p.TestDependencies
	if testDeps == nil {
		testDeps = map[semver.PackageName]semver.Range{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(packageWire{
		Type:             "package",
		Name:             p.Name,
		Summary:          p.Summary,
		License:          p.License,
		Version:          p.Version,
		ExposedModules:   p.ExposedModules,
		ElmVersion:       p.ElmVersion,
		Dependencies:     deps,
		TestDependencies: testDeps,
	}); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (p *PackageManifest) UnmarshalJSON(data []byte) error {
	var w packageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.Name = w.Name
	p.Summary = w.Summary
	p.License = w.License
	p.Version = w.Version
	p.ExposedModules = w.ExposedModules
	p.ElmVersion = w.ElmVersion
	p.Dependencies = w.Dependencies
	p.TestDependencies = w.TestDependencies
	return nil
}

func (p *PackageManifest) clone() *PackageManifest {
	return &PackageManifest{
		Name:             p.Name,
		Summary:          p.Summary,
		License:          p.License,
		Version:          p.Version,
		ExposedModules:   p.ExposedModules,
		ElmVersion:       p.ElmVersion,
		Dependencies:     cloneRangeMap(p.Dependencies),
		TestDependencies: cloneRangeMap(p.TestDependencies),
	}
}

// Classify reports which dependency map, if any, holds pkg.
func (p *PackageManifest) Classify(pkg semver.PackageName) Classification {
	if _, ok := p.Dependencies[pkg]; ok {
		return Direct
	}
	if _, ok := p.TestDependencies[pkg]; ok {
		return TestDirect
	}
	return Absent
}

// Validate checks the package manifest's invariants, collecting every
// violation rather than stopping at the first.
func (p *PackageManifest) Validate() error {
	var result *multierror.Error

	for pkg := range p.Dependencies {
		if _, ok := p.TestDependencies[pkg]; ok {
			result = multierror.Append(result, fmt.Errorf(
				"%w: %s appears in both dependencies and test-dependencies",
				resolveerr.ErrMalformedManifest, pkg,
			))
		}
	}

	return result.ErrorOrNil()
}

// Manifest is a tagged sum over the two variants: exactly one of
// Application() or Package() reports ok.
type Manifest struct {
	application *ApplicationManifest
	pkg         *PackageManifest
}

// NewApplication wraps an ApplicationManifest as a Manifest.
func NewApplication(m ApplicationManifest) *Manifest {
	return &Manifest{application: &m}
}

// NewPackage wraps a PackageManifest as a Manifest.
func NewPackage(m PackageManifest) *Manifest {
	return &Manifest{pkg: &m}
}

// IsApplication reports whether m is the application variant.
func (m *Manifest) IsApplication() bool { return m.application != nil }

// IsPackage reports whether m is the package variant.
func (m *Manifest) IsPackage() bool { return m.pkg != nil }

// Application returns the underlying ApplicationManifest, if m is that
// variant.
func (m *Manifest) Application() (*ApplicationManifest, bool) {
	return m.application, m.application != nil
}

// Package returns the underlying PackageManifest, if m is that variant.
func (m *Manifest) Package() (*PackageManifest, bool) {
	return m.pkg, m.pkg != nil
}

// Classify reports which dependency map, if any, holds pkg.
func (m *Manifest) Classify(pkg semver.PackageName) Classification {
	if m.application != nil {
		return m.application.Classify(pkg)
	}
	if m.pkg != nil {
		return m.pkg.Classify(pkg)
	}
	return Absent
}

// Validate checks every invariant for whichever variant m holds.
func (m *Manifest) Validate() error {
	if m.application != nil {
		return m.application.Validate()
	}
	if m.pkg != nil {
		return m.pkg.Validate()
	}
	return fmt.Errorf("%w: manifest has neither variant set", resolveerr.ErrMalformedManifest)
}

func (m *Manifest) clone() *Manifest {
	out := &Manifest{}
	if m.application != nil {
		out.application = m.application.clone()
	}
	if m.pkg != nil {
		out.pkg = m.pkg.clone()
	}
	return out
}

// WithDirect returns a new manifest with pkg pinned as a direct dependency
// at the exact version v. For a package manifest this follows the rounding
// rule: the stored range becomes [v, bump-major(v)).
func (m *Manifest) WithDirect(pkg semver.PackageName, v semver.Version) *Manifest {
	out := m.clone()
	if out.application != nil {
		removeFromAll(out.application, pkg)
		out.application.Direct[pkg] = v
	}
	if out.pkg != nil {
		delete(out.pkg.TestDependencies, pkg)
		out.pkg.Dependencies[pkg] = semver.ExactRange(v)
	}
	return out
}

// WithDirectRange returns a new package manifest with pkg's direct
// dependency range set to r. It is an error to call this on an application
// manifest, which can only pin exact versions.
func (m *Manifest) WithDirectRange(pkg semver.PackageName, r semver.Range) (*Manifest, error) {
	if m.application != nil {
		return nil, fmt.Errorf("application manifests cannot declare a dependency range for %s", pkg)
	}
	out := m.clone()
	delete(out.pkg.TestDependencies, pkg)
	out.pkg.Dependencies[pkg] = r
	return out, nil
}

// WithIndirect returns a new application manifest with pkg pinned as an
// indirect dependency. Package manifests have no indirect map; calling this
// on one is an error.
func (m *Manifest) WithIndirect(pkg semver.PackageName, v semver.Version) (*Manifest, error) {
	if m.pkg != nil {
		return nil, fmt.Errorf("package manifests do not persist indirect dependencies")
	}
	out := m.clone()
	removeFromAll(out.application, pkg)
	out.application.Indirect[pkg] = v
	return out, nil
}

// WithTestDirect mirrors WithDirect for the test-dependency maps.
func (m *Manifest) WithTestDirect(pkg semver.PackageName, v semver.Version) *Manifest {
	out := m.clone()
	if out.application != nil {
		removeFromAll(out.application, pkg)
		out.application.TestDirect[pkg] = v
	}
	if out.pkg != nil {
		delete(out.pkg.Dependencies, pkg)
		out.pkg.TestDependencies[pkg] = semver.ExactRange(v)
	}
	return out
}

// Without returns a new manifest with pkg removed from every dependency map
// it appears in.
func (m *Manifest) Without(pkg semver.PackageName) *Manifest {
	out := m.clone()
	if out.application != nil {
		removeFromAll(out.application, pkg)
	}
	if out.pkg != nil {
		delete(out.pkg.Dependencies, pkg)
		delete(out.pkg.TestDependencies, pkg)
	}
	return out
}

func removeFromAll(a *ApplicationManifest, pkg semver.PackageName) {
	delete(a.Direct, pkg)
	delete(a.Indirect, pkg)
	delete(a.TestDirect, pkg)
	delete(a.TestIndirect, pkg)
}

// Parse dispatches on the manifest's "type" discriminator, validates it
// against the variant's JSON Schema, decodes it, and checks the variant's
// structural invariants.
func Parse(data []byte) (*Manifest, error) {
	var disc struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &disc); err != nil {
		return nil, fmt.Errorf("%w: %v", resolveerr.ErrMalformedManifest, err)
	}

	if err := validateSchema(disc.Type, data); err != nil {
		return nil, err
	}

	switch disc.Type {
	case "application":
		var am ApplicationManifest
		if err := json.Unmarshal(data, &am); err != nil {
			return nil, fmt.Errorf("%w: %v", resolveerr.ErrMalformedManifest, err)
		}
		if err := am.Validate(); err != nil {
			return nil, err
		}
		return &Manifest{application: &am}, nil
	case "package":
		var pm PackageManifest
		if err := json.Unmarshal(data, &pm); err != nil {
			return nil, fmt.Errorf("%w: %v", resolveerr.ErrMalformedManifest, err)
		}
		if err := pm.Validate(); err != nil {
			return nil, err
		}
		return &Manifest{pkg: &pm}, nil
	default:
		return nil, fmt.Errorf("%w: unknown manifest type %q", resolveerr.ErrMalformedManifest, disc.Type)
	}
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading manifest: %v", resolveerr.ErrIoError, err)
	}
	return Parse(data)
}

// Emit produces the canonical textual form of m: struct field declaration
// order fixes the top-level key order, and encoding/json's map-key sort
// gives lexicographic ordering within each dependency map for free.
func Emit(m *Manifest) ([]byte, error) {
	var v any
	switch {
	case m.application != nil:
		v = m.application
	case m.pkg != nil:
		v = m.pkg
	default:
		return nil, fmt.Errorf("%w: manifest has neither variant set", resolveerr.ErrMalformedManifest)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the canonical textual form of m to path.
func Save(path string, m *Manifest) error {
	data, err := Emit(m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing manifest: %v", resolveerr.ErrIoError, err)
	}
	return nil
}
