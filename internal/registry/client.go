// Package registry implements the HTTP client for the package catalog and
// per-version manifest endpoints, with an on-disk cache and an offline mode
// that falls back to directory-walking that cache.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/zwilias/elm-json-go/internal/buildinfo"
	"github.com/zwilias/elm-json-go/internal/httpclient"
	"github.com/zwilias/elm-json-go/internal/logging"
	"github.com/zwilias/elm-json-go/internal/manifest"
	"github.com/zwilias/elm-json-go/internal/resolveerr"
	"github.com/zwilias/elm-json-go/internal/semver"
)

const defaultBaseURL = "https://package.elm-lang.org"

// Config configures a Client.
type Config struct {
	// ElmHome is the cache root. Empty means resolve $ELM_HOME, falling
	// back to ~/.elm.
	ElmHome string
	// ElmVersion namespaces the cache the way the real tool does, since
	// different compiler versions can see different catalogs.
	ElmVersion semver.Version
	// BaseURL overrides the registry origin; used by tests.
	BaseURL string
	// Offline disables all network access.
	Offline bool
	// ShowProgress enables an mpb progress bar during catalog refresh.
	ShowProgress bool

	Retries    int
	MaxBackoff time.Duration
}

// Client is the registry HTTP client plus its on-disk cache.
type Client struct {
	baseURL      string
	elmHome      string
	elmVersion   semver.Version
	offline      bool
	showProgress bool
	http         *httpclient.Client
	log          *logging.Logger

	mu         sync.Mutex
	index      map[semver.PackageName][]semver.Version
	refreshed  bool
	manifestMu sync.Mutex
	manifests  map[manifestKey]*manifest.PackageManifest
}

type manifestKey struct {
	pkg semver.PackageName
	v   semver.Version
}

// NewClient builds a registry client from cfg, resolving ELM_HOME and
// constructing the shared HTTP client the way the teacher's registry and
// httpclient packages compose.
func NewClient(cfg Config) (*Client, error) {
	elmHome, err := resolveElmHome(cfg.ElmHome)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving ELM_HOME: %v", resolveerr.ErrIoError, err)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		baseURL:      baseURL,
		elmHome:      elmHome,
		elmVersion:   cfg.ElmVersion,
		offline:      cfg.Offline,
		showProgress: cfg.ShowProgress,
		http: httpclient.New(httpclient.Config{
			Retries:    cfg.Retries,
			MaxBackoff: cfg.MaxBackoff,
		}),
		log:       logging.Default(),
		index:     map[semver.PackageName][]semver.Version{},
		manifests: map[manifestKey]*manifest.PackageManifest{},
	}, nil
}

func resolveElmHome(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if v := os.Getenv("ELM_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".elm"), nil
}

// packagesRoot is $ELM_HOME/<elm-version>/packages.
func (c *Client) packagesRoot() string {
	return filepath.Join(c.elmHome, c.elmVersion.String(), "packages")
}

func (c *Client) manifestCachePath(pkg semver.PackageName, v semver.Version) string {
	return filepath.Join(c.packagesRoot(), pkg.Author, pkg.Project, v.String(), "elm.json")
}

// ListVersions returns pkg's published versions, sorted descending. It
// refreshes the in-memory catalog index on first call.
func (c *Client) ListVersions(ctx context.Context, pkg semver.PackageName) ([]semver.Version, error) {
	if err := c.ensureIndex(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	versions, ok := c.index[pkg]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", resolveerr.ErrUnknownPackage, pkg)
	}

	out := make([]semver.Version, len(versions))
	copy(out, versions)
	return out, nil
}

// ensureIndex populates the catalog index, at most once per Client.
func (c *Client) ensureIndex(ctx context.Context) error {
	c.mu.Lock()
	if c.refreshed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// Refresh re-fetches the full catalog from /all-packages, or, offline,
// rebuilds it by walking the on-disk cache. Safe to call more than once,
// though the solver only ever needs the first.
func (c *Client) Refresh(ctx context.Context) error {
	var index map[semver.PackageName][]semver.Version
	var err error

	if c.offline {
		index, err = c.buildIndexFromCache()
	} else {
		index, err = c.fetchCatalog(ctx)
	}
	if err != nil {
		return err
	}

	for pkg := range index {
		sort.Slice(index[pkg], func(i, j int) bool {
			return index[pkg][j].Less(index[pkg][i])
		})
	}

	c.mu.Lock()
	c.index = index
	c.refreshed = true
	c.mu.Unlock()
	return nil
}

func (c *Client) fetchCatalog(ctx context.Context) (map[semver.PackageName][]semver.Version, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/all-packages", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building catalog request: %v", resolveerr.ErrNetworkError, err)
	}

	var bar *mpb.Bar
	var progress *mpb.Progress
	if c.showProgress && c.log.ShowProgress() {
		progress = mpb.NewWithContext(ctx, mpb.WithWidth(60))
		bar = progress.AddBar(-1,
			mpb.PrependDecorators(decor.Name("Fetching package catalog", decor.WCSyncSpaceR)),
			mpb.AppendDecorators(decor.Elapsed(decor.ET_STYLE_GO)),
			mpb.BarFillerClearOnComplete(),
		)
	}

	resp, err := c.http.Do(req, httpclient.WithRetry())
	if err != nil {
		if bar != nil {
			bar.Abort(true)
		}
		return nil, fmt.Errorf("%w: fetching catalog: %v", resolveerr.ErrNetworkError, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if bar != nil {
			bar.Abort(true)
		}
		return nil, fmt.Errorf("%w: registry returned %d: %s", resolveerr.ErrNetworkError, resp.StatusCode, body)
	}

	var raw map[string][]string
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		if bar != nil {
			bar.Abort(true)
		}
		return nil, fmt.Errorf("%w: decoding catalog: %v", resolveerr.ErrNetworkError, err)
	}

	if bar != nil {
		bar.SetTotal(int64(len(raw)), false)
	}

	index := make(map[semver.PackageName][]semver.Version, len(raw))
	for name, versionStrings := range raw {
		pkg, err := semver.ParsePackageName(name)
		if err != nil {
			c.log.Debug("skipping malformed package name in catalog", "name", name, "err", err)
			continue
		}
		versions := make([]semver.Version, 0, len(versionStrings))
		for _, vs := range versionStrings {
			v, err := semver.ParseVersion(vs)
			if err != nil {
				c.log.Debug("skipping malformed version in catalog", "package", name, "version", vs, "err", err)
				continue
			}
			versions = append(versions, v)
		}
		index[pkg] = versions
		if bar != nil {
			bar.Increment()
		}
	}
	if progress != nil {
		progress.Wait()
	}

	return index, nil
}

// buildIndexFromCache reconstructs the catalog by walking the on-disk
// package cache, used in offline mode when the remote catalog was never
// fetched this run.
func (c *Client) buildIndexFromCache() (map[semver.PackageName][]semver.Version, error) {
	root := c.packagesRoot()
	index := map[semver.PackageName][]semver.Version{}

	authors, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return index, nil
		}
		return nil, fmt.Errorf("%w: walking cache: %v", resolveerr.ErrIoError, err)
	}

	for _, authorEntry := range authors {
		if !authorEntry.IsDir() {
			continue
		}
		projects, err := os.ReadDir(filepath.Join(root, authorEntry.Name()))
		if err != nil {
			return nil, fmt.Errorf("%w: walking cache: %v", resolveerr.ErrIoError, err)
		}
		for _, projectEntry := range projects {
			if !projectEntry.IsDir() {
				continue
			}
			pkg := semver.PackageName{Author: authorEntry.Name(), Project: projectEntry.Name()}
			versionDirs, err := os.ReadDir(filepath.Join(root, authorEntry.Name(), projectEntry.Name()))
			if err != nil {
				return nil, fmt.Errorf("%w: walking cache: %v", resolveerr.ErrIoError, err)
			}
			for _, vd := range versionDirs {
				if !vd.IsDir() {
					continue
				}
				v, err := semver.ParseVersion(vd.Name())
				if err != nil {
					continue
				}
				index[pkg] = append(index[pkg], v)
			}
		}
	}

	return index, nil
}

// FetchManifest returns the package-variant manifest declared by pkg at
// version v, serving from the in-memory cache, then the on-disk cache,
// then the network in that order.
func (c *Client) FetchManifest(ctx context.Context, pkg semver.PackageName, v semver.Version) (*manifest.PackageManifest, error) {
	key := manifestKey{pkg: pkg, v: v}

	c.manifestMu.Lock()
	if cached, ok := c.manifests[key]; ok {
		c.manifestMu.Unlock()
		return cached, nil
	}
	c.manifestMu.Unlock()

	path := c.manifestCachePath(pkg, v)
	if data, err := os.ReadFile(path); err == nil {
		m, parseErr := manifest.Parse(data)
		if parseErr != nil {
			c.log.Warn("cached manifest failed to parse, will refetch", "path", path, "err", parseErr)
			_ = os.Remove(path)
		} else {
			pm, ok := m.Package()
			if !ok {
				return nil, fmt.Errorf("%w: cached manifest at %s is not a package manifest", resolveerr.ErrCacheCorruption, path)
			}
			c.cacheManifest(key, pm)
			return pm, nil
		}
	}

	if c.offline {
		return nil, fmt.Errorf("%w: %s@%s is not cached", resolveerr.ErrOfflineCacheMiss, pkg, v)
	}

	pm, err := c.downloadManifest(ctx, pkg, v)
	if err != nil {
		return nil, err
	}

	if err := c.writeManifestCache(path, pm); err != nil {
		c.log.Warn("failed to persist manifest cache", "path", path, "err", err)
	}

	c.cacheManifest(key, pm)
	return pm, nil
}

func (c *Client) cacheManifest(key manifestKey, pm *manifest.PackageManifest) {
	c.manifestMu.Lock()
	c.manifests[key] = pm
	c.manifestMu.Unlock()
}

func (c *Client) downloadManifest(ctx context.Context, pkg semver.PackageName, v semver.Version) (*manifest.PackageManifest, error) {
	url := fmt.Sprintf("%s/packages/%s/%s/%s/elm.json", c.baseURL, pkg.Author, pkg.Project, v)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building manifest request: %v", resolveerr.ErrNetworkError, err)
	}

	resp, err := c.http.Do(req, httpclient.WithRetry())
	if err != nil {
		return nil, fmt.Errorf("%w: fetching manifest for %s@%s: %v", resolveerr.ErrNetworkError, pkg, v, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: registry returned %d fetching %s@%s: %s",
			resolveerr.ErrNetworkError, resp.StatusCode, pkg, v, body)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading manifest body for %s@%s: %v", resolveerr.ErrNetworkError, pkg, v, err)
	}

	m, err := manifest.Parse(data)
	if err != nil {
		return nil, err
	}
	pm, ok := m.Package()
	if !ok {
		return nil, fmt.Errorf("%w: registry manifest for %s@%s is not a package manifest", resolveerr.ErrMalformedManifest, pkg, v)
	}
	return pm, nil
}

// writeManifestCache persists pm to the cache path, guarded by an advisory
// per-directory lock and written atomically via write-temp-then-rename.
func (c *Client) writeManifestCache(path string, pm *manifest.PackageManifest) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating cache directory: %v", resolveerr.ErrIoError, err)
	}

	lock := flock.New(filepath.Join(dir, ".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("%w: acquiring cache lock: %v", resolveerr.ErrIoError, err)
	}
	if !locked {
		return nil
	}
	defer lock.Unlock() //nolint:errcheck

	wire := manifest.NewPackage(*pm)
	data, err := manifest.Emit(wire)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing temp manifest: %v", resolveerr.ErrIoError, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: renaming temp manifest: %v", resolveerr.ErrIoError, err)
	}
	return nil
}

// UserAgent is exposed so callers that build their own requests against the
// registry (e.g. service discovery probes in tests) stay consistent.
func UserAgent() string {
	return buildinfo.UserAgent()
}
