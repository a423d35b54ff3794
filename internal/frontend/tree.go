package frontend

import (
	"context"
	"fmt"
	"sort"

	"github.com/zwilias/elm-json-go/internal/logging"
	"github.com/zwilias/elm-json-go/internal/manifest"
	"github.com/zwilias/elm-json-go/internal/semver"
	"github.com/zwilias/elm-json-go/internal/solver"
)

// TreeOptions configures Tree.
type TreeOptions struct {
	ManifestPath string
	Registry     solver.RegistryView
	// IncludeTest promotes test-dependencies to roots alongside the regular
	// direct dependencies.
	IncludeTest bool
	// Filter, if set, restricts the printed tree to paths that lead to this
	// package; anything not on such a path is omitted entirely.
	Filter *semver.PackageName
	Log    *logging.Logger
}

func (o TreeOptions) log() *logging.Logger {
	if o.Log != nil {
		return o.Log
	}
	return logging.Default()
}

// TreeNode is one package in the rendered dependency tree. Elided marks a
// node whose subtree was already printed in full elsewhere in this tree; it
// carries no Children of its own, so a repeat is never confused with a
// genuine leaf.
type TreeNode struct {
	Package  semver.PackageName
	Version  semver.Version
	Children []*TreeNode
	Elided   bool
}

// TreeResult is what Tree produced.
type TreeResult struct {
	Roots []*TreeNode
}

// Tree renders the resolved dependency graph as a tree rooted at the
// manifest's direct dependencies. An application manifest already pins
// exact versions, so Tree walks those directly; a package manifest
// declares only ranges, so Tree solves first to obtain concrete versions
// to display. Tree never writes the manifest.
func Tree(ctx context.Context, opts TreeOptions) (*TreeResult, error) {
	log := opts.log()

	phaseHeader(log, "→ Loading manifest...\n", "loading manifest", "path", opts.ManifestPath)
	m, err := manifest.Load(opts.ManifestPath)
	if err != nil {
		return nil, err
	}

	resolution := map[semver.PackageName]semver.Version{}
	var roots []semver.PackageName

	if app, ok := m.Application(); ok {
		for pkg, v := range app.Direct {
			resolution[pkg] = v
			roots = append(roots, pkg)
		}
		for pkg, v := range app.Indirect {
			resolution[pkg] = v
		}
		for pkg, v := range app.TestDirect {
			resolution[pkg] = v
			if opts.IncludeTest {
				roots = append(roots, pkg)
			}
		}
		for pkg, v := range app.TestIndirect {
			resolution[pkg] = v
		}
	} else if pkg, ok := m.Package(); ok {
		phaseHeader(log, "→ Solving dependency graph...\n", "solving")
		res, err := solveFor(ctx, opts.Registry, m, nil, solver.Maximize)
		if err != nil {
			return nil, fmt.Errorf("solving for tree: %w", err)
		}
		resolution = res
		for name := range pkg.Dependencies {
			roots = append(roots, name)
		}
		if opts.IncludeTest {
			for name := range pkg.TestDependencies {
				roots = append(roots, name)
			}
		}
	}

	sort.Slice(roots, func(i, j int) bool { return lessPackageName(roots[i], roots[j]) })

	childrenOf, err := fetchChildren(ctx, opts.Registry, resolution)
	if err != nil {
		return nil, err
	}

	var reaches map[semver.PackageName]bool
	if opts.Filter != nil {
		reaches = reachability(childrenOf, *opts.Filter)
	}

	visited := map[semver.PackageName]bool{}
	result := &TreeResult{}
	for _, pkg := range roots {
		if reaches != nil && !reaches[pkg] {
			continue
		}
		node, err := buildTreeNode(pkg, resolution, childrenOf, visited, reaches)
		if err != nil {
			return nil, err
		}
		result.Roots = append(result.Roots, node)
	}

	renderTree(log, result.Roots, 0)
	return result, nil
}

// fetchChildren resolves each selected package's declared dependency names
// once, up front, so both elision detection and filter reachability walk a
// plain adjacency map instead of re-fetching manifests per tree node.
func fetchChildren(ctx context.Context, reg solver.RegistryView, resolution map[semver.PackageName]semver.Version) (map[semver.PackageName][]semver.PackageName, error) {
	childrenOf := make(map[semver.PackageName][]semver.PackageName, len(resolution))
	for pkg, v := range resolution {
		pm, err := reg.FetchManifest(ctx, pkg, v)
		if err != nil {
			return nil, fmt.Errorf("fetching manifest for %s@%s: %w", pkg, v, err)
		}
		var children []semver.PackageName
		for dep := range pm.Dependencies {
			children = append(children, dep)
		}
		sort.Slice(children, func(i, j int) bool { return lessPackageName(children[i], children[j]) })
		childrenOf[pkg] = children
	}
	return childrenOf, nil
}

// reachability reports, for every package with a known adjacency list,
// whether some path from it reaches target (including being target
// itself). A node revisited while already on the walk's stack (a cycle)
// contributes no reachability through that back-edge. A negative answer
// that was cut short by such a back-edge is not memoized, so a later walk
// from elsewhere still explores that node's other children in full.
func reachability(childrenOf map[semver.PackageName][]semver.PackageName, target semver.PackageName) map[semver.PackageName]bool {
	memo := map[semver.PackageName]bool{}
	var visit func(p semver.PackageName, onStack map[semver.PackageName]bool) (bool, bool)
	visit = func(p semver.PackageName, onStack map[semver.PackageName]bool) (bool, bool) {
		if v, ok := memo[p]; ok {
			return v, false
		}
		if p == target {
			memo[p] = true
			return true, false
		}
		if onStack[p] {
			return false, true
		}
		onStack[p] = true
		reach, cut := false, false
		for _, c := range childrenOf[p] {
			r, k := visit(c, onStack)
			reach = reach || r
			cut = cut || k
		}
		delete(onStack, p)
		if reach || !cut {
			memo[p] = reach
		}
		return reach, cut && !reach
	}
	for p := range childrenOf {
		visit(p, map[semver.PackageName]bool{})
	}
	return memo
}

func buildTreeNode(pkg semver.PackageName, resolution map[semver.PackageName]semver.Version, childrenOf map[semver.PackageName][]semver.PackageName, visited map[semver.PackageName]bool, reaches map[semver.PackageName]bool) (*TreeNode, error) {
	v, ok := resolution[pkg]
	if !ok {
		return nil, fmt.Errorf("no resolved version for %s", pkg)
	}
	node := &TreeNode{Package: pkg, Version: v}
	if visited[pkg] {
		node.Elided = true
		return node, nil
	}
	visited[pkg] = true

	for _, dep := range childrenOf[pkg] {
		if reaches != nil && !reaches[dep] {
			continue
		}
		child, err := buildTreeNode(dep, resolution, childrenOf, visited, reaches)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

func renderTree(log *logging.Logger, nodes []*TreeNode, depth int) {
	if !log.IsNormal() {
		return
	}
	for _, n := range nodes {
		indent := ""
		for i := 0; i < depth; i++ {
			indent += "  "
		}
		if n.Elided {
			log.Print("%s%s %s *\n", indent, n.Package, n.Version)
			continue
		}
		log.Print("%s%s %s\n", indent, n.Package, n.Version)
		renderTree(log, n.Children, depth+1)
	}
}

func lessPackageName(a, b semver.PackageName) bool {
	if a.Author != b.Author {
		return a.Author < b.Author
	}
	return a.Project < b.Project
}
