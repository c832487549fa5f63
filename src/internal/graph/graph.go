// Package graph builds the install graph: a BFS expansion of the
// requested roots through their runtime (and, when a build is coming,
// build) dependencies, decomposed into topological stages with cycle
// detection.
package graph

import (
	"sort"

	"github.com/zoi-pm/zoi/src/internal/channel"
	"github.com/zoi-pm/zoi/src/internal/errs"
	"github.com/zoi-pm/zoi/src/internal/model"
	"github.com/zoi-pm/zoi/src/internal/registry"
)

// OptionChooser lets a non-interactive caller auto-resolve
// required-option and optional dependency groups
// without the graph builder touching any prompt/IO concern.
type OptionChooser interface {
	ChooseRequired(pkgName string, group model.OptionGroup) (string, error)
	ChooseOptional(pkgName string, group model.OptionGroup) ([]string, error)
}

// AutoYes is the non-interactive chooser used under `--yes`: it picks
// the first member of a required group and declines all optionals.
type AutoYes struct{}

func (AutoYes) ChooseRequired(_ string, group model.OptionGroup) (string, error) {
	if len(group.Members) == 0 {
		return "", errs.Newf(errs.Plan, "", "required option group %q has no members", group.Name)
	}
	return group.Members[0], nil
}

func (AutoYes) ChooseOptional(_ string, _ model.OptionGroup) ([]string, error) { return nil, nil }

// AlreadyInstalledChecker lets the builder skip nodes already
// satisfied on disk without depending on the store
// package directly (kept as a narrow interface to avoid an import
// cycle between graph and store).
type AlreadyInstalledChecker interface {
	InstalledVersion(scope model.Scope, registryHandle, repo, name string) (version string, ok bool)
}

type Skip struct {
	Source  string
	Name    string
	Version string
	Reason  string
}

// Graph is the install-node collection plus its forward edges.
type Graph struct {
	Nodes map[string]*model.InstallNode
	adj   map[string]map[string]bool
	Skips []Skip
}

func New() *Graph {
	return &Graph{Nodes: map[string]*model.InstallNode{}, adj: map[string]map[string]bool{}}
}

func (g *Graph) addEdge(from, to string) {
	if from == "" {
		return
	}
	if g.adj[from] == nil {
		g.adj[from] = map[string]bool{}
	}
	g.adj[from][to] = true
}

// Stages runs Kahn's algorithm and returns the topological
// stages: each stage is the set of nodes whose remaining in-degree
// just reached zero. A non-empty leftover set after the queue drains
// means a cycle; its members are returned for the Cycle error.
func (g *Graph) Stages() ([][]string, []string, error) {
	inDegree := map[string]int{}
	for id := range g.Nodes {
		inDegree[id] = 0
	}
	for _, tos := range g.adj {
		for to := range tos {
			// Edges into nodes the builder skipped as already installed
			// carry no ordering constraint.
			if _, ok := g.Nodes[to]; ok {
				inDegree[to]++
			}
		}
	}

	var queue []string
	for id, d := range inDegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var stages [][]string
	visited := 0
	for len(queue) > 0 {
		stage := append([]string{}, queue...)
		sort.Strings(stage)
		queue = nil
		for _, u := range stage {
			visited++
			neighbors := make([]string, 0, len(g.adj[u]))
			for v := range g.adj[u] {
				if _, ok := g.Nodes[v]; ok {
					neighbors = append(neighbors, v)
				}
			}
			sort.Strings(neighbors)
			for _, v := range neighbors {
				inDegree[v]--
				if inDegree[v] == 0 {
					queue = append(queue, v)
				}
			}
		}
		stages = append(stages, stage)
	}

	if visited != len(g.Nodes) {
		var scc []string
		for id, d := range inDegree {
			if d > 0 {
				scc = append(scc, id)
			}
		}
		sort.Strings(scc)
		return stages, scc, errs.Newf(errs.Cycle, "", "dependency cycle detected among: %v", scc)
	}
	return stages, nil, nil
}

// Builder expands requested roots into the full install graph,
// breadth-first.
type Builder struct {
	Resolver      *registry.Resolver
	Pins          *channel.PinStore
	Installed     AlreadyInstalledChecker
	Chooser       OptionChooser
	ForceBuild    bool // skip prebuilt preference; also pulls in build deps
	Force         bool // reinstall even if already satisfied
	ScopeOverride *model.Scope
}

type queueItem struct {
	source   string
	parentID string
}

// Build expands roots into the full acyclic install graph.
func (b *Builder) Build(roots []string) (*Graph, error) {
	g := New()
	queue := make([]queueItem, 0, len(roots))
	for _, r := range roots {
		queue = append(queue, queueItem{source: r})
	}
	processedSources := map[string]bool{}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		resolved, err := b.Resolver.Resolve(item.source)
		if err != nil {
			return nil, errs.New(errs.Resolve, item.source, err)
		}
		if resolved.Definition == nil {
			return nil, errs.Newf(errs.Resolve, item.source, "resolved source carries no package definition")
		}
		def := resolved.Definition
		scope := def.Scope
		if b.ScopeOverride != nil {
			scope = *b.ScopeOverride
		}

		versionSpec := ""
		parsed, perr := registry.ParseIdentifier(item.source)
		if perr == nil {
			versionSpec = parsed.VersionOrChannel
		}
		version, err := channel.GetVersionForInstall(def, versionSpec, b.Pins)
		if err != nil {
			return nil, err
		}

		pkgID := def.Name + "@" + version

		if item.parentID != "" {
			g.addEdge(item.parentID, pkgID)
		}

		if _, exists := g.Nodes[pkgID]; exists || processedSources[item.source] {
			continue
		}
		processedSources[item.source] = true

		if !b.Force && b.Installed != nil {
			if installedVersion, ok := b.Installed.InstalledVersion(scope, resolved.RegistryHandle, def.Repo, def.Name); ok {
				if channel.SatisfiesInstalled(installedVersion, version) {
					g.Skips = append(g.Skips, Skip{Source: item.source, Name: def.Name, Version: installedVersion, Reason: "already_installed"})
					continue
				}
			}
		}

		reason := model.DirectReason()
		if item.parentID != "" {
			reason = model.DependencyReason(item.parentID)
		}

		node := &model.InstallNode{
			Package:         def,
			ResolvedVersion: version,
			Reason:          reason,
			SourceID:        item.source,
			RegistryHandle:  resolved.RegistryHandle,
		}
		g.Nodes[pkgID] = node

		deps := def.Dependencies.Runtime
		if deps != nil {
			for _, simple := range deps.RequiredSimple {
				queue = append(queue, queueItem{source: simple, parentID: pkgID})
			}
			for _, group := range deps.RequiredOptions {
				chosen, err := b.chooser().ChooseRequired(def.Name, group)
				if err != nil {
					return nil, errs.New(errs.Plan, def.Name, err)
				}
				node.ChosenOptions = append(node.ChosenOptions, chosen)
				queue = append(queue, queueItem{source: chosen, parentID: pkgID})
			}
			for _, group := range deps.Optional {
				chosen, err := b.chooser().ChooseOptional(def.Name, group)
				if err != nil {
					return nil, errs.New(errs.Plan, def.Name, err)
				}
				node.ChosenOptionals = append(node.ChosenOptionals, chosen...)
				for _, c := range chosen {
					queue = append(queue, queueItem{source: c, parentID: pkgID})
				}
			}
		}

		// Build dependencies only join the graph when a build action
		// will actually be taken: no usable prebuilt, or
		// ForceBuild mode. The planner makes the authoritative
		// Download-vs-Build call per node; here we conservatively
		// include build deps whenever ForceBuild is set, and otherwise
		// whenever the package declares no installation methods at all
		// (i.e. it can only ever be built).
		willBuild := b.ForceBuild || len(def.Installation) == 0
		if willBuild && def.Dependencies.Build != nil {
			for _, simple := range def.Dependencies.Build.RequiredSimple {
				queue = append(queue, queueItem{source: simple, parentID: pkgID})
			}
		}
	}

	return g, nil
}

func (b *Builder) chooser() OptionChooser {
	if b.Chooser != nil {
		return b.Chooser
	}
	return AutoYes{}
}
