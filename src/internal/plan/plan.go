// Package plan decides, per install node, whether to download a
// prebuilt archive from the registry's mirror table or build from
// source, and fetches download sizes up front so the caller can
// report a total before confirming.
package plan

import (
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/zoi-pm/zoi/src/internal/errs"
	"github.com/zoi-pm/zoi/src/internal/model"
)

// Action is the planner's per-node decision.
type Action string

const (
	ActionDownloadAndInstall Action = "download_and_install"
	ActionBuildAndInstall    Action = "build_and_install"
)

// PrebuiltDetails carries the resolved mirror URLs for a
// DownloadAndInstall node. Mirrors holds every candidate URL
// that substituted cleanly, in declaration order, so a download
// failure can fall back to the next one; FinalURL is Mirrors[0], kept
// for callers that only care about the first choice.
type PrebuiltDetails struct {
	FinalURL string
	Mirrors  []string
	HashURL  string
	PGPURL   string
	SizeURL  string
	Size     int64 // filled in by FetchSizes; 0 if unknown
}

// BuildDetails carries the declared build type for a BuildAndInstall
// node.
type BuildDetails struct {
	BuildType model.BuildableForm
}

// NodePlan is the chosen action for one install node.
type NodePlan struct {
	NodeID   string
	Node     *model.InstallNode
	Action   Action
	Prebuilt *PrebuiltDetails
	Build    *BuildDetails
}

// Plan is the full set of per-node decisions plus the topological
// stage ordering the orchestrator will execute.
type Plan struct {
	Nodes  map[string]*NodePlan
	Stages [][]string
}

// platformOverride lets tests pin the platform tag without build
// tags; empty means use the running GOOS/GOARCH.
var platformOverride string

func currentPlatformTag() string {
	if platformOverride != "" {
		return platformOverride
	}
	return fmt.Sprintf("%s_%s", runtime.GOOS, runtime.GOARCH)
}

// substitute expands {os}, {arch}, {version}, {repo} in a mirror URL
// template.
func substitute(template, os, arch, version, repo string) string {
	r := strings.NewReplacer(
		"{os}", os,
		"{arch}", arch,
		"{version}", version,
		"{repo}", repo,
	)
	return r.Replace(template)
}

// Planner decides an Action per node using the active registry's
// mirror table.
type Planner struct {
	// MirrorTable looks up the ordered (main first) list of URL
	// templates declared for a node's install_type/platform, reading
	// the active registry's repo.yaml. Returns ok=false when no pkg
	// mirror entry exists for this node.
	MirrorTable func(node *model.InstallNode) (templates []string, hashURL, pgpURL, sizeURL string, ok bool)
	HTTPClient  *http.Client
}

func (p *Planner) httpClient() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return http.DefaultClient
}

// PlanNode makes the download-vs-build decision for one node.
func (p *Planner) PlanNode(node *model.InstallNode) (*NodePlan, error) {
	if p.MirrorTable != nil {
		if templates, hashURL, pgpURL, sizeURL, ok := p.MirrorTable(node); ok && len(templates) > 0 {
			var mirrors []string
			osName, arch, _ := strings.Cut(currentPlatformTag(), "_")
			for _, t := range templates {
				candidate := substitute(t, osName, arch, node.ResolvedVersion, node.RegistryHandle)
				if strings.HasPrefix(candidate, "https://") {
					mirrors = append(mirrors, candidate)
				}
			}
			if len(mirrors) > 0 {
				return &NodePlan{
					NodeID: node.ID(),
					Node:   node,
					Action: ActionDownloadAndInstall,
					Prebuilt: &PrebuiltDetails{
						FinalURL: mirrors[0],
						Mirrors:  mirrors,
						HashURL:  hashURL,
						PGPURL:   pgpURL,
						SizeURL:  sizeURL,
					},
				}, nil
			}
		}
	}

	buildType := model.FormSource
	switch {
	case node.Package.HasForm(model.FormSource):
		buildType = model.FormSource
	case node.Package.HasForm(model.FormPreCompiled):
		buildType = model.FormPreCompiled
	case len(node.Package.Types) > 0:
		buildType = node.Package.Types[0]
	default:
		return nil, errs.Newf(errs.Plan, node.Package.Name, "package declares no buildable types")
	}
	if !node.Package.HasForm(buildType) {
		return nil, errs.Newf(errs.Plan, node.Package.Name, "declared build type %q not in package types", buildType)
	}

	return &NodePlan{
		NodeID: node.ID(),
		Node:   node,
		Action: ActionBuildAndInstall,
		Build:  &BuildDetails{BuildType: buildType},
	}, nil
}

// Build plans every node in a graph, attaching the given topological
// stage ordering.
func (p *Planner) Build(nodes map[string]*model.InstallNode, stages [][]string) (*Plan, error) {
	out := &Plan{Nodes: map[string]*NodePlan{}, Stages: stages}
	for id, node := range nodes {
		np, err := p.PlanNode(node)
		if err != nil {
			return nil, err
		}
		out.Nodes[id] = np
	}
	return out, nil
}

// FetchSizes resolves Content-Length for every unique size URL across
// the plan's DownloadAndInstall nodes, one HTTP request per unique
// URL, run concurrently, to report a total download size before the
// caller confirms.
func (p *Planner) FetchSizes(plan *Plan) (total int64, err error) {
	unique := map[string][]*NodePlan{}
	for _, np := range plan.Nodes {
		if np.Action == ActionDownloadAndInstall && np.Prebuilt != nil && np.Prebuilt.SizeURL != "" {
			unique[np.Prebuilt.SizeURL] = append(unique[np.Prebuilt.SizeURL], np)
		}
	}
	if len(unique) == 0 {
		return 0, nil
	}

	type result struct {
		url  string
		size int64
		err  error
	}
	results := make(chan result, len(unique))
	var wg sync.WaitGroup
	for url := range unique {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			size, err := p.fetchSize(url)
			results <- result{url: url, size: size, err: err}
		}(url)
	}
	wg.Wait()
	close(results)

	for r := range results {
		if r.err != nil {
			return 0, r.err
		}
		for _, np := range unique[r.url] {
			np.Prebuilt.Size = r.size
			total += r.size
		}
	}
	return total, nil
}

func (p *Planner) fetchSize(url string) (int64, error) {
	resp, err := p.httpClient().Head(url)
	if err != nil {
		return 0, errs.New(errs.Network, "", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, errs.Newf(errs.Network, "", "size url %s returned status %s", url, resp.Status)
	}
	cl := resp.Header.Get("Content-Length")
	if cl == "" {
		return 0, nil
	}
	size, err := strconv.ParseInt(cl, 10, 64)
	if err != nil {
		return 0, nil
	}
	return size, nil
}
