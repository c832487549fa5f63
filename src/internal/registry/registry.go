// Package registry resolves user-facing identifiers (name,
// @repo/name, URL, local file, @git/ reference) to on-disk package
// definitions, searching the active registries in order and following
// alt redirections; an alt reached from an official repo keeps the
// official trust level of the outer resolution.
package registry

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.yaml.in/yaml/v3"

	"github.com/zoi-pm/zoi/src/internal/errs"
	"github.com/zoi-pm/zoi/src/internal/model"
	"github.com/zoi-pm/zoi/src/internal/paths"
)

// SourceType classifies where a resolved definition came from, which
// decides how much the caller should trust it.
type SourceType int

const (
	OfficialRepo SourceType = iota
	UntrustedRepo
	GitRepo
	LocalFile
	URL
)

func (t SourceType) String() string {
	switch t {
	case OfficialRepo:
		return "official_repo"
	case UntrustedRepo:
		return "untrusted_repo"
	case GitRepo:
		return "git_repo"
	case LocalFile:
		return "local_file"
	case URL:
		return "url"
	default:
		return "unknown"
	}
}

// Untrusted reports whether this source type requires caller
// confirmation before use. The resolver never prompts itself; it
// surfaces the source type and the caller decides.
func (t SourceType) Untrusted() bool {
	return t != OfficialRepo
}

type ResolvedSource struct {
	PathToDefinition string
	SourceType       SourceType
	RegistryHandle   string
	RepoName         string
	Definition       *model.Package
}

// ParsedIdentifier is the decomposed form of a user-facing
// identifier.
type ParsedIdentifier struct {
	Repo           string // explicit "@repo/path", empty if not given
	Name           string
	SubPackage     string
	VersionOrChannel string
	URL            string
	LocalPath      string
	GitRepoName    string
	GitNestedPath  string
}

// officialMajorRepos are the well-known first path segments that mark
// a repo as officially trusted.
var officialMajorRepos = map[string]bool{
	"core": true, "main": true, "extra": true, "official": true,
}

// ParseIdentifier decomposes an identifier: a URL, a local definition
// path, a @git/ reference, or [@repo/]name[:sub][@version].
func ParseIdentifier(identifier string) (ParsedIdentifier, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return ParsedIdentifier{}, errs.Newf(errs.Resolve, "", "empty identifier")
	}

	if strings.HasPrefix(id, "http://") || strings.HasPrefix(id, "https://") {
		return ParsedIdentifier{URL: id}, nil
	}

	if strings.HasSuffix(id, ".pkg.yaml") || strings.HasSuffix(id, ".pkg.lua") || strings.HasSuffix(id, ".manifest.yaml") {
		return ParsedIdentifier{LocalPath: id}, nil
	}

	if strings.HasPrefix(id, "@git/") {
		rest := strings.TrimPrefix(id, "@git/")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 || parts[1] == "" {
			return ParsedIdentifier{}, errs.Newf(errs.Resolve, identifier, "malformed @git/ identifier")
		}
		return ParsedIdentifier{GitRepoName: parts[0], GitNestedPath: parts[1]}, nil
	}

	main := id
	version := ""
	if at := strings.LastIndex(id, "@"); at > 0 {
		main = id[:at]
		version = id[at+1:]
	}

	repo := ""
	name := main
	if strings.HasPrefix(main, "@") {
		s := strings.TrimPrefix(main, "@")
		slash := strings.Index(s, "/")
		if slash < 0 || slash == len(s)-1 {
			return ParsedIdentifier{}, errs.Newf(errs.Resolve, identifier, "must be in the form @repo/package")
		}
		repo = strings.ToLower(s[:slash])
		name = s[slash+1:]
	}

	sub := ""
	if colon := strings.Index(name, ":"); colon >= 0 {
		sub = name[colon+1:]
		name = name[:colon]
	}

	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ParsedIdentifier{}, errs.Newf(errs.Resolve, identifier, "package name is empty")
	}

	return ParsedIdentifier{Repo: repo, Name: name, SubPackage: sub, VersionOrChannel: version}, nil
}

// RegistryList is the set of active repos in search order: the
// default registry's repos, then added registries in declaration
// order, then git repos.
type RegistryList struct {
	DefaultRepos []string
	Added        []string // handle names, declaration order
	GitRepos     []string
}

const maxAltDepth = 5
const maxDisambiguation = 10

// Resolver resolves identifiers to definitions against the on-disk
// registry clone layout.
type Resolver struct {
	Scope      model.Scope
	ProjectDir string
	Registries RegistryList
	// Disambiguate is invoked when more than one match is found for an
	// identifier with no explicit repo. A nil Disambiguate means the
	// caller is non-interactive: AmbiguousName is returned instead.
	Disambiguate func(candidates []ResolvedSource) (*ResolvedSource, error)
}

// AmbiguousName is returned when disambiguation can't be resolved
// automatically and no interactive Disambiguate callback is set.
type AmbiguousName struct {
	Identifier string
	Candidates []string
}

func (e *AmbiguousName) Error() string {
	return "ambiguous identifier " + e.Identifier + ": matches " + strings.Join(e.Candidates, ", ")
}

// Resolve maps an identifier to a concrete package definition source.
func (r *Resolver) Resolve(identifier string) (*ResolvedSource, error) {
	parsed, err := ParseIdentifier(identifier)
	if err != nil {
		return nil, err
	}

	switch {
	case parsed.URL != "":
		return &ResolvedSource{PathToDefinition: parsed.URL, SourceType: URL}, nil
	case parsed.LocalPath != "":
		return &ResolvedSource{PathToDefinition: parsed.LocalPath, SourceType: LocalFile}, nil
	case parsed.GitRepoName != "":
		path := filepath.Join(paths.RegistryRoot(r.Scope, r.ProjectDir, parsed.GitRepoName), parsed.GitNestedPath)
		return &ResolvedSource{PathToDefinition: path, SourceType: GitRepo, RepoName: parsed.GitRepoName}, nil
	}

	return r.resolveFromDB(identifier, parsed, 0)
}

func (r *Resolver) resolveFromDB(identifier string, parsed ParsedIdentifier, altDepth int) (*ResolvedSource, error) {
	if altDepth > maxAltDepth {
		return nil, errs.Newf(errs.Resolve, identifier, "alt redirection exceeded depth %d", maxAltDepth)
	}

	searchRepos := r.Registries.DefaultRepos
	if parsed.Repo != "" {
		searchRepos = []string{parsed.Repo}
	} else {
		searchRepos = append(append([]string{}, r.Registries.DefaultRepos...), r.Registries.Added...)
	}

	var candidates []ResolvedSource
	for _, repoName := range searchRepos {
		def, path, ok, err := r.lookupDefinition(repoName, parsed.Name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		candidates = append(candidates, ResolvedSource{
			PathToDefinition: path,
			SourceType:       classifySource(repoName),
			RepoName:         repoName,
			Definition:       def,
		})
	}

	if len(candidates) == 0 {
		for _, gitRepo := range r.Registries.GitRepos {
			def, path, ok, err := r.lookupDefinition(gitRepo, parsed.Name)
			if err != nil {
				return nil, err
			}
			if ok {
				candidates = append(candidates, ResolvedSource{
					PathToDefinition: path,
					SourceType:       GitRepo,
					RepoName:         gitRepo,
					Definition:       def,
				})
			}
		}
	}

	var chosen *ResolvedSource
	switch len(candidates) {
	case 0:
		return nil, errs.Newf(errs.Resolve, identifier, "package %q not found in any active registry", parsed.Name)
	case 1:
		chosen = &candidates[0]
	default:
		if r.Disambiguate == nil {
			names := make([]string, 0, len(candidates))
			for _, c := range candidates {
				names = append(names, c.RepoName+"/"+parsed.Name)
			}
			return nil, &AmbiguousName{Identifier: identifier, Candidates: rankCandidates(parsed.Name, names)}
		}
		var derr error
		chosen, derr = r.Disambiguate(candidates)
		if derr != nil {
			return nil, derr
		}
	}

	if chosen.Definition != nil && chosen.Definition.Alt != "" {
		outerTrust := chosen.SourceType
		redirected, err := r.resolveFromDB(chosen.Definition.Alt, ParsedIdentifier{Name: strings.ToLower(chosen.Definition.Alt)}, altDepth+1)
		if err != nil {
			return nil, err
		}
		// Inherit the outer trust level: a trusted outer resolution
		// never gets silently upgraded to an untrusted alt.
		if outerTrust == OfficialRepo {
			redirected.SourceType = OfficialRepo
		}
		return redirected, nil
	}

	return chosen, nil
}

func classifySource(repoName string) SourceType {
	major := strings.ToLower(strings.SplitN(repoName, "/", 2)[0])
	if officialMajorRepos[major] {
		return OfficialRepo
	}
	return UntrustedRepo
}

func (r *Resolver) lookupDefinition(repoName, name string) (*model.Package, string, bool, error) {
	root := paths.RegistryRoot(r.Scope, r.ProjectDir, strings.SplitN(repoName, "/", 2)[0])
	path := filepath.Join(root, repoName, name, name+".pkg.yaml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, errs.New(errs.Resolve, name, err)
	}
	var def model.Package
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, "", false, errs.New(errs.Resolve, name, err)
	}
	return &def, path, true, nil
}

// rankCandidates orders a bounded disambiguation list by fuzzy
// closeness to the requested name.
func rankCandidates(query string, candidates []string) []string {
	ranks := fuzzy.RankFindFold(query, candidates)
	sort.Sort(ranks)
	out := make([]string, 0, len(ranks))
	for _, rank := range ranks {
		out = append(out, rank.Target)
	}
	if len(out) == 0 {
		out = candidates
	}
	if len(out) > maxDisambiguation {
		out = out[:maxDisambiguation]
	}
	return out
}
