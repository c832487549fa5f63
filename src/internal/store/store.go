// Package store enumerates installed manifests by walking the scoped
// store roots, maintains the append-only global install record, and
// reads, writes, and verifies the project lockfile with its
// content-addressed integrity hashes.
package store

import (
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.yaml.in/yaml/v3"

	"github.com/zoi-pm/zoi/src/internal/errs"
	"github.com/zoi-pm/zoi/src/internal/model"
	"github.com/zoi-pm/zoi/src/internal/paths"
)

// Store enumerates installed manifests and persists the project
// lockfile. Fs defaults to the real OS filesystem; tests substitute
// afero.NewMemMapFs() to exercise enumeration without touching disk.
type Store struct {
	ProjectDir string
	Fs         afero.Fs
}

func (s *Store) fs() afero.Fs {
	if s.Fs != nil {
		return s.Fs
	}
	return afero.NewOsFs()
}

// scopeRoots enumerates the scope directories manifests can live
// under; installed-package enumeration is a filesystem walk of every
// scope's store root.
func (s *Store) scopeRoots() []model.Scope {
	return []model.Scope{model.ScopeUser, model.ScopeSystem, model.ScopeProject}
}

// ListInstalled walks every scope's store root and returns every
// manifest found, sorted by name.
func (s *Store) ListInstalled() ([]*model.InstallManifest, error) {
	af := afero.Afero{Fs: s.fs()}
	var out []*model.InstallManifest
	for _, scope := range s.scopeRoots() {
		root := paths.StoreRoot(scope, s.ProjectDir)
		manifests, err := walkManifests(af, root)
		if err != nil {
			return nil, err
		}
		out = append(out, manifests...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func walkManifests(af afero.Afero, root string) ([]*model.InstallManifest, error) {
	var out []*model.InstallManifest
	entries, err := af.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.New(errs.Filesystem, root, err)
	}
	for _, handleEntry := range entries {
		if !handleEntry.IsDir() {
			continue
		}
		handleRoot := filepath.Join(root, handleEntry.Name())
		_ = af.Walk(handleRoot, func(p string, info os.FileInfo, walkErr error) error {
			if walkErr != nil {
				return nil
			}
			// The latest indirection is a directory on platforms where it
			// can't be a symlink; descending into it would list every
			// manifest twice.
			if info.IsDir() && info.Name() == "latest" {
				return filepath.SkipDir
			}
			if info.IsDir() || info.Name() != "manifest.yaml" {
				return nil
			}
			data, readErr := af.ReadFile(p)
			if readErr != nil {
				return nil
			}
			var m model.InstallManifest
			if yamlErr := yaml.Unmarshal(data, &m); yamlErr != nil {
				return nil
			}
			out = append(out, &m)
			return nil
		})
	}
	return out, nil
}

// FindInstalled returns the manifest installed at (scope, handle,
// repo, name), if any.
func (s *Store) FindInstalled(scope model.Scope, handle, repo, name string) (*model.InstallManifest, bool) {
	latest := paths.LatestPointer(scope, s.ProjectDir, handle, repo, name)
	manifestPath := filepath.Join(latest, "manifest.yaml")
	data, err := afero.ReadFile(s.fs(), manifestPath)
	if err != nil {
		return nil, false
	}
	var m model.InstallManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, false
	}
	return &m, true
}

// InstalledVersion implements graph.AlreadyInstalledChecker, letting
// the graph builder skip nodes already satisfied on disk without
// importing store directly in graph's interface definition.
func (s *Store) InstalledVersion(scope model.Scope, registryHandle, repo, name string) (string, bool) {
	m, ok := s.FindInstalled(scope, registryHandle, repo, name)
	if !ok {
		return "", false
	}
	return m.Version, true
}

// OwnerOfBin and OwnerOfVirtual implement conflict.InstalledIndex.
func (s *Store) OwnerOfBin(scope model.Scope, bin string) (string, bool) {
	installed, err := s.ListInstalled()
	if err != nil {
		return "", false
	}
	for _, m := range installed {
		if m.Scope != scope {
			continue
		}
		for _, b := range m.Bins {
			if b == bin {
				return m.Name, true
			}
		}
	}
	return "", false
}

func (s *Store) OwnerOfVirtual(scope model.Scope, virtual string) (string, bool) {
	installed, err := s.ListInstalled()
	if err != nil {
		return "", false
	}
	for _, m := range installed {
		if m.Scope != scope {
			continue
		}
		for _, v := range m.Provides {
			if v == virtual {
				return m.Name, true
			}
		}
	}
	return "", false
}

func (s *Store) HasManifest(scope model.Scope, name string) bool {
	installed, err := s.ListInstalled()
	if err != nil {
		return false
	}
	for _, m := range installed {
		if m.Scope == scope && m.Name == name {
			return true
		}
	}
	return false
}

// globalRecordEntry is one line of the append-only global install
// record.
type globalRecordEntry struct {
	TransactionID string    `json:"transaction_id"`
	Name          string    `json:"name"`
	Version       string    `json:"version"`
	Scope         string    `json:"scope"`
	Kind          string    `json:"kind"` // "install" or "uninstall"
	At            time.Time `json:"at"`
}

// AppendGlobalRecord appends one JSON line to the global install
// record for reporting purposes.
func (s *Store) AppendGlobalRecord(path, transactionID, kind string, m *model.InstallManifest) error {
	entry := globalRecordEntry{
		TransactionID: transactionID,
		Name:          m.Name,
		Version:       m.Version,
		Scope:         string(m.Scope),
		Kind:          kind,
		At:            time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return errs.New(errs.Filesystem, path, err)
	}
	f, err := s.fs().OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errs.New(errs.Filesystem, path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return errs.New(errs.Filesystem, path, err)
	}
	return nil
}

// HashTree computes the SHA-512 integrity digest of an installed
// tree: files sorted by relative path, each contributing its relative
// path followed by its contents to a single hash.
func HashTree(root string) (string, error) {
	// root is usually the `latest` pointer; resolve it so the walk
	// descends into the target version directory instead of stopping at
	// the symlink itself.
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	var files []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !info.IsDir() {
			rel, relErr := filepath.Rel(root, p)
			if relErr != nil {
				return relErr
			}
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return "", errs.New(errs.Filesystem, root, err)
	}
	sort.Strings(files)

	h := sha512.New()
	for _, rel := range files {
		h.Write([]byte(rel))
		data, readErr := os.ReadFile(filepath.Join(root, rel))
		if readErr != nil {
			return "", errs.New(errs.Filesystem, rel, readErr)
		}
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Dependents rebuilds the reverse-dependency index for name by
// inverting every installed manifest's forward InstalledDependencies
// edges. The reverse index is never persisted; it is rebuilt from
// forward edges on every call.
func (s *Store) Dependents(scope model.Scope, name string) ([]string, error) {
	installed, err := s.ListInstalled()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, m := range installed {
		if m.Scope != scope {
			continue
		}
		for _, dep := range m.InstalledDependencies {
			if dep == name {
				out = append(out, m.Name)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// AutoremoveCandidates returns packages installed only as a
// dependency (never requested directly) whose dependents index is now
// empty.
func (s *Store) AutoremoveCandidates(scope model.Scope) ([]*model.InstallManifest, error) {
	installed, err := s.ListInstalled()
	if err != nil {
		return nil, err
	}

	referenced := map[string]bool{}
	for _, m := range installed {
		if m.Scope != scope {
			continue
		}
		for _, dep := range m.InstalledDependencies {
			referenced[dep] = true
		}
	}

	var out []*model.InstallManifest
	for _, m := range installed {
		if m.Scope != scope {
			continue
		}
		if m.Reason == "direct" {
			continue
		}
		if referenced[m.Name] {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// LoadProjectLock reads zoi.lock, returning an empty lockfile if it
// doesn't exist yet.
func LoadProjectLock(projectDir string) (*model.ProjectLock, error) {
	path := paths.LockfilePath(projectDir)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return model.NewProjectLock(), nil
	}
	if err != nil {
		return nil, errs.New(errs.Filesystem, path, err)
	}
	lock := model.NewProjectLock()
	if err := json.Unmarshal(data, lock); err != nil {
		return nil, errs.New(errs.Filesystem, path, err)
	}
	return lock, nil
}

// SaveProjectLock writes zoi.lock as pretty-printed JSON.
func SaveProjectLock(projectDir string, lock *model.ProjectLock) error {
	path := paths.LockfilePath(projectDir)
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return errs.New(errs.Filesystem, path, err)
	}
	return os.WriteFile(path, data, 0o644)
}

// VerifyAgainstLock checks installed state against the lockfile: every
// lockfile entry must have an installed manifest at the recorded
// version, every installed project-scope package must appear in the
// lockfile, and every integrity digest must match the recomputed tree
// hash.
func (s *Store) VerifyAgainstLock(lock *model.ProjectLock) error {
	installed, err := s.ListInstalled()
	if err != nil {
		return err
	}

	type slot struct {
		handle string
		m      *model.InstallManifest
	}
	projectInstalled := map[model.ManifestKey]slot{}
	for _, m := range installed {
		if m.Scope != model.ScopeProject {
			continue
		}
		projectInstalled[model.KeyOf(m)] = slot{handle: m.RegistryHandle, m: m}
	}

	for handle, details := range lock.Details {
		for fullID, detail := range details {
			repo, name, sub := parseFullID(fullID)
			if sub != detail.SubPackage {
				sub = detail.SubPackage
			}
			key := model.ManifestKey{Scope: model.ScopeProject, RegistryHandle: handle, Repo: repo, Name: name}
			entry, ok := projectInstalled[key]
			if !ok {
				return errs.Newf(errs.LockfileDrift, name, "lockfile entry %s/%s has no installed manifest", handle, fullID)
			}
			m := entry.m
			if m.Version != detail.Version {
				return errs.Newf(errs.LockfileDrift, name, "lockfile pins %s at %s, installed is %s", fullID, detail.Version, m.Version)
			}
			delete(projectInstalled, key)

			latest := paths.LatestPointer(model.ScopeProject, s.ProjectDir, handle, repo, name)
			actualHash, hashErr := HashTree(latest)
			if hashErr != nil {
				return hashErr
			}
			if actualHash != detail.Integrity {
				return errs.Newf(errs.LockfileDrift, name, "integrity mismatch for %s: lockfile has %s, tree hashes to %s", fullID, detail.Integrity, actualHash)
			}
		}
	}

	for key := range projectInstalled {
		return errs.Newf(errs.LockfileDrift, key.Name, "installed project package %s is missing from the lockfile", key.Name)
	}

	return nil
}

// parseFullID splits a lockfile key of the shape "@repo/name[:sub]"
// into its parts.
func parseFullID(fullID string) (repo, name, sub string) {
	id := strings.TrimPrefix(fullID, "@")
	if idx := strings.Index(id, ":"); idx != -1 {
		sub = id[idx+1:]
		id = id[:idx]
	}
	parts := strings.SplitN(id, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1], sub
	}
	return "", id, sub
}
