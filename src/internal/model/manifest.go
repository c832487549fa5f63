package model

import "time"

// InstallManifest is the per-installed-package record persisted at
// `pkg_dir/V/manifest.yaml`.
type InstallManifest struct {
	Name                 string      `yaml:"name"`
	SubPackage           string      `yaml:"sub_package,omitempty"`
	Version              string      `yaml:"version"`
	Repo                 string      `yaml:"repo"`
	RegistryHandle       string      `yaml:"registry_handle"`
	Scope                Scope       `yaml:"scope"`
	PackageType          PackageType `yaml:"package_type"`
	InstalledAt          time.Time   `yaml:"installed_at"`
	Reason               string      `yaml:"reason"` // InstallReason.String()
	Bins                 []string    `yaml:"bins,omitempty"`
	Provides             []string    `yaml:"provides,omitempty"`
	Conflicts            []string    `yaml:"conflicts,omitempty"`
	InstalledDependencies []string   `yaml:"installed_dependencies,omitempty"`
	ExternalDependencies []string    `yaml:"external_dependencies,omitempty"`
	ChosenOptions        []string    `yaml:"chosen_options,omitempty"`
	ChosenOptionals      []string    `yaml:"chosen_optionals,omitempty"`
	InstallMethod        string      `yaml:"install_method"`
	InstalledFiles       []string    `yaml:"installed_files,omitempty"`
	Hooks                Hooks       `yaml:"hooks,omitempty"`
}

// ManifestKey identifies a manifest by (scope, registry handle, repo, name) —
// the invariant key the store enforces uniqueness over.
type ManifestKey struct {
	Scope          Scope
	RegistryHandle string
	Repo           string
	Name           string
}

func KeyOf(m *InstallManifest) ManifestKey {
	return ManifestKey{Scope: m.Scope, RegistryHandle: m.RegistryHandle, Repo: m.Repo, Name: m.Name}
}
