// Package model holds the engine's core data types: the package
// definition produced by the external Lua DSL parser (consumed here
// only as the normalized data object), install nodes, manifests,
// transactions, and the project lockfile.
package model

// Scope is the installation target: per-user, machine-wide, or the
// current project's .zoi directory.
type Scope string

const (
	ScopeUser    Scope = "user"
	ScopeSystem  Scope = "system"
	ScopeProject Scope = "project"
)

// PackageType classifies what a definition installs.
type PackageType string

const (
	TypePackage    PackageType = "package"
	TypeCollection PackageType = "collection"
	TypeService    PackageType = "service"
	TypeConfig     PackageType = "config"
	TypeScript     PackageType = "script"
	TypeApp        PackageType = "app"
	TypeExtension  PackageType = "extension"
	TypeLibrary    PackageType = "library"
)

// BuildableForm is one of the forms a package can be fetched or
// built as.
type BuildableForm string

const (
	FormPreCompiled BuildableForm = "pre-compiled"
	FormSource      BuildableForm = "source"
	FormScript      BuildableForm = "script"
	FormInstaller   BuildableForm = "installer"
	FormComBinary   BuildableForm = "com_binary"
)

// Maintainer identifies who signs or maintains a package, and how to
// fetch their trust key.
type Maintainer struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Key      string `yaml:"key,omitempty"`      // URL, 40-hex fingerprint, or local keystore name
	OneTime  bool   `yaml:"one_time,omitempty"` // don't persist the fetched key
}

// OptionGroup is a named choice group inside required-option or
// optional dependency lists.
type OptionGroup struct {
	Name    string   `yaml:"name"`
	Members []string `yaml:"members"`
}

// Dependencies carries runtime and build dependency declarations
//.
type Dependencies struct {
	RequiredSimple  []string      `yaml:"required_simple,omitempty"`
	RequiredOptions []OptionGroup `yaml:"required_options,omitempty"`
	Optional        []OptionGroup `yaml:"optional,omitempty"`
}

type DependencySet struct {
	Runtime *Dependencies `yaml:"runtime,omitempty"`
	Build   *Dependencies `yaml:"build,omitempty"`
}

// InstallationMethod is one ordered entry of a definition's
// installation list.
type InstallationMethod struct {
	InstallType   string              `yaml:"install_type"`
	Platforms     []string            `yaml:"platforms,omitempty"`
	URL           string              `yaml:"url,omitempty"`
	Checksums     string              `yaml:"checksums,omitempty"`
	Sigs          string              `yaml:"sigs,omitempty"`
	Tag           string              `yaml:"tag,omitempty"`
	Branch        string              `yaml:"branch,omitempty"`
	BuildCommands map[string][]string `yaml:"build_commands,omitempty"`
	BinaryPath    map[string]string   `yaml:"binary_path,omitempty"`
}

// Hooks is the lifecycle hook map, each entry keyed by platform and
// populated with a shell command list.
type Hooks struct {
	PreInstall  map[string][]string `yaml:"pre_install,omitempty"`
	PostInstall map[string][]string `yaml:"post_install,omitempty"`
	PreUpgrade  map[string][]string `yaml:"pre_upgrade,omitempty"`
	PostUpgrade map[string][]string `yaml:"post_upgrade,omitempty"`
	PreRemove   map[string][]string `yaml:"pre_remove,omitempty"`
	PostRemove  map[string][]string `yaml:"post_remove,omitempty"`
}

// Package is the normalized package definition the external DSL
// parser hands to the core. The core never interprets Lua; it only
// consumes this struct.
type Package struct {
	Name        string            `yaml:"name"`
	Repo        string            `yaml:"repo"`
	Description string            `yaml:"description"`
	License     string            `yaml:"license,omitempty"`
	Git         string            `yaml:"git,omitempty"`
	Maintainer  Maintainer        `yaml:"maintainer"`
	Author      string            `yaml:"author,omitempty"`
	Type        PackageType       `yaml:"type"`
	Scope       Scope             `yaml:"scope"`
	Version     string            `yaml:"version,omitempty"`
	Versions    map[string]string `yaml:"versions,omitempty"` // channel -> literal version or URL
	Types       []BuildableForm   `yaml:"types,omitempty"`
	Installation []InstallationMethod `yaml:"installation,omitempty"`
	Dependencies DependencySet    `yaml:"dependencies,omitempty"`
	Conflicts   []string          `yaml:"conflicts,omitempty"`
	Provides    []string          `yaml:"provides,omitempty"`
	Replaces    []string          `yaml:"replaces,omitempty"`
	Bins        []string          `yaml:"bins,omitempty"`
	SubPackages []string          `yaml:"sub_packages,omitempty"`
	Updates     []string          `yaml:"updates,omitempty"`
	Hooks       Hooks             `yaml:"hooks,omitempty"`
	Man         string            `yaml:"man,omitempty"`
	Alt         string            `yaml:"alt,omitempty"`
}

// HasForm reports whether form appears in the package's buildable
// forms, used to validate a BuildAndInstall plan's chosen type.
func (p *Package) HasForm(form BuildableForm) bool {
	for _, f := range p.Types {
		if f == form {
			return true
		}
	}
	return false
}
