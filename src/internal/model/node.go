package model

import "fmt"

// InstallReason records why a node entered the graph: requested
// directly, or pulled in as a dependency of a parent node.
type InstallReason struct {
	Direct   bool
	ParentID string // set when Direct is false: the id of the dependent node
}

func DirectReason() InstallReason           { return InstallReason{Direct: true} }
func DependencyReason(parentID string) InstallReason {
	return InstallReason{Direct: false, ParentID: parentID}
}

func (r InstallReason) String() string {
	if r.Direct {
		return "direct"
	}
	return "dependency:" + r.ParentID
}

// InstallNode is one package version in the install graph. SourceID
// is the original user-facing identifier the node was resolved from,
// kept for diagnostics.
type InstallNode struct {
	Package         *Package
	ResolvedVersion string
	Reason          InstallReason
	SourceID        string
	RegistryHandle  string
	ChosenOptions   []string
	ChosenOptionals []string
	SubPackage      string
}

// ID is the node identity, `name@version[:sub]`.
func (n *InstallNode) ID() string {
	id := fmt.Sprintf("%s@%s", n.Package.Name, n.ResolvedVersion)
	if n.SubPackage != "" {
		id += ":" + n.SubPackage
	}
	return id
}
