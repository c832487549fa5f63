package model

// FinalMetadata is the archive's embedded `metadata.json` schema,
// produced by the source builder when sealing a build and consumed
// by the installer on install
//.
type FinalMetadata struct {
	Name        string              `json:"name"`
	Version     string              `json:"version"`
	Description string              `json:"description"`
	Repo        string              `json:"repo"`
	License     string              `json:"license,omitempty"`
	Git         string              `json:"git,omitempty"`
	Website     string              `json:"website,omitempty"`
	ManURL      string              `json:"man_url,omitempty"`
	Maintainer  MetadataMaintainer  `json:"maintainer"`
	Author      string              `json:"author,omitempty"`
	Installation MetadataInstall    `json:"installation"`
	Bins        []string            `json:"bins,omitempty"`
}

type MetadataMaintainer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Key     string `json:"key,omitempty"`
	KeyName string `json:"key_name,omitempty"`
	OneTime bool   `json:"one_time,omitempty"`
}

type MetadataAsset struct {
	Platform  string `json:"platform"`
	URL       string `json:"url"`
	Checksum  string `json:"checksum,omitempty"`
	SignatureURL string `json:"signature_url,omitempty"`
}

type MetadataFileCopy struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

type MetadataFileGroup struct {
	Platforms []string            `json:"platforms"`
	Files     []MetadataFileCopy  `json:"files"`
}

type MetadataInstall struct {
	InstallType   string              `json:"install_type"`
	Git           string              `json:"git,omitempty"`
	Tag           string              `json:"tag,omitempty"`
	Branch        string              `json:"branch,omitempty"`
	BuildCommands map[string][]string `json:"build_commands,omitempty"`
	BinaryPath    map[string]string   `json:"binary_path,omitempty"`
	Assets        []MetadataAsset     `json:"assets,omitempty"`
	Files         []MetadataFileGroup `json:"files,omitempty"`
}
