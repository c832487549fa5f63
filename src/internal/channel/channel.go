// Package channel resolves a version spec (channel reference, exact
// version, or nothing) against a package definition's versions table,
// with pinned versions taking precedence over everything else.
package channel

import (
	"encoding/json"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/zoi-pm/zoi/src/internal/errs"
	"github.com/zoi-pm/zoi/src/internal/model"
)

// channelJSON is the body shape a URL-hosted channel value fetches:
// {"versions":{"<channel>":"<version>"}}.
type channelJSON struct {
	Versions map[string]string `json:"versions"`
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

func fetchChannelJSON(url string) (channelJSON, error) {
	resp, err := httpClient.Get(url)
	if err != nil {
		return channelJSON{}, errs.New(errs.Network, "", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return channelJSON{}, errs.Newf(errs.Network, "", "channel url returned status %s", resp.Status)
	}
	var body channelJSON
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return channelJSON{}, errs.New(errs.Resolve, "", err)
	}
	return body, nil
}

func resolveChannelValue(value, channel string) (string, error) {
	if isURL(value) {
		body, err := fetchChannelJSON(value)
		if err != nil {
			return "", err
		}
		v, ok := body.Versions[channel]
		if !ok {
			return "", errs.Newf(errs.Resolve, "", "channel %q missing from %s", channel, value)
		}
		return v, nil
	}
	return value, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// PinStore tracks pinned versions per package. A pinned package
// keeps its pinned version through updates; unpinning re-enables
// channel resolution.
type PinStore struct {
	Pins map[string]string // package name -> pinned version
}

func NewPinStore() *PinStore { return &PinStore{Pins: map[string]string{}} }

func (p *PinStore) Pin(name, version string)   { p.Pins[name] = version }
func (p *PinStore) Unpin(name string)           { delete(p.Pins, name) }
func (p *PinStore) IsPinned(name string) bool   { _, ok := p.Pins[name]; return ok }
func (p *PinStore) PinnedVersion(name string) string { return p.Pins[name] }

// LoadPinStore reads the pinned-version record at path, returning an
// empty store if it doesn't exist yet.
func LoadPinStore(path string) (*PinStore, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewPinStore(), nil
	}
	if err != nil {
		return nil, errs.New(errs.Filesystem, path, err)
	}
	pins := map[string]string{}
	if err := json.Unmarshal(data, &pins); err != nil {
		// A malformed file reads as an empty pin set rather than
		// failing the caller.
		return NewPinStore(), nil
	}
	return &PinStore{Pins: pins}, nil
}

// Save persists the pin store as pretty-printed JSON.
func (p *PinStore) Save(path string) error {
	data, err := json.MarshalIndent(p.Pins, "", "  ")
	if err != nil {
		return errs.New(errs.Filesystem, path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errs.New(errs.Filesystem, path, err)
	}
	return nil
}

// GetVersionForInstall resolves versionSpec against def: a pin wins,
// then a channel reference, then an exact version, then the default.
func GetVersionForInstall(def *model.Package, versionSpec string, pins *PinStore) (string, error) {
	if pins != nil && pins.IsPinned(def.Name) {
		return pins.PinnedVersion(def.Name), nil
	}

	if versionSpec != "" {
		channel := versionSpec
		if len(channel) > 0 && channel[0] == '@' {
			channel = channel[1:]
		}
		if def.Versions != nil {
			if raw, ok := def.Versions[channel]; ok {
				return resolveChannelValue(raw, channel)
			}
		}
		if channel == versionSpec {
			// Not a recognized channel name: treat as an exact version.
			return versionSpec, nil
		}
		return "", errs.Newf(errs.Resolve, def.Name, "channel %q not declared", channel)
	}

	return defaultVersion(def)
}

// defaultVersion falls through the stable channel, then the channel
// whose name sorts first alphabetically, then the literal def.version,
// resolving URL-JSON forms along the way. The order in which channels
// were declared is not kept, so it plays no part in the choice. Pins
// are handled by the caller.
func defaultVersion(def *model.Package) (string, error) {
	if def.Versions != nil {
		if raw, ok := def.Versions["stable"]; ok {
			return resolveChannelValue(raw, "stable")
		}
		keys := make([]string, 0, len(def.Versions))
		for k := range def.Versions {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > 0 {
			return resolveChannelValue(def.Versions[keys[0]], keys[0])
		}
	}
	if def.Version != "" {
		return resolveChannelValue(def.Version, "")
	}
	return "", errs.Newf(errs.Resolve, def.Name, "no version or versions declared")
}

// SatisfiesInstalled reports whether an already-installed version
// satisfies a requested version/channel without re-resolving,
// supporting the graph builder's already-installed skip.
func SatisfiesInstalled(installed, requested string) bool {
	if installed == requested {
		return true
	}
	iv, err1 := semver.NewVersion(installed)
	rv, err2 := semver.NewVersion(requested)
	if err1 != nil || err2 != nil {
		return false
	}
	return iv.Equal(rv)
}

// CompareVersions orders two version strings, newest last, falling
// back to lexical order for non-semver strings.
func CompareVersions(a, b string) int {
	av, aerr := semver.NewVersion(a)
	bv, berr := semver.NewVersion(b)
	if aerr == nil && berr == nil {
		return av.Compare(bv)
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
