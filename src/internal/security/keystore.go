// Package security implements the local trust keystore
// (maintainer/author keys fetched by URL, fingerprint, or local name
// and persisted unless marked one-time) and the per-registry auth
// credential store, with platform-specific credential backends.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/zoi-pm/zoi/src/internal/errs"
)

// Keystore persists trusted OpenPGP public keys under a PGP
// directory, keyed by their 40-hex fingerprint.
type Keystore struct {
	Root string
}

func NewKeystore(root string) *Keystore {
	return &Keystore{Root: root}
}

func (k *Keystore) keyPath(fingerprint string) string {
	return filepath.Join(k.Root, strings.ToUpper(fingerprint)+".asc")
}

// Has reports whether fingerprint is already persisted locally.
func (k *Keystore) Has(fingerprint string) bool {
	_, err := os.Stat(k.keyPath(fingerprint))
	return err == nil
}

// Load reads a persisted key's armored body, or ("", false) if absent.
func (k *Keystore) Load(fingerprint string) (string, bool) {
	data, err := os.ReadFile(k.keyPath(fingerprint))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Save persists an armored public key under its fingerprint.
func (k *Keystore) Save(fingerprint, armored string) error {
	if err := os.MkdirAll(k.Root, 0o700); err != nil {
		return err
	}
	return os.WriteFile(k.keyPath(fingerprint), []byte(armored), 0o600)
}

// ResolveMaintainerKeyArmored acquires a maintainer/author trust key:
// the `key` field is either a URL, a 40-hex fingerprint
// already in the keystore, or a local keystore name. A fingerprint or
// name that is not already in the keystore is an error; no keyserver
// is queried. oneTime keys are returned without being
// persisted. Returns the key's armored public-key block.
func (k *Keystore) ResolveMaintainerKeyArmored(key string, keyIsURL, oneTime bool) (string, error) {
	var armored string
	var fingerprint string

	switch {
	case keyIsURL:
		body, err := fetchURL(key)
		if err != nil {
			return "", errs.New(errs.Verify, "", err)
		}
		armored = body
		fingerprint = fingerprintOf(armored)
	case isHexFingerprint(key):
		fingerprint = strings.ToUpper(key)
		if cached, ok := k.Load(fingerprint); ok {
			armored = cached
		} else {
			return "", errs.Newf(errs.Verify, "", "key %s not found in local keystore", fingerprint)
		}
	default:
		// Local keystore name: the name itself is the lookup key the
		// caller already resolved to a fingerprint before calling in,
		// or it's the fingerprint verbatim.
		fingerprint = strings.ToUpper(key)
		cached, ok := k.Load(fingerprint)
		if !ok {
			return "", errs.Newf(errs.Verify, "", "key %q not found in local keystore", key)
		}
		armored = cached
	}

	if _, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armored)); err != nil {
		return "", errs.New(errs.Verify, "", err)
	}

	if !oneTime && !k.Has(fingerprint) {
		if err := k.Save(fingerprint, armored); err != nil {
			return "", err
		}
	}

	return armored, nil
}

func fetchURL(url string) (string, error) {
	resp, err := http.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errs.Newf(errs.Network, "", "key fetch %s returned status %s", url, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func isHexFingerprint(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}

// fingerprintOf derives a stable local cache key for an armored key
// blob whose real OpenPGP fingerprint is determined later by the
// verifier; until parsed, the SHA-256 of the raw bytes is a fine
// cache-file name.
func fingerprintOf(armored string) string {
	sum := sha256.Sum256([]byte(armored))
	return hex.EncodeToString(sum[:])[:40]
}
