// Package verify covers the trust path for downloaded archives:
// resumable download into the staging cache, SHA-512 verification
// against an advertised digest, and detached OpenPGP signature
// verification against the configured trust set.
package verify

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
	"github.com/schollz/progressbar/v3"

	"github.com/zoi-pm/zoi/src/internal/cache"
	"github.com/zoi-pm/zoi/src/internal/errs"
	"github.com/zoi-pm/zoi/src/internal/security"
	"github.com/zoi-pm/zoi/src/internal/telemetry"
)

// SignaturePolicy mirrors config.SignaturePolicy without importing
// the config package, avoiding a dependency cycle.
type SignaturePolicy struct {
	Enable      bool
	TrustedKeys []string // armored public keys, already loaded
}

// Downloader fetches an archive into the cache, resuming partial
// downloads with Range requests.
type Downloader struct {
	Store      *cache.Store
	HTTPClient *http.Client
	ShowBar    bool
}

func (d *Downloader) client() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return http.DefaultClient
}

// Download fetches url into the cache under filename, resuming any
// partial staging file. Returns the staging file's final path.
func (d *Downloader) Download(url, filename string) (string, error) {
	done := telemetry.StartSpan("verify.download", "url", url, "filename", filename)
	defer func() { done() }()

	offset, hasPartial := d.Store.PartialSize(filename)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", errs.New(errs.Network, filename, err)
	}
	if hasPartial && offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := d.client().Do(req)
	if err != nil {
		return "", errs.New(errs.Network, filename, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		// Server honored the Range request; append from where we left off.
	case http.StatusOK:
		// Server ignored Range (or this is a fresh download): any
		// non-partial response restarts the transfer from zero.
		if hasPartial {
			if err := d.Store.Truncate(filename); err != nil {
				return "", errs.New(errs.Filesystem, filename, err)
			}
		}
	default:
		return "", errs.Newf(errs.Network, filename, "download returned status %s", resp.Status)
	}

	out, err := d.Store.OpenForAppend(filename)
	if err != nil {
		return "", errs.New(errs.Filesystem, filename, err)
	}
	defer out.Close()

	var body io.Reader = resp.Body
	if d.ShowBar {
		bar := progressbar.DefaultBytes(resp.ContentLength, filename)
		body = io.TeeReader(resp.Body, bar)
	}

	if _, err := io.Copy(out, body); err != nil {
		return "", errs.New(errs.Network, filename, err)
	}

	return d.Store.StagingPath(filename), nil
}

// parseHashFile accepts the common hash-file shapes: a bare hex
// digest, or one-or-more "<hash> <filename>" lines. The digest is the
// first whitespace-delimited token of the first line; later lines are
// ignored and the filename is not matched.
func parseHashFile(body string) (string, error) {
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) == 0 {
		return "", errs.Newf(errs.Verify, "", "empty hash file")
	}
	first := strings.Fields(lines[0])
	if len(first) == 0 {
		return "", errs.Newf(errs.Verify, "", "malformed hash file")
	}
	return first[0], nil
}

// VerifyHash fetches hashURL and SHA-512s the file at path, failing
// hard on any mismatch.
func VerifyHash(path, hashURL string) error {
	resp, err := http.Get(hashURL)
	if err != nil {
		return errs.New(errs.Network, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errs.Newf(errs.Network, path, "hash url returned status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.New(errs.Network, path, err)
	}
	expected, err := parseHashFile(string(body))
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return errs.New(errs.Filesystem, path, err)
	}
	defer f.Close()

	h := sha512.New()
	if _, err := io.Copy(h, f); err != nil {
		return errs.New(errs.Filesystem, path, err)
	}
	actual := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(actual, expected) {
		return errs.Newf(errs.Verify, path, "sha512 mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}

// VerifySignature enforces the signature policy: when enabled, the
// archive must carry a valid detached OpenPGP signature by at least
// one key in policy's trust set.
func VerifySignature(path, pgpURL string, policy SignaturePolicy) error {
	if !policy.Enable {
		return nil
	}
	if pgpURL == "" {
		return errs.Newf(errs.Verify, path, "signature_enforcement is enabled but package has no pgp_url")
	}
	if len(policy.TrustedKeys) == 0 {
		return errs.Newf(errs.Verify, path, "signature_enforcement is enabled but no trusted keys are configured")
	}

	resp, err := http.Get(pgpURL)
	if err != nil {
		return errs.New(errs.Network, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errs.Newf(errs.Network, path, "pgp url returned status %s", resp.Status)
	}
	sigBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.New(errs.Network, path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errs.New(errs.Filesystem, path, err)
	}
	message := crypto.NewPlainMessage(data)

	signature, err := crypto.NewPGPSignatureFromArmored(string(sigBytes))
	if err != nil {
		// Some mirrors ship binary (non-armored) detached signatures.
		signature = crypto.NewPGPSignature(sigBytes)
	}

	for _, armoredKey := range policy.TrustedKeys {
		key, err := crypto.NewKeyFromArmored(armoredKey)
		if err != nil {
			continue
		}
		keyRing, err := crypto.NewKeyRing(key)
		if err != nil {
			continue
		}
		if err := keyRing.VerifyDetached(message, signature, crypto.GetUnixTime()); err == nil {
			return nil
		}
	}
	return errs.Newf(errs.Verify, path, "no trusted key produced a valid signature")
}

// ResolveMaintainerTrust loads (and, unless one_time, persists) a
// maintainer/author key for inclusion in a verification pass.
func ResolveMaintainerTrust(ks *security.Keystore, key string, keyIsURL, oneTime bool) (string, error) {
	return ks.ResolveMaintainerKeyArmored(key, keyIsURL, oneTime)
}
