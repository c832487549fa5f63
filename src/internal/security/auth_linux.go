//go:build linux

// Registry auth tokens on Linux live in a single flat credential file
// under the keystore root, keyed by registry handle.
package security

import (
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

func credentialPath(root string) string {
	return filepath.Join(root, "credentials.yaml")
}

func loadCredentials(root string) (map[string]string, error) {
	data, err := os.ReadFile(credentialPath(root))
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	creds := map[string]string{}
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, err
	}
	return creds, nil
}

func saveCredentials(root string, creds map[string]string) error {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(creds)
	if err != nil {
		return err
	}
	return os.WriteFile(credentialPath(root), data, 0o600)
}

// SaveToken persists a registry auth token under handle.
func SaveToken(root, handle, token string) error {
	creds, err := loadCredentials(root)
	if err != nil {
		return err
	}
	creds[handle] = token
	return saveCredentials(root, creds)
}

// GetToken returns the token stored for handle, if any.
func GetToken(root, handle string) (string, bool, error) {
	creds, err := loadCredentials(root)
	if err != nil {
		return "", false, err
	}
	token, ok := creds[handle]
	return token, ok, nil
}

// RevokeToken removes a handle's stored token.
func RevokeToken(root, handle string) error {
	creds, err := loadCredentials(root)
	if err != nil {
		return err
	}
	delete(creds, handle)
	return saveCredentials(root, creds)
}
