//go:build windows

// Registry auth tokens on Windows live in the Credential Manager, one
// generic credential target per registry handle.
package security

import (
	"github.com/danieljoos/wincred"
)

func credentialTarget(handle string) string {
	return "zoi_registry_" + handle
}

func SaveToken(root, handle, token string) error {
	cred := wincred.NewGenericCredential(credentialTarget(handle))
	cred.CredentialBlob = []byte(token)
	cred.Persist = wincred.PersistLocalMachine
	return cred.Write()
}

func GetToken(root, handle string) (string, bool, error) {
	cred, err := wincred.GetGenericCredential(credentialTarget(handle))
	if err != nil {
		return "", false, nil
	}
	return string(cred.CredentialBlob), true, nil
}

func RevokeToken(root, handle string) error {
	cred, err := wincred.GetGenericCredential(credentialTarget(handle))
	if err != nil {
		return nil
	}
	return cred.Delete()
}
