//go:build linux

package security

import "testing"

func TestSaveTokenThenGetTokenRoundTrips(t *testing.T) {
	root := t.TempDir()

	if err := SaveToken(root, "core", "secret-token"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	token, ok, err := GetToken(root, "core")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || token != "secret-token" {
		t.Fatalf("got token=%q ok=%v", token, ok)
	}
}

func TestGetTokenMissingHandleReturnsFalse(t *testing.T) {
	root := t.TempDir()
	_, ok, err := GetToken(root, "core")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for a handle that was never saved")
	}
}

func TestRevokeTokenRemovesStoredHandle(t *testing.T) {
	root := t.TempDir()
	if err := SaveToken(root, "core", "secret-token"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := RevokeToken(root, "core"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, ok, err := GetToken(root, "core")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected token to be gone after revoke")
	}
}

func TestSaveTokenPreservesOtherHandles(t *testing.T) {
	root := t.TempDir()
	if err := SaveToken(root, "core", "core-token"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := SaveToken(root, "extra", "extra-token"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := RevokeToken(root, "extra"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	token, ok, err := GetToken(root, "core")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || token != "core-token" {
		t.Fatalf("got token=%q ok=%v", token, ok)
	}
}
