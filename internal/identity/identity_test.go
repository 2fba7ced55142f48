package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIdentityLifecycle(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "keys", "account.pem")

	first, err := LoadOrCreateIdentity(keyPath)
	if err != nil {
		t.Fatalf("Failed to create identity: %v", err)
	}

	second, err := LoadOrCreateIdentity(keyPath)
	if err != nil {
		t.Fatalf("Failed to load identity: %v", err)
	}
	if first.Account() != second.Account() {
		t.Errorf("Loaded identity differs from original. Got %s, want %s", second.Account(), first.Account())
	}

	third, err := LoadIdentity(keyPath)
	if err != nil {
		t.Fatalf("LoadIdentity: %v", err)
	}
	if third.Account() != first.Account() {
		t.Errorf("LoadIdentity returned a different account")
	}
}

func TestLoadIdentityRequiresExistingKey(t *testing.T) {
	if _, err := LoadIdentity(filepath.Join(t.TempDir(), "missing.pem")); err == nil {
		t.Fatalf("expected error for missing key file")
	}
}

func TestEmptyKeyFileIsRegenerated(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "empty.pem")
	if err := os.WriteFile(keyPath, nil, 0600); err != nil {
		t.Fatalf("write empty file: %v", err)
	}
	id, err := LoadOrCreateIdentity(keyPath)
	if err != nil {
		t.Fatalf("LoadOrCreateIdentity: %v", err)
	}
	if !ValidAccount(id.Account()) {
		t.Fatalf("generated account %q is not valid", id.Account())
	}
}

func TestSignAndVerify(t *testing.T) {
	dir := t.TempDir()
	id, err := LoadOrCreateIdentity(filepath.Join(dir, "a.pem"))
	if err != nil {
		t.Fatalf("Failed to create identity: %v", err)
	}
	other, err := LoadOrCreateIdentity(filepath.Join(dir, "b.pem"))
	if err != nil {
		t.Fatalf("Failed to create other identity: %v", err)
	}

	message := []byte(`{"type":"donate"}`)
	signature := id.Sign(message)

	if !id.Verify(message, signature) {
		t.Error("Failed to verify signature with own public key")
	}
	if other.Verify(message, signature) {
		t.Error("Incorrectly verified signature with wrong public key")
	}
}

func TestAccountFromPublicKey(t *testing.T) {
	id, err := LoadOrCreateIdentity(filepath.Join(t.TempDir(), "k.pem"))
	if err != nil {
		t.Fatalf("LoadOrCreateIdentity: %v", err)
	}
	account, err := AccountFromPublicKey(id.PublicKey())
	if err != nil {
		t.Fatalf("AccountFromPublicKey: %v", err)
	}
	if account != id.Account() {
		t.Fatalf("account = %s, want %s", account, id.Account())
	}
	if _, err := AccountFromPublicKey([]byte("short")); err == nil {
		t.Fatalf("expected error for short key")
	}
	if ValidAccount("not-hex") || ValidAccount("abcd") {
		t.Fatalf("malformed accounts reported valid")
	}
}

func TestPermissions(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "secure.pem")
	if _, err := LoadOrCreateIdentity(keyPath); err != nil {
		t.Fatalf("Failed to create identity: %v", err)
	}

	info, err := os.Stat(keyPath)
	if err != nil {
		t.Fatalf("Failed to stat key file: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Key file has wrong permissions. Got %v, want %v", info.Mode().Perm(), 0600)
	}
}
