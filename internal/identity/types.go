package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// Identity is an account keypair.
type Identity struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	account    string
}

func NewIdentity(privKey ed25519.PrivateKey) *Identity {
	pubKey := privKey.Public().(ed25519.PublicKey)
	return &Identity{
		privateKey: privKey,
		publicKey:  pubKey,
		account:    hex.EncodeToString(pubKey),
	}
}

// Sign signs message with the account key.
func (i *Identity) Sign(message []byte) []byte {
	return ed25519.Sign(i.privateKey, message)
}

func (i *Identity) Verify(message, signature []byte) bool {
	return ed25519.Verify(i.publicKey, message, signature)
}

func (i *Identity) PublicKey() ed25519.PublicKey {
	return i.publicKey
}

// Account returns the hex-encoded public key, the account name recorded by
// the ledger.
func (i *Identity) Account() string {
	return i.account
}

// AccountFromPublicKey validates a raw public key and returns its account name.
func AccountFromPublicKey(pub []byte) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	return hex.EncodeToString(pub), nil
}

// ValidAccount reports whether s is a well-formed account name.
func ValidAccount(s string) bool {
	raw, err := hex.DecodeString(s)
	return err == nil && len(raw) == ed25519.PublicKeySize
}
