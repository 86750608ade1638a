package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Signer signs entry digests with an Ed25519 key.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewSigner generates a fresh keypair.
func NewSigner() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("ledger: generate signing key: %w", err)
	}
	return &Signer{priv: priv, pub: pub}, nil
}

// SignerFromSeed rebuilds the signer from a hex-encoded 32-byte seed, so a
// restarted process signs with the same key.
func SignerFromSeed(seedHex string) (*Signer, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("ledger: decode signing seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ledger: signing seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// Sign returns the hex-encoded signature of msg.
func (s *Signer) Sign(msg string) string {
	return hex.EncodeToString(ed25519.Sign(s.priv, []byte(msg)))
}

// Verify checks a hex-encoded signature against msg.
func (s *Signer) Verify(msg, sigHex string) bool {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	return ed25519.Verify(s.pub, []byte(msg), sig)
}

// PublicKeyHex exposes the verification key for independent validators.
func (s *Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.pub)
}
