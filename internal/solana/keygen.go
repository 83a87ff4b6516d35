package solana

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Keypair is an ed25519 keypair in Solana's base58 encoding. The secret is
// the 64-byte expanded form (seed || public key), as wallets expect.
type Keypair struct {
	PublicKey string
	SecretKey string
}

// GenerateKeypair creates a fresh random keypair, used as the ad-hoc
// fallback when the address pool is exhausted.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{
		PublicKey: base58.Encode(pub),
		SecretKey: base58.Encode(priv),
	}, nil
}

// KeypairFromSecret reconstructs a keypair from a base58 64-byte secret.
func KeypairFromSecret(secret string) (*Keypair, error) {
	raw, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("secret key is %d bytes, want %d", len(raw), ed25519.PrivateKeySize)
	}
	priv := ed25519.PrivateKey(raw)
	pub := priv.Public().(ed25519.PublicKey)
	return &Keypair{
		PublicKey: base58.Encode(pub),
		SecretKey: secret,
	}, nil
}

// IsOnCurve reports whether 32 bytes decode to a valid ed25519 point.
func IsOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
