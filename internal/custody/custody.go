// Package custody encrypts and decrypts secret key material. Every component
// that touches raw keys goes through this service; decrypted secrets live
// only in memory for the duration of one operation and never appear in
// errors or logs.
package custody

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// ErrDecryptionFailed is returned when no supported format can decrypt the
// input. The error never carries any part of the payload.
var ErrDecryptionFailed = errors.New("decryption failed for all supported formats")

// scrypt parameters for the master key derivation. The salt is fixed so the
// derived key is stable across processes; the cost keeps brute-forcing the
// master secret expensive.
const (
	kdfSalt   = "launch-engine-key-v1"
	scryptN   = 1 << 15
	scryptR   = 8
	scryptP   = 1
	keyLength = 32
)

// Service encrypts with the current format and decrypts across all formats
// ever written by this system, newest first.
type Service struct {
	key     []byte
	formats []formatHandler
}

// NewService derives the symmetric key from the master secret and builds the
// decryption format chain.
func NewService(masterSecret string) (*Service, error) {
	if masterSecret == "" {
		return nil, errors.New("master secret is empty")
	}

	key, err := scrypt.Key([]byte(masterSecret), []byte(kdfSalt), scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}

	s := &Service{key: key}
	s.formats = []formatHandler{
		&ivHexFormat{key: key},
		&saltedEnvelopeFormat{password: []byte(masterSecret)},
		&legacyStreamFormat{password: []byte(masterSecret)},
	}
	return s, nil
}

// Encrypt encrypts plaintext with AES-256-CTR under a fresh random IV and
// returns "ivHex:cipherHex".
func (s *Service) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	ct := make([]byte, len(plaintext))
	cipher.NewCTR(block, iv).XORKeyStream(ct, []byte(plaintext))

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt tries each supported format in priority order: the current
// "iv:data" hex format, the salted base64 envelope, then the legacy
// password-derived stream cipher. Returns ErrDecryptionFailed only when
// every handler fails.
func (s *Service) Decrypt(ciphertext string) (string, error) {
	for _, f := range s.formats {
		if !f.Detect(ciphertext) {
			continue
		}
		plaintext, err := f.Decrypt(ciphertext)
		if err == nil {
			return plaintext, nil
		}
	}
	return "", ErrDecryptionFailed
}
