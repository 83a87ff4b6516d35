package custody

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"unicode/utf8"
)

// formatHandler recognizes and decrypts one ciphertext format. Handlers are
// tried in a fixed priority order; adding a legacy format means adding a
// handler, not touching call sites.
type formatHandler interface {
	// Detect reports whether the input is plausibly this format. Cheap
	// structural check only; Decrypt still validates.
	Detect(ciphertext string) bool

	// Decrypt decrypts the input. The returned error carries no payload data.
	Decrypt(ciphertext string) (string, error)
}

// ivHexFormat is the current format: "ivHex:cipherHex" with AES-256-CTR
// under the scrypt-derived key.
type ivHexFormat struct {
	key []byte
}

func (f *ivHexFormat) Detect(ciphertext string) bool {
	iv, data, ok := strings.Cut(ciphertext, ":")
	if !ok {
		return false
	}
	// An empty cipher segment is valid: CTR over empty plaintext emits
	// nothing, so Encrypt("") produces "ivHex:".
	if len(iv) != aes.BlockSize*2 || len(data)%2 != 0 {
		return false
	}
	return isHex(iv) && isHex(data)
}

func (f *ivHexFormat) Decrypt(ciphertext string) (string, error) {
	ivHex, dataHex, _ := strings.Cut(ciphertext, ":")

	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return "", errors.New("malformed iv")
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", errors.New("malformed ciphertext")
	}

	block, err := aes.NewCipher(f.key)
	if err != nil {
		return "", err
	}

	// The colon-delimited shape is unique to this format, so the decrypt is
	// authoritative: no plausibility check needed.
	pt := make([]byte, len(data))
	cipher.NewCTR(block, iv).XORKeyStream(pt, data)
	return string(pt), nil
}

// saltedEnvelopeFormat is the legacy base64 envelope: the literal bytes
// "Salted__", an 8-byte salt, then AES-256-CBC data whose key and IV come
// from the OpenSSL EVP_BytesToKey derivation of the master secret.
type saltedEnvelopeFormat struct {
	password []byte
}

const saltedMagic = "Salted__"

func (f *saltedEnvelopeFormat) Detect(ciphertext string) bool {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return false
	}
	return len(raw) > len(saltedMagic)+8 && string(raw[:len(saltedMagic)]) == saltedMagic
}

func (f *saltedEnvelopeFormat) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.New("malformed envelope")
	}
	if len(raw) <= len(saltedMagic)+8 {
		return "", errors.New("envelope too short")
	}

	salt := raw[len(saltedMagic) : len(saltedMagic)+8]
	data := raw[len(saltedMagic)+8:]
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", errors.New("envelope not block aligned")
	}

	key, iv := evpBytesToKey(f.password, salt, keyLength, aes.BlockSize)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	pt := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, data)

	pt, err = pkcs7Unpad(pt)
	if err != nil {
		return "", err
	}
	if !plausibleKeyMaterial(pt) {
		return "", errors.New("implausible plaintext")
	}
	return string(pt), nil
}

// legacyStreamFormat is the oldest format: bare hex produced by a
// password-based AES-256-CTR stream cipher whose key and IV come from the
// unsalted EVP derivation (what the retired client's createCipher emitted).
type legacyStreamFormat struct {
	password []byte
}

func (f *legacyStreamFormat) Detect(ciphertext string) bool {
	if strings.Contains(ciphertext, ":") {
		return false
	}
	return len(ciphertext) > 0 && len(ciphertext)%2 == 0 && isHex(ciphertext)
}

func (f *legacyStreamFormat) Decrypt(ciphertext string) (string, error) {
	data, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", errors.New("malformed ciphertext")
	}

	key, iv := evpBytesToKey(f.password, nil, keyLength, aes.BlockSize)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	pt := make([]byte, len(data))
	cipher.NewCTR(block, iv).XORKeyStream(pt, data)

	if !plausibleKeyMaterial(pt) {
		return "", errors.New("implausible plaintext")
	}
	return string(pt), nil
}

// evpBytesToKey implements the OpenSSL EVP_BytesToKey derivation with MD5:
// D_1 = MD5(password || salt), D_n = MD5(D_{n-1} || password || salt),
// concatenated until keyLen+ivLen bytes are available.
func evpBytesToKey(password, salt []byte, keyLen, ivLen int) (key, iv []byte) {
	var derived, prev []byte
	for len(derived) < keyLen+ivLen {
		h := md5.New()
		h.Write(prev)
		h.Write(password)
		h.Write(salt)
		prev = h.Sum(nil)
		derived = append(derived, prev...)
	}
	return derived[:keyLen], derived[keyLen : keyLen+ivLen]
}

// pkcs7Unpad strips PKCS#7 padding, rejecting malformed padding.
func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty padded data")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, errors.New("bad padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("bad padding")
		}
	}
	return data[:len(data)-n], nil
}

// plausibleKeyMaterial reports whether decrypted bytes look like key
// material (printable UTF-8). Stream ciphers decrypt anything into
// something; this check is what lets the format chain fall through to the
// next handler instead of returning keystream noise.
func plausibleKeyMaterial(pt []byte) bool {
	if len(pt) == 0 || !utf8.Valid(pt) {
		return false
	}
	for _, b := range pt {
		if b < 0x20 || b == 0x7f {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}
