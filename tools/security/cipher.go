package security

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"strings"

	"PPSignal/tools/errs"

	"golang.org/x/crypto/chacha20poly1305"
)

// sealedPrefix marks ciphertext produced by Cipher.
const sealedPrefix = "xc1."

// Cipher encrypts message bodies with XChaCha20-Poly1305. A Cipher built
// from an empty key is disabled: Encrypt passes text through and reports
// false.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher takes a base64 encoded 32 byte key.
func NewCipher(b64Key string) (*Cipher, error) {
	b64Key = strings.TrimSpace(b64Key)
	if b64Key == "" {
		return &Cipher{}, nil
	}
	key, err := base64.StdEncoding.DecodeString(b64Key)
	if err != nil {
		return nil, errs.ErrArgs.WrapMsg("crypto key is not base64")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errs.ErrArgs.WrapMsg("crypto key must be 32 bytes", "len", len(key))
	}
	return &Cipher{aead: aead}, nil
}

// GenerateKey returns a fresh base64 key for the crypto section.
func GenerateKey() (string, error) {
	k := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(k); err != nil {
		return "", errs.Wrap(err)
	}
	return base64.StdEncoding.EncodeToString(k), nil
}

func (c *Cipher) Initialized() bool { return c != nil && c.aead != nil }

// Encrypt returns the sealed text and true, or text unchanged and false
// when disabled or on failure.
func (c *Cipher) Encrypt(text string) (string, bool) {
	if !c.Initialized() {
		return text, false
	}
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(text)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return text, false
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(text), nil)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), true
}

// Decrypt opens text sealed by Encrypt. Anything else, or a failed open,
// gives text back with false.
func (c *Cipher) Decrypt(text string) (string, bool) {
	if !c.Initialized() || !LooksEncrypted(text) {
		return text, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(text, sealedPrefix))
	if err != nil || len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return text, false
	}
	n := c.aead.NonceSize()
	plain, err := c.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return text, false
	}
	return string(plain), true
}

// LooksEncrypted reports whether text carries the ciphertext prefix.
func LooksEncrypted(text string) bool { return strings.HasPrefix(text, sealedPrefix) }

// Status is the diagnostic view of the cipher.
func (c *Cipher) Status() map[string]any {
	return map[string]any{
		"initialized": c.Initialized(),
		"algorithm":   "xchacha20-poly1305",
	}
}
