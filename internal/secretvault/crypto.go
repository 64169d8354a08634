// Package secretvault stores named secrets encrypted at rest and resolves
// {{secret:name}} placeholders in tool parameters and outbound text.
package secretvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// Replaceable for testing error paths.
var randRead = func(b []byte) (int, error) { return rand.Read(b) }

const (
	// KeySize is the AES-256 master key length in bytes.
	KeySize = 32

	// nonceSize is the GCM standard nonce length.
	nonceSize = 12

	// tagSize is the GCM authentication tag length.
	tagSize = 16

	// tokenPrefix identifies a vault-encrypted token, version 1.
	tokenPrefix = "sv1"
)

// GenerateMasterKey returns a fresh, cryptographically random 32-byte key.
func GenerateMasterKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := randRead(key); err != nil {
		return nil, fmt.Errorf("secretvault: generate master key: %w", err)
	}
	return key, nil
}

// secretAAD binds a ciphertext token to the name it was stored under, so a
// token copied to a different secret name fails to decrypt.
func secretAAD(name string) []byte {
	return []byte("secret:" + name)
}

// seal encrypts plaintext under the given name and returns a
// "sv1.<iv>.<tag>.<content>" token with all three fields base64url-encoded
// without padding.
func seal(key []byte, name string, plaintext []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("secretvault: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("secretvault: new gcm: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := randRead(nonce); err != nil {
		return "", fmt.Errorf("secretvault: nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, secretAAD(name))
	if len(sealed) < tagSize {
		return "", fmt.Errorf("secretvault: sealed output shorter than tag size")
	}
	content := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]
	return strings.Join([]string{
		tokenPrefix,
		base64.RawURLEncoding.EncodeToString(nonce),
		base64.RawURLEncoding.EncodeToString(tag),
		base64.RawURLEncoding.EncodeToString(content),
	}, "."), nil
}

// parseToken splits and decodes a "sv1.<iv>.<tag>.<content>" token without
// decrypting it.
func parseToken(token string) (nonce, tag, content []byte, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 || parts[0] != tokenPrefix {
		return nil, nil, nil, fmt.Errorf("secretvault: malformed token")
	}
	nonce, err = base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("secretvault: decode iv: %w", err)
	}
	tag, err = base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("secretvault: decode tag: %w", err)
	}
	content, err = base64.RawURLEncoding.DecodeString(parts[3])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("secretvault: decode content: %w", err)
	}
	if len(nonce) != nonceSize || len(tag) != tagSize {
		return nil, nil, nil, fmt.Errorf("secretvault: malformed token field sizes")
	}
	return nonce, tag, content, nil
}

// open decrypts a "sv1.<iv>.<tag>.<content>" token, verifying it was sealed
// for the given secret name.
func open(key []byte, name string, token string) ([]byte, error) {
	nonce, tag, content, err := parseToken(token)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secretvault: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secretvault: new gcm: %w", err)
	}
	sealed := append(append([]byte{}, content...), tag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, secretAAD(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	return plaintext, nil
}
