// Package vault provides authenticated symmetric encryption for upstream
// mailbox credentials at rest. It keeps the teacher's AES-256-GCM shape
// (pkg/crypto/worker_encryption.go) but derives a fresh key per call with
// scrypt instead of hashing the master secret once with SHA-256, per the
// credential vault's key-derivation requirement.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	saltSize = 16
	ivSize   = 12
	keySize  = 32

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1

	minMasterSecretLen = 32
)

// CredentialTampered is returned by Decrypt when the GCM authentication
// tag does not match — the ciphertext was corrupted or modified.
var CredentialTampered = errors.New("vault: credential tampered or ciphertext corrupt")

var (
	ErrWeakMasterSecret = errors.New("vault: master secret must be at least 32 characters")
	ErrMalformedSegment = errors.New("vault: malformed ciphertext segment")
)

// Vault encrypts and decrypts upstream credentials with a single master
// secret. The secret itself is never persisted; a fresh salt (hence a
// fresh derived key) is generated on every Encrypt call.
type Vault struct {
	masterSecret []byte
}

// New validates the master secret and returns a Vault. Weak secrets are
// fatal at construction time, matching the ConfigError taxonomy (§7):
// callers should treat a non-nil error here as a startup failure.
func New(masterSecret string) (*Vault, error) {
	if len(masterSecret) < minMasterSecretLen {
		return nil, ErrWeakMasterSecret
	}
	return &Vault{masterSecret: []byte(masterSecret)}, nil
}

// Encrypt returns "salt:iv:tag:ct", each segment base64-standard-encoded,
// for the given plaintext. A fresh salt and IV are drawn from crypto/rand
// on every call, so repeated encryption of the same plaintext never
// produces the same ciphertext.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("vault: read salt: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("vault: read iv: %w", err)
	}

	key, err := v.deriveKey(salt)
	if err != nil {
		return "", err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	tagStart := len(sealed) - gcm.Overhead()
	ct, tag := sealed[:tagStart], sealed[tagStart:]

	return strings.Join([]string{
		b64(salt), b64(iv), b64(tag), b64(ct),
	}, ":"), nil
}

// Decrypt reverses Encrypt. A tag mismatch (tampering, wrong master
// secret, or truncation) surfaces as CredentialTampered.
func (v *Vault) Decrypt(encoded string) (string, error) {
	parts := strings.Split(encoded, ":")
	if len(parts) != 4 {
		return "", ErrMalformedSegment
	}

	salt, err := unb64(parts[0])
	if err != nil {
		return "", ErrMalformedSegment
	}
	iv, err := unb64(parts[1])
	if err != nil {
		return "", ErrMalformedSegment
	}
	tag, err := unb64(parts[2])
	if err != nil {
		return "", ErrMalformedSegment
	}
	ct, err := unb64(parts[3])
	if err != nil {
		return "", ErrMalformedSegment
	}

	key, err := v.deriveKey(salt)
	if err != nil {
		return "", err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	sealed := append(append([]byte{}, ct...), tag...)
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", CredentialTampered
	}
	return string(plaintext), nil
}

func (v *Vault) deriveKey(salt []byte) ([]byte, error) {
	key, err := scrypt.Key(v.masterSecret, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: new gcm: %w", err)
	}
	return gcm, nil
}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func unb64(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }
