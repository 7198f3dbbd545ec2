// Package vault encrypts secret values at rest. Each value is sealed with
// AES-256-GCM under a key derived from the configured passphrase, and bound
// to the secret's name so a stored value cannot be moved to another name.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// ErrOpen means a sealed value could not be decrypted: the passphrase is
// wrong, the value was altered, or it belongs to a different name.
var ErrOpen = errors.New("cannot open secret")

// Argon2id parameters. Changing any of them invalidates stored secrets.
const (
	kdfTime    = 1
	kdfMemory  = 64 * 1024
	kdfThreads = 4
	keyLen     = 32
)

// Sealed is an encrypted value as it is stored.
type Sealed struct {
	Ciphertext []byte
	Nonce      []byte
}

type Vault struct {
	aead cipher.AEAD
}

// New derives the key from passphrase. The salt is a hash of the passphrase,
// so the same passphrase opens the same secrets after a restart.
func New(passphrase string) *Vault {
	salt := sha256.Sum256([]byte("quorum-vault:" + passphrase))
	key := argon2.IDKey([]byte(passphrase), salt[:16], kdfTime, kdfMemory, kdfThreads, keyLen)

	block, err := aes.NewCipher(key)
	if err != nil {
		// A 32-byte key is always valid for AES.
		panic(fmt.Sprintf("vault: %v", err))
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		panic(fmt.Sprintf("vault: %v", err))
	}

	return &Vault{aead: aead}
}

// Seal encrypts plaintext for the secret called name.
func (v *Vault) Seal(name string, plaintext []byte) (Sealed, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Sealed{}, fmt.Errorf("generate nonce: %w", err)
	}
	return Sealed{
		Ciphertext: v.aead.Seal(nil, nonce, plaintext, additionalData(name)),
		Nonce:      nonce,
	}, nil
}

// Open decrypts a value sealed for name.
func (v *Vault) Open(name string, s Sealed) ([]byte, error) {
	if len(s.Nonce) != v.aead.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce length %d", ErrOpen, len(s.Nonce))
	}
	plaintext, err := v.aead.Open(nil, s.Nonce, s.Ciphertext, additionalData(name))
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrOpen, name)
	}
	return plaintext, nil
}

func additionalData(name string) []byte {
	return []byte("secret:" + name)
}
