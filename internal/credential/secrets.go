package credential

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mtzanidakis/quorum/internal/store"
	"github.com/mtzanidakis/quorum/internal/vault"
)

const secretPrefix = "secret:"

type SecretGetter interface {
	GetSecret(id string) (*store.Secret, error)
}

type Decrypter interface {
	Open(name string, s vault.Sealed) ([]byte, error)
}

// IsRef reports whether value names a vault secret ("secret:<name>").
func IsRef(value string) bool {
	return strings.HasPrefix(value, secretPrefix)
}

// Resolve returns value unchanged unless it is a "secret:<name>" reference,
// in which case the named secret is loaded and decrypted.
func Resolve(value string, secrets SecretGetter, v Decrypter) (string, error) {
	if !IsRef(value) {
		return value, nil
	}
	name := strings.TrimPrefix(value, secretPrefix)
	if secrets == nil || v == nil {
		return "", fmt.Errorf("secret %q referenced but vault is not configured", name)
	}
	sec, err := secrets.GetSecret(name)
	if err != nil {
		return "", fmt.Errorf("load secret %s: %w", name, err)
	}
	if sec == nil {
		return "", fmt.Errorf("secret %s not found", name)
	}
	plain, err := v.Open(sec.ID, vault.Sealed{Ciphertext: sec.Value, Nonce: sec.Nonce})
	if err != nil {
		return "", fmt.Errorf("decrypt secret %s: %w", name, err)
	}
	return string(plain), nil
}

// ResolveAll resolves every pointer in place and joins the errors.
func ResolveAll(secrets SecretGetter, v Decrypter, values ...*string) error {
	var errs []error
	for _, p := range values {
		resolved, err := Resolve(*p, secrets, v)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*p = resolved
	}
	return errors.Join(errs...)
}
