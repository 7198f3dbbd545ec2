package vault

import (
	"bytes"
	"errors"
	"testing"
)

func TestSealOpen(t *testing.T) {
	v := New("test-passphrase")
	plaintext := []byte("sk-live-123")

	sealed, err := v.Seal("openai", plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed.Ciphertext, plaintext) {
		t.Fatal("ciphertext contains the plaintext")
	}

	got, err := v.Open("openai", sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(plaintext, got) {
		t.Fatalf("got %q, want %q", got, plaintext)
	}
}

func TestOpenSurvivesRestart(t *testing.T) {
	sealed, err := New("passphrase").Seal("token", []byte("abc"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	got, err := New("passphrase").Open("token", sealed)
	if err != nil {
		t.Fatalf("open with a fresh vault: %v", err)
	}
	if string(got) != "abc" {
		t.Fatalf("got %q", got)
	}
}

func TestOpenWrongPassphrase(t *testing.T) {
	sealed, err := New("correct").Seal("token", []byte("secret"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	_, err = New("wrong").Open("token", sealed)
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
}

func TestOpenWrongName(t *testing.T) {
	v := New("passphrase")
	sealed, err := v.Seal("openai", []byte("sk"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := v.Open("anthropic", sealed); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen for a value moved to another name, got %v", err)
	}
}

func TestOpenTampered(t *testing.T) {
	v := New("passphrase")
	sealed, err := v.Seal("token", []byte("value"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	sealed.Ciphertext[0] ^= 0xff
	if _, err := v.Open("token", sealed); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}

	if _, err := v.Open("token", Sealed{Ciphertext: []byte("x"), Nonce: []byte("short")}); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen for a short nonce, got %v", err)
	}
}

func TestNoncesDiffer(t *testing.T) {
	v := New("passphrase")
	a, _ := v.Seal("token", []byte("same"))
	b, _ := v.Seal("token", []byte("same"))
	if bytes.Equal(a.Nonce, b.Nonce) || bytes.Equal(a.Ciphertext, b.Ciphertext) {
		t.Fatal("sealing twice produced identical output")
	}
}

func TestEmptyPlaintext(t *testing.T) {
	v := New("test")
	sealed, err := v.Seal("empty", []byte{})
	if err != nil {
		t.Fatalf("seal empty: %v", err)
	}
	got, err := v.Open("empty", sealed)
	if err != nil {
		t.Fatalf("open empty: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty, got %d bytes", len(got))
	}
}
