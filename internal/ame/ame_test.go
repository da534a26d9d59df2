package ame

import (
	"bytes"
	"testing"
)

func newEnabledCipher(t *testing.T, keyID string) *Cipher {
	t.Helper()
	key := bytes.Repeat([]byte{0x11}, 32)
	c := &Cipher{keys: map[string][]byte{keyID: key}, activeKey: keyID, enabled: true}
	return c
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := newEnabledCipher(t, "k1")

	plaintext := []byte("super-secret-dhpo-password")
	blob, meta, err := c.Encrypt("FAC001", plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if meta.KeyID != "k1" {
		t.Fatalf("expected metadata key id k1, got %q", meta.KeyID)
	}

	got, err := c.Decrypt("FAC001", blob, meta)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("decrypt(encrypt(x)) = %q, want %q", got, plaintext)
	}
}

func TestDecryptFailsUnderWrongFacilityAAD(t *testing.T) {
	c := newEnabledCipher(t, "k1")

	blob, meta, err := c.Encrypt("FAC001", []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := c.Decrypt("FAC002", blob, meta); err == nil {
		t.Fatal("expected decrypt to fail when facility code AAD does not match")
	}
}

func TestDecryptFailsForUnknownKeyID(t *testing.T) {
	c := newEnabledCipher(t, "k1")
	blob, _, err := c.Encrypt("FAC001", []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := c.Decrypt("FAC001", blob, CryptoMetadata{KeyID: "unknown"}); err == nil {
		t.Fatal("expected decrypt to fail for an unregistered key id")
	}
}

func TestRotateKeyKeepsOldKeyDecryptable(t *testing.T) {
	c := newEnabledCipher(t, "k1")

	blob, meta, err := c.Encrypt("FAC001", []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	newKey := bytes.Repeat([]byte{0x22}, 32)
	if err := c.RotateKey("k2", newKey); err != nil {
		t.Fatalf("RotateKey: %v", err)
	}

	// Old blob, encrypted under k1's metadata, must still decrypt.
	if _, err := c.Decrypt("FAC001", blob, meta); err != nil {
		t.Fatalf("decrypt under retained old key failed: %v", err)
	}

	// New encryptions use the newly active key.
	_, newMeta, err := c.Encrypt("FAC001", []byte("secret-2"))
	if err != nil {
		t.Fatalf("Encrypt after rotation: %v", err)
	}
	if newMeta.KeyID != "k2" {
		t.Fatalf("expected new encryption to use active key k2, got %q", newMeta.KeyID)
	}
}

func TestRotateKeyRejectsWrongLength(t *testing.T) {
	c := newEnabledCipher(t, "k1")
	if err := c.RotateKey("k2", []byte("too-short")); err == nil {
		t.Fatal("expected RotateKey to reject a non-32-byte key")
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	raw, err := EncodeMetadata(CryptoMetadata{KeyID: "k1"})
	if err != nil {
		t.Fatalf("EncodeMetadata: %v", err)
	}
	got, err := DecodeMetadata(raw)
	if err != nil {
		t.Fatalf("DecodeMetadata: %v", err)
	}
	if got.KeyID != "k1" {
		t.Fatalf("expected roundtrip key id k1, got %q", got.KeyID)
	}
}

func TestDisabledCipherPassesThrough(t *testing.T) {
	c := &Cipher{keys: map[string][]byte{}, enabled: false}
	plaintext := []byte("plaintext when AME disabled")

	blob, meta, err := c.Encrypt("FAC001", plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, err := c.Decrypt("FAC001", blob, meta)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("disabled round trip = %q, want %q", got, plaintext)
	}
}
