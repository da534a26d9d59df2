// Package ame encrypts and decrypts the DHPO SOAP credentials stored per
// facility in claims_ref.facility_dhpo_config, using AES-256-GCM with a
// facility-code-bound AAD so a ciphertext decrypted under the wrong
// facility's context fails authentication rather than silently returning
// garbage. The algorithm mirrors this codebase's earlier BYOK encryptor:
// independent random nonce per call, nonce prefixed to the ciphertext,
// base64-encoded for storage.
package ame

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/config"
)

// CryptoMetadata is the per-blob envelope stored alongside the ciphertext
// in claims_ref.facility_dhpo_config.crypto_metadata, recording which key
// encrypted it so rotation can re-encrypt with the active key without
// breaking blobs still under an older one.
type CryptoMetadata struct {
	KeyID string `json:"keyId"`
}

// Cipher encrypts/decrypts facility credential blobs with AES-256-GCM.
// Keys are loaded once at startup and held in memory only.
type Cipher struct {
	mu        sync.RWMutex
	keys      map[string][]byte // keyID -> 32-byte key
	activeKey string
	enabled   bool
}

// New loads the configured key material. With AME disabled, Encrypt and
// Decrypt only base64-encode and base64-decode, with no encryption, for
// local development against a facility that stores credentials in the clear.
func New(cfg *config.Config) (*Cipher, error) {
	c := &Cipher{keys: make(map[string][]byte), enabled: cfg.AMEEnabled}
	if !cfg.AMEEnabled {
		return c, nil
	}

	switch cfg.AMEKeystoreType {
	case "raw":
		key, err := loadRawKey(cfg.AMERawKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load raw AME key: %w", err)
		}
		c.keys[cfg.AMEActiveKeyID] = key
		c.activeKey = cfg.AMEActiveKeyID
	default:
		return nil, fmt.Errorf("unsupported AME_KEYSTORE_TYPE %q (only %q is implemented)", cfg.AMEKeystoreType, "raw")
	}
	return c, nil
}

func loadRawKey(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key := make([]byte, base64.StdEncoding.DecodedLen(len(raw)))
	n, err := base64.StdEncoding.Decode(key, raw)
	if err != nil {
		return nil, fmt.Errorf("decode base64 key material: %w", err)
	}
	key = key[:n]
	if len(key) != 32 {
		return nil, fmt.Errorf("AME key must be 32 bytes for AES-256, got %d", len(key))
	}
	return key, nil
}

// Encrypt seals plaintext under the active key, binding facilityCode as
// additional authenticated data. Returns the ciphertext (nonce-prefixed,
// base64-encoded) and the metadata to persist alongside it.
func (c *Cipher) Encrypt(facilityCode string, plaintext []byte) (blob string, meta CryptoMetadata, err error) {
	if !c.enabled {
		return base64.StdEncoding.EncodeToString(plaintext), CryptoMetadata{}, nil
	}

	c.mu.RLock()
	key := c.keys[c.activeKey]
	keyID := c.activeKey
	c.mu.RUnlock()

	gcm, err := newGCM(key)
	if err != nil {
		return "", CryptoMetadata{}, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", CryptoMetadata{}, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nonce, nonce, plaintext, []byte(facilityCode))
	return base64.StdEncoding.EncodeToString(ciphertext), CryptoMetadata{KeyID: keyID}, nil
}

// Decrypt reverses Encrypt, re-deriving the AAD from facilityCode so a
// blob moved to the wrong facility row fails to authenticate.
func (c *Cipher) Decrypt(facilityCode, blob string, meta CryptoMetadata) ([]byte, error) {
	if !c.enabled {
		return base64.StdEncoding.DecodeString(blob)
	}

	c.mu.RLock()
	key, ok := c.keys[meta.KeyID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown AME key id %q", meta.KeyID)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("decode base64 ciphertext: %w", err)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, ct := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return gcm.Open(nil, nonce, ct, []byte(facilityCode))
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new AES cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// EncodeMetadata/DecodeMetadata round-trip CryptoMetadata through the JSON
// bytes stored in claims_ref.facility_dhpo_config.crypto_metadata.
func EncodeMetadata(m CryptoMetadata) ([]byte, error) { return json.Marshal(m) }

func DecodeMetadata(raw []byte) (CryptoMetadata, error) {
	var m CryptoMetadata
	err := json.Unmarshal(raw, &m)
	return m, err
}

// RotateKey installs a new active key, keeping the previous one available
// for decrypting blobs still sealed under it. Nothing in this package
// re-seals existing blobs under the new key or removes retired keys.
func (c *Cipher) RotateKey(newKeyID string, newKey []byte) error {
	if len(newKey) != 32 {
		return fmt.Errorf("AME key must be 32 bytes for AES-256, got %d", len(newKey))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[newKeyID] = newKey
	c.activeKey = newKeyID
	return nil
}
