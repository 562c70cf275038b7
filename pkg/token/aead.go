package token

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// AEADCodec encodes tokens as "nonce_hex.ciphertext_hex" where the
// ciphertext is AES-256-GCM over the token payload. The scheme provides
// confidentiality and integrity; the payload is not readable on the wire.
type AEADCodec struct {
	aead cipher.AEAD
}

var _ Codec = (*AEADCodec)(nil)

// NewAEADCodec creates an AEAD codec. The secret must be a 32-byte
// AES-256 key.
func NewAEADCodec(secret []byte) (*AEADCodec, error) {
	if len(secret) != 32 {
		return nil, fmt.Errorf("aead secret must be 32 bytes, got %d", len(secret))
	}
	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &AEADCodec{aead: aead}, nil
}

// Mint produces a cookie value encoding (identity, now+TTL). The nonce is
// freshly random per call; it is never reused with the same key.
func (c *AEADCodec) Mint(identity string, now time.Time) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	payload := encodePayload(identity, now.Add(TTL))
	ciphertext := c.aead.Seal(nil, nonce, []byte(payload), nil)
	return hex.EncodeToString(nonce) + "." + hex.EncodeToString(ciphertext), nil
}

// Validate decodes and checks an AEAD cookie value.
func (c *AEADCodec) Validate(value, identity string, now time.Time) error {
	nonceHex, ctHex, ok := strings.Cut(value, ".")
	if !ok || nonceHex == "" || ctHex == "" {
		return ErrMalformed
	}
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return ErrMalformed
	}
	ciphertext, err := hex.DecodeString(ctHex)
	if err != nil {
		return ErrMalformed
	}
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return ErrCryptoFailure
	}
	tok, err := decodePayload(string(plaintext))
	if err != nil {
		return err
	}
	return check(tok, identity, now)
}
