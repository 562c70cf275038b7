package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// HMACCodec encodes tokens as "identity|expiry:mac_hex" where the mac is
// HMAC-SHA256 over the payload. The payload is readable on the wire; the
// scheme provides integrity and authenticity only.
type HMACCodec struct {
	secret []byte
}

var _ Codec = (*HMACCodec)(nil)

// NewHMACCodec creates an HMAC codec. The secret must carry at least
// 256 bits of entropy.
func NewHMACCodec(secret []byte) (*HMACCodec, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("hmac secret must be at least 32 bytes, got %d", len(secret))
	}
	return &HMACCodec{secret: secret}, nil
}

// Mint produces a signed cookie value encoding (identity, now+TTL).
func (c *HMACCodec) Mint(identity string, now time.Time) (string, error) {
	payload := encodePayload(identity, now.Add(TTL))
	return payload + ":" + c.sign(payload), nil
}

// Validate decodes and checks a signed cookie value. The signature is
// verified before the payload is trusted; identities may contain ':'
// (IPv6), so the split is on the last separator.
func (c *HMACCodec) Validate(value, identity string, now time.Time) error {
	i := strings.LastIndexByte(value, ':')
	if i <= 0 || i == len(value)-1 {
		return ErrMalformed
	}
	payload, macHex := value[:i], value[i+1:]
	mac, err := hex.DecodeString(macHex)
	if err != nil {
		return ErrMalformed
	}
	if !hmac.Equal(mac, c.signRaw(payload)) {
		return ErrCryptoFailure
	}
	tok, err := decodePayload(payload)
	if err != nil {
		return err
	}
	return check(tok, identity, now)
}

func (c *HMACCodec) sign(payload string) string {
	return hex.EncodeToString(c.signRaw(payload))
}

func (c *HMACCodec) signRaw(payload string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}
