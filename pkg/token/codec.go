// Package token mints and validates the opaque session cookie value that
// proves a caller recently passed the risk assessment. A token binds the
// caller's network identity to an absolute expiry; the cookie is the only
// session state the gate keeps.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TTL is the lifetime of a minted token.
const TTL = time.Hour

// Scheme names accepted by New.
const (
	SchemeAEAD = "aead"
	SchemeHMAC = "hmac"
)

// Validation failures. Callers routing to the challenge flow should treat
// all of these identically; the distinction exists for logging and tests.
var (
	// ErrMalformed means the cookie value could not be split into its
	// structural parts.
	ErrMalformed = errors.New("malformed cookie value")

	// ErrCryptoFailure means decryption or signature verification failed,
	// covering tampering, truncation, and wrong-key cases.
	ErrCryptoFailure = errors.New("cookie decryption or signature check failed")

	// ErrIdentityMismatch means the token was minted for a different
	// client identity than the one presenting it.
	ErrIdentityMismatch = errors.New("cookie identity mismatch")

	// ErrExpired means the token's expiry has passed.
	ErrExpired = errors.New("cookie expired")
)

// Token is the decoded content of the session cookie.
type Token struct {
	// ClientIdentity is the caller's network identity at mint time.
	ClientIdentity string

	// ExpiresAt is the absolute expiry (mint time + TTL).
	ExpiresAt time.Time
}

// Codec encodes and decodes session tokens. Implementations must be safe
// for concurrent use; the secret key is fixed at construction.
type Codec interface {
	// Mint produces a cookie value encoding (identity, now+TTL).
	Mint(identity string, now time.Time) (string, error)

	// Validate decodes the value and checks it against the presented
	// identity and the current time. It returns nil for a valid token, or
	// one of ErrMalformed, ErrCryptoFailure, ErrIdentityMismatch,
	// ErrExpired.
	Validate(value, identity string, now time.Time) error
}

// New creates a Codec for the named scheme keyed by secret.
func New(scheme string, secret []byte) (Codec, error) {
	switch scheme {
	case SchemeAEAD:
		return NewAEADCodec(secret)
	case SchemeHMAC:
		return NewHMACCodec(secret)
	default:
		return nil, fmt.Errorf("unknown token scheme: %q", scheme)
	}
}

// encodePayload renders the plaintext token payload: "identity|expiry".
func encodePayload(identity string, expiresAt time.Time) string {
	return identity + "|" + strconv.FormatInt(expiresAt.Unix(), 10)
}

// decodePayload parses "identity|expiry". The split is on the last '|' so
// the identity itself may contain any character but '|'.
func decodePayload(payload string) (Token, error) {
	i := strings.LastIndexByte(payload, '|')
	if i < 0 {
		return Token{}, ErrMalformed
	}
	expiry, err := strconv.ParseInt(payload[i+1:], 10, 64)
	if err != nil {
		return Token{}, ErrMalformed
	}
	return Token{
		ClientIdentity: payload[:i],
		ExpiresAt:      time.Unix(expiry, 0),
	}, nil
}

// check applies the identity and expiry rules shared by both schemes.
// An empty presented identity never matches: a token minted when no
// identity was visible is unbound and must not act as a wildcard
// credential.
func check(tok Token, identity string, now time.Time) error {
	if identity == "" || tok.ClientIdentity != identity {
		return ErrIdentityMismatch
	}
	if !now.Before(tok.ExpiresAt) {
		return ErrExpired
	}
	return nil
}
