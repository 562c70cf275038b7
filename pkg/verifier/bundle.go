package verifier

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// BundleVerifier verifies a challenge bundle locally. The bundle is a
// compact signed token produced by the challenge provider; no network
// call is made. A rejected bundle is returned as a plain error, never a
// *TransportError.
type BundleVerifier struct {
	key     any
	methods []string
}

// BundleConfig configures the local verifier. Exactly one of
// PublicKeyPEM or Secret must be set.
type BundleConfig struct {
	// PublicKeyPEM is the challenge provider's ECDSA public key in PEM
	// form; bundles are then expected to be ES256-signed.
	PublicKeyPEM string

	// Secret is a shared HMAC key; bundles are then expected to be
	// HS256-signed.
	Secret []byte
}

var _ Verifier = (*BundleVerifier)(nil)

// NewBundleVerifier creates a local bundle verifier.
func NewBundleVerifier(cfg BundleConfig) (*BundleVerifier, error) {
	switch {
	case cfg.PublicKeyPEM != "" && len(cfg.Secret) > 0:
		return nil, fmt.Errorf("bundle verifier: public key and secret are mutually exclusive")
	case cfg.PublicKeyPEM != "":
		key, err := jwt.ParseECPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parsing bundle public key: %w", err)
		}
		return &BundleVerifier{key: key, methods: []string{"ES256"}}, nil
	case len(cfg.Secret) > 0:
		return &BundleVerifier{key: cfg.Secret, methods: []string{"HS256"}}, nil
	default:
		return nil, fmt.Errorf("bundle verifier: public key or secret is required")
	}
}

// bundleClaims is the payload of a signed challenge bundle.
type bundleClaims struct {
	IP      string `json:"ip,omitempty"`
	Anon    bool   `json:"anon"`
	Service string `json:"service,omitempty"`
	jwt.RegisteredClaims
}

// Verify parses and checks the bundle's signature, then normalizes the
// claims. Freshness is not enforced here; that is the policy's job.
func (v *BundleVerifier) Verify(_ context.Context, bundle string) (*Assessment, error) {
	var claims bundleClaims
	_, err := jwt.ParseWithClaims(bundle, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, jwt.WithValidMethods(v.methods))
	if err != nil {
		return nil, fmt.Errorf("verifying bundle: %w", err)
	}
	if claims.IssuedAt == nil {
		return nil, fmt.Errorf("verifying bundle: missing iat claim")
	}

	return &Assessment{
		IssuedAt:       claims.IssuedAt.Time,
		ClientIdentity: claims.IP,
		Anonymized:     claims.Anon,
		Service:        claims.Service,
	}, nil
}
