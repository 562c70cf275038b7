package admin

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// contextKey is a private type for context keys in admin package.
type contextKey string

const adminKeyName contextKey = "admin_key_name"

// KeyName returns the name of the authenticated operator key from
// context, or "" if not set.
func KeyName(ctx context.Context) string {
	name, _ := ctx.Value(adminKeyName).(string)
	return name
}

// Key is a named operator API key. Only the bcrypt hash of the key
// value is ever held.
type Key struct {
	Name string
	Hash string
}

// Authenticator validates operator credentials.
type Authenticator interface {
	Authenticate(r *http.Request) (name string, ok bool)
}

// APIKeyAuthenticator validates operator access against a fixed set of
// bcrypt-hashed keys.
type APIKeyAuthenticator struct {
	Keys []Key
}

// Authenticate checks the X-API-Key or Authorization header against
// the configured key hashes.
func (a *APIKeyAuthenticator) Authenticate(r *http.Request) (string, bool) {
	key := r.Header.Get("X-API-Key")
	if key == "" {
		auth := r.Header.Get("Authorization")
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			key = token
		}
	}
	if key == "" {
		return "", false
	}

	for _, k := range a.Keys {
		if bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(key)) == nil {
			return k.Name, true
		}
	}
	return "", false
}

// RequireKey creates middleware that enforces operator authentication.
func RequireKey(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name, ok := auth.Authenticate(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			ctx := context.WithValue(r.Context(), adminKeyName, name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
