package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/xenking/price-engine/internal/domain/auth"
	"github.com/xenking/price-engine/pkg/httpmiddleware"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "api_key"

// Security authenticates requests via HMAC-SHA256 hashed API keys and
// enforces per-route scopes.
type Security struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurity creates a Security with the given API key repository and
// HMAC pepper.
func NewSecurity(apikeys auth.Repository, pepper []byte) *Security {
	return &Security{apikeys: apikeys, pepper: pepper}
}

// HashKey computes the hex HMAC-SHA256 of a raw API key under the pepper.
// The seed tool uses the same derivation when storing keys.
func HashKey(pepper []byte, rawKey string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(rawKey))
	return hex.EncodeToString(mac.Sum(nil))
}

// Require authenticates the request and checks that the key grants the
// given scope. The lookup is by computed hash, with a constant-time
// comparison against the stored hash to prevent timing side-channels.
func (s *Security) Require(scope string) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := r.Header.Get(APIKeyHeader)
			if rawKey == "" {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing api key")
				return
			}

			mac := hmac.New(sha256.New, s.pepper)
			mac.Write([]byte(rawKey))
			hash := mac.Sum(nil)

			info, err := s.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid api key")
				return
			}

			storedBytes, err := hex.DecodeString(info.KeyHash)
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid api key")
				return
			}
			if subtle.ConstantTimeCompare(hash, storedBytes) != 1 {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid api key")
				return
			}

			if !info.HasScope(scope) {
				writeError(w, r, http.StatusForbidden, "forbidden", "api key lacks scope "+scope)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
