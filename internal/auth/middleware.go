package auth

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/af-corp/querysmith/internal/httputil"
)

const (
	msgNoCredentials = "Missing API key. Use: Authorization: Bearer <api-key>"
	msgBadScheme     = "Unsupported Authorization scheme. Use: Authorization: Bearer <api-key>"
	msgEmptyKey      = "Empty API key"
)

// Middleware authenticates each request against store and stores the
// caller's identity and limits in the request context.
func Middleware(store KeyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			token, problem := credentials(r)
			if problem != "" {
				httputil.WriteAuthError(w, reqID, problem)
				return
			}

			meta, err := store.Lookup(r.Context(), HashKey(token))
			switch {
			case err != nil:
				slog.Error("key lookup failed", "error", err, "key_prefix", safePrefix(token))
				httputil.WriteInternalError(w, reqID, "Internal error during authentication")
				return
			case meta == nil:
				slog.Warn("auth failed: key not found", "key_prefix", safePrefix(token))
				httputil.WriteAuthError(w, reqID, "Invalid API key")
				return
			case meta.Expired(time.Now()):
				// Cached metadata can outlive the expiry by up to the cache TTL.
				slog.Warn("auth failed: key expired", "key_prefix", safePrefix(token), "key_id", meta.ID)
				httputil.WriteAuthError(w, reqID, "API key expired")
				return
			}

			ctx := ContextWithAuth(r.Context(), &AuthInfo{
				KeyID:      meta.ID,
				UserID:     meta.UserID,
				RPMLimit:   meta.RPMLimit,
				DailyQuota: meta.DailyQuota,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// credentials reads the key from a Bearer Authorization header, falling back
// to X-API-Key. The scheme name is matched case-insensitively. A non-empty
// problem is the client-facing reason no key was found.
func credentials(r *http.Request) (token, problem string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
			return key, ""
		}
		return "", msgNoCredentials
	}
	scheme, rest, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", msgBadScheme
	}
	if token = strings.TrimSpace(rest); token == "" {
		return "", msgEmptyKey
	}
	return token, ""
}

// safePrefix never returns more of the key than KeyPrefix does.
func safePrefix(key string) string {
	return KeyPrefix(key) + "..."
}
