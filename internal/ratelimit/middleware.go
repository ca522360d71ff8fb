package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/af-corp/querysmith/internal/auth"
	"github.com/af-corp/querysmith/internal/httputil"
	"github.com/af-corp/querysmith/internal/telemetry"
)

const (
	fallbackRPM = 60

	headerRateLimitRequests          = "X-RateLimit-Limit-Requests"
	headerRateLimitRemainingRequests = "X-RateLimit-Remaining-Requests"
	headerRateLimitReset             = "X-RateLimit-Reset-Requests"
	headerRetryAfter                 = "Retry-After"
)

// KeyLimiter admits or refuses one request for an API key.
type KeyLimiter interface {
	AllowKey(ctx context.Context, keyID string, rpm int64) LimitResult
}

// Middleware enforces per-key requests per minute. It runs after auth; keys
// without their own limit get defaultRPM.
func Middleware(limiter KeyLimiter, defaultRPM int, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	if defaultRPM <= 0 {
		defaultRPM = fallbackRPM
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authInfo, ok := auth.AuthFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			rpm := authInfo.RPM(defaultRPM)
			result := limiter.AllowKey(r.Context(), authInfo.KeyID, int64(rpm))

			h := w.Header()
			h.Set(headerRateLimitRequests, strconv.Itoa(rpm))
			h.Set(headerRateLimitRemainingRequests, strconv.FormatInt(result.Remaining, 10))
			h.Set(headerRateLimitReset, result.ResetAt.UTC().Format(time.RFC3339))

			if result.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			reqID := h.Get("X-Request-ID")
			retry := int(math.Ceil(result.RetryAfter.Seconds()))
			slog.Warn("rate limit exceeded",
				"request_id", reqID,
				"key_id", authInfo.KeyID,
				"user_id", authInfo.UserID,
				"rpm", rpm,
				"retry_after_s", retry,
			)
			if metrics != nil {
				metrics.RecordRateLimitHit("rpm")
			}
			h.Set(headerRetryAfter, strconv.Itoa(retry))
			httputil.WriteRateLimitError(w, reqID,
				fmt.Sprintf("Too many requests: this key allows %d per minute. Retry in %ds.", rpm, retry))
		})
	}
}
