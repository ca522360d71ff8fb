package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Keys look like qs-{env}-{secret}. The env segment is lowercase so that
// KeyPrefix can split on dashes.
const (
	keyScheme    = "qs"
	secretLength = 32
	secretChars  = "abcdefghijklmnopqrstuvwxyz0123456789"
	prefixChars  = 8
)

// GenerateKey creates a new API key for the given environment label.
func GenerateKey(env string) (string, error) {
	if err := validEnv(env); err != nil {
		return "", err
	}
	secret, err := randomSecret(secretLength)
	if err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return keyScheme + "-" + env + "-" + secret, nil
}

func validEnv(env string) error {
	if env == "" {
		return errors.New("env label is required")
	}
	for _, c := range env {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return fmt.Errorf("env label %q must be lowercase letters and digits", env)
		}
	}
	return nil
}

// HashKey returns the SHA-256 hex digest stored in place of the key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// KeyPrefix is the display form of a key: scheme, env and the first few
// secret characters. Malformed keys are cut to 12 characters.
func KeyPrefix(key string) string {
	scheme, rest, ok := strings.Cut(key, "-")
	env, secret, ok2 := strings.Cut(rest, "-")
	if !ok || !ok2 {
		if len(key) > 12 {
			return key[:12]
		}
		return key
	}
	if len(secret) > prefixChars {
		secret = secret[:prefixChars]
	}
	return scheme + "-" + env + "-" + secret
}

// randomSecret draws from secretChars with rejection sampling so every
// character is equally likely.
func randomSecret(n int) (string, error) {
	limit := byte(256 - 256%len(secretChars))
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, secretChars[int(b)%len(secretChars)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// KeyMetadata is what the key store returns for a hash, and what it caches.
type KeyMetadata struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	RPMLimit   *int      `json:"rpm_limit,omitempty"`
	DailyQuota *int64    `json:"daily_quota,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the key has an expiry that lies before now.
func (m *KeyMetadata) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && now.After(m.ExpiresAt)
}

// ParseDuration extends time.ParseDuration with day ("30d") and week ("2w")
// units. The result must be positive.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, errors.New("empty duration")
	}
	var d time.Duration
	switch unit := s[len(s)-1]; unit {
	case 'd', 'w':
		n, err := strconv.Atoi(s[:len(s)-1])
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", s, err)
		}
		d = time.Duration(n) * 24 * time.Hour
		if unit == 'w' {
			d *= 7
		}
	default:
		var err error
		if d, err = time.ParseDuration(s); err != nil {
			return 0, err
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}
