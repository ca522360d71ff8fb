package auth

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey("prod")
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	secret, ok := strings.CutPrefix(key, "qs-prod-")
	if !ok {
		t.Fatalf("key should start with qs-prod-, got %s", key)
	}
	if len(secret) != secretLength {
		t.Errorf("secret length = %d, want %d", len(secret), secretLength)
	}
	if strings.Trim(secret, secretChars) != "" {
		t.Errorf("secret has characters outside the alphabet: %s", secret)
	}

	other, _ := GenerateKey("prod")
	if key == other {
		t.Error("two generated keys should differ")
	}
}

func TestGenerateKey_RejectsBadEnv(t *testing.T) {
	for _, env := range []string{"", "Prod", "dev-eu", "st ag"} {
		if _, err := GenerateKey(env); err == nil {
			t.Errorf("GenerateKey(%q) should fail", env)
		}
	}
}

func TestHashKey(t *testing.T) {
	key := "qs-prod-abcdefghijklmnopqrstuvwxyz012345"
	hash := HashKey(key)

	if len(hash) != 64 {
		t.Errorf("hash length = %d, want 64", len(hash))
	}
	if hash != HashKey(key) {
		t.Error("hash must be deterministic")
	}
	if hash == HashKey("qs-prod-different") {
		t.Error("different keys should hash differently")
	}
}

func TestKeyPrefix(t *testing.T) {
	tests := map[string]string{
		"qs-prod-abcdefghijklmnopqrstuvwxyz012345": "qs-prod-abcdefgh",
		"qs-ci-12345678901234567890123456789012":   "qs-ci-12345678",
		"qs-dev-abc":           "qs-dev-abc",
		"short":                "short",
		"nodashesbutquitelong": "nodashesbutq",
	}
	for key, want := range tests {
		if got := KeyPrefix(key); got != want {
			t.Errorf("KeyPrefix(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestKeyMetadata_Expired(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{"no expiry", time.Time{}, false},
		{"future", now.Add(time.Minute), false},
		{"past", now.Add(-time.Minute), true},
	}
	for _, tt := range tests {
		m := &KeyMetadata{ExpiresAt: tt.expires}
		if got := m.Expired(now); got != tt.want {
			t.Errorf("%s: Expired() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
		hours   float64
	}{
		{"365d", false, 365 * 24},
		{"2w", false, 14 * 24},
		{"24h", false, 24},
		{"90m", false, 1.5},
		{"", true, 0},
		{"xd", true, 0},
		{"0d", true, 0},
		{"-1h", true, 0},
	}

	for _, tt := range tests {
		dur, err := ParseDuration(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDuration(%q) should have errored", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDuration(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if dur.Hours() != tt.hours {
			t.Errorf("ParseDuration(%q) = %v hours, want %v", tt.input, dur.Hours(), tt.hours)
		}
	}
}

func TestAuthInfo_Limits(t *testing.T) {
	rpm, zero := 30, 0
	quota, negative := int64(500), int64(-1)

	tests := []struct {
		name      string
		info      AuthInfo
		wantRPM   int
		wantQuota int64
	}{
		{"no overrides", AuthInfo{}, 60, 0},
		{"own limits", AuthInfo{RPMLimit: &rpm, DailyQuota: &quota}, 30, 500},
		{"zero rpm falls back", AuthInfo{RPMLimit: &zero}, 60, 0},
		{"negative quota uses default", AuthInfo{DailyQuota: &negative}, 60, 0},
	}
	for _, tt := range tests {
		if got := tt.info.RPM(60); got != tt.wantRPM {
			t.Errorf("%s: RPM() = %d, want %d", tt.name, got, tt.wantRPM)
		}
		if got := tt.info.Quota(); got != tt.wantQuota {
			t.Errorf("%s: Quota() = %d, want %d", tt.name, got, tt.wantQuota)
		}
	}
}
