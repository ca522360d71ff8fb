package secrets

import (
	"net/url"
	"regexp"
)

// Pattern defines a secret detection pattern. When Confirm is set, a regex
// match only counts if Confirm accepts the matched text.
type Pattern struct {
	Name    string
	Regex   *regexp.Regexp
	Confirm func(match string) bool
}

// DefaultPatterns returns the built-in secret detection patterns.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{Name: "AWS Access Key", Regex: regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`)},
		{Name: "GCP Service Account Key", Regex: regexp.MustCompile(`"private_key":\s*"-----BEGIN`)},
		{Name: "GitHub Token", Regex: regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`)},
		{Name: "Stripe Secret Key", Regex: regexp.MustCompile(`[sr]k_live_[A-Za-z0-9]{24,}`)},
		{Name: "Private Key", Regex: regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`)},
		{
			// Schema notes routinely mention DSNs; only those carrying a
			// password are secrets.
			Name:    "Connection String",
			Regex:   regexp.MustCompile(`\b(?:postgres(?:ql)?|mysql|mariadb|sqlserver|mongodb(?:\+srv)?|redis|rediss)://[^\s'"]+`),
			Confirm: dsnHasPassword,
		},
		{Name: "LLM Provider Key", Regex: regexp.MustCompile(`\bsk-(?:ant-|proj-)?[A-Za-z0-9_\-]{32,}`)},
		{Name: "Gemini API Key", Regex: regexp.MustCompile(`\bAIza[0-9A-Za-z_\-]{35}\b`)},
		{Name: "QuerySmith API Key", Regex: regexp.MustCompile(`\bqs-[a-z0-9]+-[a-z0-9]{32}\b`)},
		{Name: "SQL Credential Literal", Regex: regexp.MustCompile(`(?i)\b(?:IDENTIFIED\s+BY|PASSWORD)\s+'[^']{6,}'`)},
		{Name: "JWT Token", Regex: regexp.MustCompile(`eyJ[A-Za-z0-9\-_]+\.eyJ[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+`)},
	}
}

func dsnHasPassword(match string) bool {
	u, err := url.Parse(match)
	if err != nil || u.User == nil {
		return false
	}
	pw, ok := u.User.Password()
	return ok && pw != ""
}
