package config

import "time"

type ProvidersConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig describes one upstream model API. Type selects the wire
// protocol: anthropic, gemini, or anything else for OpenAI-compatible.
type ProviderConfig struct {
	Type          string            `yaml:"type"`
	BaseURL       string            `yaml:"base_url"`
	APIKey        string            `yaml:"api_key"`
	APIVersion    string            `yaml:"api_version,omitempty"`
	MaxConcurrent int               `yaml:"max_concurrent"`
	Timeout       time.Duration     `yaml:"timeout"`
	Headers       map[string]string `yaml:"headers,omitempty"`
	// Disabled keeps the entry in the file without registering it.
	Disabled bool `yaml:"disabled"`
	// JSONMode requests JSON output on structured calls: response_format on
	// OpenAI-compatible servers, an assistant prefill on Anthropic. Some
	// self-hosted servers reject response_format; set false for those.
	JSONMode *bool `yaml:"json_mode,omitempty"`
}

// WantsJSONMode reports whether structured calls should request JSON output.
// Unset means yes.
func (p ProviderConfig) WantsJSONMode() bool {
	return p.JSONMode == nil || *p.JSONMode
}
