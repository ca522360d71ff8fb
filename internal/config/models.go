package config

import "sort"

// ModelsConfig maps the logical model names the pipeline asks for to
// provider routes.
type ModelsConfig struct {
	Models map[string]ModelMapping `yaml:"models"`
}

// ModelMapping is tried primary first, then each fallback in order.
type ModelMapping struct {
	DisplayName string          `yaml:"display_name"`
	Primary     ProviderRoute   `yaml:"primary"`
	Fallback    []ProviderRoute `yaml:"fallback"`
}

type ProviderRoute struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// Routes lists the mapping's routes in call order.
func (m ModelMapping) Routes() []ProviderRoute {
	return append([]ProviderRoute{m.Primary}, m.Fallback...)
}

// UnknownProviders lists provider names referenced by a route but missing
// from providers, sorted and without duplicates.
func (c *ModelsConfig) UnknownProviders(providers *ProvidersConfig) []string {
	seen := map[string]bool{}
	for _, m := range c.Models {
		for _, r := range m.Routes() {
			if _, ok := providers.Providers[r.Provider]; !ok {
				seen[r.Provider] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
