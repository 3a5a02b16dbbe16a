package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// DefaultProvider is used when the config file does not name one.
const DefaultProvider = "powerdns"

// ProviderConfig holds the DNS provider type, app-level options, and
// provider-specific connection settings.
type ProviderConfig struct {
	Provider string            `yaml:"provider"`
	Upsert   bool              `yaml:"upsert"`
	Settings map[string]string `yaml:"settings"`
	Zone     ZoneDefaults      `yaml:"zone"`
	Verify   VerifyConfig      `yaml:"verify"`
}

// ZoneDefaults are extra fields sent with every zone creation, e.g.
// hostmaster and soa_edit_api.
type ZoneDefaults map[string]string

// VerifyConfig configures bulk lookups of provisioned zones.
type VerifyConfig struct {
	NameServers []string `yaml:"nameservers"`
	Limit       int      `yaml:"limit"`
	Repeats     int      `yaml:"repeats"`
}

// LoadProviderConfig reads the DNS provider configuration from the path
// specified by the DNS_PROVIDER_PATH environment variable, defaulting to
// "configs/dns-provider.yaml".
func LoadProviderConfig() (*ProviderConfig, error) {
	path := os.Getenv("DNS_PROVIDER_PATH")
	if path == "" {
		path = "configs/dns-provider.yaml"
	}
	return LoadProviderConfigFromPath(path)
}

// LoadProviderConfigFromPath reads the DNS provider configuration from the
// given file path. ${ENV_VAR} references in settings and zone defaults are
// expanded.
func LoadProviderConfigFromPath(path string) (*ProviderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading provider config file: %w", err)
	}

	var cfg ProviderConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing provider config file: %w", err)
	}

	if cfg.Provider == "" {
		cfg.Provider = DefaultProvider
	}
	if cfg.Settings == nil {
		return nil, fmt.Errorf("provider config: missing required section 'settings'")
	}
	if cfg.Verify.Limit < 0 {
		return nil, fmt.Errorf("provider config: verify.limit must not be negative")
	}
	if cfg.Verify.Repeats < 0 {
		return nil, fmt.Errorf("provider config: verify.repeats must not be negative")
	}

	for k, v := range cfg.Settings {
		cfg.Settings[k] = os.ExpandEnv(v)
	}
	for k, v := range cfg.Zone {
		cfg.Zone[k] = os.ExpandEnv(v)
	}

	return &cfg, nil
}

// ZoneParams returns the zone defaults in the shape zone creation expects.
func (c *ProviderConfig) ZoneParams() map[string]any {
	params := make(map[string]any, len(c.Zone))
	for k, v := range c.Zone {
		params[k] = v
	}
	return params
}
