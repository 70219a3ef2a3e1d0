// Package config loads the application configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes YAML duration strings like "24h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the full application configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`
	// BaseURL is the externally reachable root used to build the OAuth
	// redirect URL and re-authorization links.
	BaseURL string      `yaml:"base_url"`
	OAuth   OAuthConfig `yaml:"oauth"`
	// TokenSecret signs both the direct-principal bearer tokens and the
	// handshake state blobs.
	TokenSecret string   `yaml:"token_secret"`
	TokenTTL    Duration `yaml:"token_ttl"`
}

// OAuthConfig carries the provider client credentials.
type OAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Defaults applied when the file or a field is absent.
const (
	DefaultListenAddr = ":8086"
	DefaultDBPath     = "calnexus.db"
	DefaultTokenTTL   = Duration(24 * time.Hour)
)

// Load reads the config file at path. A missing file is not an error; the
// defaults plus environment overrides are used instead.
func Load(path string) (*Config, error) {
	cfg := &Config{
		ListenAddr: DefaultListenAddr,
		DBPath:     DefaultDBPath,
		TokenTTL:   DefaultTokenTTL,
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnv(cfg)

	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}
	if cfg.TokenSecret == "" {
		return nil, fmt.Errorf("token_secret is required (or set CALNEXUS_TOKEN_SECRET)")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CALNEXUS_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("CALNEXUS_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CALNEXUS_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("CALNEXUS_TOKEN_SECRET"); v != "" {
		cfg.TokenSecret = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.OAuth.ClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.OAuth.ClientSecret = v
	}
}
