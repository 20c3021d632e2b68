package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file on top of the defaults and then applies
// environment overrides. An empty path skips the file and uses defaults plus
// environment only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Credentials stay out of config files in deployments; environment wins.
func applyEnv(cfg *Config) {
	if v := os.Getenv("TASKCHAIN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("TASKCHAIN_EMAIL"); v != "" {
		cfg.Identity.Email = v
	}
	if v := os.Getenv("TASKCHAIN_SECRET"); v != "" {
		cfg.Identity.Secret = v
	}
}
