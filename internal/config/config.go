// Package config loads and validates the toolkit configuration from
// defaults, an optional YAML file and GRIDFORGE_-prefixed environment
// variables, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	BaseURL      string          `koanf:"base_url"`
	QueuePollURL string          `koanf:"queue_poll_url"`
	Routing      RoutingConfig   `koanf:"routing"`
	TLS          TLSConfig       `koanf:"tls"`
	HTTP         HTTPConfig      `koanf:"http"`
	Paths        PathsConfig     `koanf:"paths"`
	Ledger       LedgerConfig    `koanf:"ledger"`
	Generator    GeneratorConfig `koanf:"generator"`
	Dispatch     DispatchConfig  `koanf:"dispatch"`
}

// RoutingConfig maps sending organization ids to per-organization endpoint
// suffixes, one table per sending role.
type RoutingConfig struct {
	DSO map[string]string `koanf:"dso"`
	DDQ map[string]string `koanf:"ddq"`
}

type TLSConfig struct {
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

type HTTPConfig struct {
	Timeout string `koanf:"timeout"`
}

type PathsConfig struct {
	Outbox    string `koanf:"outbox"`
	LogDir    string `koanf:"log_dir"`
	PeekDir   string `koanf:"peek_dir"`
	APCatalog string `koanf:"ap_catalog"`
	RPCatalog string `koanf:"rp_catalog"`
}

type LedgerConfig struct {
	Type        string `koanf:"type"` // sqlite | postgres
	DSN         string `koanf:"dsn"`
	AutoMigrate bool   `koanf:"auto_migrate"`
}

type GeneratorConfig struct {
	DSOList          []string `koanf:"dso_list"`
	MGAList          []string `koanf:"mga_list"`
	DealerList       []string `koanf:"dealer_list"`
	IDRangeStart     int      `koanf:"id_range_start"` // 0 picks a random start
	CatalogRowLimit  int      `koanf:"catalog_row_limit"`
	StaticOverrideAP string   `koanf:"static_override_ap"` // fixed value instead of random
	StaticOverrideRP string   `koanf:"static_override_rp"`
}

type DispatchConfig struct {
	BlockSize     int    `koanf:"block_size"`
	PhaseCooldown string `koanf:"phase_cooldown"`
}

// HTTPTimeout returns the parsed request timeout.
func (c *Config) HTTPTimeout() time.Duration {
	d, err := time.ParseDuration(c.HTTP.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// PhaseCooldown returns the parsed pause between dispatch phases.
func (c *Config) PhaseCooldown() time.Duration {
	d, err := time.ParseDuration(c.Dispatch.PhaseCooldown)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("base_url is required")
	}
	if !strings.HasSuffix(c.BaseURL, "/") {
		return fmt.Errorf("base_url must end with a trailing slash")
	}
	if len(c.Routing.DSO) == 0 {
		return fmt.Errorf("routing.dso must map at least one organization")
	}

	if _, err := time.ParseDuration(c.HTTP.Timeout); err != nil {
		return fmt.Errorf("invalid http.timeout %q: %w", c.HTTP.Timeout, err)
	}

	if strings.TrimSpace(c.Paths.Outbox) == "" {
		return fmt.Errorf("paths.outbox is required")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return fmt.Errorf("paths.log_dir is required")
	}

	if c.Ledger.Type != "sqlite" && c.Ledger.Type != "postgres" {
		return fmt.Errorf("unsupported ledger.type %q (must be sqlite or postgres)", c.Ledger.Type)
	}
	if strings.TrimSpace(c.Ledger.DSN) == "" {
		return fmt.Errorf("ledger.dsn is required")
	}

	for _, dso := range c.Generator.DSOList {
		if len(dso) < 8 {
			return fmt.Errorf("generator.dso_list entry %q is too short for an id prefix", dso)
		}
	}
	if c.Generator.CatalogRowLimit <= 0 {
		return fmt.Errorf("generator.catalog_row_limit must be > 0")
	}

	if c.Dispatch.BlockSize <= 0 {
		return fmt.Errorf("dispatch.block_size must be > 0")
	}
	if _, err := time.ParseDuration(c.Dispatch.PhaseCooldown); err != nil {
		return fmt.Errorf("invalid dispatch.phase_cooldown %q: %w", c.Dispatch.PhaseCooldown, err)
	}

	return nil
}

// Load parses config from defaults, an optional file and the environment,
// then validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"base_url":                    "https://localhost:8443/",
		"queue_poll_url":              "https://localhost:8443/queue",
		"tls.cert_file":               "certs/cert.pem",
		"tls.key_file":                "certs/key_nopass.pem",
		"http.timeout":                "30s",
		"paths.outbox":                "xml",
		"paths.log_dir":               "log",
		"paths.peek_dir":              "peeks",
		"paths.ap_catalog":            "ap.csv",
		"paths.rp_catalog":            "rp.csv",
		"ledger.type":                 "sqlite",
		"ledger.dsn":                  "gridforge.db",
		"ledger.auto_migrate":         true,
		"generator.id_range_start":    0,
		"generator.catalog_row_limit": 10000,
		"dispatch.block_size":         10,
		"dispatch.phase_cooldown":     "30s",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("GRIDFORGE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "GRIDFORGE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
