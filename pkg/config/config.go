// Package config provides configuration structures and loading logic for
// the simulation engine.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the global configuration for the engine.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Oracle     OracleConfig     `yaml:"oracle"`
	Governance GovernanceConfig `yaml:"governance"`
	Seed       SeedConfig       `yaml:"seed"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

// OracleConfig holds configuration for the reasoning oracle.
type OracleConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
}

// GovernanceConfig holds configuration for policy evaluation.
type GovernanceConfig struct {
	// BypassCodes short-circuit every governance check when supplied with
	// an action request.
	BypassCodes []string `yaml:"bypass_codes"`
	// ActivePolicy names the policy activated at startup.
	ActivePolicy string `yaml:"active_policy"`
}

// Load reads configuration from a file and applies environment variable
// overrides. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Address: ":8080",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Oracle: OracleConfig{
			Endpoint: "https://api.openai.com/v1/chat/completions",
			Model:    "gpt-3.5-turbo",
		},
		Governance: GovernanceConfig{
			BypassCodes:  []string{"GOV-BYPASS-2024", "GOV-EMERGENCY-OVERRIDE"},
			ActivePolicy: "default",
		},
	}

	if path != "" {
		//nolint:gosec // Config file path is controlled by admin/operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("MAUL_ADDR"); val != "" {
		cfg.Server.Address = val
	}
	if val := os.Getenv("MAUL_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("MAUL_LOG_PRETTY"); val == "true" {
		cfg.Logging.Pretty = true
	}
	if val := os.Getenv("MAUL_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("MAUL_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	if val := os.Getenv("MAUL_ORACLE_ENDPOINT"); val != "" {
		cfg.Oracle.Endpoint = val
	}
	if val := os.Getenv("MAUL_ORACLE_MODEL"); val != "" {
		cfg.Oracle.Model = val
	}
	if val := os.Getenv("OPENAI_API_KEY"); val != "" && cfg.Oracle.APIKey == "" {
		cfg.Oracle.APIKey = val
	}
}

// Validate performs validation of the entire configuration.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}
	if err := c.Oracle.Validate(); err != nil {
		return fmt.Errorf("oracle configuration: %w", err)
	}
	return nil
}

// Validate performs validation of server configuration.
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		c.Address = ":8080"
	}
	return nil
}

// Validate performs validation of logging configuration.
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}
	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
		return nil
	default:
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, error", c.Level)
	}
}

// Validate performs validation of oracle configuration.
func (c *OracleConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("oracle endpoint is required")
	}
	return nil
}
