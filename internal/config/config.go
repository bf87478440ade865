package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-planner/internal/domain"
	"github.com/simaogato/wealthflow-planner/internal/usecase/validation"
)

// Config holds all planner configuration.
type Config struct {
	Server     ServerConfig                `toml:"server"`
	Database   DatabaseConfig              `toml:"database"`
	Local      LocalConfig                 `toml:"local"`
	Logging    LoggingConfig               `toml:"logging"`
	Validation ValidationConfig            `toml:"validation"`
	Policy     map[string]PolicyRuleConfig `toml:"policy"`
}

// ServerConfig holds gRPC server settings.
type ServerConfig struct {
	Port       string `toml:"port"`
	APIToken   string `toml:"api_token,omitempty"`
	SessionTTL string `toml:"session_ttl"`
}

// DatabaseConfig holds PostgreSQL settings for the server.
type DatabaseConfig struct {
	ConnStr  string `toml:"conn_str,omitempty"`
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password,omitempty"`
	Name     string `toml:"name"`
	SSLMode  string `toml:"sslmode"`
}

// LocalConfig holds settings for the CLI's local store.
type LocalConfig struct {
	DBPath string `toml:"db_path"`
}

// LoggingConfig holds slog settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ValidationConfig holds discretionary limits, in percent of income.
type ValidationConfig struct {
	DiscretionarySoftPercent float64 `toml:"discretionary_soft_percent"`
	DiscretionaryHardPercent float64 `toml:"discretionary_hard_percent"`
	SumTolerancePercent      float64 `toml:"sum_tolerance_percent"`
}

// PolicyRuleConfig is one row of the rebalancing policy table, keyed by
// bucket type. Rank 0 keeps the type out of the priority cascade.
type PolicyRuleConfig struct {
	Rank         int     `toml:"rank"`
	FloorPercent float64 `toml:"floor_percent"`
	Adjustable   bool    `toml:"adjustable"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	limits := validation.DefaultLimits()
	return Config{
		Server: ServerConfig{
			Port:       ":8080",
			APIToken:   "dev-token",
			SessionTTL: "2h",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Password: "postgres",
			Name:     "wealthflow",
			SSLMode:  "disable",
		},
		Local: LocalConfig{
			DBPath: filepath.Join(Dir(), "planner.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Validation: ValidationConfig{
			DiscretionarySoftPercent: limits.SoftPercent.InexactFloat64(),
			DiscretionaryHardPercent: limits.HardPercent.InexactFloat64(),
			SumTolerancePercent:      limits.SumTolerance.InexactFloat64(),
		},
		Policy: policyToConfig(domain.DefaultPolicy()),
	}
}

func policyToConfig(p domain.Policy) map[string]PolicyRuleConfig {
	out := make(map[string]PolicyRuleConfig, len(p.Rules))
	for t, rule := range p.Rules {
		out[string(t)] = PolicyRuleConfig{
			Rank:         rule.Rank,
			FloorPercent: rule.FloorPercent.InexactFloat64(),
			Adjustable:   rule.Adjustable,
		}
	}
	return out
}

// Dir returns the XDG-compliant config directory.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "wealthflow")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "wealthflow")
}

// DefaultPath returns the full path to the default config file.
func DefaultPath() string {
	return filepath.Join(Dir(), "planner.toml")
}

// Load reads the config file at path, applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("reading config: %w", err)
		default:
			// A [policy.TYPE] table replaces the default row for that type
			if _, err := toml.Decode(string(data), &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the config to path, creating parent directories.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	overrides := []struct {
		key    string
		target *string
	}{
		{"PLANNER_PORT", &c.Server.Port},
		{"PLANNER_SESSION_TTL", &c.Server.SessionTTL},
		{"API_TOKEN", &c.Server.APIToken},
		{"PLANNER_LOG_LEVEL", &c.Logging.Level},
		{"PLANNER_LOG_FORMAT", &c.Logging.Format},
		{"PLANNER_DB_PATH", &c.Local.DBPath},
		{"DB_CONN_STR", &c.Database.ConnStr},
		{"DB_HOST", &c.Database.Host},
		{"DB_PORT", &c.Database.Port},
		{"DB_USER", &c.Database.User},
		{"DB_PASSWORD", &c.Database.Password},
		{"DB_NAME", &c.Database.Name},
		{"DB_SSLMODE", &c.Database.SSLMode},
	}
	for _, o := range overrides {
		if v, ok := lookup(o.key); ok && v != "" {
			*o.target = v
		}
	}

	if c.Server.Port != "" && !strings.Contains(c.Server.Port, ":") {
		c.Server.Port = ":" + c.Server.Port
	}
}

// DSN returns the PostgreSQL connection string.
// An explicit conn_str wins over the individual fields.
func (d DatabaseConfig) DSN() string {
	if d.ConnStr != "" {
		return d.ConnStr
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// SessionTTLDuration parses the session TTL. Zero disables expiry.
func (s ServerConfig) SessionTTLDuration() (time.Duration, error) {
	if s.SessionTTL == "" || s.SessionTTL == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.SessionTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid session_ttl %q: %w", s.SessionTTL, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("session_ttl must not be negative")
	}
	return d, nil
}

// Rebalancing converts the policy table into a domain.Policy.
func (c Config) Rebalancing() (domain.Policy, error) {
	policy := domain.Policy{Rules: make(map[domain.BucketType]domain.PolicyRule, len(c.Policy))}
	for name, rule := range c.Policy {
		bt, err := domain.ParseBucketType(name)
		if err != nil {
			return domain.Policy{}, fmt.Errorf("policy: %w", err)
		}
		policy.Rules[bt] = domain.PolicyRule{
			Rank:         rule.Rank,
			FloorPercent: decimal.NewFromFloat(rule.FloorPercent),
			Adjustable:   rule.Adjustable,
		}
	}
	if err := policy.Validate(); err != nil {
		return domain.Policy{}, fmt.Errorf("policy: %w", err)
	}
	return policy, nil
}

// Limits converts the validation section into validation.Limits.
func (c Config) Limits() (validation.Limits, error) {
	limits := validation.Limits{
		SoftPercent:  decimal.NewFromFloat(c.Validation.DiscretionarySoftPercent),
		HardPercent:  decimal.NewFromFloat(c.Validation.DiscretionaryHardPercent),
		SumTolerance: decimal.NewFromFloat(c.Validation.SumTolerancePercent),
	}
	if err := limits.Validate(); err != nil {
		return validation.Limits{}, fmt.Errorf("validation: %w", err)
	}
	return limits, nil
}

// Validate checks that every section converts cleanly.
func (c Config) Validate() error {
	if _, err := c.Rebalancing(); err != nil {
		return err
	}
	if _, err := c.Limits(); err != nil {
		return err
	}
	if _, err := c.Server.SessionTTLDuration(); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging: unknown format %q", c.Logging.Format)
	}
	return nil
}
