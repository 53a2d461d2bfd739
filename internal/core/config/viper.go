package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SEG_SERVER_GRPC_PORT.
const EnvPrefix = "SEG"

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"host":      "server.host",
	"grpc-port": "server.grpc_port",
	"http-port": "server.http_port",
	"db-url":    "database.url",
	"workers":   "audience.workers",
}

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
// flags may be nil; only flags that were set on the command line override.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.grpc_port", d.Server.GRPCPort)
	v.SetDefault("server.http_port", d.Server.HTTPPort)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout.String())
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout.String())
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("audience.workers", d.Audience.Workers)
	v.SetDefault("audience.chunk_size", d.Audience.ChunkSize)
	v.SetDefault("audience.max_inline_customers", d.Audience.MaxInlineCustomers)
	v.SetDefault("audience.case_sensitive", d.Audience.CaseSensitive)
	v.SetDefault("translate.provider", d.Translate.Provider)
	v.SetDefault("translate.model", d.Translate.Model)
	v.SetDefault("translate.base_url", d.Translate.BaseURL)
	v.SetDefault("translate.timeout", d.Translate.Timeout.String())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets must be environment-only per 12-factor principles
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			GRPCPort:        v.GetInt("server.grpc_port"),
			HTTPPort:        v.GetInt("server.http_port"),
			RequestTimeout:  v.GetDuration("server.request_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Database: DatabaseConfig{URL: v.GetString("database.url")},
		Audience: AudienceConfig{
			Workers:            v.GetInt("audience.workers"),
			ChunkSize:          v.GetInt("audience.chunk_size"),
			MaxInlineCustomers: v.GetInt("audience.max_inline_customers"),
			CaseSensitive:      v.GetBool("audience.case_sensitive"),
		},
		Translate: TranslateConfig{
			Provider: v.GetString("translate.provider"),
			Model:    v.GetString("translate.model"),
			BaseURL:  v.GetString("translate.base_url"),
			Timeout:  v.GetDuration("translate.timeout"),
		},
	}
	if err := v.UnmarshalKey("registry.fields", &cfg.Fields); err != nil {
		return nil, fmt.Errorf("registry.fields: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateNoSecretsInConfig enforces environment-only secrets.
func validateNoSecretsInConfig(v *viper.Viper) error {
	for _, key := range []string{"openai_api_key", "translate.api_key", "translate.openai_api_key"} {
		if v.InConfig(key) {
			return fmt.Errorf("API keys not allowed in config files (use OPENAI_API_KEY environment variable)")
		}
	}
	return nil
}
