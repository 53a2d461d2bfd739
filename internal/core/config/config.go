// Package config provides configuration management for segmenter services.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/solatis/segmenter/internal/rules"
)

// Config holds configuration for the segment API service.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Audience  AudienceConfig
	Translate TranslateConfig

	// Fields extends the default field registry.
	Fields []rules.Descriptor
}

// ServerConfig holds listener settings for the gRPC and HTTP transports.
type ServerConfig struct {
	Host            string
	GRPCPort        int
	HTTPPort        int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds the store location.
type DatabaseConfig struct {
	URL string
}

// AudienceConfig tunes the audience calculator.
type AudienceConfig struct {
	Workers            int
	ChunkSize          int
	MaxInlineCustomers int
	CaseSensitive      bool
}

// TranslateConfig configures natural-language translation.
type TranslateConfig struct {
	Provider string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// Translation providers.
const (
	ProviderOpenAI  = "openai"
	ProviderKeyword = "keyword"
)

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			GRPCPort:        50051,
			HTTPPort:        8080,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			URL: "sqlite://./data/segmenter.db",
		},
		Audience: AudienceConfig{
			Workers:            0,
			ChunkSize:          rules.DefaultChunkSize,
			MaxInlineCustomers: 10000,
		},
		Translate: TranslateConfig{
			Provider: ProviderOpenAI,
			Model:    "gpt-4o-mini",
			Timeout:  20 * time.Second,
		},
	}
}

// Registry builds the field registry: the default CRM fields plus Fields.
func (c *Config) Registry() (*rules.Registry, error) {
	return rules.DefaultRegistry().Extend(c.Fields...)
}

// OpenAIAPIKey reads the OpenAI key from the environment. SEG_OPENAI_API_KEY
// takes precedence over OPENAI_API_KEY.
func OpenAIAPIKey() string {
	for _, key := range []string{"SEG_OPENAI_API_KEY", "OPENAI_API_KEY"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks port ranges and positive sizes.
func (c *Config) Validate() error {
	for name, port := range map[string]int{"server.grpc_port": c.Server.GRPCPort, "server.http_port": c.Server.HTTPPort} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
		}
	}
	if c.Server.GRPCPort == c.Server.HTTPPort {
		return fmt.Errorf("server.grpc_port and server.http_port must differ, both %d", c.Server.GRPCPort)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive, got %v", c.Server.RequestTimeout)
	}
	if c.Audience.Workers < 0 {
		return fmt.Errorf("audience.workers must not be negative, got %d", c.Audience.Workers)
	}
	if c.Audience.ChunkSize <= 0 {
		return fmt.Errorf("audience.chunk_size must be positive, got %d", c.Audience.ChunkSize)
	}
	if c.Audience.MaxInlineCustomers <= 0 {
		return fmt.Errorf("audience.max_inline_customers must be positive, got %d", c.Audience.MaxInlineCustomers)
	}
	switch c.Translate.Provider {
	case ProviderOpenAI, ProviderKeyword:
	default:
		return fmt.Errorf("translate.provider must be %q or %q, got %q", ProviderOpenAI, ProviderKeyword, c.Translate.Provider)
	}
	if _, err := c.Registry(); err != nil {
		return fmt.Errorf("registry.fields: %w", err)
	}
	return nil
}
