package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "driftchat"

// ServerConfig holds settings for the chat server runtime.
type ServerConfig struct {
	ListenAddr      string `envconfig:"LISTEN_ADDR" default:":8080"`
	Database        DatabaseConfig
	JWT             JWTConfig
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	MaxMessageBytes int64         `envconfig:"MAX_MESSAGE_BYTES" default:"4096"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
}

// ClientConfig holds settings for the terminal client.
type ClientConfig struct {
	ServerURL     string `envconfig:"SERVER_URL" default:"http://localhost:8080"`
	CommandPrefix string `envconfig:"COMMAND_PREFIX" default:"/"`
}

// DatabaseConfig captures storage configuration.
type DatabaseConfig struct {
	Path string `envconfig:"DB_PATH" default:"driftchat.db"`
}

// JWTConfig defines token issuance parameters.
type JWTConfig struct {
	Secret     string        `envconfig:"JWT_SECRET" default:"replace-me"`
	Issuer     string        `envconfig:"JWT_ISSUER" default:"driftchat"`
	Expiration time.Duration `envconfig:"JWT_EXPIRATION" default:"24h"`
}

// LoadServerConfig builds the server configuration from DRIFTCHAT_* environment
// variables with sensible defaults.
func LoadServerConfig() (ServerConfig, error) {
	var cfg ServerConfig
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("load server config: %w", err)
	}
	return cfg, nil
}

// LoadClientConfig builds the client configuration from environment variables.
func LoadClientConfig() (ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("load client config: %w", err)
	}
	return cfg, nil
}
