package config

import (
	"encoding/base64"
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	SigningKey     []byte
	AllowedOrigins []string
	MigrationsURL  string
}

// envParams are the environment-borne settings. Flags take precedence; the
// environment fills in anything the flags leave empty.
type envParams struct {
	ServerAddr     string   `envconfig:"CHAT_RELAY_ADDR"`
	DatabaseDSN    string   `envconfig:"CHAT_RELAY_DSN"`
	SigningKey     string   `envconfig:"CHAT_RELAY_SIGNING_KEY"`
	AllowedOrigins []string `envconfig:"CHAT_RELAY_ALLOWED_ORIGINS"`
	MigrationsURL  string   `envconfig:"CHAT_RELAY_MIGRATIONS_URL" default:"file://migrations"`
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	var env envParams
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if serverAddr == "" {
		serverAddr = env.ServerAddr
	}
	if databaseDSN == "" {
		databaseDSN = env.DatabaseDSN
	}
	if base64Secret == "" {
		base64Secret = env.SigningKey
	}
	if len(allowedOrigins) == 0 {
		allowedOrigins = env.AllowedOrigins
	}

	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:     serverAddr,
		DatabaseDSN:    databaseDSN,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		MigrationsURL:  env.MigrationsURL,
	}, nil
}
