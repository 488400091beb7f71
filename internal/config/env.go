// internal/config/env.go
package config

import (
	"os"
	"strconv"
)

// LoadFromEnv applies environment overrides on top of the document
func LoadFromEnv(cfg *Config) {
	if port := os.Getenv("CONTINUITY_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if logLevel := os.Getenv("CONTINUITY_LOG_LEVEL"); logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}

	if dsn := os.Getenv("CONTINUITY_AUDIT_DSN"); dsn != "" {
		cfg.Audit.PostgresDSN = dsn
	}

	if secret := os.Getenv("CONTINUITY_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}

	if secret := os.Getenv("CONTINUITY_SIGNING_SECRET"); secret != "" {
		cfg.Audit.SigningSecret = secret
	}
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
