// Copyright 2025 API-Sec Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"os"
	"strconv"
	"time"
)

// Version is reported by /health and the startup log line.
const Version = "1.0.0"

// Config holds the gateway's environment-driven configuration.
type Config struct {
	Port        string
	Environment string

	DatabaseURL string
	RedisURL    string

	JWTSecret string

	// MLBackendURL enables the ML fallback tier when set. With it unset a
	// clean pattern pass is conclusively safe and no classifier is called.
	MLBackendURL string
	MLTimeout    time.Duration

	DefaultRateLimit int
	RateLimitWindow  int

	MaxPayloadSize int64

	// SignatureFile optionally replaces the built-in signature table with
	// a YAML file loaded at startup.
	SignatureFile string

	// Audit archive (S3-compatible bucket, including Cloudflare R2).
	// Disabled when ArchiveBucket is empty.
	ArchiveBucket    string
	ArchiveEndpoint  string
	ArchiveRegion    string
	ArchiveAccessKey string
	ArchiveSecretKey string
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		MLBackendURL: getEnv("ML_BACKEND_URL", ""),
		MLTimeout:    time.Duration(getEnvInt("ML_TIMEOUT_MS", 5000)) * time.Millisecond,

		DefaultRateLimit: getEnvInt("DEFAULT_RATE_LIMIT", 100),
		RateLimitWindow:  getEnvInt("RATE_LIMIT_WINDOW", 60),

		MaxPayloadSize: int64(getEnvInt("MAX_PAYLOAD_SIZE", 1048576)),

		SignatureFile: getEnv("SIGNATURES_FILE", ""),

		ArchiveBucket:    getEnv("AUDIT_ARCHIVE_BUCKET", ""),
		ArchiveEndpoint:  getEnv("AUDIT_ARCHIVE_ENDPOINT", ""),
		ArchiveRegion:    getEnv("AUDIT_ARCHIVE_REGION", "us-east-1"),
		ArchiveAccessKey: getEnv("AUDIT_ARCHIVE_ACCESS_KEY", ""),
		ArchiveSecretKey: getEnv("AUDIT_ARCHIVE_SECRET_KEY", ""),
	}
}

// TierLimits maps a tenant tier to its requests-per-window quota.
var TierLimits = map[string]int{
	"free":       100,
	"pro":        1000,
	"enterprise": 10000,
}

// LimitForTier returns the quota for a tier, falling back to the
// configured default for unrecognized tiers.
func (c *Config) LimitForTier(tier string) int {
	if limit, ok := TierLimits[tier]; ok {
		return limit
	}
	return c.DefaultRateLimit
}

// getEnv returns the environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable parsed as int or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
