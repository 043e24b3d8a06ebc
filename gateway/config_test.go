// Copyright 2025 API-Sec Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_LimitForTier(t *testing.T) {
	cfg := &Config{DefaultRateLimit: 42}

	assert.Equal(t, 100, cfg.LimitForTier("free"))
	assert.Equal(t, 1000, cfg.LimitForTier("pro"))
	assert.Equal(t, 10000, cfg.LimitForTier("enterprise"))
	assert.Equal(t, 42, cfg.LimitForTier("unknown-tier"))
	assert.Equal(t, 42, cfg.LimitForTier(""))
}

func TestLoadConfig_Defaults(t *testing.T) {
	// Clear anything the environment might carry for the keys under test.
	for _, key := range []string{"PORT", "DEFAULT_RATE_LIMIT", "RATE_LIMIT_WINDOW", "MAX_PAYLOAD_SIZE", "ML_TIMEOUT_MS"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 100, cfg.DefaultRateLimit)
	assert.Equal(t, 60, cfg.RateLimitWindow)
	assert.Equal(t, int64(1048576), cfg.MaxPayloadSize)
	assert.Equal(t, 5*time.Second, cfg.MLTimeout)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DEFAULT_RATE_LIMIT", "250")
	t.Setenv("ML_BACKEND_URL", "http://ml:8000")
	t.Setenv("ML_TIMEOUT_MS", "1500")

	cfg := LoadConfig()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 250, cfg.DefaultRateLimit)
	assert.Equal(t, "http://ml:8000", cfg.MLBackendURL)
	assert.Equal(t, 1500*time.Millisecond, cfg.MLTimeout)
}
