// Copyright 2025 API-Sec Authors
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the inspection gateway service.
//
// The gateway sits in front of a downstream language model and:
// - Blocks or flags prompts matching known attack signatures
// - Enforces per-tenant request quotas and a global IP blocklist
// - Optionally delegates inconclusive content to an ML classifier
// - Emits asynchronous audit and analytics records for every decision
//
// Usage:
//
//	./gateway
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	DATABASE_URL - PostgreSQL connection string (tenant store + audit log)
//	REDIS_URL - Redis URL (rate limits + IP blocklist)
//	JWT_SECRET - Secret for dashboard bearer tokens
//	ML_BACKEND_URL - enables the ML fallback tier when set
package main

import (
	"github.com/vikasswaminh/api-sec/gateway"
)

func main() {
	gateway.Run()
}
