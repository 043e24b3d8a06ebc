// Copyright 2025 API-Sec Authors
// SPDX-License-Identifier: Apache-2.0

/*
Package logger provides structured JSON logging with per-tenant context
for the inspection gateway.

Each entry is a single JSON line on stdout carrying a timestamp
(RFC3339Nano), level, component name, instance and container identifiers,
the tenant and request being served, a message, and optional fields:

	log := logger.New("gateway")
	log.Info("tenant-123", "req-456", "request inspected", map[string]interface{}{
	    "decision": "blocked",
	})

The INSTANCE_ID environment variable and the container hostname are
attached automatically. Logger instances are safe for concurrent use.
*/
package logger
