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
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/vikasswaminh/api-sec/shared/logger"
)

// BlocklistGate checks a source IP against the shared deny-set.
type BlocklistGate interface {
	// IsBlocked reports whether ip is globally blocked. Store failures
	// fail open: an unreachable blocklist never blocks traffic.
	IsBlocked(ctx context.Context, ip string) bool
}

// RedisBlocklist reads the deny-set maintained by the admin surface.
// Keys are "block:ip:<literal>"; presence means blocked.
type RedisBlocklist struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisBlocklist creates a blocklist gate on an existing client.
func NewRedisBlocklist(client *redis.Client, log *logger.Logger) *RedisBlocklist {
	return &RedisBlocklist{client: client, log: log}
}

// IsBlocked implements BlocklistGate.
func (b *RedisBlocklist) IsBlocked(ctx context.Context, ip string) bool {
	n, err := b.client.Exists(ctx, fmt.Sprintf("block:ip:%s", ip)).Result()
	if err != nil {
		// Blocklist enforcement is best-effort: a store outage must not
		// turn into a denial of service for every caller.
		b.log.WarnWithError("", "", "blocklist check failed, failing open", err, map[string]interface{}{
			"source_ip": ip,
		})
		return false
	}
	return n > 0
}
