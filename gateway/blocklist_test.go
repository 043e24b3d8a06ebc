// Copyright 2025 API-Sec Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBlocklist_IsBlocked(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	require.NoError(t, mr.Set("block:ip:203.0.113.9", "1"))

	bl := NewRedisBlocklist(client, testLogger())
	ctx := context.Background()

	assert.True(t, bl.IsBlocked(ctx, "203.0.113.9"))
	assert.False(t, bl.IsBlocked(ctx, "198.51.100.4"))
}

func TestRedisBlocklist_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	bl := NewRedisBlocklist(client, testLogger())
	mr.Close()

	// An unreachable store never blocks traffic.
	assert.False(t, bl.IsBlocked(context.Background(), "203.0.113.9"))
}
