// Copyright 2025 API-Sec Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	secret := []byte("test-secret")
	tenant := &Tenant{ID: "user-123", Tier: "pro"}

	token, err := GenerateToken(tenant, secret)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "pro", claims.Tier)
	assert.Equal(t, "apisec-gateway", claims.Issuer)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken(&Tenant{ID: "user-123", Tier: "free"}, []byte("secret-a"))
	require.NoError(t, err)

	_, err = ValidateToken(token, []byte("secret-b"))
	assert.Error(t, err)
}

func TestValidateToken_Garbage(t *testing.T) {
	_, err := ValidateToken("not.a.token", []byte("secret"))
	assert.Error(t, err)
}
