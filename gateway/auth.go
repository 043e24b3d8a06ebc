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
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
)

// Tenant is the authenticated caller of the gateway. It is owned by the
// external tenant store; the gateway only reads it, and it is immutable
// for the lifetime of a request.
type Tenant struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	APIKey string `json:"-"`
	Tier   string `json:"tier"`
}

// TenantStore resolves credentials to tenants.
type TenantStore interface {
	// ResolveCredential returns the tenant owning the given API key.
	// It fails with ErrUnauthenticated for an empty credential,
	// ErrInvalidCredential when no tenant matches, and
	// ErrDependencyUnavailable when the store cannot be reached.
	ResolveCredential(ctx context.Context, credential string) (*Tenant, error)

	// GetTenant returns the tenant with the given id.
	GetTenant(ctx context.Context, id string) (*Tenant, error)
}

// PostgresTenantStore reads tenants from the external users table. No
// caching: a revoked key stops authenticating on the next request.
type PostgresTenantStore struct {
	db *sql.DB
}

// NewPostgresTenantStore creates a tenant store backed by db.
func NewPostgresTenantStore(db *sql.DB) *PostgresTenantStore {
	return &PostgresTenantStore{db: db}
}

// ResolveCredential implements TenantStore.
func (s *PostgresTenantStore) ResolveCredential(ctx context.Context, credential string) (*Tenant, error) {
	if credential == "" {
		return nil, ErrUnauthenticated
	}

	var t Tenant
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, api_key, tier FROM users WHERE api_key = $1",
		credential,
	).Scan(&t.ID, &t.Email, &t.APIKey, &t.Tier)

	if err == sql.ErrNoRows {
		return nil, ErrInvalidCredential
	}
	if err != nil {
		return nil, fmt.Errorf("%w: tenant lookup: %v", ErrDependencyUnavailable, err)
	}

	return &t, nil
}

// GetTenant implements TenantStore.
func (s *PostgresTenantStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	var t Tenant
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, api_key, tier FROM users WHERE id = $1",
		id,
	).Scan(&t.ID, &t.Email, &t.APIKey, &t.Tier)

	if err == sql.ErrNoRows {
		return nil, ErrInvalidCredential
	}
	if err != nil {
		return nil, fmt.Errorf("%w: tenant lookup: %v", ErrDependencyUnavailable, err)
	}

	return &t, nil
}

// hashContent returns the sha256 hex digest of inspected content, stored
// in audit events instead of the raw payload.
func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// safePrefix returns up to n characters from s for safe logging
func safePrefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
