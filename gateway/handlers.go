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
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type contextKey string

const (
	tenantContextKey    contextKey = "tenant"
	requestIDContextKey contextKey = "request_id"
)

// tenantFromContext returns the authenticated tenant set by the
// authenticate middleware.
func tenantFromContext(ctx context.Context) (*Tenant, bool) {
	t, ok := ctx.Value(tenantContextKey).(*Tenant)
	return t, ok
}

func requestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDContextKey).(string); ok {
		return id
	}
	return ""
}

// RegisterRoutes mounts all gateway endpoints on r.
func (g *Gateway) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", g.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/auth/token", g.handleToken).Methods("POST")

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(g.authenticate)
	v1.HandleFunc("/inspect", g.handleInspect).Methods("POST")
	v1.HandleFunc("/inspect/batch", g.handleInspectBatch).Methods("POST")
	v1.HandleFunc("/stats", g.handleStats).Methods("GET")
	v1.HandleFunc("/events", g.handleEvents).Methods("GET")
}

// authenticate resolves the presented credential to a tenant. The
// credential is the X-API-Key header, or a Bearer token minted by
// /auth/token.
func (g *Gateway) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()

		tenant, err := g.resolveCaller(r)
		if err != nil {
			status := httpStatus(err)
			if status == http.StatusInternalServerError {
				err = ErrInvalidCredential
				status = http.StatusUnauthorized
			}
			promRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
			fields := map[string]interface{}{
				"status": status,
			}
			if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
				fields["key_prefix"] = safePrefix(apiKey, 8)
			}
			g.log.Info("", requestID, "authentication failed", fields)
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), tenantContextKey, tenant)
		ctx = context.WithValue(ctx, requestIDContextKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveCaller extracts and resolves the request credential.
func (g *Gateway) resolveCaller(r *http.Request) (*Tenant, error) {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return g.tenants.ResolveCredential(r.Context(), apiKey)
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, ErrUnauthenticated
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, ErrInvalidCredential
	}

	claims, err := ValidateToken(parts[1], []byte(g.cfg.JWTSecret))
	if err != nil {
		return nil, ErrInvalidCredential
	}

	return g.tenants.GetTenant(r.Context(), claims.UserID)
}

// sourceIP extracts the client IP: the first X-Forwarded-For hop, then
// X-Real-IP, then the connection's remote address.
func sourceIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// setRateHeaders sets the rate-limit headers; they accompany every
// inspect response once the limiter has run.
func setRateHeaders(w http.ResponseWriter, rate RateResult) {
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rate.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(rate.Reset, 10))
}

// handleInspect serves POST /v1/inspect.
func (g *Gateway) handleInspect(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromContext(r.Context())
	if !ok {
		g.writeFailure(w, r, errors.New("tenant missing from context"))
		return
	}
	requestID := requestIDFromContext(r.Context())

	var req InspectRequest
	r.Body = http.MaxBytesReader(w, r.Body, g.cfg.MaxPayloadSize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeFailure(w, r, fmt.Errorf("%w: malformed or oversized body", ErrValidation))
		return
	}
	if err := req.Validate(); err != nil {
		g.writeFailure(w, r, err)
		return
	}

	resp, rate, err := g.Inspect(r.Context(), tenant, sourceIP(r), requestID, &req)
	if rate.Reset != 0 {
		setRateHeaders(w, rate)
	}
	if err != nil {
		g.writeFailure(w, r, err)
		return
	}

	promRequestsTotal.WithLabelValues("200").Inc()
	g.log.Info(tenant.ID, requestID, "inspection completed", map[string]interface{}{
		"safe":         resp.Safe,
		"engine":       resp.Engine,
		"scan_time_ms": resp.ScanTimeMS,
	})
	writeJSON(w, http.StatusOK, resp)
}

// batchRequest is the body of POST /v1/inspect/batch.
type batchRequest struct {
	Prompts []string `json:"prompts"`
}

// handleInspectBatch serves POST /v1/inspect/batch.
func (g *Gateway) handleInspectBatch(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromContext(r.Context())
	if !ok {
		g.writeFailure(w, r, errors.New("tenant missing from context"))
		return
	}
	requestID := requestIDFromContext(r.Context())

	var req batchRequest
	r.Body = http.MaxBytesReader(w, r.Body, g.cfg.MaxPayloadSize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeFailure(w, r, fmt.Errorf("%w: malformed or oversized body", ErrValidation))
		return
	}
	if len(req.Prompts) == 0 {
		g.writeFailure(w, r, fmt.Errorf("%w: prompts must not be empty", ErrValidation))
		return
	}
	if len(req.Prompts) > maxBatchSize {
		g.writeFailure(w, r, fmt.Errorf("%w: at most %d prompts per batch", ErrValidation, maxBatchSize))
		return
	}

	// The batch counts as one request against the tenant's quota.
	limit := g.cfg.LimitForTier(tenant.Tier)
	rate, err := g.limiter.Check(r.Context(), tenant.ID, limit, g.cfg.RateLimitWindow)
	if err != nil {
		g.writeFailure(w, r, err)
		return
	}
	setRateHeaders(w, rate)
	if !rate.Allowed {
		g.writeFailure(w, r, ErrRateLimited)
		return
	}

	resp := g.InspectBatch(req.Prompts)

	promRequestsTotal.WithLabelValues("200").Inc()
	g.log.Info(tenant.ID, requestID, "batch inspection completed", map[string]interface{}{
		"total":   resp.Total,
		"blocked": resp.Blocked,
	})
	writeJSON(w, http.StatusOK, resp)
}

// statsResponse is the body of GET /v1/stats.
type statsResponse struct {
	UserID  string       `json:"user_id"`
	Tier    string       `json:"tier"`
	Last24h StatsSummary `json:"last_24h"`
}

// handleStats serves GET /v1/stats: the caller's 24h rollup.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromContext(r.Context())
	if !ok {
		g.writeFailure(w, r, errors.New("tenant missing from context"))
		return
	}

	summary, err := g.stats.Summarize(r.Context(), tenant.ID, 1)
	if err != nil {
		g.writeFailure(w, r, err)
		return
	}

	promRequestsTotal.WithLabelValues("200").Inc()
	writeJSON(w, http.StatusOK, statsResponse{
		UserID:  tenant.ID,
		Tier:    tenant.Tier,
		Last24h: *summary,
	})
}

// handleEvents serves GET /v1/events?limit=N, N in [1,100], default 10.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromContext(r.Context())
	if !ok {
		g.writeFailure(w, r, errors.New("tenant missing from context"))
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			g.writeFailure(w, r, fmt.Errorf("%w: limit must be between 1 and 100", ErrValidation))
			return
		}
		limit = n
	}

	events, err := g.stats.RecentEvents(r.Context(), tenant.ID, limit)
	if err != nil {
		g.writeFailure(w, r, err)
		return
	}

	promRequestsTotal.WithLabelValues("200").Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// tokenRequest is the body of POST /auth/token.
type tokenRequest struct {
	APIKey string `json:"api_key"`
}

// handleToken exchanges an API key for a short-lived bearer token.
func (g *Gateway) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeFailure(w, r, fmt.Errorf("%w: malformed body", ErrValidation))
		return
	}

	tenant, err := g.tenants.ResolveCredential(r.Context(), req.APIKey)
	if err != nil {
		g.writeFailure(w, r, err)
		return
	}

	token, err := GenerateToken(tenant, []byte(g.cfg.JWTSecret))
	if err != nil {
		g.writeFailure(w, r, fmt.Errorf("failed to generate token: %w", err))
		return
	}

	promRequestsTotal.WithLabelValues("200").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// handleHealth serves GET /health: liveness plus dependency checks.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if g.db != nil {
		if err := g.db.PingContext(ctx); err != nil {
			checks["database"] = "error"
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}
	if g.redis != nil {
		if err := g.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "error"
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"status":      status,
		"version":     Version,
		"environment": g.cfg.Environment,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"checks":      checks,
	})
}

// writeFailure logs and writes an error response, keeping internal
// detail out of the body.
func (g *Gateway) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	promRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()

	tenantID := ""
	if t, ok := tenantFromContext(r.Context()); ok {
		tenantID = t.ID
	}
	if status >= 500 {
		g.log.ErrorWithCode(tenantID, requestIDFromContext(r.Context()), "request failed", status, err, map[string]interface{}{
			"path": r.URL.Path,
		})
	}

	writeError(w, err)
}
