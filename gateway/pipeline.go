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
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vikasswaminh/api-sec/shared/logger"
	"github.com/vikasswaminh/api-sec/signature"
)

// Engine names reported in inspection results.
const (
	EngineEdgePattern = "edge_pattern"
	EngineMLEnsemble  = "ml_ensemble"
	EngineFailOpen    = "fail_open"
)

// cleanConfidence is reported when no signature matched and the fallback
// tier is disabled.
const cleanConfidence = 0.99

// previewLen bounds the audit payload preview.
const previewLen = 200

// Message is one role-tagged entry of a chat-style inspection request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// InspectRequest is the body of POST /v1/inspect. Exactly one of Prompt
// or Messages must be set.
type InspectRequest struct {
	Prompt   string    `json:"prompt,omitempty"`
	Messages []Message `json:"messages,omitempty"`
	Model    string    `json:"model,omitempty"`
}

// Validate enforces the exactly-one-of-prompt-or-messages contract.
func (r *InspectRequest) Validate() error {
	hasPrompt := r.Prompt != ""
	hasMessages := len(r.Messages) > 0

	if hasPrompt && hasMessages {
		return fmt.Errorf("%w: body must contain either prompt or messages, not both", ErrValidation)
	}
	if !hasPrompt && !hasMessages {
		return fmt.Errorf("%w: body must contain prompt or messages", ErrValidation)
	}
	return nil
}

// AnalyzedText extracts the user-authored text to inspect: the prompt
// itself, or all user-role message contents in original order joined by
// newlines.
func (r *InspectRequest) AnalyzedText() string {
	if r.Prompt != "" {
		return r.Prompt
	}

	parts := make([]string, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Role == "user" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// Detection describes one finding attached to an inspection result.
type Detection struct {
	Category string `json:"category"`
	Severity string `json:"severity,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// InspectResponse is the body of a completed inspection.
type InspectResponse struct {
	Safe       bool        `json:"safe"`
	Confidence float64     `json:"confidence"`
	Detections []Detection `json:"detections"`
	ScanTimeMS int64       `json:"scan_time_ms"`
	Engine     string      `json:"engine"`
}

// Gateway composes the inspection pipeline: authentication resolution,
// rate limiting, blocklist enforcement, pattern detection, optional ML
// fallback, and asynchronous audit emission.
type Gateway struct {
	cfg        *Config
	log        *logger.Logger
	tenants    TenantStore
	limiter    RateLimiter
	blocklist  BlocklistGate
	engine     *signature.Engine
	classifier Classifier
	emitter    *EventEmitter
	stats      *StatsStore

	// Held for dependency health checks only.
	db    *sql.DB
	redis *redis.Client
}

// NewGateway wires a gateway from its collaborators. classifier may be
// nil, which disables the ML fallback tier: a clean pattern pass is then
// conclusively safe.
func NewGateway(
	cfg *Config,
	log *logger.Logger,
	tenants TenantStore,
	limiter RateLimiter,
	blocklist BlocklistGate,
	engine *signature.Engine,
	classifier Classifier,
	emitter *EventEmitter,
	stats *StatsStore,
) *Gateway {
	return &Gateway{
		cfg:        cfg,
		log:        log,
		tenants:    tenants,
		limiter:    limiter,
		blocklist:  blocklist,
		engine:     engine,
		classifier: classifier,
		emitter:    emitter,
		stats:      stats,
	}
}

// Inspect runs the request-handling state machine for one request:
// RateChecking → BlocklistChecking → PatternMatching → (MLFallback) →
// Responding. Authentication has already happened in the handler layer.
// Any terminal verdict short-circuits the remaining states. The returned
// RateResult is valid whenever the limiter ran, including on denials, so
// the handler can always set the rate headers.
func (g *Gateway) Inspect(ctx context.Context, tenant *Tenant, sourceIP, requestID string, req *InspectRequest) (*InspectResponse, RateResult, error) {
	start := time.Now()

	// RateChecking
	limit := g.cfg.LimitForTier(tenant.Tier)
	rate, err := g.limiter.Check(ctx, tenant.ID, limit, g.cfg.RateLimitWindow)
	if err != nil {
		return nil, RateResult{}, err
	}
	if !rate.Allowed {
		g.emitter.Emit(AuditEvent{
			Type:           "rate_limit_exceeded",
			Severity:       string(signature.SeverityLow),
			SourceIP:       sourceIP,
			UserID:         tenant.ID,
			Action:         ActionBlocked,
			Confidence:     1.0,
			LatencyMS:      time.Since(start).Milliseconds(),
			PayloadPreview: "rate limit exceeded",
			Reason:         fmt.Sprintf("tier %s quota of %d/%ds exhausted", tenant.Tier, limit, g.cfg.RateLimitWindow),
		})
		return nil, rate, ErrRateLimited
	}

	// BlocklistChecking
	if g.blocklist.IsBlocked(ctx, sourceIP) {
		g.emitter.Emit(AuditEvent{
			Type:           "blocked_ip",
			Severity:       string(signature.SeverityHigh),
			SourceIP:       sourceIP,
			UserID:         tenant.ID,
			Action:         ActionBlocked,
			Confidence:     1.0,
			LatencyMS:      time.Since(start).Milliseconds(),
			PayloadPreview: "IP in blocklist",
			Reason:         "IP globally blocked",
		})
		g.log.Info(tenant.ID, requestID, "request blocked by IP blocklist", map[string]interface{}{
			"source_ip": sourceIP,
		})
		return nil, rate, ErrIPBlocked
	}

	// PatternMatching
	text := req.AnalyzedText()
	match := g.engine.Evaluate(text)

	if match.Matched {
		resp := g.respondPattern(start, match)
		action := ActionFlagged
		if match.Blocked {
			action = ActionBlocked
		}
		g.emitAndRecord(tenant, sourceIP, text, AuditEvent{
			Type:       string(match.Category),
			Severity:   string(match.Severity),
			Action:     action,
			Confidence: match.Confidence,
			LatencyMS:  resp.ScanTimeMS,
			Reason:     fmt.Sprintf("Pattern match: %s", match.Category),
		})
		return resp, rate, nil
	}

	// MLFallback runs only when the tier is enabled; otherwise a clean
	// pattern pass is conclusively safe.
	if g.classifier == nil {
		resp := &InspectResponse{
			Safe:       true,
			Confidence: cleanConfidence,
			Detections: []Detection{},
			ScanTimeMS: time.Since(start).Milliseconds(),
			Engine:     EngineEdgePattern,
		}
		g.emitAndRecord(tenant, sourceIP, text, AuditEvent{
			Type:       "clean",
			Severity:   string(signature.SeverityLow),
			Action:     ActionAllowed,
			Confidence: resp.Confidence,
			LatencyMS:  resp.ScanTimeMS,
		})
		promInspectionDuration.WithLabelValues(EngineEdgePattern).Observe(float64(resp.ScanTimeMS))
		return resp, rate, nil
	}

	resp := g.classify(ctx, tenant, requestID, text, start)
	ev := AuditEvent{
		Type:       "clean",
		Severity:   string(signature.SeverityLow),
		Action:     ActionAllowed,
		Confidence: resp.Confidence,
		LatencyMS:  resp.ScanTimeMS,
	}
	if len(resp.Detections) > 0 {
		ev.Type = resp.Detections[0].Category
		ev.Reason = resp.Detections[0].Reason
	}
	switch {
	case !resp.Safe:
		ev.Action = ActionBlocked
		ev.Severity = string(signature.SeverityHigh)
	case resp.Engine == EngineFailOpen:
		ev.Action = ActionFlagged
		ev.Severity = string(signature.SeverityMedium)
	}
	g.emitAndRecord(tenant, sourceIP, text, ev)
	return resp, rate, nil
}

// respondPattern converts a signature match into a response. Blocking
// severities yield safe=false; medium and low are flagged but allowed.
func (g *Gateway) respondPattern(start time.Time, match signature.Match) *InspectResponse {
	resp := &InspectResponse{
		Safe:       !match.Blocked,
		Confidence: match.Confidence,
		Detections: []Detection{{
			Category: string(match.Category),
			Severity: string(match.Severity),
			Reason:   fmt.Sprintf("Pattern match: %s", match.Category),
		}},
		ScanTimeMS: time.Since(start).Milliseconds(),
		Engine:     EngineEdgePattern,
	}
	promInspectionDuration.WithLabelValues(EngineEdgePattern).Observe(float64(resp.ScanTimeMS))
	return resp
}

// classify delegates to the external classifier and maps its verdict.
// Any infrastructure failure fails open: the request is admitted with
// reduced confidence and an ml_backend_error flag, never a 5xx.
func (g *Gateway) classify(ctx context.Context, tenant *Tenant, requestID, text string, start time.Time) *InspectResponse {
	verdict, err := g.classifier.Classify(ctx, text, tenant.ID)
	if err != nil {
		g.log.WarnWithError(tenant.ID, requestID, "ML backend unavailable, failing open", err, nil)
		resp := &InspectResponse{
			Safe:       true,
			Confidence: 0.5,
			Detections: []Detection{{
				Category: "ml_backend_error",
				Reason:   "Inspection service temporarily unavailable",
			}},
			ScanTimeMS: time.Since(start).Milliseconds(),
			Engine:     EngineFailOpen,
		}
		promInspectionDuration.WithLabelValues(EngineFailOpen).Observe(float64(resp.ScanTimeMS))
		return resp
	}

	resp := &InspectResponse{
		Safe:       !verdict.Blocked,
		Confidence: verdict.Confidence,
		Detections: []Detection{},
		ScanTimeMS: time.Since(start).Milliseconds(),
		Engine:     EngineMLEnsemble,
	}
	category := verdict.Type
	if category == "" && verdict.Blocked {
		// A blocking verdict always carries a category downstream.
		category = "unknown"
	}
	if category != "" {
		resp.Detections = append(resp.Detections, Detection{
			Category: category,
			Reason:   verdict.Reason,
		})
	}
	promInspectionDuration.WithLabelValues(EngineMLEnsemble).Observe(float64(resp.ScanTimeMS))
	return resp
}

// emitAndRecord fills content-derived event fields and dispatches both
// the audit event and its analytics point.
func (g *Gateway) emitAndRecord(tenant *Tenant, sourceIP, text string, ev AuditEvent) {
	ev.SourceIP = sourceIP
	ev.UserID = tenant.ID
	ev.PayloadHash = hashContent(text)
	ev.PayloadPreview = signature.Preview(text, previewLen)

	g.emitter.Emit(ev)
	g.emitter.Record(AnalyticsPoint{
		UserID:     tenant.ID,
		EventType:  ev.Type,
		Decision:   ev.Action,
		LatencyMS:  float64(ev.LatencyMS),
		Confidence: ev.Confidence,
		Blocked:    ev.Action == ActionBlocked,
	})
}

// BatchResult is one entry of a batch inspection response.
type BatchResult struct {
	Blocked    bool    `json:"blocked"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
	Engine     string  `json:"engine"`
}

// BatchResponse is the body of POST /v1/inspect/batch.
type BatchResponse struct {
	Results    []BatchResult `json:"results"`
	Total      int           `json:"total"`
	Blocked    int           `json:"blocked"`
	ScanTimeMS int64         `json:"scan_time_ms"`
}

// maxBatchSize bounds batch inspection requests.
const maxBatchSize = 100

// InspectBatch evaluates up to maxBatchSize prompts on the fast path
// only. Batch traffic never reaches the ML fallback tier.
func (g *Gateway) InspectBatch(prompts []string) *BatchResponse {
	start := time.Now()

	results := make([]BatchResult, 0, len(prompts))
	blocked := 0
	for _, prompt := range prompts {
		match := g.engine.Evaluate(prompt)
		if match.Blocked {
			blocked++
			results = append(results, BatchResult{
				Blocked:    true,
				Confidence: match.Confidence,
				Reason:     fmt.Sprintf("Pattern match: %s", match.Category),
				Engine:     EngineEdgePattern,
			})
			continue
		}
		results = append(results, BatchResult{
			Blocked:    false,
			Confidence: 0,
			Engine:     EngineEdgePattern,
		})
	}

	return &BatchResponse{
		Results:    results,
		Total:      len(prompts),
		Blocked:    blocked,
		ScanTimeMS: time.Since(start).Milliseconds(),
	}
}
