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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vikasswaminh/api-sec/shared/logger"
)

// Audit actions recorded for an inspection decision.
const (
	ActionBlocked = "blocked"
	ActionFlagged = "flagged"
	ActionAllowed = "allowed"
)

// AuditEvent is the durable, write-once record of one inspection
// decision. Events are retained 90 days; an external scheduled job purges
// older rows.
type AuditEvent struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Type           string    `json:"type"`
	Severity       string    `json:"severity"`
	SourceIP       string    `json:"source_ip"`
	UserID         string    `json:"user_id"`
	Action         string    `json:"action"`
	Confidence     float64   `json:"confidence"`
	LatencyMS      int64     `json:"latency_ms"`
	PayloadHash    string    `json:"payload_hash"`
	PayloadPreview string    `json:"payload_preview"`
	Reason         string    `json:"reason,omitempty"`
}

// AnalyticsPoint is one data point for the metrics sink.
type AnalyticsPoint struct {
	UserID     string
	EventType  string
	Decision   string
	LatencyMS  float64
	Confidence float64
	Blocked    bool
}

// EventEmitter dispatches audit events and analytics points after a
// decision is made. Both paths are fire-and-forget: they run independently
// of the response and their failure never alters or delays it. There are
// no retries; a dropped entry is accepted data loss.
type EventEmitter struct {
	queue    chan AuditEvent
	db       *sql.DB
	archiver *Archiver
	log      *logger.Logger
	wg       sync.WaitGroup
}

// NewEventEmitter starts the emitter's worker goroutines. archiver may be
// nil when bucket archival is not configured.
func NewEventEmitter(db *sql.DB, archiver *Archiver, log *logger.Logger, queueSize, workers int) *EventEmitter {
	e := &EventEmitter{
		queue:    make(chan AuditEvent, queueSize),
		db:       db,
		archiver: archiver,
		log:      log,
	}

	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}

	return e
}

// Emit queues an audit event for asynchronous persistence. When the
// queue is full the event is dropped and counted, never blocking the
// caller.
func (e *EventEmitter) Emit(ev AuditEvent) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	select {
	case e.queue <- ev:
	default:
		promAuditDropped.Inc()
		e.log.Warn(ev.UserID, "", "audit queue full, dropping event", map[string]interface{}{
			"event_type": ev.Type,
		})
	}
}

// Record writes an analytics point to the metrics sink. The sink is
// in-process, so this is cheap and synchronous.
func (e *EventEmitter) Record(p AnalyticsPoint) {
	promDecisionsTotal.WithLabelValues(p.Decision, p.EventType).Inc()
	promDetectionConfidence.Observe(p.Confidence)
	if p.Blocked {
		promBlockedTotal.Inc()
	}
}

// worker persists queued events one at a time. A failed write is logged
// and dropped; the audit log is best-effort by contract.
func (e *EventEmitter) worker() {
	defer e.wg.Done()

	for ev := range e.queue {
		if err := e.insert(ev); err != nil {
			promAuditDropped.Inc()
			e.log.WarnWithError(ev.UserID, "", "failed to persist audit event", err, map[string]interface{}{
				"event_id":   ev.ID,
				"event_type": ev.Type,
			})
		}
		if e.archiver != nil {
			e.archiver.Enqueue(ev)
		}
	}
}

func (e *EventEmitter) insert(ev AuditEvent) error {
	_, err := e.db.Exec(`
		INSERT INTO events (
			id, timestamp, type, severity, source_ip, user_id,
			action, confidence, latency_ms, payload_hash, payload_preview, reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		ev.ID, ev.Timestamp, ev.Type, ev.Severity, ev.SourceIP, ev.UserID,
		ev.Action, ev.Confidence, ev.LatencyMS, ev.PayloadHash, ev.PayloadPreview, ev.Reason,
	)
	return err
}

// Shutdown stops accepting events and drains the queue, bounded by ctx.
func (e *EventEmitter) Shutdown(ctx context.Context) error {
	close(e.queue)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
